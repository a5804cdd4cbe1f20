package servicetest

import (
	"context"
	"fmt"
	"sync"

	"questkeeper_notifications/internal/domain"
	"questkeeper_notifications/internal/fcm"
)

// Call records one provider operation.
type Call struct {
	Op     string
	Name   string
	Key    string
	Tokens []string
}

// Provider mimics the device group and send APIs. Groups are keyed by name;
// a second create for the same name answers "already exists".
type Provider struct {
	mu     sync.Mutex
	groups map[string]*group
	nextID int
	calls  []Call
	sent   []fcm.Message

	// SendErr and OpErr make Send / group operations fail.
	SendErr error
	OpErr   error
}

type group struct {
	key    string
	tokens map[string]bool
}

func NewProvider() *Provider {
	return &Provider{groups: map[string]*group{}}
}

// Calls returns the recorded operations.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// Sent returns delivered messages.
func (p *Provider) Sent() []fcm.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]fcm.Message(nil), p.sent...)
}

// Tokens returns the tokens currently in the named group.
func (p *Provider) Tokens(name string) map[string]bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := map[string]bool{}
	if g, ok := p.groups[name]; ok {
		for t := range g.tokens {
			out[t] = true
		}
	}
	return out
}

// SeedGroup creates a group without recording a call.
func (p *Provider) SeedGroup(name, key string, tokens ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	g := &group{key: key, tokens: map[string]bool{}}
	for _, t := range tokens {
		g.tokens[t] = true
	}
	p.groups[name] = g
}

func (p *Provider) record(c Call) {
	p.calls = append(p.calls, c)
}

func (p *Provider) CreateGroup(_ context.Context, name string, tokens []string) (fcm.GroupResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record(Call{Op: "create", Name: name, Tokens: tokens})
	if p.OpErr != nil {
		return fcm.GroupResult{}, p.OpErr
	}
	if _, ok := p.groups[name]; ok {
		return fcm.GroupResult{Status: fcm.GroupAlreadyExists}, nil
	}
	p.nextID++
	g := &group{key: fmt.Sprintf("key-%d", p.nextID), tokens: map[string]bool{}}
	for _, t := range tokens {
		g.tokens[t] = true
	}
	p.groups[name] = g
	return fcm.GroupResult{Status: fcm.GroupCreated, Key: g.key}, nil
}

func (p *Provider) AddToGroup(_ context.Context, name, key string, tokens []string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record(Call{Op: "add", Name: name, Key: key, Tokens: tokens})
	if p.OpErr != nil {
		return "", p.OpErr
	}
	g, ok := p.groups[name]
	if !ok || g.key != key {
		return "", &fcm.APIError{Op: "add group", StatusCode: 400, Code: "notification_key not found"}
	}
	for _, t := range tokens {
		g.tokens[t] = true
	}
	return g.key, nil
}

func (p *Provider) RemoveFromGroup(_ context.Context, name, key string, tokens []string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record(Call{Op: "remove", Name: name, Key: key, Tokens: tokens})
	if p.OpErr != nil {
		return "", p.OpErr
	}
	g, ok := p.groups[name]
	if !ok || g.key != key {
		return "", &fcm.APIError{Op: "remove group", StatusCode: 400, Code: "notification_key not found"}
	}
	for _, t := range tokens {
		delete(g.tokens, t)
	}
	return g.key, nil
}

func (p *Provider) LookupGroup(_ context.Context, name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record(Call{Op: "lookup", Name: name})
	if p.OpErr != nil {
		return "", p.OpErr
	}
	g, ok := p.groups[name]
	if !ok {
		return "", fmt.Errorf("%w: no group %s", domain.ErrProvider, name)
	}
	return g.key, nil
}

func (p *Provider) Send(_ context.Context, msg fcm.Message) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record(Call{Op: "send", Key: msg.Token})
	if p.SendErr != nil {
		return "", p.SendErr
	}
	p.sent = append(p.sent, msg)
	return fmt.Sprintf("projects/test/messages/%d", len(p.sent)), nil
}
