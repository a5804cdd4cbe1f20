package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"questkeeper_notifications/internal/domain"
	"questkeeper_notifications/internal/logger"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"
)

// DueLister finds pending rows whose send time has come.
type DueLister interface {
	ListDue(ctx context.Context, from, until time.Time, limit int) ([]domain.ScheduledNotification, error)
}

// Deliverer sends one loaded row.
type Deliverer interface {
	Deliver(ctx context.Context, n domain.ScheduledNotification) (domain.DeliveryResult, error)
}

type SweeperConfig struct {
	Spec        string // cron spec or @every
	BatchSize   int
	RatePerSec  float64
	TickTimeout time.Duration
	// MaxLateness drops rows that stayed undeliverable for longer, such as
	// reminders of users without registered devices.
	MaxLateness time.Duration
}

// SweepReport summarises one sweep.
type SweepReport struct {
	Due     int
	Sent    int
	Skipped int
	Failed  int
}

// Sweeper is the in-process send trigger: on every tick it dispatches the
// rows that have become due.
type Sweeper struct {
	due       DueLister
	deliverer Deliverer
	cfg       SweeperConfig
	limiter   *rate.Limiter
	now       func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

func NewSweeper(due DueLister, deliverer Deliverer, cfg SweeperConfig) *Sweeper {
	if cfg.Spec == "" {
		cfg.Spec = "@every 1m"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.TickTimeout <= 0 {
		cfg.TickTimeout = 5 * time.Minute
	}
	if cfg.MaxLateness <= 0 {
		cfg.MaxLateness = 6 * time.Hour
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	return &Sweeper{
		due:       due,
		deliverer: deliverer,
		cfg:       cfg,
		limiter:   rate.NewLimiter(limit, 1),
		now:       time.Now,
	}
}

// Start schedules the sweep. Ticks never overlap.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("sweeper already started")
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.cfg.Spec, s.tick); err != nil {
		return err
	}
	c.Start()
	s.cron = c
	logger.Info("due sweeper started", "spec", s.cfg.Spec, "batch", s.cfg.BatchSize)
	return nil
}

// Stop waits for a running tick to finish or ctx to expire.
func (s *Sweeper) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	logger.Info("due sweeper stopped")
}

func (s *Sweeper) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.TickTimeout)
	defer cancel()

	if _, err := s.RunOnce(ctx); err != nil {
		sweepRuns.WithLabelValues("error").Inc()
		logger.Error("due sweep failed", "error", err)
		return
	}
	sweepRuns.WithLabelValues("ok").Inc()
}

// RunOnce dispatches one batch of due rows.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepReport, error) {
	var report SweepReport

	now := s.now()
	rows, err := s.due.ListDue(ctx, now.Add(-s.cfg.MaxLateness), now, s.cfg.BatchSize)
	if err != nil {
		return report, err
	}
	report.Due = len(rows)

	for _, n := range rows {
		if err := s.limiter.Wait(ctx); err != nil {
			return report, err
		}

		res, err := s.deliverer.Deliver(ctx, n)
		switch {
		case res.Status == domain.DeliverySent:
			report.Sent++
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			report.Failed++
		default:
			report.Skipped++
		}
	}

	if report.Due > 0 {
		logger.Info("due sweep finished",
			"due", report.Due, "sent", report.Sent, "skipped", report.Skipped, "failed", report.Failed)
	}
	return report, nil
}
