package fcm

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// MessagingScope is the OAuth scope required by the messaging and device group APIs.
	MessagingScope = "https://www.googleapis.com/auth/firebase.messaging"
	// TokenAudience is the fixed audience of the service account assertion.
	TokenAudience = "https://oauth2.googleapis.com/token"

	assertionTTL = 10 * time.Minute
)

// Credentials signs short-lived service account assertions.
type Credentials struct {
	clientEmail string
	key         *rsa.PrivateKey
}

// NewCredentials parses a PEM private key. Keys copied from a JSON service
// account file often carry literal "\n" sequences; those are unescaped first.
func NewCredentials(clientEmail, privateKeyPEM string) (*Credentials, error) {
	if clientEmail == "" {
		return nil, errors.New("client email is required")
	}
	pem := strings.ReplaceAll(privateKeyPEM, `\n`, "\n")
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(pem))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &Credentials{clientEmail: clientEmail, key: key}, nil
}

// ClientEmail returns the service account the credentials sign for.
func (c *Credentials) ClientEmail() string {
	return c.clientEmail
}

// SignAssertion returns an RS256 JWT valid for ten minutes from now.
func (c *Credentials) SignAssertion(now time.Time) (string, error) {
	iat := now.Unix()
	claims := jwt.MapClaims{
		"iss":   c.clientEmail,
		"scope": MessagingScope,
		"aud":   TokenAudience,
		"iat":   iat,
		"exp":   now.Add(assertionTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(c.key)
}
