package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// ErrInvalidToken is returned for tokens that fail parsing, signature or claim checks.
var ErrInvalidToken = errors.New("invalid session token")

// Tokens signs and verifies session tokens carrying the session id as subject.
type Tokens struct {
	Secret    []byte
	Issuer    string
	Audience  string
	TTL       time.Duration
	ClockSkew time.Duration
	Now       func() time.Time
}

func (t Tokens) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

func (t Tokens) ttl() time.Duration {
	if t.TTL <= 0 {
		return 24 * time.Hour
	}
	return t.TTL
}

// Sign issues a token for the session, returning it with its expiry.
func (t Tokens) Sign(sessionID string) (string, time.Time, error) {
	if len(t.Secret) == 0 {
		return "", time.Time{}, errors.New("session: signing secret not configured")
	}
	now := t.now()
	expiresAt := now.Add(t.ttl())
	builder := jwt.NewBuilder().
		Subject(sessionID).
		IssuedAt(now).
		NotBefore(now.Add(-t.ClockSkew)).
		Expiration(expiresAt)
	if t.Issuer != "" {
		builder = builder.Issuer(t.Issuer)
	}
	if t.Audience != "" {
		builder = builder.Audience([]string{t.Audience})
	}
	tok, err := builder.Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, t.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
}

// Verify checks the token and returns the session id it names.
func (t Tokens) Verify(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("missing token: %w", ErrInvalidToken)
	}
	if err := requireHS256(token); err != nil {
		return "", fmt.Errorf("%v: %w", err, ErrInvalidToken)
	}
	options := []jwt.ParseOption{
		jwt.WithKey(jwa.HS256, t.Secret),
		jwt.WithValidate(true),
		jwt.WithClock(jwt.ClockFunc(t.now)),
	}
	if t.ClockSkew > 0 {
		options = append(options, jwt.WithAcceptableSkew(t.ClockSkew))
	}
	if t.Issuer != "" {
		options = append(options, jwt.WithIssuer(t.Issuer))
	}
	if t.Audience != "" {
		options = append(options, jwt.WithAudience(t.Audience))
	}
	parsed, err := jwt.ParseString(token, options...)
	if err != nil {
		return "", fmt.Errorf("%v: %w", err, ErrInvalidToken)
	}
	if parsed.Subject() == "" {
		return "", fmt.Errorf("missing subject: %w", ErrInvalidToken)
	}
	return parsed.Subject(), nil
}

func requireHS256(token string) error {
	message, err := jws.ParseString(token)
	if err != nil {
		return err
	}
	for _, sig := range message.Signatures() {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return errors.New("token missing protected headers")
		}
		if alg := headers.Algorithm(); alg != jwa.HS256 {
			return fmt.Errorf("unexpected token algorithm %s", alg)
		}
	}
	if len(message.Signatures()) == 0 {
		return errors.New("token contains no signatures")
	}
	return nil
}
