package answer

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DevelopmentToken is what the API accepts when no identity is signed in.
const DevelopmentToken = "DEV"

type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }

// DevToken sends the development token on every request.
var DevToken TokenSource = StaticToken(DevelopmentToken)

type identityKey struct{}

// WithIdentityToken attaches a signed-in user's ID token to ctx.
func WithIdentityToken(ctx context.Context, token string) context.Context {
	token = strings.TrimSpace(token)
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, identityKey{}, token)
}

func IdentityToken(ctx context.Context) string {
	v, _ := ctx.Value(identityKey{}).(string)
	return v
}

type callerOnlyKey struct{}

// CallerOnly marks ctx so IdentityOrDev never substitutes the configured
// server token: the request goes out as the caller or as DEV.
func CallerOnly(ctx context.Context) context.Context {
	return context.WithValue(ctx, callerOnlyKey{}, true)
}

func isCallerOnly(ctx context.Context) bool {
	v, _ := ctx.Value(callerOnlyKey{}).(bool)
	return v
}

// IdentityOrDev prefers the identity token carried by the context, then a
// configured one, and falls back to the development token. Identity tokens
// that are JWTs past their exp are skipped; the API would reject them anyway.
type IdentityOrDev struct {
	Configured string
	Now        func() time.Time
}

func (s IdentityOrDev) Token(ctx context.Context) (string, error) {
	candidates := []string{IdentityToken(ctx)}
	if !isCallerOnly(ctx) {
		candidates = append(candidates, strings.TrimSpace(s.Configured))
	}
	for _, tok := range candidates {
		if tok != "" && !s.expired(tok) {
			return tok, nil
		}
	}
	return DevelopmentToken, nil
}

func (s IdentityOrDev) expired(token string) bool {
	// signature is verified by the API, we only read exp
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		// opaque tokens are passed through untouched
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return !now().Before(claims.ExpiresAt.Time)
}
