package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "snapquestion-widget"

type WidgetClaims struct {
	ConversationID string `json:"cid,omitempty"`
	jwt.RegisteredClaims
}

// SignWidgetToken issues the token a mounted widget sends back on every call.
// The subject is the widget session id.
func SignWidgetToken(sessionID, conversationID, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := WidgetClaims{
		ConversationID: conversationID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func ParseWidgetToken(tokenStr, secret string) (*WidgetClaims, error) {
	claims := &WidgetClaims{}
	tok, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
	)
	if err != nil {
		return nil, err
	}
	if !tok.Valid || claims.Subject == "" {
		return nil, errors.New("invalid widget token")
	}
	return claims, nil
}
