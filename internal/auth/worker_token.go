package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// WorkerClaims authorize a worker to drain the queue. They carry no user
// identity, only the reason the worker was woken.
type WorkerClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// WorkerTokenIssuer mints short-lived worker capability tokens. A fresh token
// goes with every wake call and is never stored server side.
type WorkerTokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewWorkerTokenIssuer(secret string, ttl time.Duration) *WorkerTokenIssuer {
	return &WorkerTokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// WithClock replaces the time source.
func (w *WorkerTokenIssuer) WithClock(now func() time.Time) *WorkerTokenIssuer {
	w.now = now
	return w
}

func (w *WorkerTokenIssuer) Issue(scope string) (string, error) {
	if strings.TrimSpace(scope) == "" {
		return "", fmt.Errorf(msgEmptyScope)
	}

	now := w.now()
	claims := WorkerClaims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{workerAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(w.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(w.secret)
}

func (w *WorkerTokenIssuer) Verify(tokenString string) (*WorkerClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &WorkerClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf(msgUnexpectedSigningMethod, token.Header["alg"])
		}
		return w.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(workerAudience),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(w.now),
	)
	if err != nil {
		return nil, fmt.Errorf(msgTokenParseFailed, err)
	}

	claims, ok := token.Claims.(*WorkerClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf(msgInvalidTokenClaims)
	}

	return claims, nil
}
