// Package auth issues signed, time-limited tokens and provides the middleware
// that gates protected routes. The token travels as the raw value of the
// Authorization header, without a "Bearer" scheme.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"

	"github.com/patric-chuzhbe/todoapp/internal/logger"
	"github.com/patric-chuzhbe/todoapp/internal/models"
)

// Auth signs and verifies tokens with a process-wide key.
type Auth struct {
	// signingKey is the HMAC key used to sign JWTs.
	signingKey []byte

	// tokenTTL is the lifetime of an issued token.
	tokenTTL time.Duration

	now func() time.Time
}

// Claims represents the JWT claims used by the system.
// It embeds standard JWT claims (expiry, issue time) and adds the username.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// ContextKey is a custom type for storing values in context to avoid collisions.
type ContextKey string

// UsernameKey is the context key used to store and retrieve the authenticated username.
const UsernameKey ContextKey = "username"

// ErrInvalidToken covers every reason a token is rejected: bad signature,
// unexpected algorithm, expiry, missing claims.
var ErrInvalidToken = errors.New("invalid token")

type Option func(*Auth)

// WithClock overrides the time source used when issuing tokens.
func WithClock(now func() time.Time) Option {
	return func(a *Auth) {
		a.now = now
	}
}

// New creates an Auth with the given signing key and token lifetime.
func New(signingKey []byte, tokenTTL time.Duration, options ...Option) *Auth {
	a := &Auth{
		signingKey: signingKey,
		tokenTTL:   tokenTTL,
		now:        time.Now,
	}
	for _, option := range options {
		option(a)
	}

	return a
}

// IssueToken returns a signed token for username that expires after the
// configured TTL.
func (a *Auth) IssueToken(username string) (string, error) {
	issuedAt := a.now()

	return a.buildJWTString(&Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(a.tokenTTL)),
		},
		Username: username,
	})
}

// GetUsernameFromToken verifies the token and returns the username it carries.
func (a *Auth) GetUsernameFromToken(tokenString string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return a.signingKey, nil
		},
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.ExpiresAt == nil {
		return "", fmt.Errorf("%w: missing expiry", ErrInvalidToken)
	}
	if claims.Username == "" {
		return "", fmt.Errorf("%w: missing username", ErrInvalidToken)
	}

	return claims.Username, nil
}

// AuthenticateUser is an HTTP middleware that rejects requests without a
// valid token and stores the username in the request context.
func (a *Auth) AuthenticateUser(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		tokenString := request.Header.Get("Authorization")
		if tokenString == "" {
			logger.Log.Debugln("request without the Authorization header", "uri", request.RequestURI)
			writeUnauthorized(response)
			return
		}

		username, err := a.GetUsernameFromToken(tokenString)
		if err != nil {
			logger.Log.Debugln("Error calling the `a.GetUsernameFromToken()`: ", zap.Error(err))
			writeUnauthorized(response)
			return
		}

		ctx := context.WithValue(request.Context(), UsernameKey, username)
		h.ServeHTTP(response, request.WithContext(ctx))
	}

	return http.HandlerFunc(middleware)
}

// UsernameFromContext returns the username stored by AuthenticateUser.
func UsernameFromContext(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(UsernameKey).(string)
	return username, ok && username != ""
}

func (a *Auth) buildJWTString(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, *claims)

	tokenString, err := token.SignedString(a.signingKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

func writeUnauthorized(response http.ResponseWriter) {
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(http.StatusUnauthorized)
	if err := json.NewEncoder(response).Encode(models.ErrorResponse{Error: "Unauthorized"}); err != nil {
		logger.Log.Debugln("Error encoding the unauthorized response: ", zap.Error(err))
	}
}
