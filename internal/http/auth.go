package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"finwatch/internal/log"
)

// ErrUnauthenticated is returned when a request carries no usable identity.
var ErrUnauthenticated = errors.New("unauthenticated")

// HeaderUserID identifies the caller when no JWT secret is configured.
const HeaderUserID = "X-User-ID"

type userKey struct{}

// Claims are the access token claims issued by the hosted auth provider.
// The user id is the subject; some issuers also put it under uid.
type Claims struct {
	UserID string `json:"uid,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator resolves the calling user. With a secret it verifies HS256
// bearer tokens; without one it trusts the X-User-ID header, which is only
// suitable behind a gateway that sets it.
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

func NewAuthenticator(secret string, now func() time.Time) *Authenticator {
	if now == nil {
		now = time.Now
	}
	return &Authenticator{secret: []byte(secret), now: now}
}

// Authenticate returns the canonical user id for r.
func (a *Authenticator) Authenticate(r *http.Request) (string, error) {
	if len(a.secret) == 0 {
		return canonicalUserID(r.Header.Get(HeaderUserID))
	}

	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: missing bearer token", ErrUnauthenticated)
	}
	claims, err := a.ParseToken(strings.TrimSpace(token))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	id := claims.UserID
	if id == "" {
		id = claims.Subject
	}
	return canonicalUserID(id)
}

// ParseToken verifies signature, algorithm and expiry.
func (a *Authenticator) ParseToken(token string) (Claims, error) {
	var claims Claims
	tkn, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Claims{}, err
	}
	if !tkn.Valid {
		return Claims{}, errors.New("invalid token")
	}
	return claims, nil
}

// IssueToken signs an access token for userID. Used by tests and local tooling.
func (a *Authenticator) IssueToken(userID string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func canonicalUserID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: missing user id", ErrUnauthenticated)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: user id is not a uuid", ErrUnauthenticated)
	}
	return id.String(), nil
}

// Middleware rejects unauthenticated requests and stores the user id.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := a.Authenticate(r)
		if err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Authentication failed",
				log.FieldComponent, log.ComponentAuth, log.FieldError, err)
			UnauthorizedError(r, "authentication required").Write(w)
			return
		}
		ctx := context.WithValue(r.Context(), userKey{}, userID)
		ctx = log.NewContext(ctx, log.FromContext(ctx).WithUser(userID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserIDFromContext returns the id stored by Middleware.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userKey{}).(string)
	return id, ok && id != ""
}
