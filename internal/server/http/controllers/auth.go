package controllers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	logpkg "github.com/nduplat/motorcycle-service-app-sub002/pkg/log"
)

// StaffClaims identifies a technician. Subject carries the technician id.
type StaffClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type ctxKey struct{}

// Authenticator validates HS256 bearer tokens on staff routes.
type Authenticator struct {
	secret []byte
	issuer string
	logger logpkg.Logger
}

// NewAuthenticator returns an Authenticator. An empty secret disables
// authentication.
func NewAuthenticator(secret, issuer string, logger logpkg.Logger) *Authenticator {
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	return &Authenticator{secret: []byte(secret), issuer: issuer, logger: logger.WithComponent("auth")}
}

// Enabled reports whether tokens are checked.
func (a *Authenticator) Enabled() bool { return a != nil && len(a.secret) > 0 }

// Issue signs a staff token for technicianID. Used by tooling and tests.
func (a *Authenticator) Issue(technicianID string, ttl time.Duration) (string, error) {
	if !a.Enabled() {
		return "", errors.New("auth: no signing secret configured")
	}
	now := time.Now()
	claims := StaffClaims{
		Role: "staff",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   technicianID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Authenticator) parse(raw string) (*StaffClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	claims := &StaffClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// Require wraps a staff handler. When authentication is disabled the
// handler runs unchanged.
func (a *Authenticator) Require(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next(w, r)
			return
		}
		raw, ok := bearer(r.Header.Get("Authorization"))
		if !ok {
			writeError(w, http.StatusUnauthorized, "Authorization token missing")
			return
		}
		claims, err := a.parse(raw)
		if err != nil {
			a.logger.Warn("rejected staff token", logpkg.Str("path", r.URL.Path), logpkg.Err(err))
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, claims)))
	}
}

func bearer(h string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(h), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

// technicianFrom resolves the acting technician. With an authenticated
// token the subject wins; an explicit id naming someone else is refused.
func technicianFrom(ctx context.Context, explicit string) (string, bool) {
	explicit = strings.TrimSpace(explicit)
	c, ok := ctx.Value(ctxKey{}).(*StaffClaims)
	if !ok || c.Subject == "" {
		return explicit, true
	}
	if explicit != "" && explicit != c.Subject {
		return "", false
	}
	return c.Subject, true
}

func writeTechnicianMismatch(w http.ResponseWriter) {
	writeError(w, http.StatusForbidden, "technicianId does not match token subject")
}
