package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"ledger/internal/core"
	"ledger/internal/log"
)

const tokenIssuer = "ledger"

// TokenIssuer signs and verifies HS256 bearer tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type claims struct {
	Admin bool `json:"admin"`
	jwt.RegisteredClaims
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a signed token for p and its expiry.
func (t *TokenIssuer) Issue(p core.Principal) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Admin: p.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   p.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify checks signature, issuer and expiry and returns the principal the
// token was issued to.
func (t *TokenIssuer) Verify(raw string) (core.Principal, error) {
	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrInvalidKeyType
		}
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return core.Principal{}, fmt.Errorf("%w: %v", core.ErrInvalidCredential, err)
	}
	if c.Subject == "" {
		return core.Principal{}, fmt.Errorf("%w: token has no subject", core.ErrInvalidCredential)
	}
	return core.Principal{Username: c.Subject, IsAdmin: c.Admin}, nil
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p core.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// principalFrom returns the caller set by requireAuth.
func principalFrom(ctx context.Context) core.Principal {
	p, _ := ctx.Value(principalKey{}).(core.Principal)
	return p
}

// requireAuth verifies the bearer token and reloads the account so a
// deleted user or a revoked admin flag takes effect immediately.
func (s *Server) requireAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			writeJSON(w, http.StatusUnauthorized, envelope{Message: "missing bearer token"})
			return
		}

		claimed, err := s.tokens.Verify(strings.TrimSpace(raw))
		if err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Rejected token", log.FieldError, err.Error())
			writeJSON(w, http.StatusUnauthorized, envelope{Message: "invalid or expired token"})
			return
		}

		p, err := s.accounts.Principal(r.Context(), claimed.Username)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				writeJSON(w, http.StatusUnauthorized, envelope{Message: "invalid or expired token"})
				return
			}
			s.writeError(w, r, err)
			return
		}

		ctx := withPrincipal(r.Context(), p)
		logger := log.FromContext(ctx).With(log.FieldUsername, p.Username)
		next(w, r.WithContext(log.WithContext(ctx, logger)))
	})
}

func (s *Server) requireAdmin(next http.HandlerFunc) http.Handler {
	return s.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		if !principalFrom(r.Context()).IsAdmin {
			writeJSON(w, http.StatusForbidden, envelope{Message: "administrator privileges required"})
			return
		}
		next(w, r)
	})
}
