package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"

	"github.com/offboardpro/offboardpro/api/apperrors"
)

// Principal is the authenticated caller.
type Principal struct {
	UID   string
	Email string
	// AuthTime is when the user last presented credentials, not when the token was minted.
	AuthTime time.Time
}

// TokenVerifier turns a bearer token into a Principal.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (Principal, error)
}

// UserAdmin manages identities in the auth provider.
type UserAdmin interface {
	DeleteUser(ctx context.Context, uid string) error
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok && p.UID != ""
}

// UserID is the authenticated uid, or "" for anonymous callers.
func UserID(ctx context.Context) string {
	p, _ := FromContext(ctx)
	return p.UID
}

// TokenFromRequest reads "Authorization: Bearer <token>".
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

// streamToken also accepts the token query parameter, which browsers must
// use for WebSocket upgrades.
func streamToken(r *http.Request) string {
	if tok := TokenFromRequest(r); tok != "" {
		return tok
	}
	return r.URL.Query().Get("token")
}

func requireUser(v TokenVerifier, token func(*http.Request) string, next runtime.HandlerFunc) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		tok := token(r)
		if tok == "" {
			apperrors.WriteHTTP(w, fmt.Errorf("%w: missing bearer token", apperrors.ErrAuthRequired))
			return
		}
		p, err := v.Verify(r.Context(), tok)
		if err != nil {
			slog.Info("token rejected", "path", r.URL.Path, "error", err)
			apperrors.WriteHTTP(w, fmt.Errorf("%w: invalid token", apperrors.ErrAuthRequired))
			return
		}
		next(w, r.WithContext(WithPrincipal(r.Context(), p)), params)
	}
}

// RequireUser rejects requests without a valid bearer token.
func RequireUser(v TokenVerifier, next runtime.HandlerFunc) runtime.HandlerFunc {
	return requireUser(v, TokenFromRequest, next)
}

// RequireStreamUser is RequireUser for the WebSocket endpoint, where the
// token may also arrive as ?token=.
func RequireStreamUser(v TokenVerifier, next runtime.HandlerFunc) runtime.HandlerFunc {
	return requireUser(v, streamToken, next)
}

// OptionalUser serves requests without a token anonymously. A token that is
// present but does not verify is rejected rather than ignored.
func OptionalUser(v TokenVerifier, next runtime.HandlerFunc) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		if tok := TokenFromRequest(r); tok != "" {
			p, err := v.Verify(r.Context(), tok)
			if err != nil {
				slog.Info("token rejected", "path", r.URL.Path, "error", err)
				apperrors.WriteHTTP(w, fmt.Errorf("%w: invalid token", apperrors.ErrAuthRequired))
				return
			}
			r = r.WithContext(WithPrincipal(r.Context(), p))
		}
		next(w, r, params)
	}
}

// Fresh reports whether p authenticated within maxAge of now.
func Fresh(p Principal, maxAge time.Duration, now time.Time) bool {
	if p.AuthTime.IsZero() {
		return false
	}
	return now.Sub(p.AuthTime) <= maxAge
}
