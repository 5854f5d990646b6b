package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/jwt"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID    string
	SessionID string
}

// TokenVerifier verifies a bearer access token.
type TokenVerifier interface {
	Parse(token string) (*jwt.AccessClaims, error)
}

// SessionLookup reads a session by id.
type SessionLookup interface {
	GetSession(ctx context.Context, sessionID string) (*goGuard.Session, error)
}

type principalContextKey struct{}

// WithPrincipal attaches p to ctx. Handlers normally receive it from
// RequireBearer; tests use this directly.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext returns the principal stored by RequireBearer.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}

// RequireBearer rejects requests without a valid bearer token with 401.
func RequireBearer(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "missing or invalid authorization header")
				return
			}

			claims, err := verifier.Parse(token)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			ctx := WithPrincipal(r.Context(), Principal{UserID: claims.UID, SessionID: claims.SID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireActiveSession must run after RequireBearer. It answers 401 when the
// token's session has ended or belongs to another user, and 503 when the
// session cannot be read.
func RequireActiveSession(sessions SessionLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok || sessions == nil {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			s, err := sessions.GetSession(r.Context(), p.SessionID)
			switch {
			case errors.Is(err, goGuard.ErrSessionNotFound):
				writeJSONError(w, http.StatusUnauthorized, "session not found")
				return
			case err != nil:
				writeJSONError(w, http.StatusServiceUnavailable, "session store unavailable")
				return
			}
			if !s.Active || s.UserID != p.UserID {
				writeJSONError(w, http.StatusUnauthorized, "session ended")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
