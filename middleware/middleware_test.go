package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *jwt.Manager {
	t.Helper()
	m, err := jwt.NewManager(jwt.Config{
		AccessTTL:     time.Minute,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("middleware-test-secret-0123456789"),
	})
	require.NoError(t, err)
	return m
}

func principalEcho(t *testing.T, got *Principal) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		require.True(t, ok)
		*got = p
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireBearerMissingHeader(t *testing.T) {
	var got Principal
	rr := httptest.NewRecorder()
	RequireBearer(newTestManager(t))(principalEcho(t, &got)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.JSONEq(t, `{"error":"missing or invalid authorization header"}`, rr.Body.String())
}

func TestRequireBearerInvalidToken(t *testing.T) {
	var got Principal
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rr := httptest.NewRecorder()
	RequireBearer(newTestManager(t))(principalEcho(t, &got)).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequireBearerValidToken(t *testing.T) {
	m := newTestManager(t)
	token, err := m.Issue("u1", "s1")
	require.NoError(t, err)

	var got Principal
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer "+token)
	rr := httptest.NewRecorder()
	RequireBearer(m)(principalEcho(t, &got)).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, Principal{UserID: "u1", SessionID: "s1"}, got)
}

type stubSessions struct {
	session *goGuard.Session
	err     error
}

func (s stubSessions) GetSession(context.Context, string) (*goGuard.Session, error) {
	return s.session, s.err
}

func TestRequireActiveSession(t *testing.T) {
	cases := []struct {
		name   string
		lookup stubSessions
		want   int
	}{
		{"active", stubSessions{session: &goGuard.Session{UserID: "u1", Active: true}}, http.StatusOK},
		{"ended", stubSessions{session: &goGuard.Session{UserID: "u1"}}, http.StatusUnauthorized},
		{"other user", stubSessions{session: &goGuard.Session{UserID: "u2", Active: true}}, http.StatusUnauthorized},
		{"missing", stubSessions{err: goGuard.ErrSessionNotFound}, http.StatusUnauthorized},
		{"store down", stubSessions{err: errors.Join(goGuard.ErrPersistence, errors.New("timeout"))}, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(WithPrincipal(req.Context(), Principal{UserID: "u1", SessionID: "s1"}))
			rr := httptest.NewRecorder()
			ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
			RequireActiveSession(tc.lookup)(ok).ServeHTTP(rr, req)
			assert.Equal(t, tc.want, rr.Code)
		})
	}
}

func TestClientContext(t *testing.T) {
	engine, err := goGuard.New().WithStore(memstore.New()).Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	cases := []struct {
		name       string
		trustProxy bool
		forwarded  string
		want       string
	}{
		{"remote addr", false, "203.0.113.7", "192.0.2.1"},
		{"trusted proxy", true, "203.0.113.7, 10.0.0.1", "203.0.113.7"},
		{"garbage header", true, "not-an-ip", "192.0.2.1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var gotIP, gotUA string
			h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ev, err := engine.RecordSecurityEvent(r.Context(), goGuard.SecurityEventInput{UserID: "u1", Type: goGuard.EventLogin})
				require.NoError(t, err)
				gotIP, gotUA = ev.Details.IP, ev.Details.UserAgent
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "192.0.2.1:51234"
			req.Header.Set("X-Forwarded-For", tc.forwarded)
			req.Header.Set("User-Agent", "curl/8.5")
			ClientContext(tc.trustProxy)(h).ServeHTTP(httptest.NewRecorder(), req)

			assert.Equal(t, tc.want, gotIP)
			assert.Equal(t, "curl/8.5", gotUA)
		})
	}
}
