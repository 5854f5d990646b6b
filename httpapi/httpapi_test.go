package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/otp"
	"github.com/MrEthical07/goGuard/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	t       *testing.T
	engine  *goGuard.Engine
	tokens  *jwt.Manager
	handler http.Handler
	clock   *clock
	opts    otp.Options
}

func newFixture(t *testing.T, strict bool) *fixture {
	t.Helper()
	c := &clock{now: time.Date(2026, time.March, 2, 9, 0, 10, 0, time.UTC)}

	cfg := goGuard.DefaultConfig()
	engine, err := goGuard.New().
		WithConfig(cfg).
		WithStore(memstore.New()).
		WithClock(c.Now).
		WithLogger(slog.New(slog.DiscardHandler)).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     time.Hour,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("httpapi-test-secret-0123456789abcdef"),
		Now:           c.Now,
	})
	require.NoError(t, err)

	return &fixture{
		t:      t,
		engine: engine,
		tokens: tokens,
		clock:  c,
		opts:   otp.Options{Period: cfg.TOTP.Period, Digits: cfg.TOTP.Digits, Algorithm: cfg.TOTP.Algorithm},
		handler: NewRouter(engine, Options{
			Verifier:       tokens,
			StrictSessions: strict,
			Logger:         slog.New(slog.DiscardHandler),
		}),
	}
}

// login opens a session for userID and returns its id and an access token.
func (f *fixture) login(userID string) (string, string) {
	f.t.Helper()
	sid, err := f.engine.CreateSession(context.Background(), goGuard.CreateSessionRequest{UserID: userID})
	require.NoError(f.t, err)
	token, err := f.tokens.Issue(userID, sid)
	require.NoError(f.t, err)
	return sid, token
}

func (f *fixture) do(method, path, token string, body any) *httptest.ResponseRecorder {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "198.51.100.20:40000"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func (f *fixture) code(secret string) string {
	f.t.Helper()
	c, err := otp.ComputeCode(secret, f.opts.Counter(f.clock.Now()), f.opts)
	require.NoError(f.t, err)
	return c
}

func decodeData[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var env struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	return env.Data
}

func errorOf(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	return env.Error
}

func TestHealthzIsPublic(t *testing.T) {
	f := newFixture(t, false)
	rr := f.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"data":{"status":"ok"}}`, rr.Body.String())
}

func TestRoutesRequireBearer(t *testing.T) {
	f := newFixture(t, false)
	for _, path := range []string{"/v1/2fa/status", "/v1/sessions", "/v1/security/events", "/v1/security/risk"} {
		rr := f.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, path)
	}
	rr := f.do(http.MethodGet, "/v1/2fa/status", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestTwoFactorLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t, false)
	_, token := f.login("u1")

	rr := f.do(http.MethodPost, "/v1/2fa/setup", token, map[string]string{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, errorOf(t, rr), "email")

	rr = f.do(http.MethodPost, "/v1/2fa/enable", token, map[string]string{"code": "123456"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = f.do(http.MethodPost, "/v1/2fa/setup", token, map[string]string{"email": "alice@example.com"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	setup := decodeData[setupResponse](t, rr)
	require.NotEmpty(t, setup.Secret)
	assert.True(t, strings.HasPrefix(setup.ProvisioningURI, "otpauth://totp/"))
	assert.Len(t, setup.BackupCodes, 10)

	rr = f.do(http.MethodPost, "/v1/2fa/enable", token, map[string]string{"code": "000000"})
	require.Equal(t, http.StatusOK, rr.Code)
	if f.code(setup.Secret) != "000000" {
		assert.False(t, decodeData[map[string]bool](t, rr)["enabled"])
	}

	rr = f.do(http.MethodPost, "/v1/2fa/enable", token, map[string]string{"code": f.code(setup.Secret)})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decodeData[map[string]bool](t, rr)["enabled"])

	rr = f.do(http.MethodPost, "/v1/2fa/setup", token, map[string]string{"email": "alice@example.com"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = f.do(http.MethodGet, "/v1/2fa/status", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	status := decodeData[goGuard.TwoFactorStatus](t, rr)
	assert.True(t, status.Enabled)
	assert.True(t, status.HasBackupCodes)

	rr = f.do(http.MethodPost, "/v1/2fa/verify", token, map[string]string{"code": setup.BackupCodes[0], "method": "backup_codes"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decodeData[map[string]bool](t, rr)["verified"])

	rr = f.do(http.MethodPost, "/v1/2fa/verify", token, map[string]string{"code": setup.BackupCodes[0], "method": "backup_codes"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, decodeData[map[string]bool](t, rr)["verified"])

	rr = f.do(http.MethodPost, "/v1/2fa/verify", token, map[string]string{"code": "123456", "method": "sms"})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = f.do(http.MethodPost, "/v1/2fa/verify", token, map[string]string{"code": "123456", "method": "email"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	f.clock.Advance(30 * time.Second)
	rr = f.do(http.MethodPost, "/v1/2fa/backup-codes", token, map[string]string{"code": f.code(setup.Secret)})
	require.Equal(t, http.StatusOK, rr.Code)
	regen := decodeData[backupCodesResponse](t, rr)
	assert.True(t, regen.Regenerated)
	assert.Len(t, regen.Codes, 10)

	f.clock.Advance(30 * time.Second)
	rr = f.do(http.MethodPost, "/v1/2fa/disable", token, map[string]string{"code": f.code(setup.Secret)})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decodeData[map[string]bool](t, rr)["disabled"])

	rr = f.do(http.MethodGet, "/v1/2fa/status", token, nil)
	assert.False(t, decodeData[goGuard.TwoFactorStatus](t, rr).Enabled)
}

func TestRejectsMalformedBodies(t *testing.T) {
	f := newFixture(t, false)
	_, token := f.login("u1")

	req := httptest.NewRequest(http.MethodPost, "/v1/2fa/enable", strings.NewReader(`{"code":`))
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(http.MethodPost, "/v1/2fa/enable", token, map[string]string{"code": "123456", "extra": "x"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(http.MethodPost, "/v1/2fa/disable", token, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "request body required", errorOf(t, rr))
}

func TestSessionRoutes(t *testing.T) {
	f := newFixture(t, false)
	current, token := f.login("u1")
	f.clock.Advance(time.Minute)
	other, _ := f.login("u1")
	foreign, _ := f.login("u2")

	rr := f.do(http.MethodGet, "/v1/sessions", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decodeData[[]sessionView](t, rr)
	require.Len(t, list, 2)
	assert.Equal(t, other, list[0].ID)
	assert.False(t, list[0].Current)
	assert.True(t, list[1].Current)

	rr = f.do(http.MethodDelete, "/v1/sessions/"+foreign, token, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = f.do(http.MethodDelete, "/v1/sessions/missing", token, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do(http.MethodDelete, "/v1/sessions/"+other, token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	s, err := f.engine.GetSession(context.Background(), other)
	require.NoError(t, err)
	assert.False(t, s.Active)

	f.clock.Advance(time.Minute)
	rr = f.do(http.MethodPost, "/v1/sessions/heartbeat", token, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	s, err = f.engine.GetSession(context.Background(), current)
	require.NoError(t, err)
	assert.True(t, s.LastActivityAt.Equal(f.clock.Now()))

	f.login("u1")
	rr = f.do(http.MethodPost, "/v1/sessions/terminate-others", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, decodeData[map[string]int](t, rr)["terminated"])

	fs, err := f.engine.GetSession(context.Background(), foreign)
	require.NoError(t, err)
	assert.True(t, fs.Active)
}

func TestTerminateSessionCanonicalizesID(t *testing.T) {
	f := newFixture(t, false)
	_, token := f.login("u1")
	other, _ := f.login("u1")

	for _, bad := range []string{"missing", "not-a-uuid-at-all", "12345678-1234-1234-1234-1234567890zz"} {
		rr := f.do(http.MethodDelete, "/v1/sessions/"+bad, token, nil)
		assert.Equal(t, http.StatusNotFound, rr.Code, bad)
		assert.Equal(t, "session not found", errorOf(t, rr), bad)
	}

	rr := f.do(http.MethodDelete, "/v1/sessions/"+strings.ToUpper(other), token, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	s, err := f.engine.GetSession(context.Background(), other)
	require.NoError(t, err)
	assert.False(t, s.Active)
}

func TestStrictSessionsRejectEndedSession(t *testing.T) {
	f := newFixture(t, true)
	sid, token := f.login("u1")

	rr := f.do(http.MethodGet, "/v1/2fa/status", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	require.NoError(t, f.engine.TerminateSession(context.Background(), sid))
	rr = f.do(http.MethodGet, "/v1/2fa/status", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestSecurityEventsQuery(t *testing.T) {
	f := newFixture(t, false)
	_, token := f.login("u1")
	since := f.clock.Now()
	f.clock.Advance(time.Minute)
	for i := 0; i < 3; i++ {
		_, err := f.engine.RecordSecurityEvent(context.Background(), goGuard.SecurityEventInput{UserID: "u1", Type: goGuard.EventFailedLogin})
		require.NoError(t, err)
	}

	f.clock.Advance(time.Second)
	rr := f.do(http.MethodPost, "/v1/sessions/terminate-others", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(http.MethodGet, "/v1/security/events", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	all := decodeData[[]goGuard.SecurityEvent](t, rr)
	require.Len(t, all, 5)
	assert.Equal(t, goGuard.EventLogout, all[0].Type)
	assert.Equal(t, "198.51.100.20", all[0].Details.IP)

	rr = f.do(http.MethodGet, "/v1/security/events?type=failed_login&limit=2&since="+since.Add(time.Second).Format(time.RFC3339), token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	failed := decodeData[[]goGuard.SecurityEvent](t, rr)
	require.Len(t, failed, 2)
	assert.Equal(t, goGuard.EventFailedLogin, failed[0].Type)

	for _, q := range []string{"?limit=0", "?limit=abc", "?since=yesterday", "?type=password_reset"} {
		rr = f.do(http.MethodGet, "/v1/security/events"+q, token, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code, q)
	}
}

func TestRiskRoute(t *testing.T) {
	f := newFixture(t, false)
	_, token := f.login("u1")

	rr := f.do(http.MethodGet, "/v1/security/risk", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	res := decodeData[goGuard.RiskAssessment](t, rr)
	assert.Equal(t, "u1", res.UserID)
	assert.Equal(t, goGuard.RiskLow, res.Level)
	assert.NotNil(t, res.Reasons)
}

func TestStatusForMapsEngineErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{errors.Join(goGuard.ErrPersistence, errors.New("redis: connection refused")), http.StatusServiceUnavailable},
		{goGuard.ErrEngineNotReady, http.StatusServiceUnavailable},
		{goGuard.ErrNoPendingSetup, http.StatusConflict},
		{goGuard.ErrTwoFactorAlreadyEnabled, http.StatusConflict},
		{goGuard.ErrTwoFactorRateLimited, http.StatusTooManyRequests},
		{goGuard.ErrMethodNotSupported, http.StatusUnprocessableEntity},
		{goGuard.ErrInvalidArgument, http.StatusBadRequest},
		{goGuard.ErrSessionNotFound, http.StatusNotFound},
		{errors.Join(goGuard.ErrTwoFactorRecordCorrupt, errors.New("illegal base32 data")), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		got, msg := statusFor(tc.err)
		assert.Equal(t, tc.want, got, tc.err.Error())
		assert.NotContains(t, msg, "redis")
	}
}
