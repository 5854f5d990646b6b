package flows

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/goGuard/internal"
	"github.com/MrEthical07/goGuard/internal/stores"
	"github.com/MrEthical07/goGuard/store"
)

// NewSession is the caller-supplied part of a session. Blank device and
// origin fields are filled from the request context when possible.
type NewSession struct {
	UserID            string
	UserAgent         string
	Platform          string
	Browser           string
	Mobile            bool
	ScreenResolution  string
	IP                string
	Country           string
	City              string
	Timezone          string
	LoginMethod       string
	TwoFactorVerified bool
}

type GeoLocation struct {
	Country  string
	City     string
	Timezone string
}

type SessionMetrics struct {
	Created             int
	Terminated          int
	HeartbeatMissed     int
	Purged              int
	PersistenceFailures int
}

type SessionEvents struct {
	Login  string
	Logout string
	// BulkLogoutSeverity overrides the logout severity for TerminateOthers.
	BulkLogoutSeverity string
}

type SessionErrors struct {
	EngineNotReady  error
	InvalidArgument error
	Persistence     error
	NotFound        error
}

type SessionDeps struct {
	Now   func() time.Time
	NewID func() (string, error)

	ClientIP       func(context.Context) string
	UserAgent      func(context.Context) string
	ParseUserAgent func(string) internal.UserAgentInfo
	Locate         func(context.Context, string) (GeoLocation, error)

	CreateSession func(context.Context, stores.SessionRecord) error
	GetSession    func(context.Context, string) (stores.SessionRecord, error)
	TouchSession  func(context.Context, string, int64) error
	EndSession    func(context.Context, string, int64) error
	ListSessions  func(ctx context.Context, userID string, activeOnly bool, since int64) ([]stores.SessionRecord, error)
	IdleSessions  func(context.Context, int64) ([]string, error)
	DeleteSession func(context.Context, string) error

	Logger    *slog.Logger
	MetricInc func(int)
	EmitEvent func(context.Context, Event)

	Metrics SessionMetrics
	Events  SessionEvents
	Errors  SessionErrors
}

func normalizeSessionDeps(deps *SessionDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.ClientIP == nil {
		deps.ClientIP = func(context.Context) string { return "" }
	}
	if deps.UserAgent == nil {
		deps.UserAgent = func(context.Context) string { return "" }
	}
	if deps.ParseUserAgent == nil {
		deps.ParseUserAgent = internal.ParseUserAgent
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitEvent == nil {
		deps.EmitEvent = func(context.Context, Event) {}
	}
	if deps.Errors.EngineNotReady == nil {
		deps.Errors.EngineNotReady = errors.New("engine not ready")
	}
}

func sessionsReady(deps SessionDeps) bool {
	return deps.NewID != nil && deps.CreateSession != nil && deps.GetSession != nil &&
		deps.TouchSession != nil && deps.EndSession != nil && deps.ListSessions != nil &&
		deps.IdleSessions != nil && deps.DeleteSession != nil
}

func (deps SessionDeps) persistence(err error) error {
	deps.MetricInc(deps.Metrics.PersistenceFailures)
	return errors.Join(deps.Errors.Persistence, err)
}

// LocationLabel renders "City, Country" from whichever parts are known.
func LocationLabel(city, country string) string {
	parts := make([]string, 0, 2)
	if city != "" {
		parts = append(parts, city)
	}
	if country != "" {
		parts = append(parts, country)
	}
	return strings.Join(parts, ", ")
}

func sessionEvent(rec stores.SessionRecord, eventType string) Event {
	return Event{
		UserID:    rec.UserID,
		Type:      eventType,
		SessionID: rec.ID,
		IP:        rec.IP,
		UserAgent: rec.UserAgent,
		Location:  LocationLabel(rec.City, rec.Country),
		Context: map[string]string{
			"session_id":   rec.ID,
			"login_method": rec.LoginMethod,
			"two_factor":   strconv.FormatBool(rec.TwoFactorVerified),
		},
	}
}

// RunCreateSession persists a new active session and emits a login event.
func RunCreateSession(ctx context.Context, req NewSession, deps SessionDeps) (stores.SessionRecord, error) {
	normalizeSessionDeps(&deps)
	if !sessionsReady(deps) {
		return stores.SessionRecord{}, deps.Errors.EngineNotReady
	}
	if req.UserID == "" {
		return stores.SessionRecord{}, deps.Errors.InvalidArgument
	}

	if req.IP == "" {
		req.IP = deps.ClientIP(ctx)
	}
	if req.UserAgent == "" {
		req.UserAgent = deps.UserAgent(ctx)
	}
	if req.UserAgent != "" && (req.Platform == "" || req.Browser == "") {
		info := deps.ParseUserAgent(req.UserAgent)
		if req.Platform == "" {
			req.Platform = info.Platform
		}
		if req.Browser == "" {
			req.Browser = info.Browser
		}
		req.Mobile = req.Mobile || info.Mobile
	}
	if req.Country == "" && req.City == "" && req.IP != "" && deps.Locate != nil {
		loc, err := deps.Locate(ctx, req.IP)
		if err != nil {
			deps.Logger.DebugContext(ctx, "geo lookup failed", "ip", req.IP, "error", err)
		} else {
			req.Country, req.City = loc.Country, loc.City
			if req.Timezone == "" {
				req.Timezone = loc.Timezone
			}
		}
	}

	id, err := deps.NewID()
	if err != nil {
		return stores.SessionRecord{}, err
	}
	now := deps.Now().UnixMilli()
	rec := stores.SessionRecord{
		ID:                id,
		UserID:            req.UserID,
		UserAgent:         req.UserAgent,
		Platform:          req.Platform,
		Browser:           req.Browser,
		Mobile:            req.Mobile,
		ScreenResolution:  req.ScreenResolution,
		IP:                req.IP,
		Country:           req.Country,
		City:              req.City,
		Timezone:          req.Timezone,
		CreatedAt:         now,
		LastActivityAt:    now,
		Active:            true,
		LoginMethod:       req.LoginMethod,
		TwoFactorVerified: req.TwoFactorVerified,
	}
	if err := deps.CreateSession(ctx, rec); err != nil {
		return stores.SessionRecord{}, deps.persistence(err)
	}

	deps.MetricInc(deps.Metrics.Created)
	deps.EmitEvent(ctx, sessionEvent(rec, deps.Events.Login))
	return rec, nil
}

// RunHeartbeat bumps last activity of an active session. Unknown and ended
// sessions are ignored.
func RunHeartbeat(ctx context.Context, sessionID string, deps SessionDeps) error {
	normalizeSessionDeps(&deps)
	if !sessionsReady(deps) {
		return deps.Errors.EngineNotReady
	}
	if sessionID == "" {
		return nil
	}
	err := deps.TouchSession(ctx, sessionID, deps.Now().UnixMilli())
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrConditionFailed):
		deps.MetricInc(deps.Metrics.HeartbeatMissed)
		deps.Logger.DebugContext(ctx, "heartbeat for inactive session", "session_id", sessionID)
		return nil
	default:
		return deps.persistence(err)
	}
}

// RunTerminateSession ends one session. It is idempotent and only the call
// that actually ends the session emits a logout event.
func RunTerminateSession(ctx context.Context, sessionID string, deps SessionDeps) error {
	normalizeSessionDeps(&deps)
	if !sessionsReady(deps) {
		return deps.Errors.EngineNotReady
	}
	if sessionID == "" {
		return nil
	}

	rec, err := deps.GetSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return deps.persistence(err)
	}
	if !rec.Active {
		return nil
	}

	ended, err := deps.end(ctx, sessionID)
	if err != nil || !ended {
		return err
	}
	deps.EmitEvent(ctx, sessionEvent(rec, deps.Events.Logout))
	return nil
}

// end reports whether this call flipped the session to inactive.
func (deps SessionDeps) end(ctx context.Context, sessionID string) (bool, error) {
	err := deps.EndSession(ctx, sessionID, deps.Now().UnixMilli())
	switch {
	case err == nil:
		deps.MetricInc(deps.Metrics.Terminated)
		return true, nil
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrConditionFailed):
		return false, nil
	default:
		return false, deps.persistence(err)
	}
}

// RunGetSession returns one session or the not-found error.
func RunGetSession(ctx context.Context, sessionID string, deps SessionDeps) (stores.SessionRecord, error) {
	normalizeSessionDeps(&deps)
	if deps.GetSession == nil {
		return stores.SessionRecord{}, deps.Errors.EngineNotReady
	}
	rec, err := deps.GetSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return stores.SessionRecord{}, deps.Errors.NotFound
	}
	if err != nil {
		return stores.SessionRecord{}, deps.persistence(err)
	}
	return rec, nil
}

// RunListActiveSessions returns the user's active sessions, most recently
// active first.
func RunListActiveSessions(ctx context.Context, userID string, deps SessionDeps) ([]stores.SessionRecord, error) {
	normalizeSessionDeps(&deps)
	if deps.ListSessions == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if userID == "" {
		return nil, deps.Errors.InvalidArgument
	}
	recs, err := deps.ListSessions(ctx, userID, true, 0)
	if err != nil {
		return nil, deps.persistence(err)
	}
	return recs, nil
}

// RunTerminateOtherSessions ends every active session of userID except keep
// and emits one aggregate logout event with the count. When a store write
// fails partway the event still carries the sessions already ended, marked
// partial, and the count is returned with the error.
func RunTerminateOtherSessions(ctx context.Context, userID, keep string, deps SessionDeps) (int, error) {
	normalizeSessionDeps(&deps)
	if !sessionsReady(deps) {
		return 0, deps.Errors.EngineNotReady
	}
	if userID == "" {
		return 0, deps.Errors.InvalidArgument
	}

	recs, err := deps.ListSessions(ctx, userID, true, 0)
	if err != nil {
		return 0, deps.persistence(err)
	}

	terminated := 0
	var endErr error
	for _, rec := range recs {
		if rec.ID == keep {
			continue
		}
		ended, err := deps.end(ctx, rec.ID)
		if err != nil {
			endErr = err
			break
		}
		if ended {
			terminated++
		}
	}

	if endErr != nil && terminated == 0 {
		return 0, endErr
	}
	ev := Event{
		UserID:    userID,
		Type:      deps.Events.Logout,
		Severity:  deps.Events.BulkLogoutSeverity,
		SessionID: keep,
		Context: map[string]string{
			"terminated_count": strconv.Itoa(terminated),
			"kept_session_id":  keep,
		},
	}
	if endErr != nil {
		ev.Context["partial"] = "true"
	}
	deps.EmitEvent(ctx, ev)
	return terminated, endErr
}

// RunPurgeExpiredSessions hard-deletes sessions idle for longer than
// retention, active or not.
func RunPurgeExpiredSessions(ctx context.Context, retention time.Duration, deps SessionDeps) (int, error) {
	normalizeSessionDeps(&deps)
	if !sessionsReady(deps) {
		return 0, deps.Errors.EngineNotReady
	}
	if retention <= 0 {
		return 0, deps.Errors.InvalidArgument
	}

	cutoff := deps.Now().Add(-retention).UnixMilli()
	ids, err := deps.IdleSessions(ctx, cutoff)
	if err != nil {
		return 0, deps.persistence(err)
	}
	purged := 0
	for _, id := range ids {
		if err := deps.DeleteSession(ctx, id); err != nil {
			return purged, deps.persistence(err)
		}
		purged++
	}
	if purged > 0 {
		deps.MetricInc(deps.Metrics.Purged)
		deps.Logger.InfoContext(ctx, "expired sessions purged", "count", purged)
	}
	return purged, nil
}
