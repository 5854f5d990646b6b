package goGuard

import (
	"context"
	"time"

	"github.com/MrEthical07/goGuard/internal"
	internalflows "github.com/MrEthical07/goGuard/internal/flows"
)

// CreateSession describes the createsession operation and its observable behavior.
//
// CreateSession stores a new active session and records a login event. It
// returns the new session id.
func (e *Engine) CreateSession(ctx context.Context, req CreateSessionRequest) (string, error) {
	if !e.ready() {
		return "", ErrEngineNotReady
	}
	rec, err := internalflows.RunCreateSession(ctx, internalflows.NewSession{
		UserID:            req.UserID,
		UserAgent:         req.Device.UserAgent,
		Platform:          req.Device.Platform,
		Browser:           req.Device.Browser,
		Mobile:            req.Device.Mobile,
		ScreenResolution:  req.Device.ScreenResolution,
		IP:                req.Origin.IP,
		Country:           req.Origin.Country,
		City:              req.Origin.City,
		Timezone:          req.Origin.Timezone,
		LoginMethod:       req.LoginMethod,
		TwoFactorVerified: req.TwoFactorVerified,
	}, e.sessionFlowDeps())
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

// Heartbeat marks an active session as used now. Heartbeats for unknown or
// ended sessions are ignored.
func (e *Engine) Heartbeat(ctx context.Context, sessionID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return internalflows.RunHeartbeat(ctx, sessionID, e.sessionFlowDeps())
}

// TerminateSession describes the terminatesession operation and its observable behavior.
//
// TerminateSession ends an active session and records a logout event. Ending
// an unknown or already ended session is a no-op.
func (e *Engine) TerminateSession(ctx context.Context, sessionID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return internalflows.RunTerminateSession(ctx, sessionID, e.sessionFlowDeps())
}

// GetSession returns ErrSessionNotFound for unknown ids. Ended sessions are
// returned until they are purged.
func (e *Engine) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	rec, err := internalflows.RunGetSession(ctx, sessionID, e.sessionFlowDeps())
	if err != nil {
		return nil, err
	}
	s := fromSessionRecord(rec)
	return &s, nil
}

// ListActiveSessions returns the user's active sessions, most recently
// active first.
func (e *Engine) ListActiveSessions(ctx context.Context, userID string) ([]Session, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	recs, err := internalflows.RunListActiveSessions(ctx, userID, e.sessionFlowDeps())
	if err != nil {
		return nil, err
	}
	out := make([]Session, 0, len(recs))
	for _, rec := range recs {
		out = append(out, fromSessionRecord(rec))
	}
	return out, nil
}

// TerminateOtherSessions describes the terminateothersessions operation and its observable behavior.
//
// TerminateOtherSessions ends every active session of userID except
// keepSessionID and returns how many it ended. One medium logout event
// records the count; the individual sessions get no events of their own.
// On a store failure the sessions already ended are counted, reported in a
// partial event and returned alongside the error.
func (e *Engine) TerminateOtherSessions(ctx context.Context, userID, keepSessionID string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	return internalflows.RunTerminateOtherSessions(ctx, userID, keepSessionID, e.sessionFlowDeps())
}

// PurgeExpiredSessions hard-deletes sessions idle for longer than retention.
// A non-positive retention uses Session.Retention from the config.
func (e *Engine) PurgeExpiredSessions(ctx context.Context, retention time.Duration) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	if retention <= 0 {
		retention = e.config.Session.Retention
	}
	return internalflows.RunPurgeExpiredSessions(ctx, retention, e.sessionFlowDeps())
}

func (e *Engine) sessionFlowDeps() internalflows.SessionDeps {
	deps := internalflows.SessionDeps{
		Now: e.now,
		NewID: func() (string, error) {
			return internal.NewSessionID(e.random)
		},
		ClientIP:       clientIPFromContext,
		UserAgent:      userAgentFromContext,
		ParseUserAgent: internal.ParseUserAgent,
		CreateSession:  e.sessions.Create,
		GetSession:     e.sessions.Get,
		TouchSession:   e.sessions.Touch,
		EndSession:     e.sessions.End,
		ListSessions:   e.sessions.ListByUser,
		IdleSessions:   e.sessions.IdleBefore,
		DeleteSession:  e.sessions.Delete,
		Logger:         e.logger,
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitEvent: e.recordEvent,
		Metrics: internalflows.SessionMetrics{
			Created:             int(MetricSessionCreated),
			Terminated:          int(MetricSessionTerminated),
			HeartbeatMissed:     int(MetricSessionHeartbeatMissed),
			Purged:              int(MetricSessionsPurged),
			PersistenceFailures: int(MetricPersistenceFailure),
		},
		Events: internalflows.SessionEvents{
			Login:              string(EventLogin),
			Logout:             string(EventLogout),
			BulkLogoutSeverity: string(SeverityMedium),
		},
		Errors: internalflows.SessionErrors{
			EngineNotReady:  ErrEngineNotReady,
			InvalidArgument: ErrInvalidArgument,
			Persistence:     ErrPersistence,
			NotFound:        ErrSessionNotFound,
		},
	}

	if e.geo != nil {
		deps.Locate = func(_ context.Context, ip string) (internalflows.GeoLocation, error) {
			loc, err := e.geo.Locate(ip)
			if err != nil {
				return internalflows.GeoLocation{}, err
			}
			return internalflows.GeoLocation{
				Country:  loc.Country,
				City:     loc.City,
				Timezone: loc.Timezone,
			}, nil
		}
	}

	return deps
}
