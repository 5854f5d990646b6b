package flows

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goGuard/internal/risk"
	"github.com/MrEthical07/goGuard/internal/stores"
)

type RiskAssessment struct {
	UserID     string
	Level      risk.Level
	Reasons    []string
	AssessedAt time.Time
}

type RiskMetrics struct {
	Assessed            int
	Suspicious          int
	PersistenceFailures int
}

type RiskErrors struct {
	EngineNotReady  error
	InvalidArgument error
	Persistence     error
}

type RiskDeps struct {
	Window            time.Duration
	FailedLoginWindow time.Duration
	Thresholds        risk.Thresholds

	Now               func() time.Time
	ListSessions      func(ctx context.Context, userID string, activeOnly bool, since int64) ([]stores.SessionRecord, error)
	CountFailedLogins func(ctx context.Context, userID string, since int64) (int, error)

	MetricInc func(int)
	EmitEvent func(context.Context, Event)

	// SuspiciousEvent is the event type recorded for a suspicious result.
	SuspiciousEvent string
	Metrics         RiskMetrics
	Errors          RiskErrors
}

func normalizeRiskDeps(deps *RiskDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Window <= 0 {
		deps.Window = 24 * time.Hour
	}
	if deps.FailedLoginWindow <= 0 {
		deps.FailedLoginWindow = time.Hour
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

// RunAssessRisk evaluates the user's recent sessions and failed logins. A
// suspicious result is itself recorded as a suspicious_activity event whose
// severity is the assessed level.
func RunAssessRisk(ctx context.Context, userID string, deps RiskDeps) (RiskAssessment, error) {
	normalizeRiskDeps(&deps)
	if deps.ListSessions == nil || deps.CountFailedLogins == nil {
		return RiskAssessment{}, deps.Errors.EngineNotReady
	}
	if userID == "" {
		return RiskAssessment{}, deps.Errors.InvalidArgument
	}

	now := deps.Now()
	recs, err := deps.ListSessions(ctx, userID, false, now.Add(-deps.Window).UnixMilli())
	if err != nil {
		deps.MetricInc(deps.Metrics.PersistenceFailures)
		return RiskAssessment{}, errors.Join(deps.Errors.Persistence, err)
	}
	failed, err := deps.CountFailedLogins(ctx, userID, now.Add(-deps.FailedLoginWindow).UnixMilli())
	if err != nil {
		deps.MetricInc(deps.Metrics.PersistenceFailures)
		return RiskAssessment{}, errors.Join(deps.Errors.Persistence, err)
	}

	sessions := make([]risk.Session, len(recs))
	for i, r := range recs {
		sessions[i] = risk.Session{
			Country:           r.Country,
			Platform:          r.Platform,
			Browser:           r.Browser,
			CreatedAt:         time.UnixMilli(r.CreatedAt),
			TwoFactorVerified: r.TwoFactorVerified,
		}
	}

	res := risk.Evaluate(sessions, failed, deps.Thresholds)
	deps.MetricInc(deps.Metrics.Assessed)

	out := RiskAssessment{
		UserID:     userID,
		Level:      res.Level,
		Reasons:    res.Reasons,
		AssessedAt: now,
	}
	if res.Suspicious() {
		deps.MetricInc(deps.Metrics.Suspicious)
		deps.EmitEvent(ctx, Event{
			UserID:   userID,
			Type:     deps.SuspiciousEvent,
			Severity: res.Level.String(),
			Context: map[string]string{
				"reasons":    strings.Join(res.Reasons, "; "),
				"risk_level": res.Level.String(),
			},
		})
	}
	return out, nil
}
