package goGuard

import (
	"context"

	internalflows "github.com/MrEthical07/goGuard/internal/flows"
	"github.com/MrEthical07/goGuard/internal/risk"
)

// AssessRisk describes the assessrisk operation and its observable behavior.
//
// AssessRisk inspects the user's sessions in the configured window and their
// recent failed logins. A suspicious result is recorded as a
// suspicious_activity event with the assessed level as severity. The
// assessment itself is not stored.
func (e *Engine) AssessRisk(ctx context.Context, userID string) (*RiskAssessment, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	cfg := e.config.Risk

	res, err := internalflows.RunAssessRisk(ctx, userID, internalflows.RiskDeps{
		Window:            cfg.Window,
		FailedLoginWindow: cfg.FailedLoginWindow,
		Thresholds: risk.Thresholds{
			MaxCountries:    cfg.MaxCountries,
			MaxDevices:      cfg.MaxDevices,
			RapidInterval:   cfg.RapidLoginInterval,
			MaxFailedLogins: cfg.MaxFailedLogins,
		},
		Now:          e.now,
		ListSessions: e.sessions.ListByUser,
		CountFailedLogins: func(ctx context.Context, userID string, since int64) (int, error) {
			return e.events.Count(ctx, userID, string(EventFailedLogin), since)
		},
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitEvent:       e.recordEvent,
		SuspiciousEvent: string(EventSuspiciousActivity),
		Metrics: internalflows.RiskMetrics{
			Assessed:            int(MetricRiskAssessed),
			Suspicious:          int(MetricRiskSuspicious),
			PersistenceFailures: int(MetricPersistenceFailure),
		},
		Errors: internalflows.RiskErrors{
			EngineNotReady:  ErrEngineNotReady,
			InvalidArgument: ErrInvalidArgument,
			Persistence:     ErrPersistence,
		},
	})
	if err != nil {
		return nil, err
	}

	reasons := res.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	return &RiskAssessment{
		UserID:       res.UserID,
		IsSuspicious: len(res.Reasons) > 0,
		Reasons:      reasons,
		Level:        riskLevel(res.Level),
		AssessedAt:   res.AssessedAt.UTC(),
	}, nil
}

func riskLevel(l risk.Level) RiskLevel {
	switch l {
	case risk.Critical:
		return RiskCritical
	case risk.High:
		return RiskHigh
	case risk.Medium:
		return RiskMedium
	default:
		return RiskLow
	}
}
