package goGuard

import (
	"context"
	"errors"
)

// RunMaintenance purges idle sessions and expired security events using the
// configured retentions. Both purges run even when one fails; the report
// counts what was deleted before any failure.
func (e *Engine) RunMaintenance(ctx context.Context) (MaintenanceReport, error) {
	if !e.ready() {
		return MaintenanceReport{}, ErrEngineNotReady
	}

	var report MaintenanceReport
	sessions, sessErr := e.PurgeExpiredSessions(ctx, 0)
	report.SessionsPurged = sessions
	events, evErr := e.PurgeSecurityEvents(ctx, 0)
	report.EventsPurged = events

	err := errors.Join(sessErr, evErr)
	if err != nil {
		e.logger.WarnContext(ctx, "maintenance incomplete",
			"sessions_purged", sessions,
			"events_purged", events,
			"error", err,
		)
	}
	return report, err
}
