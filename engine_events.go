package goGuard

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goGuard/internal/stores"
)

// RecordSecurityEvent describes the recordsecurityevent operation and its observable behavior.
//
// RecordSecurityEvent appends a caller-supplied event to the user's log and
// returns it as stored. Unlike events produced by the engine itself, a write
// failure here is returned wrapped in ErrPersistence.
func (e *Engine) RecordSecurityEvent(ctx context.Context, in SecurityEventInput) (*SecurityEvent, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if in.UserID == "" || !in.Type.Valid() {
		return nil, ErrInvalidArgument
	}
	if in.Severity != "" && !in.Severity.Valid() {
		return nil, ErrInvalidArgument
	}

	event, err := e.buildEvent(ctx, in)
	if err != nil {
		return nil, errors.Join(ErrPersistence, err)
	}
	if err := e.persistEvent(ctx, event); err != nil {
		e.metricInc(MetricEventWriteFailed)
		e.metricInc(MetricPersistenceFailure)
		return nil, errors.Join(ErrPersistence, err)
	}
	return &event, nil
}

// ListSecurityEvents returns the user's events newest first.
func (e *Engine) ListSecurityEvents(ctx context.Context, userID string, filter EventFilter) ([]SecurityEvent, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if userID == "" || filter.Limit < 0 {
		return nil, ErrInvalidArgument
	}

	q := stores.EventQuery{
		UserID: userID,
		Limit:  filter.Limit,
	}
	if !filter.Since.IsZero() {
		q.Since = filter.Since.UnixMilli()
	}
	for _, t := range filter.Types {
		if !t.Valid() {
			return nil, ErrInvalidArgument
		}
		q.Types = append(q.Types, string(t))
	}

	recs, err := e.events.List(ctx, q)
	if err != nil {
		e.metricInc(MetricPersistenceFailure)
		return nil, errors.Join(ErrPersistence, err)
	}
	out := make([]SecurityEvent, 0, len(recs))
	for _, rec := range recs {
		out = append(out, fromEventRecord(rec))
	}
	return out, nil
}

// PurgeSecurityEvents deletes events older than retention and returns how
// many it removed. A non-positive retention uses Events.Retention from the
// config.
func (e *Engine) PurgeSecurityEvents(ctx context.Context, retention time.Duration) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	if retention <= 0 {
		retention = e.config.Events.Retention
	}

	cutoff := e.now().Add(-retention).UnixMilli()
	ids, err := e.events.OlderThan(ctx, cutoff)
	if err != nil {
		e.metricInc(MetricPersistenceFailure)
		return 0, errors.Join(ErrPersistence, err)
	}

	purged := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return purged, err
		}
		if err := e.events.Delete(ctx, id); err != nil {
			e.metricInc(MetricPersistenceFailure)
			return purged, errors.Join(ErrPersistence, err)
		}
		purged++
		e.metricInc(MetricEventsPurged)
	}
	if purged > 0 {
		e.logger.InfoContext(ctx, "security events purged", "count", purged)
	}
	return purged, nil
}
