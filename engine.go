package goGuard

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/MrEthical07/goGuard/internal"
	internalflows "github.com/MrEthical07/goGuard/internal/flows"
	"github.com/MrEthical07/goGuard/internal/limiters"
	"github.com/MrEthical07/goGuard/internal/stores"
	"github.com/MrEthical07/goGuard/otp"
)

// Engine defines a public type used by goGuard APIs.
//
// Engine instances are built once by a Builder and are safe for concurrent use.
// All state lives in the configured store; the engine itself holds only
// collaborators and counters.
type Engine struct {
	config Config
	now    func() time.Time
	random io.Reader
	logger *slog.Logger

	twoFactor *stores.TwoFactorRepo
	sessions  *stores.SessionRepo
	events    *stores.EventRepo

	generator *otp.Generator
	otpOpts   otp.Options
	verifier  otp.Verifier
	qr        otp.QRRenderer
	geo       GeoResolver
	eventIDs  *internal.EventIDs
	limiter   limiters.Limiter

	audit   *auditDispatcher
	metrics *Metrics
}

// Close describes the close operation and its observable behavior.
//
// Close drains queued security events into the audit sink and stops the
// dispatcher. It is safe to call more than once.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped returns how many events the audit dispatcher dropped because its buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot returns empty maps when metrics are disabled.
// MetricsSnapshot does not mutate shared global state and can be used concurrently.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return e.config
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.twoFactor != nil && e.sessions != nil && e.events != nil
}

// recordEvent persists a flow-produced event and mirrors it to the audit
// sink. A failed write is logged and counted, never returned; the operation
// that produced the event has already taken effect.
func (e *Engine) recordEvent(ctx context.Context, ev internalflows.Event) {
	event, err := e.buildEvent(ctx, SecurityEventInput{
		UserID:    ev.UserID,
		Type:      EventType(ev.Type),
		Severity:  Severity(ev.Severity),
		IP:        ev.IP,
		UserAgent: ev.UserAgent,
		Location:  ev.Location,
		Context:   ev.Context,
	})
	if err == nil {
		err = e.persistEvent(ctx, event)
	}
	if err != nil {
		e.metricInc(MetricEventWriteFailed)
		e.logger.WarnContext(ctx, "security event not recorded",
			"user_id", ev.UserID,
			"session_id", ev.SessionID,
			"event_type", ev.Type,
			"error", err,
		)
	}
}

func (e *Engine) buildEvent(ctx context.Context, in SecurityEventInput) (SecurityEvent, error) {
	now := e.now()
	id, err := e.eventIDs.New(now)
	if err != nil {
		return SecurityEvent{}, err
	}

	severity := in.Severity
	if severity == "" {
		severity = DefaultSeverity(in.Type)
	}
	ip := in.IP
	if ip == "" {
		ip = clientIPFromContext(ctx)
	}
	ua := in.UserAgent
	if ua == "" {
		ua = userAgentFromContext(ctx)
	}

	var evCtx map[string]string
	if len(in.Context) > 0 {
		evCtx = make(map[string]string, len(in.Context))
		for k, v := range in.Context {
			evCtx[k] = v
		}
	}

	return SecurityEvent{
		ID:       id,
		UserID:   in.UserID,
		Type:     in.Type,
		Severity: severity,
		Details: EventDetails{
			IP:        ip,
			UserAgent: ua,
			Location:  in.Location,
			Context:   evCtx,
		},
		Timestamp: time.UnixMilli(now.UnixMilli()).UTC(),
	}, nil
}

func (e *Engine) persistEvent(ctx context.Context, event SecurityEvent) error {
	if err := e.events.Append(ctx, toEventRecord(event)); err != nil {
		return err
	}
	e.metricInc(MetricEventRecorded)
	if e.audit != nil {
		e.audit.Emit(ctx, event)
	}
	return nil
}

func toEventRecord(ev SecurityEvent) stores.EventRecord {
	return stores.EventRecord{
		ID:        ev.ID,
		UserID:    ev.UserID,
		Type:      string(ev.Type),
		Severity:  string(ev.Severity),
		IP:        ev.Details.IP,
		UserAgent: ev.Details.UserAgent,
		Location:  ev.Details.Location,
		Context:   ev.Details.Context,
		Timestamp: ev.Timestamp.UnixMilli(),
	}
}

func fromEventRecord(rec stores.EventRecord) SecurityEvent {
	return SecurityEvent{
		ID:       rec.ID,
		UserID:   rec.UserID,
		Type:     EventType(rec.Type),
		Severity: Severity(rec.Severity),
		Details: EventDetails{
			IP:        rec.IP,
			UserAgent: rec.UserAgent,
			Location:  rec.Location,
			Context:   rec.Context,
		},
		Timestamp: timeFromMillis(rec.Timestamp),
	}
}

func fromSessionRecord(rec stores.SessionRecord) Session {
	return Session{
		ID:     rec.ID,
		UserID: rec.UserID,
		Device: DeviceInfo{
			UserAgent:        rec.UserAgent,
			Platform:         rec.Platform,
			Browser:          rec.Browser,
			Mobile:           rec.Mobile,
			ScreenResolution: rec.ScreenResolution,
		},
		Origin: Origin{
			IP:       rec.IP,
			Country:  rec.Country,
			City:     rec.City,
			Timezone: rec.Timezone,
		},
		CreatedAt:         timeFromMillis(rec.CreatedAt),
		LastActivityAt:    timeFromMillis(rec.LastActivityAt),
		EndedAt:           timeFromMillis(rec.EndedAt),
		Active:            rec.Active,
		LoginMethod:       rec.LoginMethod,
		TwoFactorVerified: rec.TwoFactorVerified,
	}
}

// Collections lists the store collections the engine reads and writes.
// Backends that need tables created up front (dynamostore.Bootstrap) use it.
func Collections() []string {
	return []string{stores.CollectionTwoFactor, stores.CollectionSessions, stores.CollectionEvents}
}
