package stores

import (
	"context"

	"github.com/MrEthical07/goGuard/store"
)

// CollectionEvents holds the append-only security event log.
const CollectionEvents = "security_events"

const (
	fieldEventID   = "event_id"
	fieldType      = "type"
	fieldSeverity  = "severity"
	fieldLocation  = "location"
	fieldContext   = "context"
	fieldTimestamp = "timestamp"
)

// EventRecord is a persisted security event.
type EventRecord struct {
	ID        string
	UserID    string
	Type      string
	Severity  string
	IP        string
	UserAgent string
	Location  string
	Context   map[string]string
	Timestamp int64
}

func (e EventRecord) toRecord() store.Record {
	ctx := e.Context
	if ctx == nil {
		ctx = map[string]string{}
	}
	return store.Record{
		fieldEventID:   e.ID,
		fieldUserID:    e.UserID,
		fieldType:      e.Type,
		fieldSeverity:  e.Severity,
		fieldIP:        e.IP,
		fieldUserAgent: e.UserAgent,
		fieldLocation:  e.Location,
		fieldContext:   ctx,
		fieldTimestamp: e.Timestamp,
	}
}

func eventFromRecord(rec store.Record) EventRecord {
	return EventRecord{
		ID:        rec.String(fieldEventID),
		UserID:    rec.String(fieldUserID),
		Type:      rec.String(fieldType),
		Severity:  rec.String(fieldSeverity),
		IP:        rec.String(fieldIP),
		UserAgent: rec.String(fieldUserAgent),
		Location:  rec.String(fieldLocation),
		Context:   rec.StringMap(fieldContext),
		Timestamp: rec.Int64(fieldTimestamp),
	}
}

// EventQuery narrows EventRepo.List.
type EventQuery struct {
	UserID string
	// Since keeps events at or after this timestamp when non-zero.
	Since int64
	// Types keeps only these event types when non-empty.
	Types []string
	// Limit caps the result when positive.
	Limit int
}

// EventRepo appends and reads security events.
type EventRepo struct {
	store store.Store
}

// NewEventRepo wraps s.
func NewEventRepo(s store.Store) *EventRepo {
	return &EventRepo{store: s}
}

// Append writes e. Events are never updated afterwards.
func (r *EventRepo) Append(ctx context.Context, e EventRecord) error {
	return r.store.Put(ctx, CollectionEvents, e.ID, e.toRecord())
}

// List returns matching events newest first.
func (r *EventRepo) List(ctx context.Context, q EventQuery) ([]EventRecord, error) {
	preds := []store.Predicate{store.Eq(fieldUserID, q.UserID)}
	if q.Since > 0 {
		preds = append(preds, store.Gte(fieldTimestamp, q.Since))
	}
	if len(q.Types) == 1 {
		preds = append(preds, store.Eq(fieldType, q.Types[0]))
	}

	// Event ids are ULIDs minted from the event clock, so id order is
	// timestamp order with same-millisecond ties broken by creation.
	recs, err := r.store.Query(ctx, CollectionEvents, preds,
		&store.Order{Field: fieldEventID, Desc: true})
	if err != nil {
		return nil, err
	}

	var allowed map[string]struct{}
	if len(q.Types) > 1 {
		allowed = make(map[string]struct{}, len(q.Types))
		for _, t := range q.Types {
			allowed[t] = struct{}{}
		}
	}

	out := make([]EventRecord, 0, len(recs))
	for _, rec := range recs {
		e := eventFromRecord(rec)
		if allowed != nil {
			if _, ok := allowed[e.Type]; !ok {
				continue
			}
		}
		out = append(out, e)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

// Count returns the number of events of type eventType for userID at or
// after since.
func (r *EventRepo) Count(ctx context.Context, userID, eventType string, since int64) (int, error) {
	recs, err := r.store.Query(ctx, CollectionEvents, []store.Predicate{
		store.Eq(fieldUserID, userID),
		store.Eq(fieldType, eventType),
		store.Gte(fieldTimestamp, since),
	}, nil)
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}

// OlderThan returns the ids of events stamped before cutoff.
func (r *EventRepo) OlderThan(ctx context.Context, cutoff int64) ([]string, error) {
	recs, err := r.store.Query(ctx, CollectionEvents,
		[]store.Predicate{store.Lt(fieldTimestamp, cutoff)}, nil)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.String(fieldEventID))
	}
	return ids, nil
}

// Delete removes an event. Only retention cleanup calls it.
func (r *EventRepo) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, CollectionEvents, id)
}
