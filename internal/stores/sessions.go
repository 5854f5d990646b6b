package stores

import (
	"context"

	"github.com/MrEthical07/goGuard/store"
)

// CollectionSessions holds one record per session.
const CollectionSessions = "sessions"

const (
	fieldSessionID         = "session_id"
	fieldUserAgent         = "user_agent"
	fieldPlatform          = "platform"
	fieldBrowser           = "browser"
	fieldMobile            = "mobile"
	fieldScreenResolution  = "screen_resolution"
	fieldIP                = "ip"
	fieldCountry           = "country"
	fieldCity              = "city"
	fieldTimezone          = "timezone"
	fieldCreatedAt         = "created_at"
	fieldLastActivityAt    = "last_activity_at"
	fieldEndedAt           = "ended_at"
	fieldActive            = "active"
	fieldLoginMethod       = "login_method"
	fieldTwoFactorVerified = "two_factor_verified"
)

// SessionRecord is a persisted session. EndedAt is zero while the session
// is active.
type SessionRecord struct {
	ID                string
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
	CreatedAt         int64
	LastActivityAt    int64
	EndedAt           int64
	Active            bool
	LoginMethod       string
	TwoFactorVerified bool
}

func (s SessionRecord) toRecord() store.Record {
	return store.Record{
		fieldSessionID:         s.ID,
		fieldUserID:            s.UserID,
		fieldUserAgent:         s.UserAgent,
		fieldPlatform:          s.Platform,
		fieldBrowser:           s.Browser,
		fieldMobile:            s.Mobile,
		fieldScreenResolution:  s.ScreenResolution,
		fieldIP:                s.IP,
		fieldCountry:           s.Country,
		fieldCity:              s.City,
		fieldTimezone:          s.Timezone,
		fieldCreatedAt:         s.CreatedAt,
		fieldLastActivityAt:    s.LastActivityAt,
		fieldEndedAt:           s.EndedAt,
		fieldActive:            s.Active,
		fieldLoginMethod:       s.LoginMethod,
		fieldTwoFactorVerified: s.TwoFactorVerified,
	}
}

func sessionFromRecord(rec store.Record) SessionRecord {
	return SessionRecord{
		ID:                rec.String(fieldSessionID),
		UserID:            rec.String(fieldUserID),
		UserAgent:         rec.String(fieldUserAgent),
		Platform:          rec.String(fieldPlatform),
		Browser:           rec.String(fieldBrowser),
		Mobile:            rec.Bool(fieldMobile),
		ScreenResolution:  rec.String(fieldScreenResolution),
		IP:                rec.String(fieldIP),
		Country:           rec.String(fieldCountry),
		City:              rec.String(fieldCity),
		Timezone:          rec.String(fieldTimezone),
		CreatedAt:         rec.Int64(fieldCreatedAt),
		LastActivityAt:    rec.Int64(fieldLastActivityAt),
		EndedAt:           rec.Int64(fieldEndedAt),
		Active:            rec.Bool(fieldActive),
		LoginMethod:       rec.String(fieldLoginMethod),
		TwoFactorVerified: rec.Bool(fieldTwoFactorVerified),
	}
}

// SessionRepo persists SessionRecords.
type SessionRepo struct {
	store store.Store
}

// NewSessionRepo wraps s.
func NewSessionRepo(s store.Store) *SessionRepo {
	return &SessionRepo{store: s}
}

// Create writes a new session.
func (r *SessionRepo) Create(ctx context.Context, s SessionRecord) error {
	return r.store.Put(ctx, CollectionSessions, s.ID, s.toRecord())
}

// Get returns the session or store.ErrNotFound.
func (r *SessionRepo) Get(ctx context.Context, id string) (SessionRecord, error) {
	rec, err := r.store.Get(ctx, CollectionSessions, id)
	if err != nil {
		return SessionRecord{}, err
	}
	return sessionFromRecord(rec), nil
}

// Touch stamps last activity on an active session. Inactive sessions fail
// with store.ErrConditionFailed.
func (r *SessionRepo) Touch(ctx context.Context, id string, at int64) error {
	return r.store.Update(ctx, CollectionSessions, id,
		store.Record{fieldLastActivityAt: at},
		store.Eq(fieldActive, true))
}

// End marks an active session inactive. Only one concurrent caller wins; the
// others get store.ErrConditionFailed.
func (r *SessionRepo) End(ctx context.Context, id string, at int64) error {
	return r.store.Update(ctx, CollectionSessions, id,
		store.Record{fieldActive: false, fieldEndedAt: at},
		store.Eq(fieldActive, true))
}

// ListByUser returns the user's sessions created at or after since, most
// recently active first. activeOnly filters out ended sessions.
func (r *SessionRepo) ListByUser(ctx context.Context, userID string, activeOnly bool, since int64) ([]SessionRecord, error) {
	preds := []store.Predicate{store.Eq(fieldUserID, userID)}
	if activeOnly {
		preds = append(preds, store.Eq(fieldActive, true))
	}
	if since > 0 {
		preds = append(preds, store.Gte(fieldCreatedAt, since))
	}
	recs, err := r.store.Query(ctx, CollectionSessions, preds,
		&store.Order{Field: fieldLastActivityAt, Desc: true})
	if err != nil {
		return nil, err
	}
	out := make([]SessionRecord, 0, len(recs))
	for _, rec := range recs {
		out = append(out, sessionFromRecord(rec))
	}
	return out, nil
}

// IdleBefore returns the ids of sessions whose last activity is older than cutoff.
func (r *SessionRepo) IdleBefore(ctx context.Context, cutoff int64) ([]string, error) {
	recs, err := r.store.Query(ctx, CollectionSessions,
		[]store.Predicate{store.Lt(fieldLastActivityAt, cutoff)}, nil)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.String(fieldSessionID))
	}
	return ids, nil
}

// Delete hard-deletes a session.
func (r *SessionRepo) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, CollectionSessions, id)
}
