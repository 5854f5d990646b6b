package stores

import (
	"context"

	"github.com/MrEthical07/goGuard/store"
)

// CollectionTwoFactor holds one record per user.
const CollectionTwoFactor = "two_factor"

const (
	fieldUserID      = "user_id"
	fieldSecret      = "secret"
	fieldBackupCodes = "backup_codes"
	fieldEnabled     = "enabled"
	fieldSetupAt     = "setup_at"
	fieldLastUsedAt  = "last_used_at"
	fieldMethod      = "method"
	fieldLastCounter = "last_counter"
	fieldVersion     = "version"
)

// TwoFactorRecord is a user's persisted two-factor setup.
type TwoFactorRecord struct {
	UserID      string
	// Secret is the base32 TOTP secret.
	Secret      string
	// BackupCodes holds hashes of the unused backup codes.
	BackupCodes []string
	Enabled     bool
	SetupAt     int64
	// LastUsedAt is zero until the setup is first used.
	LastUsedAt  int64
	Method      string
	// LastCounter is the last accepted TOTP step, -1 when none.
	LastCounter int64
	Version     int64
}

func (r TwoFactorRecord) toRecord() store.Record {
	codes := r.BackupCodes
	if codes == nil {
		codes = []string{}
	}
	return store.Record{
		fieldUserID:      r.UserID,
		fieldSecret:      r.Secret,
		fieldBackupCodes: codes,
		fieldEnabled:     r.Enabled,
		fieldSetupAt:     r.SetupAt,
		fieldLastUsedAt:  r.LastUsedAt,
		fieldMethod:      r.Method,
		fieldLastCounter: r.LastCounter,
		fieldVersion:     r.Version,
	}
}

func twoFactorFromRecord(rec store.Record) *TwoFactorRecord {
	lastCounter := int64(-1)
	if _, ok := rec[fieldLastCounter]; ok {
		lastCounter = rec.Int64(fieldLastCounter)
	}
	return &TwoFactorRecord{
		UserID:      rec.String(fieldUserID),
		Secret:      rec.String(fieldSecret),
		BackupCodes: rec.Strings(fieldBackupCodes),
		Enabled:     rec.Bool(fieldEnabled),
		SetupAt:     rec.Int64(fieldSetupAt),
		LastUsedAt:  rec.Int64(fieldLastUsedAt),
		Method:      rec.String(fieldMethod),
		LastCounter: lastCounter,
		Version:     rec.Int64(fieldVersion),
	}
}

// TwoFactorRepo persists TwoFactorRecords.
type TwoFactorRepo struct {
	store store.Store
}

// NewTwoFactorRepo wraps s.
func NewTwoFactorRepo(s store.Store) *TwoFactorRepo {
	return &TwoFactorRepo{store: s}
}

// Get returns the record for userID or store.ErrNotFound.
func (r *TwoFactorRepo) Get(ctx context.Context, userID string) (*TwoFactorRecord, error) {
	rec, err := r.store.Get(ctx, CollectionTwoFactor, userID)
	if err != nil {
		return nil, err
	}
	return twoFactorFromRecord(rec), nil
}

// Create writes rec only if the user has no record yet. It returns
// store.ErrConditionFailed when one exists.
func (r *TwoFactorRepo) Create(ctx context.Context, rec TwoFactorRecord) error {
	return r.store.Create(ctx, CollectionTwoFactor, rec.UserID, rec.toRecord())
}

// Swap replaces prev with next if nobody wrote the record since prev was
// read. The stored version becomes prev.Version+1. It returns
// store.ErrConditionFailed when the versions no longer match.
//
// Versions restart at zero when a record is deleted and created again, so
// the secret is matched too: a copy read before a disable and re-enable
// cannot overwrite the new setup even if the version numbers line up.
func (r *TwoFactorRepo) Swap(ctx context.Context, prev *TwoFactorRecord, next TwoFactorRecord) error {
	next.UserID = prev.UserID
	next.Version = prev.Version + 1
	return r.store.Update(ctx, CollectionTwoFactor, prev.UserID, next.toRecord(),
		store.Eq(fieldVersion, prev.Version),
		store.Eq(fieldSecret, prev.Secret))
}

// Delete removes the record for userID.
func (r *TwoFactorRepo) Delete(ctx context.Context, userID string) error {
	return r.store.Delete(ctx, CollectionTwoFactor, userID)
}
