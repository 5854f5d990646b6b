package flows

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/goGuard/internal/stores"
	"github.com/MrEthical07/goGuard/otp"
	"github.com/MrEthical07/goGuard/store"
)

// Method names as persisted and accepted by the verification flow.
const (
	MethodTOTP        = "totp"
	MethodSMS         = "sms"
	MethodBackupCodes = "backup_codes"
)

// Reasons attached to failed_login events.
const (
	reasonInvalidCode       = "invalid_code"
	reasonReplay            = "replayed_code"
	reasonNotEnabled        = "two_factor_not_enabled"
	reasonRateLimited       = "rate_limited"
	reasonMethodUnsupported = "method_not_supported"
)

// Event is a security event produced by a flow. An empty Severity means the
// default severity for Type.
type Event struct {
	UserID    string
	Type      string
	Severity  string
	SessionID string
	IP        string
	UserAgent string
	Location  string
	Context   map[string]string
}

type TwoFactorSetup struct {
	Secret          string
	ProvisioningURI string
	QRCode          []byte
	BackupCodes     []string
}

type TwoFactorStatus struct {
	Enabled        bool
	Pending        bool
	Method         string
	SetupAt        int64
	LastUsedAt     int64
	HasBackupCodes bool
}

type TwoFactorMetrics struct {
	SetupStarted        int
	Enabled             int
	EnableFailed        int
	Disabled            int
	TOTPSuccess         int
	TOTPFailure         int
	ReplayRejected      int
	BackupCodeUsed      int
	BackupCodeFailed    int
	BackupCodesRotated  int
	BackupCodeConflict  int
	RateLimited         int
	PersistenceFailures int
}

type TwoFactorEvents struct {
	Login       string
	FailedLogin string
	Enabled     string
	Disabled    string
}

type TwoFactorErrors struct {
	EngineNotReady     error
	InvalidArgument    error
	Persistence        error
	NoPendingSetup     error
	AlreadyEnabled     error
	MethodNotSupported error
	RateLimited        error
	CorruptRecord      error
}

// TwoFactorDeps is everything the two-factor flows touch. The engine builds
// it once; every field that does I/O is a closure over engine state.
type TwoFactorDeps struct {
	RejectReplay   bool
	ConsumeRetries int

	Now      func() time.Time
	Verifier otp.Verifier

	GenerateSecret      func() (string, error)
	GenerateBackupCodes func() ([]string, error)
	ProvisionURI        func(account, secret string) string
	RenderQR            func(uri string) ([]byte, error)

	GetRecord    func(context.Context, string) (*stores.TwoFactorRecord, error)
	CreateRecord func(context.Context, stores.TwoFactorRecord) error
	SwapRecord   func(context.Context, *stores.TwoFactorRecord, stores.TwoFactorRecord) error
	DeleteRecord func(context.Context, string) error

	CheckLimiter         func(context.Context, string) error
	RecordLimiterFailure func(context.Context, string) error
	ResetLimiter         func(context.Context, string) error
	IsRateLimited        func(error) bool

	Logger    *slog.Logger
	MetricInc func(int)
	EmitEvent func(context.Context, Event)

	Metrics TwoFactorMetrics
	Events  TwoFactorEvents
	Errors  TwoFactorErrors
}

func normalizeTwoFactorDeps(deps *TwoFactorDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.ConsumeRetries <= 0 {
		deps.ConsumeRetries = 5
	}
	if deps.CheckLimiter == nil {
		deps.CheckLimiter = func(context.Context, string) error { return nil }
	}
	if deps.RecordLimiterFailure == nil {
		deps.RecordLimiterFailure = func(context.Context, string) error { return nil }
	}
	if deps.ResetLimiter == nil {
		deps.ResetLimiter = func(context.Context, string) error { return nil }
	}
	if deps.IsRateLimited == nil {
		deps.IsRateLimited = func(error) bool { return false }
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
	if deps.Errors.CorruptRecord == nil {
		deps.Errors.CorruptRecord = errors.New("two-factor record corrupt")
	}
}

func twoFactorReady(deps TwoFactorDeps) bool {
	return deps.GetRecord != nil && deps.CreateRecord != nil && deps.SwapRecord != nil &&
		deps.DeleteRecord != nil && deps.GenerateSecret != nil && deps.GenerateBackupCodes != nil &&
		deps.ProvisionURI != nil
}

func (deps TwoFactorDeps) persistence(err error) error {
	deps.MetricInc(deps.Metrics.PersistenceFailures)
	return errors.Join(deps.Errors.Persistence, err)
}

// getRecord returns nil without error when the user has no record.
func (deps TwoFactorDeps) getRecord(ctx context.Context, userID string) (*stores.TwoFactorRecord, error) {
	rec, err := deps.GetRecord(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, deps.persistence(err)
	}
	return rec, nil
}

// checkLimiter maps a limiter refusal to the rate-limit error. A limiter that
// cannot answer fails closed.
func (deps TwoFactorDeps) checkLimiter(ctx context.Context, userID string) error {
	err := deps.CheckLimiter(ctx, userID)
	if err == nil {
		return nil
	}
	if deps.IsRateLimited(err) {
		deps.MetricInc(deps.Metrics.RateLimited)
		return deps.Errors.RateLimited
	}
	return deps.persistence(err)
}

func (deps TwoFactorDeps) recordFailure(ctx context.Context, userID string) {
	if err := deps.RecordLimiterFailure(ctx, userID); err != nil && !deps.IsRateLimited(err) {
		deps.Logger.WarnContext(ctx, "two-factor limiter failure not recorded", "user_id", userID, "error", err)
	}
}

func (deps TwoFactorDeps) reset(ctx context.Context, userID string) {
	if err := deps.ResetLimiter(ctx, userID); err != nil {
		deps.Logger.WarnContext(ctx, "two-factor limiter reset failed", "user_id", userID, "error", err)
	}
}

// verifyTOTP checks code against rec and applies replay rejection.
func (deps TwoFactorDeps) verifyTOTP(rec *stores.TwoFactorRecord, code string) (bool, int64, string, error) {
	ok, counter, err := deps.Verifier.VerifyCounter(rec.Secret, code, deps.Now())
	if err != nil {
		// The store answered; what it holds is unusable.
		deps.Logger.Error("stored two-factor secret unreadable", "user_id", rec.UserID, "error", err)
		return false, 0, "", errors.Join(deps.Errors.CorruptRecord, err)
	}
	if !ok {
		return false, 0, reasonInvalidCode, nil
	}
	if deps.RejectReplay && counter <= rec.LastCounter {
		deps.MetricInc(deps.Metrics.ReplayRejected)
		return false, 0, reasonReplay, nil
	}
	return true, counter, "", nil
}

func hashBackupCodes(userID string, codes []string) []string {
	hashes := make([]string, len(codes))
	for i, c := range codes {
		hashes[i] = otp.HashBackupCode(userID, c)
	}
	return hashes
}

// RunBeginTwoFactorSetup generates a fresh secret and backup codes and stores
// them as a pending setup, replacing any earlier pending one.
func RunBeginTwoFactorSetup(ctx context.Context, userID, account string, deps TwoFactorDeps) (*TwoFactorSetup, error) {
	normalizeTwoFactorDeps(&deps)
	if !twoFactorReady(deps) {
		return nil, deps.Errors.EngineNotReady
	}
	if userID == "" {
		return nil, deps.Errors.InvalidArgument
	}
	if account == "" {
		account = userID
	}

	secret, err := deps.GenerateSecret()
	if err != nil {
		return nil, err
	}
	codes, err := deps.GenerateBackupCodes()
	if err != nil {
		return nil, err
	}

	next := stores.TwoFactorRecord{
		UserID:      userID,
		Secret:      secret,
		BackupCodes: hashBackupCodes(userID, codes),
		SetupAt:     deps.Now().UnixMilli(),
		Method:      MethodTOTP,
		LastCounter: -1,
	}

	for attempt := 0; ; attempt++ {
		existing, err := deps.getRecord(ctx, userID)
		if err != nil {
			return nil, err
		}
		if existing != nil && existing.Enabled {
			return nil, deps.Errors.AlreadyEnabled
		}
		if existing == nil {
			err = deps.CreateRecord(ctx, next)
		} else {
			err = deps.SwapRecord(ctx, existing, next)
		}
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrConditionFailed) || attempt+1 >= deps.ConsumeRetries {
			return nil, deps.persistence(err)
		}
	}

	uri := deps.ProvisionURI(account, secret)
	var qr []byte
	if deps.RenderQR != nil {
		if qr, err = deps.RenderQR(uri); err != nil {
			deps.Logger.WarnContext(ctx, "qr render failed", "user_id", userID, "error", err)
			qr = nil
		}
	}

	deps.MetricInc(deps.Metrics.SetupStarted)
	deps.Logger.InfoContext(ctx, "two-factor setup started", "user_id", userID)

	return &TwoFactorSetup{
		Secret:          secret,
		ProvisioningURI: uri,
		QRCode:          qr,
		BackupCodes:     codes,
	}, nil
}

// RunEnableTwoFactor activates a pending setup once the user proves they hold
// the secret. A wrong code returns false without error.
func RunEnableTwoFactor(ctx context.Context, userID, code string, deps TwoFactorDeps) (bool, error) {
	normalizeTwoFactorDeps(&deps)
	if !twoFactorReady(deps) {
		return false, deps.Errors.EngineNotReady
	}
	if userID == "" {
		return false, deps.Errors.InvalidArgument
	}
	if err := deps.checkLimiter(ctx, userID); err != nil {
		return false, err
	}

	rec, err := deps.getRecord(ctx, userID)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, deps.Errors.NoPendingSetup
	}
	if rec.Enabled {
		return false, deps.Errors.AlreadyEnabled
	}

	ok, counter, _, err := deps.verifyTOTP(rec, code)
	if err != nil {
		return false, err
	}
	if !ok {
		deps.recordFailure(ctx, userID)
		deps.MetricInc(deps.Metrics.EnableFailed)
		return false, nil
	}

	next := *rec
	next.Enabled = true
	next.Method = MethodTOTP
	next.LastUsedAt = deps.Now().UnixMilli()
	next.LastCounter = counter
	if err := deps.SwapRecord(ctx, rec, next); err != nil {
		if !errors.Is(err, store.ErrConditionFailed) {
			return false, deps.persistence(err)
		}
		// Someone enabled or restarted setup between read and write.
		current, gerr := deps.getRecord(ctx, userID)
		if gerr != nil {
			return false, gerr
		}
		if current != nil && current.Enabled {
			return false, deps.Errors.AlreadyEnabled
		}
		deps.MetricInc(deps.Metrics.EnableFailed)
		return false, nil
	}

	deps.reset(ctx, userID)
	deps.MetricInc(deps.Metrics.Enabled)
	deps.EmitEvent(ctx, Event{
		UserID:  userID,
		Type:    deps.Events.Enabled,
		Context: map[string]string{"method": MethodTOTP},
	})
	return true, nil
}

// RunVerifyTwoFactorLogin checks a login-time code with the given method.
// Every attempt that reaches the record emits a login or failed_login event.
func RunVerifyTwoFactorLogin(ctx context.Context, userID, code, method string, deps TwoFactorDeps) (bool, error) {
	normalizeTwoFactorDeps(&deps)
	if !twoFactorReady(deps) {
		return false, deps.Errors.EngineNotReady
	}
	if userID == "" {
		return false, deps.Errors.InvalidArgument
	}

	failed := func(reason string) {
		deps.EmitEvent(ctx, Event{
			UserID:  userID,
			Type:    deps.Events.FailedLogin,
			Context: map[string]string{"method": method, "reason": reason},
		})
	}

	switch method {
	case MethodTOTP, MethodBackupCodes:
	case MethodSMS:
		failed(reasonMethodUnsupported)
		return false, deps.Errors.MethodNotSupported
	default:
		return false, deps.Errors.InvalidArgument
	}

	if err := deps.checkLimiter(ctx, userID); err != nil {
		if errors.Is(err, deps.Errors.RateLimited) {
			failed(reasonRateLimited)
		}
		return false, err
	}

	rec, err := deps.getRecord(ctx, userID)
	if err != nil {
		return false, err
	}
	if rec == nil || !rec.Enabled {
		failed(reasonNotEnabled)
		return false, nil
	}

	var (
		ok     bool
		reason string
	)
	if method == MethodTOTP {
		ok, reason, err = deps.consumeTOTP(ctx, rec, code)
	} else {
		ok, reason, err = deps.consumeBackupCode(ctx, rec, code)
	}
	if err != nil {
		return false, err
	}

	if !ok {
		deps.recordFailure(ctx, userID)
		if method == MethodTOTP {
			deps.MetricInc(deps.Metrics.TOTPFailure)
		} else {
			deps.MetricInc(deps.Metrics.BackupCodeFailed)
		}
		failed(reason)
		return false, nil
	}

	deps.reset(ctx, userID)
	if method == MethodTOTP {
		deps.MetricInc(deps.Metrics.TOTPSuccess)
	} else {
		deps.MetricInc(deps.Metrics.BackupCodeUsed)
	}
	deps.EmitEvent(ctx, Event{
		UserID:  userID,
		Type:    deps.Events.Login,
		Context: map[string]string{"method": method, "two_factor": "true"},
	})
	return true, nil
}

// consumeTOTP verifies code and stamps last use. With replay rejection on,
// the counter write must win; a concurrent writer that already advanced past
// the matched step turns the attempt into a replay.
func (deps TwoFactorDeps) consumeTOTP(ctx context.Context, rec *stores.TwoFactorRecord, code string) (bool, string, error) {
	ok, counter, reason, err := deps.verifyTOTP(rec, code)
	if err != nil || !ok {
		return false, reason, err
	}

	for attempt := 0; attempt < deps.ConsumeRetries; attempt++ {
		next := *rec
		next.LastUsedAt = deps.Now().UnixMilli()
		if counter > next.LastCounter {
			next.LastCounter = counter
		}
		err := deps.SwapRecord(ctx, rec, next)
		if err == nil {
			return true, "", nil
		}
		if !errors.Is(err, store.ErrConditionFailed) {
			if deps.RejectReplay {
				return false, "", deps.persistence(err)
			}
			deps.Logger.WarnContext(ctx, "two-factor last use not recorded", "user_id", rec.UserID, "error", err)
			return true, "", nil
		}

		current, gerr := deps.getRecord(ctx, rec.UserID)
		if gerr != nil {
			return false, "", gerr
		}
		if current == nil || !current.Enabled {
			return false, reasonNotEnabled, nil
		}
		if deps.RejectReplay && counter <= current.LastCounter {
			deps.MetricInc(deps.Metrics.ReplayRejected)
			return false, reasonReplay, nil
		}
		rec = current
	}

	if deps.RejectReplay {
		return false, "", deps.persistence(errors.New("totp counter update contended"))
	}
	return true, "", nil
}

// consumeBackupCode removes the matching hash with a version-conditioned
// write, so a code can be spent at most once however many callers race.
func (deps TwoFactorDeps) consumeBackupCode(ctx context.Context, rec *stores.TwoFactorRecord, code string) (bool, string, error) {
	canonical := otp.CanonicalizeBackupCode(code)
	if canonical == "" {
		return false, reasonInvalidCode, nil
	}
	hash := otp.HashBackupCode(rec.UserID, canonical)

	for attempt := 0; attempt < deps.ConsumeRetries; attempt++ {
		idx := -1
		for i, h := range rec.BackupCodes {
			if h == hash {
				idx = i
				break
			}
		}
		if idx < 0 {
			return false, reasonInvalidCode, nil
		}

		next := *rec
		next.BackupCodes = make([]string, 0, len(rec.BackupCodes)-1)
		next.BackupCodes = append(next.BackupCodes, rec.BackupCodes[:idx]...)
		next.BackupCodes = append(next.BackupCodes, rec.BackupCodes[idx+1:]...)
		next.LastUsedAt = deps.Now().UnixMilli()

		err := deps.SwapRecord(ctx, rec, next)
		if err == nil {
			deps.Logger.InfoContext(ctx, "backup code consumed", "user_id", rec.UserID, "remaining", len(next.BackupCodes))
			return true, "", nil
		}
		if !errors.Is(err, store.ErrConditionFailed) {
			return false, "", deps.persistence(err)
		}

		deps.MetricInc(deps.Metrics.BackupCodeConflict)
		current, gerr := deps.getRecord(ctx, rec.UserID)
		if gerr != nil {
			return false, "", gerr
		}
		if current == nil || !current.Enabled {
			return false, reasonNotEnabled, nil
		}
		rec = current
	}
	return false, "", deps.persistence(errors.New("backup code consumption contended"))
}

// RunDisableTwoFactor removes an enabled setup after a fresh TOTP check.
func RunDisableTwoFactor(ctx context.Context, userID, code string, deps TwoFactorDeps) (bool, error) {
	normalizeTwoFactorDeps(&deps)
	if !twoFactorReady(deps) {
		return false, deps.Errors.EngineNotReady
	}
	if userID == "" {
		return false, deps.Errors.InvalidArgument
	}
	if err := deps.checkLimiter(ctx, userID); err != nil {
		return false, err
	}

	rec, err := deps.getRecord(ctx, userID)
	if err != nil || rec == nil || !rec.Enabled {
		return false, err
	}

	ok, _, _, err := deps.verifyTOTP(rec, code)
	if err != nil {
		return false, err
	}
	if !ok {
		deps.recordFailure(ctx, userID)
		deps.MetricInc(deps.Metrics.TOTPFailure)
		return false, nil
	}

	if err := deps.DeleteRecord(ctx, userID); err != nil {
		return false, deps.persistence(err)
	}

	deps.reset(ctx, userID)
	deps.MetricInc(deps.Metrics.Disabled)
	deps.EmitEvent(ctx, Event{
		UserID:  userID,
		Type:    deps.Events.Disabled,
		Context: map[string]string{"method": rec.Method},
	})
	return true, nil
}

// RunRegenerateBackupCodes replaces the backup codes of an enabled setup
// after a fresh TOTP check. It returns nil codes when the check fails.
func RunRegenerateBackupCodes(ctx context.Context, userID, code string, deps TwoFactorDeps) ([]string, error) {
	normalizeTwoFactorDeps(&deps)
	if !twoFactorReady(deps) {
		return nil, deps.Errors.EngineNotReady
	}
	if userID == "" {
		return nil, deps.Errors.InvalidArgument
	}
	if err := deps.checkLimiter(ctx, userID); err != nil {
		return nil, err
	}

	rec, err := deps.getRecord(ctx, userID)
	if err != nil || rec == nil || !rec.Enabled {
		return nil, err
	}

	ok, counter, _, err := deps.verifyTOTP(rec, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		deps.recordFailure(ctx, userID)
		deps.MetricInc(deps.Metrics.TOTPFailure)
		return nil, nil
	}

	codes, err := deps.GenerateBackupCodes()
	if err != nil {
		return nil, err
	}
	hashes := hashBackupCodes(userID, codes)

	for attempt := 0; ; attempt++ {
		next := *rec
		next.BackupCodes = hashes
		next.LastUsedAt = deps.Now().UnixMilli()
		if counter > next.LastCounter {
			next.LastCounter = counter
		}
		err := deps.SwapRecord(ctx, rec, next)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrConditionFailed) || attempt+1 >= deps.ConsumeRetries {
			return nil, deps.persistence(err)
		}
		current, gerr := deps.getRecord(ctx, userID)
		if gerr != nil {
			return nil, gerr
		}
		if current == nil || !current.Enabled {
			return nil, nil
		}
		rec = current
	}

	deps.reset(ctx, userID)
	deps.MetricInc(deps.Metrics.BackupCodesRotated)
	deps.Logger.InfoContext(ctx, "backup codes regenerated", "user_id", userID, "count", len(codes))
	return codes, nil
}

// RunTwoFactorStatus summarizes a user's setup. Backup codes of a pending
// setup are not usable and are not reported.
func RunTwoFactorStatus(ctx context.Context, userID string, deps TwoFactorDeps) (TwoFactorStatus, error) {
	normalizeTwoFactorDeps(&deps)
	if deps.GetRecord == nil {
		return TwoFactorStatus{}, deps.Errors.EngineNotReady
	}
	if userID == "" {
		return TwoFactorStatus{}, deps.Errors.InvalidArgument
	}
	rec, err := deps.getRecord(ctx, userID)
	if err != nil || rec == nil {
		return TwoFactorStatus{}, err
	}
	return TwoFactorStatus{
		Enabled:        rec.Enabled,
		Pending:        !rec.Enabled,
		Method:         rec.Method,
		SetupAt:        rec.SetupAt,
		LastUsedAt:     rec.LastUsedAt,
		HasBackupCodes: rec.Enabled && len(rec.BackupCodes) > 0,
	}, nil
}
