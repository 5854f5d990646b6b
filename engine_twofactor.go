package goGuard

import (
	"context"
	"errors"
	"time"

	internalflows "github.com/MrEthical07/goGuard/internal/flows"
	"github.com/MrEthical07/goGuard/internal/limiters"
	"github.com/MrEthical07/goGuard/otp"
)

// BeginTwoFactorSetup describes the begintwofactorsetup operation and its observable behavior.
//
// BeginTwoFactorSetup generates a new secret and backup codes and stores them
// as a pending setup for userID, replacing any earlier pending setup. email
// labels the account in authenticator apps. A user whose setup is already
// enabled gets ErrTwoFactorAlreadyEnabled. The returned backup codes are the
// only copy; the store keeps hashes.
func (e *Engine) BeginTwoFactorSetup(ctx context.Context, userID, email string) (*TwoFactorSetupResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	setup, err := internalflows.RunBeginTwoFactorSetup(ctx, userID, email, e.twoFactorFlowDeps())
	if err != nil {
		return nil, err
	}
	return &TwoFactorSetupResult{
		Secret:          setup.Secret,
		ProvisioningURI: setup.ProvisioningURI,
		QRCode:          setup.QRCode,
		BackupCodes:     setup.BackupCodes,
	}, nil
}

// EnableTwoFactor describes the enabletwofactor operation and its observable behavior.
//
// EnableTwoFactor activates the pending setup when code is a valid TOTP code
// for its secret. A wrong code returns false and a nil error. Without a
// pending setup it returns ErrNoPendingSetup.
func (e *Engine) EnableTwoFactor(ctx context.Context, userID, code string) (bool, error) {
	if !e.ready() {
		return false, ErrEngineNotReady
	}
	return internalflows.RunEnableTwoFactor(ctx, userID, code, e.twoFactorFlowDeps())
}

// VerifyTwoFactorLogin describes the verifytwofactorlogin operation and its observable behavior.
//
// VerifyTwoFactorLogin checks a login-time code. MethodTOTP verifies against
// the secret; MethodBackupCodes consumes a backup code, which succeeds at most
// once per code even under concurrent calls. MethodSMS returns
// ErrMethodNotSupported. Users without an enabled setup get false. Every
// attempt is recorded as a login or failed_login security event.
func (e *Engine) VerifyTwoFactorLogin(ctx context.Context, userID, code string, method TwoFactorMethod) (bool, error) {
	if !e.ready() {
		return false, ErrEngineNotReady
	}
	start := time.Now()
	ok, err := internalflows.RunVerifyTwoFactorLogin(ctx, userID, code, string(method), e.twoFactorFlowDeps())
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricVerifyLatency, time.Since(start))
	}
	return ok, err
}

// DisableTwoFactor removes an enabled setup after checking a fresh TOTP
// code. It returns false when there is no enabled setup or the code is wrong.
func (e *Engine) DisableTwoFactor(ctx context.Context, userID, code string) (bool, error) {
	if !e.ready() {
		return false, ErrEngineNotReady
	}
	return internalflows.RunDisableTwoFactor(ctx, userID, code, e.twoFactorFlowDeps())
}

// RegenerateBackupCodes replaces every backup code of an enabled setup after
// checking a fresh TOTP code. On a failed check it returns nil, false, nil.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, userID, code string) ([]string, bool, error) {
	if !e.ready() {
		return nil, false, ErrEngineNotReady
	}
	codes, err := internalflows.RunRegenerateBackupCodes(ctx, userID, code, e.twoFactorFlowDeps())
	if err != nil || codes == nil {
		return nil, false, err
	}
	return codes, true, nil
}

// TwoFactorStatus describes the twofactorstatus operation and its observable behavior.
//
// TwoFactorStatus reports a disabled status for users with no setup. Only a
// persistence failure returns an error.
func (e *Engine) TwoFactorStatus(ctx context.Context, userID string) (TwoFactorStatus, error) {
	if !e.ready() {
		return TwoFactorStatus{}, ErrEngineNotReady
	}
	st, err := internalflows.RunTwoFactorStatus(ctx, userID, e.twoFactorFlowDeps())
	if err != nil {
		return TwoFactorStatus{}, err
	}
	return TwoFactorStatus{
		Enabled:        st.Enabled,
		Pending:        st.Pending,
		Method:         TwoFactorMethod(st.Method),
		SetupAt:        timeFromMillis(st.SetupAt),
		LastUsedAt:     timeFromMillis(st.LastUsedAt),
		HasBackupCodes: st.HasBackupCodes,
	}, nil
}

func (e *Engine) twoFactorFlowDeps() internalflows.TwoFactorDeps {
	cfg := e.config

	deps := internalflows.TwoFactorDeps{
		RejectReplay:        cfg.TOTP.RejectReplayedCodes,
		ConsumeRetries:      cfg.TwoFactor.ConsumeRetries,
		Now:                 e.now,
		Verifier:            e.verifier,
		GenerateSecret:      e.generator.GenerateSecret,
		GenerateBackupCodes: e.generator.GenerateBackupCodes,
		ProvisionURI: func(account, secret string) string {
			return otp.ProvisionURI(cfg.TOTP.Issuer, account, secret, e.otpOpts)
		},
		GetRecord:    e.twoFactor.Get,
		CreateRecord: e.twoFactor.Create,
		SwapRecord:   e.twoFactor.Swap,
		DeleteRecord: e.twoFactor.Delete,
		IsRateLimited: func(err error) bool {
			return errors.Is(err, limiters.ErrRateLimited)
		},
		Logger: e.logger,
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitEvent: e.recordEvent,
		Metrics: internalflows.TwoFactorMetrics{
			SetupStarted:        int(MetricTwoFactorSetupStarted),
			Enabled:             int(MetricTwoFactorEnabled),
			EnableFailed:        int(MetricTwoFactorEnableFailed),
			Disabled:            int(MetricTwoFactorDisabled),
			TOTPSuccess:         int(MetricTOTPSuccess),
			TOTPFailure:         int(MetricTOTPFailure),
			ReplayRejected:      int(MetricTOTPReplayRejected),
			BackupCodeUsed:      int(MetricBackupCodeUsed),
			BackupCodeFailed:    int(MetricBackupCodeFailed),
			BackupCodesRotated:  int(MetricBackupCodeRegenerated),
			BackupCodeConflict:  int(MetricBackupCodeConflict),
			RateLimited:         int(MetricTwoFactorRateLimited),
			PersistenceFailures: int(MetricPersistenceFailure),
		},
		Events: internalflows.TwoFactorEvents{
			Login:       string(EventLogin),
			FailedLogin: string(EventFailedLogin),
			Enabled:     string(EventTwoFactorEnabled),
			Disabled:    string(EventTwoFactorDisabled),
		},
		Errors: internalflows.TwoFactorErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidArgument:    ErrInvalidArgument,
			Persistence:        ErrPersistence,
			NoPendingSetup:     ErrNoPendingSetup,
			AlreadyEnabled:     ErrTwoFactorAlreadyEnabled,
			MethodNotSupported: ErrMethodNotSupported,
			RateLimited:        ErrTwoFactorRateLimited,
			CorruptRecord:      ErrTwoFactorRecordCorrupt,
		},
	}

	if e.qr != nil {
		deps.RenderQR = e.qr.Render
	}
	if e.limiter != nil {
		deps.CheckLimiter = e.limiter.Check
		deps.RecordLimiterFailure = e.limiter.RecordFailure
		deps.ResetLimiter = e.limiter.Reset
	}

	return deps
}
