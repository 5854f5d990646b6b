package goGuard

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goGuard/otp"
)

// Config defines a public type used by goGuard APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	TOTP      TOTPConfig
	TwoFactor TwoFactorConfig
	Session   SessionConfig
	Events    EventConfig
	Risk      RiskConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
TWO-FACTOR CONFIG
====================================
*/

// TOTPConfig defines a public type used by goGuard APIs.
//
// TOTPConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TOTPConfig struct {
	Issuer    string
	Period    int // seconds per step
	Digits    int
	Algorithm string // "SHA1" (default), "SHA256", "SHA512"
	Skew      int    // steps accepted on either side of now
	// RejectReplayedCodes refuses a TOTP code whose step is not newer than
	// the last accepted one for the user.
	RejectReplayedCodes bool
}

// TwoFactorConfig controls backup codes and the verification attempt limiter.
type TwoFactorConfig struct {
	BackupCodeCount  int
	BackupCodeLength int
	// MaxAttempts failed verifications per Cooldown before further attempts
	// are refused. Zero disables the limiter.
	MaxAttempts int
	Cooldown    time.Duration
	// ConsumeRetries bounds optimistic retries of conditional two-factor writes.
	ConsumeRetries int
	// LimiterPrefix namespaces limiter keys in Redis.
	LimiterPrefix string
}

/*
====================================
SESSION AND EVENT CONFIG
====================================
*/

// SessionConfig defines a public type used by goGuard APIs.
type SessionConfig struct {
	// Retention is how long an idle session is kept before purge.
	Retention time.Duration
}

// EventConfig defines a public type used by goGuard APIs.
type EventConfig struct {
	Retention time.Duration
}

/*
====================================
RISK CONFIG
====================================
*/

// RiskConfig holds the suspicious-activity thresholds. Each count rule
// fires when the observed value is strictly greater than its threshold.
type RiskConfig struct {
	Window             time.Duration
	FailedLoginWindow  time.Duration
	MaxCountries       int
	MaxDevices         int
	RapidLoginInterval time.Duration
	MaxFailedLogins    int
}

/*
====================================
OBSERVABILITY CONFIG
====================================
*/

// AuditConfig defines a public type used by goGuard APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by goGuard APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration used when a Builder is not given
// one: SHA1 six-digit codes on 30s steps with a one-step skew, ten backup
// codes, no attempt limiter, 30 day session retention and 90 day event
// retention.
func DefaultConfig() Config {
	return Config{
		TOTP: TOTPConfig{
			Issuer:              "goGuard",
			Period:              30,
			Digits:              6,
			Algorithm:           otp.AlgorithmSHA1,
			Skew:                1,
			RejectReplayedCodes: false,
		},
		TwoFactor: TwoFactorConfig{
			BackupCodeCount:  otp.DefaultBackupCodeCount,
			BackupCodeLength: otp.DefaultBackupCodeLength,
			MaxAttempts:      0,
			Cooldown:         15 * time.Minute,
			ConsumeRetries:   5,
			LimiterPrefix:    "gg:2fa:att:",
		},
		Session: SessionConfig{
			Retention: 30 * 24 * time.Hour,
		},
		Events: EventConfig{
			Retention: 90 * 24 * time.Hour,
		},
		Risk: RiskConfig{
			Window:             24 * time.Hour,
			FailedLoginWindow:  time.Hour,
			MaxCountries:       2,
			MaxDevices:         3,
			RapidLoginInterval: 60 * time.Second,
			MaxFailedLogins:    5,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation fails.
// Validate does not mutate shared global state and can be used concurrently.
func (c *Config) Validate() error {
	// TOTP
	if strings.TrimSpace(c.TOTP.Issuer) == "" {
		return errors.New("TOTP Issuer must not be empty")
	}
	if strings.Contains(c.TOTP.Issuer, ":") {
		return errors.New("TOTP Issuer must not contain ':'")
	}
	if c.TOTP.Period <= 0 {
		return errors.New("TOTP Period must be > 0")
	}
	if c.TOTP.Digits < 6 || c.TOTP.Digits > 10 {
		return errors.New("TOTP Digits must be between 6 and 10")
	}
	if !otp.ValidAlgorithm(c.TOTP.Algorithm) {
		return errors.New("TOTP Algorithm must be SHA1, SHA256 or SHA512")
	}
	if c.TOTP.Skew < 0 || c.TOTP.Skew > 10 {
		return errors.New("TOTP Skew must be between 0 and 10")
	}

	// Two-factor
	if c.TwoFactor.BackupCodeCount <= 0 || c.TwoFactor.BackupCodeCount > 100 {
		return errors.New("TwoFactor BackupCodeCount must be between 1 and 100")
	}
	if c.TwoFactor.BackupCodeLength < 6 || c.TwoFactor.BackupCodeLength > 32 {
		return errors.New("TwoFactor BackupCodeLength must be between 6 and 32")
	}
	if c.TwoFactor.MaxAttempts < 0 {
		return errors.New("TwoFactor MaxAttempts must be >= 0")
	}
	if c.TwoFactor.MaxAttempts > 0 && c.TwoFactor.Cooldown <= 0 {
		return errors.New("TwoFactor Cooldown must be > 0 when MaxAttempts is set")
	}
	if c.TwoFactor.ConsumeRetries <= 0 {
		return errors.New("TwoFactor ConsumeRetries must be > 0")
	}

	// Retention
	if c.Session.Retention <= 0 {
		return errors.New("Session Retention must be > 0")
	}
	if c.Events.Retention <= 0 {
		return errors.New("Events Retention must be > 0")
	}

	// Risk
	if c.Risk.Window <= 0 || c.Risk.FailedLoginWindow <= 0 {
		return errors.New("Risk windows must be > 0")
	}
	if c.Risk.MaxCountries < 0 || c.Risk.MaxDevices < 0 || c.Risk.MaxFailedLogins < 0 {
		return errors.New("Risk thresholds must be >= 0")
	}
	if c.Risk.RapidLoginInterval < 0 {
		return errors.New("Risk RapidLoginInterval must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
