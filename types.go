package goGuard

import "time"

// TwoFactorMethod names a second-factor mechanism.
type TwoFactorMethod string

const (
	// MethodTOTP is an exported constant or variable used by the security engine.
	MethodTOTP TwoFactorMethod = "totp"
	// MethodSMS is accepted by the API but not supported by this engine.
	MethodSMS TwoFactorMethod = "sms"
	// MethodBackupCodes is an exported constant or variable used by the security engine.
	MethodBackupCodes TwoFactorMethod = "backup_codes"
)

// EventType classifies a security event.
type EventType string

const (
	EventLogin              EventType = "login"
	EventLogout             EventType = "logout"
	EventFailedLogin        EventType = "failed_login"
	EventPasswordChange     EventType = "password_change"
	EventTwoFactorEnabled   EventType = "2fa_enabled"
	EventTwoFactorDisabled  EventType = "2fa_disabled"
	EventSuspiciousActivity EventType = "suspicious_activity"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	_, ok := defaultSeverity[t]
	return ok
}

// Severity is the ordinal importance of a security event.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is one of the four severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

var defaultSeverity = map[EventType]Severity{
	EventLogin:              SeverityLow,
	EventLogout:             SeverityLow,
	EventFailedLogin:        SeverityMedium,
	EventPasswordChange:     SeverityMedium,
	EventTwoFactorEnabled:   SeverityMedium,
	EventTwoFactorDisabled:  SeverityHigh,
	EventSuspiciousActivity: SeverityHigh,
}

// DefaultSeverity returns the severity recorded for t when none is given.
func DefaultSeverity(t EventType) Severity {
	if s, ok := defaultSeverity[t]; ok {
		return s
	}
	return SeverityLow
}

// RiskLevel is the outcome class of a risk assessment.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// DeviceInfo describes the client that opened a session.
type DeviceInfo struct {
	UserAgent        string `json:"user_agent,omitempty"`
	Platform         string `json:"platform,omitempty"`
	Browser          string `json:"browser,omitempty"`
	Mobile           bool   `json:"mobile"`
	ScreenResolution string `json:"screen_resolution,omitempty"`
}

// Origin is where a session came from.
type Origin struct {
	IP       string `json:"ip,omitempty"`
	Country  string `json:"country,omitempty"`
	City     string `json:"city,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// Location is a resolved IP location.
type Location struct {
	Country  string
	City     string
	Timezone string
}

// Session defines a public type used by goGuard APIs.
//
// EndedAt is zero while the session is active.
type Session struct {
	ID                string     `json:"session_id"`
	UserID            string     `json:"user_id"`
	Device            DeviceInfo `json:"device"`
	Origin            Origin     `json:"origin"`
	CreatedAt         time.Time  `json:"created_at"`
	LastActivityAt    time.Time  `json:"last_activity_at"`
	EndedAt           time.Time  `json:"ended_at,omitzero"`
	Active            bool       `json:"active"`
	LoginMethod       string     `json:"login_method,omitempty"`
	TwoFactorVerified bool       `json:"two_factor_verified"`
}

// CreateSessionRequest is the input of Engine.CreateSession. Blank device
// fields are derived from UserAgent and blank origin fields from the
// configured GeoResolver. A blank IP or UserAgent is taken from the context.
type CreateSessionRequest struct {
	UserID            string
	Device            DeviceInfo
	Origin            Origin
	LoginMethod       string
	TwoFactorVerified bool
}

// EventDetails carries the free-form part of a security event.
type EventDetails struct {
	IP        string            `json:"ip,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Location  string            `json:"location,omitempty"`
	Context   map[string]string `json:"context,omitempty"`
}

// SecurityEvent defines a public type used by goGuard APIs.
//
// Events are immutable once recorded.
type SecurityEvent struct {
	ID        string       `json:"event_id"`
	UserID    string       `json:"user_id"`
	Type      EventType    `json:"type"`
	Severity  Severity     `json:"severity"`
	Details   EventDetails `json:"details"`
	Timestamp time.Time    `json:"timestamp"`
}

// SecurityEventInput is the input of Engine.RecordSecurityEvent. An empty
// Severity defaults per type; an empty IP or UserAgent is taken from the
// context.
type SecurityEventInput struct {
	UserID    string
	Type      EventType
	Severity  Severity
	IP        string
	UserAgent string
	Location  string
	Context   map[string]string
}

// EventFilter narrows ListSecurityEvents. Zero values mean no restriction.
type EventFilter struct {
	Since time.Time
	Types []EventType
	Limit int
}

// TwoFactorStatus is the read projection of a user's setup. Timestamps are
// zero when absent.
type TwoFactorStatus struct {
	Enabled        bool            `json:"enabled"`
	Pending        bool            `json:"pending"`
	Method         TwoFactorMethod `json:"method,omitempty"`
	SetupAt        time.Time       `json:"setup_at,omitzero"`
	LastUsedAt     time.Time       `json:"last_used_at,omitzero"`
	HasBackupCodes bool            `json:"has_backup_codes"`
}

// TwoFactorSetupResult is returned once by BeginTwoFactorSetup. The backup
// codes are not retrievable afterwards.
type TwoFactorSetupResult struct {
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioning_uri"`
	QRCode          []byte   `json:"qr_code,omitempty"`
	BackupCodes     []string `json:"backup_codes"`
}

// RiskAssessment defines a public type used by goGuard APIs.
type RiskAssessment struct {
	UserID       string    `json:"user_id"`
	IsSuspicious bool      `json:"is_suspicious"`
	Reasons      []string  `json:"reasons"`
	Level        RiskLevel `json:"risk_level"`
	AssessedAt   time.Time `json:"assessed_at"`
}

// MaintenanceReport counts what one RunMaintenance pass deleted.
type MaintenanceReport struct {
	SessionsPurged int `json:"sessions_purged"`
	EventsPurged   int `json:"events_purged"`
}

func timeFromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
