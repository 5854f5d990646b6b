package internaldefs

import (
	goGuard "github.com/MrEthical07/goGuard"
)

// CounterDef defines a public type used by goGuard APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   goGuard.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by goGuard APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   goGuard.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the security engine.
var CounterDefs = []CounterDef{
	{ID: goGuard.MetricTwoFactorSetupStarted, Name: "goguard_two_factor_setup_started_total", Help: "Two-factor setups started."},
	{ID: goGuard.MetricTwoFactorEnabled, Name: "goguard_two_factor_enabled_total", Help: "Two-factor setups activated."},
	{ID: goGuard.MetricTwoFactorEnableFailed, Name: "goguard_two_factor_enable_failed_total", Help: "Activation attempts with a wrong code."},
	{ID: goGuard.MetricTwoFactorDisabled, Name: "goguard_two_factor_disabled_total", Help: "Two-factor setups removed."},
	{ID: goGuard.MetricTOTPSuccess, Name: "goguard_totp_success_total", Help: "Successful TOTP verifications."},
	{ID: goGuard.MetricTOTPFailure, Name: "goguard_totp_failure_total", Help: "Failed TOTP verifications."},
	{ID: goGuard.MetricTOTPReplayRejected, Name: "goguard_totp_replay_rejected_total", Help: "TOTP codes rejected as replays."},
	{ID: goGuard.MetricBackupCodeUsed, Name: "goguard_backup_code_used_total", Help: "Backup codes consumed."},
	{ID: goGuard.MetricBackupCodeFailed, Name: "goguard_backup_code_failed_total", Help: "Failed backup-code verifications."},
	{ID: goGuard.MetricBackupCodeRegenerated, Name: "goguard_backup_code_regenerated_total", Help: "Backup-code set regenerations."},
	{ID: goGuard.MetricBackupCodeConflict, Name: "goguard_backup_code_conflict_total", Help: "Backup-code consumptions retried after a concurrent write."},
	{ID: goGuard.MetricTwoFactorRateLimited, Name: "goguard_two_factor_rate_limited_total", Help: "Two-factor attempts refused by the limiter."},
	{ID: goGuard.MetricSessionCreated, Name: "goguard_session_created_total", Help: "Created sessions."},
	{ID: goGuard.MetricSessionTerminated, Name: "goguard_session_terminated_total", Help: "Terminated sessions."},
	{ID: goGuard.MetricSessionHeartbeatMissed, Name: "goguard_session_heartbeat_missed_total", Help: "Heartbeats for unknown or ended sessions."},
	{ID: goGuard.MetricSessionsPurged, Name: "goguard_sessions_purged_total", Help: "Retention purges that deleted sessions."},
	{ID: goGuard.MetricEventRecorded, Name: "goguard_security_event_recorded_total", Help: "Security events persisted."},
	{ID: goGuard.MetricEventWriteFailed, Name: "goguard_security_event_write_failed_total", Help: "Security events that could not be persisted."},
	{ID: goGuard.MetricEventsPurged, Name: "goguard_security_events_purged_total", Help: "Retention purges that deleted events."},
	{ID: goGuard.MetricRiskAssessed, Name: "goguard_risk_assessed_total", Help: "Risk assessments performed."},
	{ID: goGuard.MetricRiskSuspicious, Name: "goguard_risk_suspicious_total", Help: "Risk assessments flagged suspicious."},
	{ID: goGuard.MetricPersistenceFailure, Name: "goguard_persistence_failure_total", Help: "Operations failed by the persistence backend."},
}

// HistogramDefs is an exported constant or variable used by the security engine.
var HistogramDefs = []HistogramDef{
	{ID: goGuard.MetricVerifyLatency, Name: "goguard_two_factor_verify_latency_seconds", Help: "Two-factor login verification latency."},
}

// HistogramUpperBounds are the seconds bounds of the engine's latency
// buckets. The last bucket is +Inf and has no entry here.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// NormalizeBuckets copies a snapshot histogram into a fixed array, padding
// short input with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
