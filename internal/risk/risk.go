// Package risk evaluates the suspicious-activity rules over a user's recent
// sessions and failed logins. Evaluation is a pure function so the rules can
// be tested without a store.
package risk

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/MrEthical07/goGuard/internal"
)

// Level is an ordinal risk classification.
type Level int

const (
	Low Level = iota
	Medium
	High
	Critical
)

func (l Level) String() string {
	switch l {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	case Critical:
		return "critical"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Session is the slice of a session record the rules look at.
type Session struct {
	Country           string
	Platform          string
	Browser           string
	CreatedAt         time.Time
	TwoFactorVerified bool
}

// Thresholds tune the rules. Each count rule fires when the observed value
// is strictly greater than its threshold.
type Thresholds struct {
	MaxCountries    int
	MaxDevices      int
	RapidInterval   time.Duration
	MaxFailedLogins int
}

// DefaultThresholds returns 2 countries, 3 devices, 60s, 5 failed logins.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxCountries:    2,
		MaxDevices:      3,
		RapidInterval:   60 * time.Second,
		MaxFailedLogins: 5,
	}
}

// Result is the outcome of one evaluation.
type Result struct {
	Level   Level
	Reasons []string
}

// Suspicious reports whether any rule fired.
func (r Result) Suspicious() bool { return len(r.Reasons) > 0 }

// Evaluate applies the rules in order. The level only ever rises during an
// evaluation; the failed-login rule forces Critical.
func Evaluate(sessions []Session, failedLogins int, th Thresholds) Result {
	res := Result{Level: Low}
	raise := func(to Level) {
		if to > res.Level {
			res.Level = to
		}
	}

	countries := make(map[string]struct{})
	devices := make(map[string]struct{})
	for _, s := range sessions {
		if c := strings.TrimSpace(s.Country); c != "" {
			countries[strings.ToUpper(c)] = struct{}{}
		}
		devices[internal.DeviceFingerprint(s.Platform, s.Browser)] = struct{}{}
	}

	if len(countries) > th.MaxCountries {
		res.Reasons = append(res.Reasons, fmt.Sprintf("logins from multiple countries (%d)", len(countries)))
		raise(High)
	}
	if len(devices) > th.MaxDevices {
		res.Reasons = append(res.Reasons, fmt.Sprintf("logins from many different devices (%d)", len(devices)))
		raise(Medium)
	}
	if rapidLogins(sessions, th.RapidInterval) {
		res.Reasons = append(res.Reasons, fmt.Sprintf("rapid successive logins (within %s)", th.RapidInterval))
		raise(High)
	}
	if failedLogins > th.MaxFailedLogins {
		res.Reasons = append(res.Reasons, fmt.Sprintf("%d failed login attempts in the last hour", failedLogins))
		raise(Critical)
	}
	if len(sessions) > 1 && anyWithoutTwoFactor(sessions) {
		res.Reasons = append(res.Reasons, "multiple sessions without two-factor verification")
		raise(Medium)
	}
	return res
}

// rapidLogins reports whether two chronologically adjacent creation times are
// closer than interval.
func rapidLogins(sessions []Session, interval time.Duration) bool {
	if len(sessions) < 2 || interval <= 0 {
		return false
	}
	times := make([]time.Time, len(sessions))
	for i, s := range sessions {
		times[i] = s.CreatedAt
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	for i := 1; i < len(times); i++ {
		if times[i].Sub(times[i-1]) < interval {
			return true
		}
	}
	return false
}

func anyWithoutTwoFactor(sessions []Session) bool {
	for _, s := range sessions {
		if !s.TwoFactorVerified {
			return true
		}
	}
	return false
}
