package risk

import (
	"strings"
	"testing"
	"time"
)

var base = time.Unix(1700000000, 0)

func spaced(n int, gap time.Duration, mk func(i int) Session) []Session {
	out := make([]Session, n)
	for i := range out {
		out[i] = mk(i)
		out[i].CreatedAt = base.Add(time.Duration(i) * gap)
	}
	return out
}

func TestEvaluateCleanIsLow(t *testing.T) {
	sessions := spaced(2, time.Hour, func(int) Session {
		return Session{Country: "US", Platform: "Windows", Browser: "Chrome", TwoFactorVerified: true}
	})
	res := Evaluate(sessions, 0, DefaultThresholds())
	if res.Suspicious() || res.Level != Low {
		t.Fatalf("expected clean low result, got %+v", res)
	}
}

func TestEvaluateThreeCountriesIsHigh(t *testing.T) {
	countries := []string{"US", "DE", "BR"}
	sessions := spaced(3, time.Hour, func(i int) Session {
		return Session{Country: countries[i], Platform: "Windows", Browser: "Chrome", TwoFactorVerified: true}
	})
	res := Evaluate(sessions, 0, DefaultThresholds())
	if !res.Suspicious() || res.Level != High {
		t.Fatalf("expected high suspicious, got %+v", res)
	}
	if !strings.Contains(res.Reasons[0], "countries") {
		t.Fatalf("expected countries reason, got %v", res.Reasons)
	}
}

func TestEvaluateTwoCountriesNotFlagged(t *testing.T) {
	countries := []string{"US", "DE", ""}
	sessions := spaced(3, time.Hour, func(i int) Session {
		return Session{Country: countries[i], Platform: "Windows", Browser: "Chrome", TwoFactorVerified: true}
	})
	if res := Evaluate(sessions, 0, DefaultThresholds()); res.Suspicious() {
		t.Fatalf("empty country must not count, got %+v", res)
	}
}

func TestEvaluateFailedLoginsForcesCritical(t *testing.T) {
	res := Evaluate(nil, 6, DefaultThresholds())
	if res.Level != Critical || !res.Suspicious() {
		t.Fatalf("expected critical, got %+v", res)
	}
	if res := Evaluate(nil, 5, DefaultThresholds()); res.Suspicious() {
		t.Fatalf("five failures must not fire, got %+v", res)
	}
}

func TestEvaluateManyDevicesIsMedium(t *testing.T) {
	browsers := []string{"Chrome", "Firefox", "Safari", "Edge"}
	sessions := spaced(4, time.Hour, func(i int) Session {
		return Session{Country: "US", Platform: "Windows", Browser: browsers[i], TwoFactorVerified: true}
	})
	res := Evaluate(sessions, 0, DefaultThresholds())
	if res.Level != Medium || len(res.Reasons) != 1 {
		t.Fatalf("expected single medium reason, got %+v", res)
	}
}

func TestEvaluateDevicesDoNotDowngradeHigh(t *testing.T) {
	countries := []string{"US", "DE", "BR", "FR"}
	browsers := []string{"Chrome", "Firefox", "Safari", "Edge"}
	sessions := spaced(4, time.Hour, func(i int) Session {
		return Session{Country: countries[i], Platform: "Windows", Browser: browsers[i], TwoFactorVerified: true}
	})
	res := Evaluate(sessions, 0, DefaultThresholds())
	if res.Level != High || len(res.Reasons) != 2 {
		t.Fatalf("expected high with two reasons, got %+v", res)
	}
}

func TestEvaluateRapidLogins(t *testing.T) {
	sessions := spaced(2, 59*time.Second, func(int) Session {
		return Session{Country: "US", Platform: "Windows", Browser: "Chrome", TwoFactorVerified: true}
	})
	if res := Evaluate(sessions, 0, DefaultThresholds()); res.Level != High {
		t.Fatalf("expected high for rapid logins, got %+v", res)
	}

	sessions = spaced(2, 61*time.Second, func(int) Session {
		return Session{Country: "US", Platform: "Windows", Browser: "Chrome", TwoFactorVerified: true}
	})
	if res := Evaluate(sessions, 0, DefaultThresholds()); res.Suspicious() {
		t.Fatalf("expected no flag at 61s spacing, got %+v", res)
	}
}

func TestEvaluateRapidLoginsUnsortedInput(t *testing.T) {
	sessions := []Session{
		{CreatedAt: base.Add(10 * time.Minute), TwoFactorVerified: true},
		{CreatedAt: base, TwoFactorVerified: true},
		{CreatedAt: base.Add(10*time.Minute + 30*time.Second), TwoFactorVerified: true},
	}
	if !rapidLogins(sessions, time.Minute) {
		t.Fatal("expected adjacent pair in chronological order to be detected")
	}
}

func TestEvaluateMissingTwoFactorMedium(t *testing.T) {
	sessions := spaced(2, time.Hour, func(i int) Session {
		return Session{Country: "US", Platform: "Windows", Browser: "Chrome", TwoFactorVerified: i == 0}
	})
	res := Evaluate(sessions, 0, DefaultThresholds())
	if res.Level != Medium || len(res.Reasons) != 1 {
		t.Fatalf("expected medium for missing 2fa, got %+v", res)
	}

	single := spaced(1, 0, func(int) Session { return Session{Country: "US"} })
	if res := Evaluate(single, 0, DefaultThresholds()); res.Suspicious() {
		t.Fatalf("single session must not fire the 2fa rule, got %+v", res)
	}
}

func TestEvaluateCriticalStaysCritical(t *testing.T) {
	sessions := spaced(2, time.Hour, func(int) Session { return Session{Country: "US"} })
	res := Evaluate(sessions, 10, DefaultThresholds())
	if res.Level != Critical || len(res.Reasons) != 2 {
		t.Fatalf("expected critical with two reasons, got %+v", res)
	}
}

func TestLevelString(t *testing.T) {
	if Low.String() != "low" || Critical.String() != "critical" {
		t.Fatal("unexpected level names")
	}
}
