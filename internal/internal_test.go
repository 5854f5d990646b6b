package internal

import (
	"bytes"
	"sort"
	"strings"
	"testing"
	"time"
)

func TestNewSessionIDDeterministicReader(t *testing.T) {
	a, err := NewSessionID(bytes.NewReader(bytes.Repeat([]byte{7}, 16)))
	if err != nil {
		t.Fatalf("NewSessionID failed: %v", err)
	}
	b, err := NewSessionID(bytes.NewReader(bytes.Repeat([]byte{7}, 16)))
	if err != nil {
		t.Fatalf("NewSessionID failed: %v", err)
	}
	if a != b {
		t.Fatalf("expected same id from same entropy, got %s and %s", a, b)
	}
	if a[14] != '4' {
		t.Fatalf("expected version 4 uuid, got %s", a)
	}
	if _, err := ParseSessionID(a); err != nil {
		t.Fatalf("generated id did not parse: %v", err)
	}
}

func TestNewSessionIDUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id, err := NewSessionID(nil)
		if err != nil {
			t.Fatalf("NewSessionID failed: %v", err)
		}
		seen[id] = struct{}{}
	}
	if len(seen) != 100 {
		t.Fatalf("expected 100 unique ids, got %d", len(seen))
	}
}

func TestEventIDsMonotonicWithinMillisecond(t *testing.T) {
	g := NewEventIDs(nil)
	now := time.UnixMilli(1700000000000)
	ids := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		id, err := g.New(now)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		ids = append(ids, id)
	}
	if !sort.StringsAreSorted(ids) {
		t.Fatalf("expected monotonically increasing ids, got %v", ids)
	}

	later, _ := g.New(now.Add(time.Second))
	if later <= ids[len(ids)-1] {
		t.Fatal("expected later timestamp to sort after earlier ids")
	}
}

func TestParseUserAgent(t *testing.T) {
	desktop := ParseUserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	if desktop.Browser != "Chrome" {
		t.Fatalf("expected Chrome, got %q", desktop.Browser)
	}
	if !strings.Contains(desktop.Platform, "Windows") {
		t.Fatalf("expected Windows platform, got %q", desktop.Platform)
	}
	if desktop.Mobile {
		t.Fatal("desktop UA reported as mobile")
	}

	phone := ParseUserAgent("Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1")
	if !phone.Mobile {
		t.Fatal("expected iPhone UA to be mobile")
	}
	if phone.Browser != "Safari" {
		t.Fatalf("expected Safari, got %q", phone.Browser)
	}

	if got := ParseUserAgent("   "); got != (UserAgentInfo{}) {
		t.Fatalf("expected empty info for blank UA, got %+v", got)
	}
}

func TestDeviceFingerprintNormalizes(t *testing.T) {
	if DeviceFingerprint(" Windows", "Chrome ") != DeviceFingerprint("windows", "CHROME") {
		t.Fatal("fingerprint should ignore case and surrounding space")
	}
	if DeviceFingerprint("a", "bc") == DeviceFingerprint("ab", "c") {
		t.Fatal("fingerprint parts must be separated")
	}
}
