package internal

import (
	"testing"
)

// FuzzParseUserAgent feeds arbitrary header values to the parser.
// Goal: no panics on hostile input.
func FuzzParseUserAgent(f *testing.F) {
	f.Add("")
	f.Add("Mozilla/5.0")
	f.Add("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	f.Add("((((;;;;))))")
	f.Add("curl/8.4.0")

	f.Fuzz(func(t *testing.T, ua string) {
		_ = ParseUserAgent(ua)
	})
}

// FuzzParseSessionID checks that parsing never panics and that accepted ids
// round-trip.
func FuzzParseSessionID(f *testing.F) {
	f.Add("")
	f.Add("not-a-uuid")
	f.Add("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

	f.Fuzz(func(t *testing.T, s string) {
		id, err := ParseSessionID(s)
		if err != nil {
			return
		}
		again, err := ParseSessionID(id)
		if err != nil || again != id {
			t.Fatalf("canonical id %q did not round-trip", id)
		}
	})
}
