package otp

import (
	"bytes"
	"regexp"
	"testing"
)

var (
	secretPattern     = regexp.MustCompile(`^[A-Z2-7]{32}$`)
	backupCodePattern = regexp.MustCompile(`^[A-Z0-9]{8}$`)
)

func TestGenerateSecretShape(t *testing.T) {
	g := NewGenerator(nil)
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		s, err := g.GenerateSecret()
		if err != nil {
			t.Fatalf("GenerateSecret failed: %v", err)
		}
		if !secretPattern.MatchString(s) {
			t.Fatalf("unexpected secret %q", s)
		}
		if _, err := DecodeSecret(s); err != nil {
			t.Fatalf("secret not decodable: %v", err)
		}
		seen[s] = struct{}{}
	}
	if len(seen) != 50 {
		t.Fatalf("expected 50 distinct secrets, got %d", len(seen))
	}
}

func TestGenerateSecretMasksBytes(t *testing.T) {
	raw := make([]byte, SecretLength)
	for i := range raw {
		raw[i] = byte(i * 8) // low five bits cycle 0,8,16,24
	}
	s, err := NewGenerator(bytes.NewReader(raw)).GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret failed: %v", err)
	}
	if s[:4] != "AIQY" {
		t.Fatalf("expected AIQY prefix, got %s", s[:4])
	}
}

func TestGenerateBackupCodesShape(t *testing.T) {
	codes, err := NewGenerator(nil).GenerateBackupCodes()
	if err != nil {
		t.Fatalf("GenerateBackupCodes failed: %v", err)
	}
	if len(codes) != DefaultBackupCodeCount {
		t.Fatalf("expected %d codes, got %d", DefaultBackupCodeCount, len(codes))
	}
	seen := make(map[string]struct{})
	for _, c := range codes {
		if !backupCodePattern.MatchString(c) {
			t.Fatalf("unexpected backup code %q", c)
		}
		seen[c] = struct{}{}
	}
	if len(seen) != len(codes) {
		t.Fatal("backup codes within a batch must be distinct")
	}
}

func TestBackupCodeRejectsBiasedBytes(t *testing.T) {
	// 252..255 are rejected, 0 maps to 'A', 35 to '9', 36 wraps to 'A'.
	src := []byte{255, 252, 0, 35, 36, 1, 2, 3, 4, 5}
	g := NewGenerator(bytes.NewReader(src))
	g.BackupCodeCount = 1
	codes, err := g.GenerateBackupCodes()
	if err != nil {
		t.Fatalf("GenerateBackupCodes failed: %v", err)
	}
	if codes[0] != "A9ABCDEF" {
		t.Fatalf("expected A9ABCDEF, got %s", codes[0])
	}
}

func TestBackupCodeCollisionRedrawn(t *testing.T) {
	src := append(bytes.Repeat([]byte{0}, 16), bytes.Repeat([]byte{1}, 8)...)
	g := NewGenerator(bytes.NewReader(src))
	g.BackupCodeCount = 2
	codes, err := g.GenerateBackupCodes()
	if err != nil {
		t.Fatalf("GenerateBackupCodes failed: %v", err)
	}
	if codes[0] != "AAAAAAAA" || codes[1] != "BBBBBBBB" {
		t.Fatalf("expected duplicate redrawn, got %v", codes)
	}
}

func TestGeneratorShortRead(t *testing.T) {
	g := NewGenerator(bytes.NewReader([]byte{1, 2, 3}))
	if _, err := g.GenerateSecret(); err == nil {
		t.Fatal("expected error on exhausted random source")
	}
}

func TestGenerateBackupCodesRejectsBadShape(t *testing.T) {
	g := NewGenerator(nil)
	g.BackupCodeLength = 0
	if _, err := g.GenerateBackupCodes(); err == nil {
		t.Fatal("expected error for zero length")
	}
}

func TestCanonicalizeBackupCode(t *testing.T) {
	cases := map[string]string{
		"abcd-efgh":  "ABCDEFGH",
		" AB CD EF ": "ABCDEF",
		"a-b c-d":    "ABCD",
		"ABCDEFGH":   "ABCDEFGH",
		"--  --":     "",
	}
	for in, want := range cases {
		if got := CanonicalizeBackupCode(in); got != want {
			t.Fatalf("CanonicalizeBackupCode(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHashBackupCodeSaltedByUser(t *testing.T) {
	h1 := HashBackupCode("user-1", "ABCDEFGH")
	h2 := HashBackupCode("user-2", "ABCDEFGH")
	if h1 == h2 {
		t.Fatal("expected different hashes for different users")
	}
	if len(h1) != 64 {
		t.Fatalf("expected hex sha256, got %d chars", len(h1))
	}
	if h1 == "ABCDEFGH" {
		t.Fatal("hash must not equal raw code")
	}
}
