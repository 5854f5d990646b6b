package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"strings"
)

const (
	secretAlphabet     = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"
	backupCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// SecretLength is the length of a generated base32 secret (160 bits).
	SecretLength = 32

	DefaultBackupCodeCount  = 10
	DefaultBackupCodeLength = 8
)

// Largest multiple of len(backupCodeAlphabet) that fits in a byte. Draws at or
// above it are rejected so every character is equally likely.
const backupCodeCutoff = 256 - 256%len(backupCodeAlphabet)

// Generator draws secrets and backup codes from a random source.
type Generator struct {
	rand io.Reader

	BackupCodeCount  int
	BackupCodeLength int
}

// NewGenerator returns a Generator over r, or crypto/rand when r is nil.
func NewGenerator(r io.Reader) *Generator {
	if r == nil {
		r = rand.Reader
	}
	return &Generator{
		rand:             r,
		BackupCodeCount:  DefaultBackupCodeCount,
		BackupCodeLength: DefaultBackupCodeLength,
	}
}

// GenerateSecret returns SecretLength characters from the base32 alphabet.
// One byte masked to five bits per character; 32 divides 256 so there is no bias.
func (g *Generator) GenerateSecret() (string, error) {
	buf := make([]byte, SecretLength)
	if _, err := io.ReadFull(g.rand, buf); err != nil {
		return "", err
	}
	out := make([]byte, SecretLength)
	for i, b := range buf {
		out[i] = secretAlphabet[b&31]
	}
	return string(out), nil
}

// GenerateBackupCodes returns BackupCodeCount distinct codes of
// BackupCodeLength characters from A-Z0-9.
func (g *Generator) GenerateBackupCodes() ([]string, error) {
	count, length := g.BackupCodeCount, g.BackupCodeLength
	if count <= 0 || length <= 0 {
		return nil, errors.New("otp: backup code count and length must be positive")
	}

	seen := make(map[string]struct{}, count)
	codes := make([]string, 0, count)
	for len(codes) < count {
		code, err := g.backupCode(length)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

func (g *Generator) backupCode(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)
	var one [1]byte
	for b.Len() < length {
		if _, err := io.ReadFull(g.rand, one[:]); err != nil {
			return "", err
		}
		if int(one[0]) >= backupCodeCutoff {
			continue
		}
		b.WriteByte(backupCodeAlphabet[int(one[0])%len(backupCodeAlphabet)])
	}
	return b.String(), nil
}

// CanonicalizeBackupCode upper-cases code and strips dashes and spaces.
func CanonicalizeBackupCode(code string) string {
	s := strings.ToUpper(strings.TrimSpace(code))
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}

// HashBackupCode returns the stored form of a canonical backup code: hex
// SHA-256 over userID, a zero byte, and the code.
func HashBackupCode(userID, canonical string) string {
	data := make([]byte, 0, len(userID)+1+len(canonical))
	data = append(data, userID...)
	data = append(data, 0)
	data = append(data, canonical...)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
