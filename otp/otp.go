// Package otp implements RFC 4226 HOTP and RFC 6238 TOTP codes, the secret
// and backup-code generators used by two-factor setup, and provisioning URIs
// for authenticator apps.
//
// Everything here is a pure function of its inputs and an injected random
// source, so it can be tested with fixed clocks and deterministic readers.
package otp

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Supported HMAC algorithms.
const (
	AlgorithmSHA1   = "SHA1"
	AlgorithmSHA256 = "SHA256"
	AlgorithmSHA512 = "SHA512"
)

var (
	// ErrInvalidSecret is returned when a secret is empty or not valid base32.
	ErrInvalidSecret = errors.New("otp: invalid secret")
	// ErrUnsupportedAlgorithm is returned for an algorithm outside SHA1/SHA256/SHA512.
	ErrUnsupportedAlgorithm = errors.New("otp: unsupported algorithm")
)

var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Options shapes generated codes.
type Options struct {
	// Period is the TOTP step length in seconds. Default 30.
	Period int
	// Digits is the code length. Default 6.
	Digits int
	// Algorithm is one of the Algorithm constants. Default SHA1.
	Algorithm string
}

// DefaultOptions returns the authenticator-app defaults: SHA1, 6 digits, 30s.
func DefaultOptions() Options {
	return Options{Period: 30, Digits: 6, Algorithm: AlgorithmSHA1}
}

func (o Options) withDefaults() Options {
	if o.Period <= 0 {
		o.Period = 30
	}
	if o.Digits <= 0 {
		o.Digits = 6
	}
	if o.Algorithm == "" {
		o.Algorithm = AlgorithmSHA1
	}
	return o
}

// Counter returns the TOTP time step containing now.
func (o Options) Counter(now time.Time) int64 {
	o = o.withDefaults()
	return now.Unix() / int64(o.Period)
}

// DecodeSecret decodes a base32 secret. Case, embedded spaces and trailing
// padding are ignored.
func DecodeSecret(secret string) ([]byte, error) {
	s := strings.ToUpper(strings.ReplaceAll(secret, " ", ""))
	s = strings.TrimRight(s, "=")
	if s == "" {
		return nil, ErrInvalidSecret
	}
	key, err := secretEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	return key, nil
}

// EncodeSecret is the inverse of DecodeSecret.
func EncodeSecret(key []byte) string {
	return secretEncoding.EncodeToString(key)
}

// ComputeCode returns the HOTP code for counter under a base32 secret.
func ComputeCode(secret string, counter int64, opts Options) (string, error) {
	key, err := DecodeSecret(secret)
	if err != nil {
		return "", err
	}
	opts = opts.withDefaults()
	return hotpCode(key, counter, opts.Digits, opts.Algorithm)
}

func hotpCode(key []byte, counter int64, digits int, algorithm string) (string, error) {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	hf, err := hmacFunc(algorithm)
	if err != nil {
		return "", err
	}
	mac := hmac.New(hf, key)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int64(sum[offset])&0x7f)<<24 |
		int64(sum[offset+1])<<16 |
		int64(sum[offset+2])<<8 |
		int64(sum[offset+3])

	mod := int64(1)
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, bin%mod), nil
}

func hmacFunc(algorithm string) (func() hash.Hash, error) {
	switch strings.ToUpper(algorithm) {
	case "", AlgorithmSHA1:
		return sha1.New, nil
	case AlgorithmSHA256:
		return sha256.New, nil
	case AlgorithmSHA512:
		return sha512.New, nil
	default:
		return nil, ErrUnsupportedAlgorithm
	}
}

// ValidAlgorithm reports whether algorithm is supported.
func ValidAlgorithm(algorithm string) bool {
	_, err := hmacFunc(algorithm)
	return err == nil
}

// Verifier checks TOTP codes against a window of time steps around now.
type Verifier struct {
	Options
	// Skew is the number of steps accepted on either side of the current one.
	Skew int
}

// NewVerifier returns a Verifier. A negative skew is treated as zero.
func NewVerifier(opts Options, skew int) Verifier {
	if skew < 0 {
		skew = 0
	}
	return Verifier{Options: opts.withDefaults(), Skew: skew}
}

// Verify reports whether code is valid for secret at now.
func (v Verifier) Verify(secret, code string, now time.Time) (bool, error) {
	ok, _, err := v.VerifyCounter(secret, code, now)
	return ok, err
}

// VerifyCounter is Verify that also returns the matched time step. Steps are
// tried oldest first and the first match wins. Codes of the wrong length or
// with non-digit characters are rejected before any HMAC work.
func (v Verifier) VerifyCounter(secret, code string, now time.Time) (bool, int64, error) {
	opts := v.Options.withDefaults()

	trimmed := strings.TrimSpace(code)
	if len(trimmed) != opts.Digits || !isNumeric(trimmed) {
		return false, 0, nil
	}

	key, err := DecodeSecret(secret)
	if err != nil {
		return false, 0, err
	}

	base := opts.Counter(now)
	for step := -v.Skew; step <= v.Skew; step++ {
		counter := base + int64(step)
		if counter < 0 {
			continue
		}
		generated, err := hotpCode(key, counter, opts.Digits, opts.Algorithm)
		if err != nil {
			return false, 0, err
		}
		if subtle.ConstantTimeCompare([]byte(generated), []byte(trimmed)) == 1 {
			return true, counter, nil
		}
	}
	return false, 0, nil
}

func isNumeric(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ProvisionURI builds the otpauth:// URI an authenticator app scans.
func ProvisionURI(issuer, account, secret string, opts Options) string {
	opts = opts.withDefaults()
	label := url.PathEscape(issuer + ":" + account)

	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", issuer)
	v.Set("algorithm", strings.ToUpper(opts.Algorithm))
	v.Set("digits", strconv.Itoa(opts.Digits))
	v.Set("period", strconv.Itoa(opts.Period))

	return "otpauth://totp/" + label + "?" + v.Encode()
}
