// Package totp derives time-based one-time codes (RFC 6238) from a base32
// seed: SHA-1, six digits, thirty second steps.
package totp

import (
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Period is the length of one time step.
const Period = 30 * time.Second

var opts = totp.ValidateOpts{
	Period:    uint(Period / time.Second),
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

func normalize(seed string) string {
	return strings.ReplaceAll(strings.TrimSpace(seed), " ", "")
}

// GenerateCode returns the code for seed at now. ok is false when the seed is
// empty or not valid base32, which callers treat as "TOTP not configured".
// Lower case letters and missing padding are accepted.
func GenerateCode(seed string, now time.Time) (code string, ok bool) {
	seed = normalize(seed)
	if seed == "" {
		return "", false
	}
	code, err := totp.GenerateCodeCustom(seed, now, opts)
	if err != nil {
		return "", false
	}
	return code, true
}

// Valid reports whether seed can produce codes.
func Valid(seed string) bool {
	_, ok := GenerateCode(seed, time.Unix(0, 0))
	return ok
}

// Remaining returns how long the code generated at now stays current.
func Remaining(now time.Time) time.Duration {
	step := int64(Period / time.Second)
	elapsed := (now.Unix()%step + step) % step
	return time.Duration(step-elapsed) * time.Second
}
