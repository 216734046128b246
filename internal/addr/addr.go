// Package addr validates and classifies Solana addresses.
package addr

import (
	"errors"
	"fmt"
	"strings"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// ErrInvalidAddress is returned when a string is not a valid Solana address.
var ErrInvalidAddress = errors.New("invalid address")

const pubkeyLen = 32

// Validate checks that s is a base58-encoded 32-byte public key.
// It returns the decoded bytes so callers can avoid decoding twice.
func Validate(s string) ([]byte, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || trimmed != s {
		return nil, fmt.Errorf("%w: empty or padded", ErrInvalidAddress)
	}

	decoded, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(decoded) != pubkeyLen {
		return nil, fmt.Errorf("%w: decoded length %d", ErrInvalidAddress, len(decoded))
	}
	return decoded, nil
}

// IsValid reports whether s is a well-formed Solana address.
func IsValid(s string) bool {
	_, err := Validate(s)
	return err == nil
}

// IsOnCurve reports whether the address lies on the ed25519 curve.
// Wallet keys are on-curve; program derived addresses are not.
// Returns false for malformed input.
func IsOnCurve(s string) bool {
	decoded, err := Validate(s)
	if err != nil {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(decoded)
	return err == nil
}
