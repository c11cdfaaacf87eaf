// Package auth — API key verification.
//
// WHY BCRYPT?
// The daemon never stores the raw API key, only its bcrypt hash. bcrypt is
// deliberately slow, which makes brute-forcing a leaked hash expensive.
//
// bcrypt automatically:
//   - Generates a random salt (two keys hashed twice give different hashes)
//   - Embeds the salt in the output hash (no separate salt storage needed)
//   - Controls the work factor via "cost" (higher = slower = harder to crack)
//
// Hash format (the full output of bcrypt.GenerateFromPassword):
//
//	$2a$12$<22-char salt><31-char hash>
//	 ^   ^
//	 |   cost (12 rounds → 2^12 = 4096 iterations)
//	 version
//
// Generate a hash for API_KEY_HASH with:
//
//	go run ./cmd/shellboxd hash-key 'my-secret-key'
package auth

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// defaultCost is the bcrypt work factor.
//
// Cost 12 takes roughly ~250ms on a modern server. That's negligible for a
// token exchange that happens once per 15 minutes, and brutal for attackers.
const defaultCost = 12

// APIKey verifies candidate keys against a provisioned bcrypt hash.
type APIKey struct {
	hash []byte
}

// NewAPIKey creates an APIKey verifier from a stored bcrypt hash.
// The hash comes from the API_KEY_HASH environment variable; rejecting
// malformed values here means a typo fails at startup, not at first login.
func NewAPIKey(hash string) (*APIKey, error) {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return nil, errors.New("auth: API key hash is required")
	}
	if !strings.HasPrefix(hash, "$2") {
		return nil, errors.New("auth: API key hash is not a bcrypt hash")
	}
	return &APIKey{hash: []byte(hash)}, nil
}

// Verify checks whether a candidate key matches the provisioned hash.
//
// Returns nil if it matches, a non-nil error if it doesn't.
//
// TIMING SAFETY:
// bcrypt.CompareHashAndPassword uses a constant-time comparison internally,
// so this function is safe against timing attacks — an attacker can't tell
// from response time whether they got the first byte right.
func (k *APIKey) Verify(candidate string) error {
	err := bcrypt.CompareHashAndPassword(k.hash, []byte(candidate))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return fmt.Errorf("auth: invalid API key")
		}
		return fmt.Errorf("auth: comparing API key hash: %w", err)
	}
	return nil
}

// HashKey hashes a raw API key with bcrypt at the default cost.
// Used by the hash-key subcommand when provisioning a deployment.
//
// Returns an error if the key is too long (>72 bytes — a bcrypt limit;
// bcrypt silently truncates longer inputs, so we reject them explicitly).
func HashKey(plaintext string) (string, error) {
	return hashKeyWithCost(plaintext, defaultCost)
}

func hashKeyWithCost(plaintext string, cost int) (string, error) {
	if len(plaintext) > 72 {
		return "", fmt.Errorf("auth: API key must be 72 bytes or fewer")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing API key: %w", err)
	}

	return string(hashed), nil
}
