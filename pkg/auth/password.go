package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Stored password format is always "salt:hash" with both halves hex-encoded.
// The scheme is recoverable from the salt width: the legacy sha256 scheme
// uses an 8-byte salt (16 hex chars), argon2id a 16-byte salt (32 hex chars).
// Verification dispatches on that width, so databases written under either
// scheme keep working after a config change.

// Scheme selects the password hashing algorithm for newly stored hashes.
type Scheme string

const (
	// SchemeSHA256 is the original format: hex(sha256(salt || password)).
	SchemeSHA256 Scheme = "sha256"
	// SchemeArgon2id is the memory-hard upgrade.
	SchemeArgon2id Scheme = "argon2id"
)

const (
	sha256SaltLen   = 8
	argon2SaltLen   = 16
	argon2Time      = 1
	argon2MemoryKiB = 64 * 1024
	argon2Threads   = 4
	argon2KeyLen    = 32
)

// HashPassword hashes a password under the given scheme.
func HashPassword(password string, scheme Scheme) (string, error) {
	switch scheme {
	case SchemeSHA256:
		salt := make([]byte, sha256SaltLen)
		if _, err := rand.Read(salt); err != nil {
			return "", fmt.Errorf("failed to generate salt: %w", err)
		}
		saltHex := hex.EncodeToString(salt)
		return saltHex + ":" + sha256Hex(saltHex+password), nil
	case SchemeArgon2id:
		salt := make([]byte, argon2SaltLen)
		if _, err := rand.Read(salt); err != nil {
			return "", fmt.Errorf("failed to generate salt: %w", err)
		}
		key := argon2.IDKey([]byte(password), salt, argon2Time, argon2MemoryKiB, argon2Threads, argon2KeyLen)
		return hex.EncodeToString(salt) + ":" + hex.EncodeToString(key), nil
	default:
		return "", fmt.Errorf("unknown password scheme %q", scheme)
	}
}

// VerifyPassword checks a password against a stored "salt:hash" value in
// constant time.
func VerifyPassword(password, stored string) bool {
	saltHex, wantHex, ok := strings.Cut(stored, ":")
	if !ok {
		return false
	}

	var gotHex string
	switch len(saltHex) {
	case sha256SaltLen * 2:
		gotHex = sha256Hex(saltHex + password)
	case argon2SaltLen * 2:
		salt, err := hex.DecodeString(saltHex)
		if err != nil {
			return false
		}
		key := argon2.IDKey([]byte(password), salt, argon2Time, argon2MemoryKiB, argon2Threads, argon2KeyLen)
		gotHex = hex.EncodeToString(key)
	default:
		return false
	}

	return subtle.ConstantTimeCompare([]byte(gotHex), []byte(wantHex)) == 1
}

func sha256Hex(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
