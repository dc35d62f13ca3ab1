package crypto

import (
	"crypto/rand"
	"fmt"
)

// SeedLength is the recommended master-seed length (256 bits).
const SeedLength = 32

// NonceLength is the ChaCha20-Poly1305 nonce length (96 bits).
const NonceLength = 12

// SaltLength is the recommended KDF salt length (256 bits).
const SaltLength = 32

// RandomBytes returns n cryptographically secure random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	read, err := rand.Read(b)
	if err != nil {
		return nil, newErr(EntropyExhaustion, "failed to read random bytes", err)
	}
	// Paranoid check: crypto/rand.Read is documented to always fill the
	// buffer or return an error, but we verify anyway.
	if read != n {
		return nil, newErr(EntropyExhaustion, fmt.Sprintf("short read: got %d, need %d", read, n), nil)
	}
	return b, nil
}

// GenerateSeed creates a new 256-bit master seed.
func GenerateSeed() ([]byte, error) {
	return RandomBytes(SeedLength)
}

// GenerateSalt creates a new KDF salt.
func GenerateSalt() ([]byte, error) {
	return RandomBytes(SaltLength)
}

// GenerateNonce creates a new AEAD nonce.
func GenerateNonce() ([]byte, error) {
	return RandomBytes(NonceLength)
}
