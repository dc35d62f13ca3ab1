package crypto

import (
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// KdfParams tunes the Argon2id password-based key derivation.
type KdfParams struct {
	MemoryCostKiB uint32 // memory cost, KiB
	TimeCost      uint32 // iterations
	Parallelism   uint8
	OutputLength  uint32 // bytes
}

// DefaultKdfParams are reasonable interactive-use defaults (64 MiB, 3 passes).
func DefaultKdfParams() KdfParams {
	return KdfParams{
		MemoryCostKiB: 64 * 1024,
		TimeCost:      3,
		Parallelism:   4,
		OutputLength:  32,
	}
}

// RecommendedKDFParams picks memory/time cost from a caller-supplied memory
// budget in bytes, the way a legacy ROMIX wallet's ad-hoc cost knobs would
// be translated into a modern, memory-hard KDF. It never recommends less
// than the default floor of 64 MiB / 3 passes.
func RecommendedKDFParams(maxMemoryBytes uint64) KdfParams {
	memKiB := uint32(maxMemoryBytes / 1024)
	if memKiB < 64*1024 {
		memKiB = 64 * 1024
	}
	return KdfParams{
		MemoryCostKiB: memKiB,
		TimeCost:      3,
		Parallelism:   4,
		OutputLength:  32,
	}
}

// DeriveKey runs Argon2id over (password, salt) with the given params,
// returning a key of params.OutputLength bytes. The same (password, salt,
// params) always yields the same key.
func DeriveKey(password, salt []byte, params KdfParams) ([]byte, error) {
	if len(salt) < 16 {
		return nil, newErr(InvalidParameters, fmt.Sprintf("salt too short: %d bytes, need >= 16", len(salt)), nil)
	}
	if params.OutputLength < 1 || params.OutputLength > 128 {
		return nil, newErr(InvalidParameters, fmt.Sprintf("output length %d out of range [1, 128]", params.OutputLength), nil)
	}
	if params.TimeCost == 0 {
		params.TimeCost = 1
	}
	if params.Parallelism == 0 {
		params.Parallelism = 1
	}

	key := argon2.IDKey(password, salt, params.TimeCost, params.MemoryCostKiB, params.Parallelism, params.OutputLength)
	return key, nil
}

// VerifyPassword re-derives a key from password and salt and compares it to
// expected in constant time.
func VerifyPassword(password, salt, expected []byte, params KdfParams) (bool, error) {
	derived, err := DeriveKey(password, salt, params)
	if err != nil {
		return false, err
	}
	if len(derived) != len(expected) {
		return false, nil
	}
	return subtle.ConstantTimeCompare(derived, expected) == 1, nil
}
