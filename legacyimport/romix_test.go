package legacyimport

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRomixDeriveKeyDeterministic(t *testing.T) {
	salt := make([]byte, 32)
	for i := range salt {
		salt[i] = byte(i)
	}

	k1 := romixDeriveKey([]byte("hunter2"), salt, 4096, 4)
	k2 := romixDeriveKey([]byte("hunter2"), salt, 4096, 4)
	require.Equal(t, k1, k2)
	require.Len(t, k1, 32)

	k3 := romixDeriveKey([]byte("hunter3"), salt, 4096, 4)
	require.NotEqual(t, k1, k3)
}

func TestRomixDeriveKeySensitiveToCostParams(t *testing.T) {
	salt := make([]byte, 32)
	pw := []byte("hunter2")

	base := romixDeriveKey(pw, salt, 4096, 4)
	require.NotEqual(t, base, romixDeriveKey(pw, salt, 8192, 4))
	require.NotEqual(t, base, romixDeriveKey(pw, salt, 4096, 5))
}

// TestImportEncryptedRoundTrip encrypts a known seed into the root-key blob
// exactly the way a legacy wallet does (sequential-memory-hard KDF, then
// AES-256-CBC under the header IV) and checks Import recovers it.
func TestImportEncryptedRoundTrip(t *testing.T) {
	const (
		memoryBytes = 4096
		iterations  = 3
	)
	passphrase := []byte("correct horse battery staple")

	data := minimalLegalFile(t)
	data[offWalletFlags] = walletFlagEncrypted
	binary.LittleEndian.PutUint32(data[offKdfMemory:], memoryBytes)
	binary.LittleEndian.PutUint32(data[offKdfIters:], iterations)
	for i := 0; i < lenKdfSalt; i++ {
		data[offKdfSalt+i] = byte(i + 7)
	}
	for i := 0; i < lenAesIV; i++ {
		data[offAesIV+i] = byte(i + 101)
	}

	seed := make([]byte, seedLength)
	for i := range seed {
		seed[i] = byte(0xE0 + i)
	}

	key := romixDeriveKey(passphrase, data[offKdfSalt:offKdfSalt+lenKdfSalt], memoryBytes, iterations)
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	ciphertext := make([]byte, seedLength)
	cipher.NewCBCEncrypter(block, data[offAesIV:offAesIV+lenAesIV]).CryptBlocks(ciphertext, seed)
	copy(data[offRootKeyBlob:], ciphertext)

	result, err := Import(data, passphrase)
	require.NoError(t, err)
	require.Equal(t, seed, result.Seed)

	require.EqualValues(t, 1024, result.ModernKdf.MemoryCostKiB)
	require.EqualValues(t, 1, result.ModernKdf.TimeCost)
}
