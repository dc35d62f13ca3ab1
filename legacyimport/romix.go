package legacyimport

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha512"
	"encoding/binary"

	"github.com/dan/btc-wallet-core/crypto"
)

// romixDeriveKey ports the sequential-memory-hard KDF legacy wallets
// encrypt their root key under. One iteration fills a lookup table of
// 64-byte SHA-512 chain links covering memoryBytes, then walks it
// data-dependently for half as many steps as the table has links, folding
// each visited link into the running state. The 32-byte result of each
// iteration is fed back as the passphrase of the next.
func romixDeriveKey(passphrase, salt []byte, memoryBytes, iterations uint32) []byte {
	const linkLen = sha512.Size

	sequenceCount := memoryBytes / linkLen
	if sequenceCount < 1 {
		sequenceCount = 1
	}
	if iterations < 1 {
		iterations = 1
	}

	key := make([]byte, len(passphrase))
	copy(key, passphrase)

	table := make([]byte, sequenceCount*linkLen)
	var x [linkLen]byte

	for iter := uint32(0); iter < iterations; iter++ {
		h := sha512.New()
		h.Write(key)
		h.Write(salt)
		copy(table[:linkLen], h.Sum(nil))
		for i := uint32(1); i < sequenceCount; i++ {
			link := sha512.Sum512(table[(i-1)*linkLen : i*linkLen])
			copy(table[i*linkLen:], link[:])
		}

		copy(x[:], table[(sequenceCount-1)*linkLen:])
		nLookups := sequenceCount / 2
		for i := uint32(0); i < nLookups; i++ {
			idx := binary.LittleEndian.Uint32(x[:4]) % sequenceCount
			link := table[idx*linkLen : (idx+1)*linkLen]
			for j := range x {
				x[j] ^= link[j]
			}
			x = sha512.Sum512(x[:])
		}

		key = make([]byte, 32)
		copy(key, x[:32])
	}

	return key
}

// romixToKdfParams translates a legacy wallet's cost knobs (memory in
// bytes, iteration count) into the Argon2id parameters an imported wallet
// is re-encrypted under going forward:
// memory_cost_kib = max(memory_bytes/1024, 1024), time_cost = max(iterations/10, 1).
func romixToKdfParams(memoryBytes, iterations uint32) crypto.KdfParams {
	memKiB := memoryBytes / 1024
	if memKiB < 1024 {
		memKiB = 1024
	}
	timeCost := iterations / 10
	if timeCost < 1 {
		timeCost = 1
	}
	return crypto.KdfParams{
		MemoryCostKiB: memKiB,
		TimeCost:      timeCost,
		Parallelism:   1,
		OutputLength:  32,
	}
}

// decryptedPrefixLen is the number of leading bytes of the 237-byte root-key
// field that are actually AES-CBC ciphertext: exactly enough 16-byte blocks
// to cover the 32-byte modern seed the caller extracts from it. 237 itself
// is not a multiple of the AES block size (it is the format's fixed on-disk
// field width, padded with unencrypted reserved bytes beyond the key
// material) so only this aligned prefix is run through CBC.
const decryptedPrefixLen = 32

// decryptRootKeyBlob derives the AES key from (passphrase, salt, memory,
// iterations) with the original sequential-memory-hard KDF and decrypts
// the leading block-aligned prefix of the root-key blob under the header's
// IV, the only part the caller ever reads.
func decryptRootKeyBlob(passphrase []byte, h *Header) ([]byte, error) {
	key := romixDeriveKey(passphrase, h.KdfSalt[:], h.KdfMemory, h.KdfIters)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, newErr(DecryptionFailed, "failed to construct AES cipher", err)
	}

	ciphertext := h.RootKeyBlob[:decryptedPrefixLen]

	out := make([]byte, len(ciphertext))
	mode := cipher.NewCBCDecrypter(block, h.AesIV[:])
	mode.CryptBlocks(out, ciphertext)
	return out, nil
}
