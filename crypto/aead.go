package crypto

import (
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// SecureKey holds 32 bytes of key material and overwrites them on Destroy.
// Callers must invoke Destroy once the key is no longer needed.
type SecureKey struct {
	b [32]byte
}

// NewSecureKey copies key into a SecureKey. key must be 32 bytes.
func NewSecureKey(key []byte) (*SecureKey, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, newErr(InvalidParameters, fmt.Sprintf("key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key)), nil)
	}
	sk := &SecureKey{}
	copy(sk.b[:], key)
	return sk, nil
}

// Bytes returns the underlying key bytes. The returned slice aliases the
// SecureKey's storage and must not outlive it.
func (k *SecureKey) Bytes() []byte { return k.b[:] }

// Destroy overwrites the key bytes with zeros.
func (k *SecureKey) Destroy() {
	for i := range k.b {
		k.b[i] = 0
	}
}

// EncryptedData is a nonce plus AEAD ciphertext-with-tag.
type EncryptedData struct {
	Nonce      []byte
	Ciphertext []byte
}

// Encrypt performs ChaCha20-Poly1305 AEAD encryption with a fresh random
// nonce. aad may be nil.
func Encrypt(key *SecureKey, plaintext, aad []byte) (*EncryptedData, error) {
	aead, err := chacha20poly1305.New(key.Bytes())
	if err != nil {
		return nil, newErr(InvalidParameters, "failed to construct AEAD cipher", err)
	}

	nonce, err := GenerateNonce()
	if err != nil {
		return nil, err
	}

	ciphertext := aead.Seal(nil, nonce, plaintext, aad)
	return &EncryptedData{Nonce: nonce, Ciphertext: ciphertext}, nil
}

// Decrypt performs ChaCha20-Poly1305 AEAD decryption with constant-time tag
// verification. On any tampering of ciphertext, nonce, or aad, it returns an
// AuthFailure error and no plaintext.
func Decrypt(key *SecureKey, data *EncryptedData, aad []byte) ([]byte, error) {
	if len(data.Nonce) != chacha20poly1305.NonceSize {
		return nil, newErr(AuthFailure, "invalid nonce length", nil)
	}

	aead, err := chacha20poly1305.New(key.Bytes())
	if err != nil {
		return nil, newErr(InvalidParameters, "failed to construct AEAD cipher", err)
	}

	plaintext, err := aead.Open(nil, data.Nonce, data.Ciphertext, aad)
	if err != nil {
		return nil, newErr(AuthFailure, "authentication failed", err)
	}
	return plaintext, nil
}
