package crypto

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
)

func TestAEADRoundTrip(t *testing.T) {
	key, err := NewSecureKey(mustRandom(t, 32))
	require.NoError(t, err)
	defer key.Destroy()

	plaintext := []byte("Hello, Bitcoin!")
	enc, err := Encrypt(key, plaintext, nil)
	require.NoError(t, err)

	got, err := Decrypt(key, enc, nil)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestAEADTamperDetection(t *testing.T) {
	key, err := NewSecureKey(mustRandom(t, 32))
	require.NoError(t, err)
	defer key.Destroy()

	enc, err := Encrypt(key, []byte("Hello, Bitcoin!"), nil)
	require.NoError(t, err)

	tampered := &EncryptedData{
		Nonce:      enc.Nonce,
		Ciphertext: append([]byte(nil), enc.Ciphertext...),
	}
	tampered.Ciphertext[0] ^= 0xFF

	_, err = Decrypt(key, tampered, nil)
	require.Error(t, err)
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, AuthFailure, cerr.Kind)
}

func TestKDFDeterministic(t *testing.T) {
	salt := mustRandom(t, 32)
	params := DefaultKdfParams()

	k1, err := DeriveKey([]byte("correct horse"), salt, params)
	require.NoError(t, err)
	k2, err := DeriveKey([]byte("correct horse"), salt, params)
	require.NoError(t, err)
	require.Equal(t, k1, k2)
}

func TestKDFRejectsShortSalt(t *testing.T) {
	_, err := DeriveKey([]byte("pw"), make([]byte, 8), DefaultKdfParams())
	require.Error(t, err)
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, InvalidParameters, cerr.Kind)
}

func TestVerifyPassword(t *testing.T) {
	salt := mustRandom(t, 32)
	params := DefaultKdfParams()
	key, err := DeriveKey([]byte("swordfish"), salt, params)
	require.NoError(t, err)

	ok, err := VerifyPassword([]byte("swordfish"), salt, key, params)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = VerifyPassword([]byte("wrong"), salt, key, params)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSchnorrDeterministic(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	digest := Sha256d([]byte("test message"))

	sig1, err := SignSchnorr(priv, digest[:])
	require.NoError(t, err)
	sig2, err := SignSchnorr(priv, digest[:])
	require.NoError(t, err)
	require.Equal(t, sig1, sig2)

	require.NoError(t, VerifySchnorr(priv.PubKey(), digest[:], sig1))
}

func TestECDSASignVerify(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	digest := Sha256d([]byte("test message"))
	sig, err := SignECDSA(priv, digest[:])
	require.NoError(t, err)
	require.NoError(t, VerifyECDSA(priv.PubKey(), digest[:], sig))
}

func mustRandom(t *testing.T, n int) []byte {
	t.Helper()
	b, err := RandomBytes(n)
	require.NoError(t, err)
	return b
}
