package wallet

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dan/btc-wallet-core/addresses"
	"github.com/dan/btc-wallet-core/crypto"
	"github.com/dan/btc-wallet-core/hdkeys"
	"github.com/dan/btc-wallet-core/storage"
)

func newTestEngine(t *testing.T) *storage.Engine {
	t.Helper()
	dir := t.TempDir()
	e, err := storage.Open(storage.Options{DataDir: filepath.Join(dir, "wallets.db")})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func testSeed() []byte {
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	return seed
}

func TestWalletNewIssuesDeterministicAddresses(t *testing.T) {
	w, err := New("abc123", "primary", testSeed(), hdkeys.Regtest, 1000)
	require.NoError(t, err)

	rec, err := w.NewReceiveAddress(addresses.NativeSegwit)
	require.NoError(t, err)
	require.NotEmpty(t, rec.Address)

	owner, ok := w.Owns(rec.Address)
	require.True(t, ok)
	require.Equal(t, rec.Path, owner.Path)

	again, err := New("abc123", "primary", testSeed(), hdkeys.Regtest, 1000)
	require.NoError(t, err)
	recAgain, err := again.NewReceiveAddress(addresses.NativeSegwit)
	require.NoError(t, err)
	require.Equal(t, rec.Address, recAgain.Address)
}

func TestSaveLoadRoundTripPlaintext(t *testing.T) {
	engine := newTestEngine(t)
	w, err := New("plain-id", "plaintext wallet", testSeed(), hdkeys.Regtest, 1000)
	require.NoError(t, err)
	w.SetAddressNote("bcrt1qexample", "cold storage", 1001)
	w.SetTxComment("abababababababababababababababababababababababababababababab01", "payment to bob", 1002)

	seedKey, err := crypto.NewSecureKey(make([]byte, 32))
	require.NoError(t, err)

	require.NoError(t, SaveWallet(engine, w, seedKey, nil))

	loaded, err := LoadWallet(engine, w.ID(), seedKey, nil, hdkeys.Regtest)
	require.NoError(t, err)

	require.Equal(t, w.ID(), loaded.ID())
	require.Equal(t, w.Label(), loaded.Label())
	require.Equal(t, w.addressBook, loaded.addressBook)
	require.Equal(t, w.txComments, loaded.txComments)
	require.Equal(t, w.seed, loaded.seed)
}

func TestSaveLoadRoundTripEncryptedRecord(t *testing.T) {
	engine := newTestEngine(t)
	w, err := New("enc-id", "encrypted wallet", testSeed(), hdkeys.Regtest, 2000)
	require.NoError(t, err)

	seedKeyBytes := make([]byte, 32)
	seedKeyBytes[0] = 0xAA
	seedKey, err := crypto.NewSecureKey(seedKeyBytes)
	require.NoError(t, err)

	recordKeyBytes := make([]byte, 32)
	recordKeyBytes[0] = 0xBB
	recordKey, err := crypto.NewSecureKey(recordKeyBytes)
	require.NoError(t, err)

	require.NoError(t, SaveWallet(engine, w, seedKey, recordKey))

	// Loading with the wrong record key must fail with an auth error, not
	// silently return wrong data.
	wrongKeyBytes := make([]byte, 32)
	wrongKeyBytes[0] = 0xCC
	wrongKey, err := crypto.NewSecureKey(wrongKeyBytes)
	require.NoError(t, err)
	_, err = LoadWallet(engine, w.ID(), seedKey, wrongKey, hdkeys.Regtest)
	require.Error(t, err)

	loaded, err := LoadWallet(engine, w.ID(), seedKey, recordKey, hdkeys.Regtest)
	require.NoError(t, err)
	require.Equal(t, w.ID(), loaded.ID())
	require.Equal(t, w.seed, loaded.seed)
}

func TestFromRecordFailsAuthOnWrongSeedKey(t *testing.T) {
	w, err := New("x", "y", testSeed(), hdkeys.Regtest, 10)
	require.NoError(t, err)

	seedKey, err := crypto.NewSecureKey(make([]byte, 32))
	require.NoError(t, err)
	rec, err := w.ToRecord(seedKey)
	require.NoError(t, err)

	wrongBytes := make([]byte, 32)
	wrongBytes[0] = 1
	wrongKey, err := crypto.NewSecureKey(wrongBytes)
	require.NoError(t, err)

	_, err = FromRecord(rec, wrongKey, hdkeys.Regtest)
	require.Error(t, err)
}
