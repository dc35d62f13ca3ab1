package addresses

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"

	"github.com/dan/btc-wallet-core/hdkeys"
)

const bip32TestVectorSeed = "000102030405060708090a0b0c0d0e0f"

func testLedger(t *testing.T, network hdkeys.Network) (*hdkeys.KeyLedger, *chaincfg.Params) {
	t.Helper()
	seed, err := hex.DecodeString(bip32TestVectorSeed)
	require.NoError(t, err)

	keys, err := hdkeys.NewLedger(seed, network)
	require.NoError(t, err)

	params, err := hdkeys.Params(network)
	require.NoError(t, err)

	return keys, params
}

// TestDeterministicFirstNativeSegwitAddress checks that the BIP-32
// test-vector seed's first native-segwit receive address derives at
// m/84'/1'/0'/0/0 and encodes to the known-good bech32 address for that
// seed and path, independently computed from the BIP-32/84 derivation
// rules.
func TestDeterministicFirstNativeSegwitAddress(t *testing.T) {
	keys, params := testLedger(t, hdkeys.Testnet)
	ledger := NewLedger(keys, params)

	rec, err := ledger.NewReceiveAddress(NativeSegwit)
	require.NoError(t, err)
	require.Equal(t, "m/84'/1'/0'/0/0", rec.Path.String())
	require.Equal(t, "tb1q7f0pjwhc3jzzv0w4uurm589506glv2dg2qy7ze", rec.Address)

	pub, err := keys.PublicKey(rec.Path)
	require.NoError(t, err)
	require.Equal(t,
		"020c7f4de1cc760fc068775b1513d67d0a7802f0b4b1c61aa85784ebf722905b27",
		hex.EncodeToString(pub.SerializeCompressed()))

	script, err := ScriptPubKey(NativeSegwit, pub, params)
	require.NoError(t, err)
	require.Equal(t, script, rec.ScriptPubKey)
}

func TestCountersMonotoneAndConsecutive(t *testing.T) {
	keys, params := testLedger(t, hdkeys.Mainnet)
	ledger := NewLedger(keys, params)

	first, err := ledger.NewReceiveAddress(NativeSegwit)
	require.NoError(t, err)
	second, err := ledger.NewReceiveAddress(NativeSegwit)
	require.NoError(t, err)

	require.Equal(t, uint32(0), first.Index)
	require.Equal(t, uint32(1), second.Index)
	require.Equal(t, uint32(2), ledger.NextIndex(NativeSegwit, Receive))
}

func TestReceiveAndChangeCountersIndependent(t *testing.T) {
	keys, params := testLedger(t, hdkeys.Mainnet)
	ledger := NewLedger(keys, params)

	_, err := ledger.NewReceiveAddress(Legacy)
	require.NoError(t, err)
	_, err = ledger.NewChangeAddress(Legacy)
	require.NoError(t, err)

	require.Equal(t, uint32(1), ledger.NextIndex(Legacy, Receive))
	require.Equal(t, uint32(1), ledger.NextIndex(Legacy, Change))
}

func TestOwnsReverseIndex(t *testing.T) {
	keys, params := testLedger(t, hdkeys.Mainnet)
	ledger := NewLedger(keys, params)

	rec, err := ledger.NewReceiveAddress(Taproot)
	require.NoError(t, err)

	found, ok := ledger.Owns(rec.Address)
	require.True(t, ok)
	require.Equal(t, rec.Path.String(), found.Path.String())

	_, ok = ledger.Owns("bc1qnotanaddressthatexists00000000000000000")
	require.False(t, ok)
}

func TestAllFamiliesProduceDistinctAddresses(t *testing.T) {
	keys, params := testLedger(t, hdkeys.Mainnet)
	ledger := NewLedger(keys, params)

	seen := make(map[string]bool)
	for _, fam := range AllFamilies() {
		rec, err := ledger.NewReceiveAddress(fam)
		require.NoError(t, err)
		require.False(t, seen[rec.Address], "duplicate address across families")
		seen[rec.Address] = true
	}
}

func TestAccountXpubNativeSegwitIsZpub(t *testing.T) {
	keys, params := testLedger(t, hdkeys.Mainnet)

	xpub, path, err := AccountXpub(keys, NativeSegwit, params)
	require.NoError(t, err)
	require.Equal(t, "m/84'/0'/0'", path)
	require.Equal(t, "zpub", xpub[:4])
}

func TestAccountXpubTaprootIsStandardXpub(t *testing.T) {
	keys, params := testLedger(t, hdkeys.Mainnet)

	xpub, path, err := AccountXpub(keys, Taproot, params)
	require.NoError(t, err)
	require.Equal(t, "m/86'/0'/0'", path)
	require.Equal(t, "xpub", xpub[:4])
}
