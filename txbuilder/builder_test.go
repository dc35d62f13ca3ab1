package txbuilder

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/dan/btc-wallet-core/addresses"
	"github.com/dan/btc-wallet-core/hdkeys"
	"github.com/dan/btc-wallet-core/utxoset"
)

func testLedgers(t *testing.T) (*hdkeys.KeyLedger, *addresses.Ledger) {
	t.Helper()
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	keys, err := hdkeys.NewLedger(seed, hdkeys.Testnet)
	require.NoError(t, err)
	params, err := hdkeys.Params(hdkeys.Testnet)
	require.NoError(t, err)
	return keys, addresses.NewLedger(keys, params)
}

func TestResolveFeeRatePresets(t *testing.T) {
	require.EqualValues(t, 5, LowFee().ResolveRate())
	require.EqualValues(t, 20, NormalFee().ResolveRate())
	require.EqualValues(t, 50, HighFee().ResolveRate())
	require.EqualValues(t, 50, ByConfirmationTarget(1).ResolveRate())
	require.EqualValues(t, 50, ByConfirmationTarget(2).ResolveRate())
	require.EqualValues(t, 20, ByConfirmationTarget(3).ResolveRate())
	require.EqualValues(t, 20, ByConfirmationTarget(6).ResolveRate())
	require.EqualValues(t, 10, ByConfirmationTarget(20).ResolveRate())
	require.EqualValues(t, 42, FixedFee(42).ResolveRate())
}

func utxoAt(txid string, vout uint32, value int64, family addresses.Family) utxoset.UTXO {
	path := hdkeys.AccountPath(family.Purpose(), hdkeys.CoinType(hdkeys.Testnet), 0, 0, vout)
	return utxoset.UTXO{
		Outpoint:           utxoset.Outpoint{Txid: txid, Vout: vout},
		Value:              value,
		ScriptPubKey:       []byte{0x00, 0x14, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20},
		OwningPath:         path,
		ConfirmationHeight: 100,
	}
}

func TestSelectCoinsStrategies(t *testing.T) {
	utxos := []utxoset.UTXO{
		utxoAt("aa", 0, 10000, addresses.NativeSegwit),
		utxoAt("bb", 0, 20000, addresses.NativeSegwit),
		utxoAt("cc", 0, 50000, addresses.NativeSegwit),
		utxoAt("dd", 0, 100000, addresses.NativeSegwit),
	}
	inputVsize := func(u utxoset.UTXO) int64 { return addresses.NativeSegwit.InputVsize() }

	largest, _, _, err := SelectCoins(LargestFirst, utxos, 30000, 1, baseVsize, inputVsize, addresses.NativeSegwit.OutputVsize(), addresses.NativeSegwit.OutputVsize(), addresses.NativeSegwit.DustThreshold(), 0)
	require.NoError(t, err)
	require.Len(t, largest, 1)
	require.Equal(t, int64(100000), largest[0].Value)

	smallest, _, _, err := SelectCoins(SmallestFirst, utxos, 30000, 1, baseVsize, inputVsize, addresses.NativeSegwit.OutputVsize(), addresses.NativeSegwit.OutputVsize(), addresses.NativeSegwit.DustThreshold(), 0)
	require.NoError(t, err)
	require.Len(t, smallest, 3)
	require.Equal(t, int64(10000), smallest[0].Value)
	require.Equal(t, int64(20000), smallest[1].Value)
	require.Equal(t, int64(50000), smallest[2].Value)

	bnb, feeBnb, _, err := SelectCoins(BranchAndBound, utxos, 30000, 1, baseVsize, inputVsize, addresses.NativeSegwit.OutputVsize(), addresses.NativeSegwit.OutputVsize(), addresses.NativeSegwit.DustThreshold(), 0)
	require.NoError(t, err)
	var bnbSum int64
	for _, u := range bnb {
		bnbSum += u.Value
	}
	require.GreaterOrEqual(t, bnbSum, 30000+feeBnb)
}

func TestBuildRejectsExcessiveFeeRate(t *testing.T) {
	_, addrLedger := testLedgers(t)
	utxos := []utxoset.UTXO{utxoAt("aa", 0, 100000, addresses.NativeSegwit)}

	cfg := Config{
		FeeStrategy: FixedFee(5000),
		MaxFeeRate:  1000,
	}
	_, err := Build(cfg, utxos, []Recipient{{ScriptPubKey: []byte{0x00, 0x14, 1}, Amount: 1000, Family: addresses.NativeSegwit}}, addrLedger, 200)
	require.Error(t, err)
	var bErr *Error
	require.ErrorAs(t, err, &bErr)
	require.Equal(t, FeeRateTooHigh, bErr.Kind)
}

func TestBuildProducesChangeAboveDust(t *testing.T) {
	_, addrLedger := testLedgers(t)
	utxos := []utxoset.UTXO{utxoAt("aa", 0, 100000, addresses.NativeSegwit)}

	cfg := Config{
		FeeStrategy:      FixedFee(20),
		CoinSelection:    LargestFirst,
		MinConfirmations: 1,
	}
	recipientScript := make([]byte, 22)
	recipientScript[0] = 0x00
	recipientScript[1] = 0x14
	result, err := Build(cfg, utxos, []Recipient{{ScriptPubKey: recipientScript, Amount: 90000, Family: addresses.NativeSegwit}}, addrLedger, 200)
	require.NoError(t, err)
	require.NotNil(t, result.ChangeRecord)
	require.EqualValues(t, 2, result.Packet.OutputCount())
	require.EqualValues(t, 1, result.Packet.InputCount())

	require.Equal(t, int64(100000)-result.Fee, result.Packet.TotalOutputValue())
}

func TestBuildAbsorbsDustChangeIntoFee(t *testing.T) {
	_, addrLedger := testLedgers(t)
	// 92,400 sats spending 90,000 at 20 sat/vB: the selection fee is
	// 2,180 (109 vB), leaving 220 sats of would-be change, below the
	// 294-sat native-segwit dust threshold.
	utxos := []utxoset.UTXO{utxoAt("aa", 0, 92400, addresses.NativeSegwit)}

	cfg := Config{
		FeeStrategy:      FixedFee(20),
		CoinSelection:    LargestFirst,
		MinConfirmations: 1,
	}
	recipientScript := make([]byte, 22)
	recipientScript[0] = 0x00
	recipientScript[1] = 0x14
	result, err := Build(cfg, utxos, []Recipient{{ScriptPubKey: recipientScript, Amount: 90000, Family: addresses.NativeSegwit}}, addrLedger, 200)
	require.NoError(t, err)
	require.Nil(t, result.ChangeRecord)
	require.EqualValues(t, 1, result.Packet.OutputCount())

	// The absorbed dust is part of the reported fee, preserving
	// inputs == outputs + fee.
	require.Equal(t, int64(2400), result.Fee)
	require.Equal(t, int64(92400)-result.Fee, result.Packet.TotalOutputValue())
}

func TestBuildWithNoUTXOsFailsInsufficientFunds(t *testing.T) {
	_, addrLedger := testLedgers(t)
	recipientScript := make([]byte, 22)
	recipientScript[0] = 0x00
	recipientScript[1] = 0x14

	cfg := Config{FeeStrategy: FixedFee(10), MinConfirmations: 1}
	_, err := Build(cfg, nil, []Recipient{{ScriptPubKey: recipientScript, Amount: 1000, Family: addresses.NativeSegwit}}, addrLedger, 200)
	require.Error(t, err)
	var bErr *Error
	require.ErrorAs(t, err, &bErr)
	require.Equal(t, InsufficientFunds, bErr.Kind)
	require.EqualValues(t, 0, bErr.Available)
	require.Greater(t, bErr.Required, int64(1000))
}

func TestRBFSequenceFlag(t *testing.T) {
	_, addrLedger := testLedgers(t)
	utxos := []utxoset.UTXO{utxoAt("aa", 0, 100000, addresses.NativeSegwit)}
	recipientScript := make([]byte, 22)
	recipientScript[0] = 0x00
	recipientScript[1] = 0x14

	rbf := Config{FeeStrategy: FixedFee(10), RBF: true}
	result, err := Build(rbf, utxos, []Recipient{{ScriptPubKey: recipientScript, Amount: 50000, Family: addresses.NativeSegwit}}, addrLedger, 200)
	require.NoError(t, err)
	require.Equal(t, uint32(0xFFFFFFFD), *result.Packet.Inputs[0].Sequence)

	final := Config{FeeStrategy: FixedFee(10), RBF: false}
	result2, err := Build(final, utxos, []Recipient{{ScriptPubKey: recipientScript, Amount: 50000, Family: addresses.NativeSegwit}}, addrLedger, 200)
	require.NoError(t, err)
	require.Equal(t, uint32(0xFFFFFFFF), *result2.Packet.Inputs[0].Sequence)
}

func TestBuildConsolidation(t *testing.T) {
	keys, _ := testLedgers(t)
	utxos := []utxoset.UTXO{
		utxoAt("aa", 0, 10000, addresses.NativeSegwit),
		utxoAt("bb", 0, 20000, addresses.NativeSegwit),
	}
	cfg := Config{FeeStrategy: FixedFee(1)}
	dest := make([]byte, 22)
	dest[0] = 0x00
	dest[1] = 0x14

	result, err := BuildConsolidation(cfg, utxos, dest, addresses.NativeSegwit, keys, 200)
	require.NoError(t, err)
	require.EqualValues(t, 1, result.Packet.OutputCount())
	require.EqualValues(t, 2, result.Packet.InputCount())
	require.Equal(t, int64(30000)-result.Fee, result.Packet.Outputs[0].Amount)
}

func TestSignNativeSegwitInput(t *testing.T) {
	keys, addrLedger := testLedgers(t)
	rec, err := addrLedger.NewReceiveAddress(addresses.NativeSegwit)
	require.NoError(t, err)

	utxos := []utxoset.UTXO{{
		Outpoint:           utxoset.Outpoint{Txid: "aabbccddeeff00112233445566778899aabbccddeeff0011223344556677889a", Vout: 0},
		Value:              100000,
		ScriptPubKey:       rec.ScriptPubKey,
		OwningPath:         rec.Path,
		ConfirmationHeight: 100,
	}}

	recipientScript := make([]byte, 22)
	recipientScript[0] = 0x00
	recipientScript[1] = 0x14

	cfg := Config{FeeStrategy: FixedFee(10), MinConfirmations: 1}
	result, err := Build(cfg, utxos, []Recipient{{ScriptPubKey: recipientScript, Amount: 50000, Family: addresses.NativeSegwit}}, addrLedger, 200)
	require.NoError(t, err)

	// The assembled input must carry the key origin so an external signer
	// can locate the key.
	fingerprint, err := keys.MasterFingerprint()
	require.NoError(t, err)
	require.Len(t, result.Packet.Inputs[0].Bip32Derivations, 1)
	origin := result.Packet.Inputs[0].Bip32Derivations[0]
	require.Equal(t, fingerprint, origin.MasterFingerprint)
	require.Equal(t, []uint32(rec.Path), origin.Path)

	require.NoError(t, Sign(result.Packet, keys, result.SigningInputs))
	require.True(t, result.Packet.IsReadyToFinalize())

	tx, err := result.Packet.Finalize()
	require.NoError(t, err)
	require.Len(t, tx.TxIn[0].Witness, 2)
}

// TestSignLegacyInput spends a legacy output end to end: the raw previous
// transaction rides along on the UTXO, the build attaches it as the
// non-witness UTXO, and signing produces a final script-sig.
func TestSignLegacyInput(t *testing.T) {
	keys, addrLedger := testLedgers(t)
	rec, err := addrLedger.NewReceiveAddress(addresses.Legacy)
	require.NoError(t, err)

	prev := wire.NewMsgTx(wire.TxVersion)
	// A real previous transaction has at least one input; with none, its
	// serialization begins 0x00 0x01 and parses back as a segwit marker/flag.
	prev.AddTxIn(wire.NewTxIn(&wire.OutPoint{}, nil, nil))
	prev.AddTxOut(wire.NewTxOut(100000, rec.ScriptPubKey))
	var prevBuf bytes.Buffer
	require.NoError(t, prev.Serialize(&prevBuf))

	utxos := []utxoset.UTXO{{
		Outpoint:           utxoset.Outpoint{Txid: prev.TxHash().String(), Vout: 0},
		Value:              100000,
		ScriptPubKey:       rec.ScriptPubKey,
		OwningPath:         rec.Path,
		ConfirmationHeight: 100,
		RawPrevTx:          prevBuf.Bytes(),
	}}

	recipientScript := make([]byte, 22)
	recipientScript[0] = 0x00
	recipientScript[1] = 0x14

	cfg := Config{FeeStrategy: FixedFee(10), MinConfirmations: 1}
	result, err := Build(cfg, utxos, []Recipient{{ScriptPubKey: recipientScript, Amount: 50000, Family: addresses.NativeSegwit}}, addrLedger, 200)
	require.NoError(t, err)

	require.Nil(t, result.Packet.Inputs[0].WitnessUtxo)
	require.NotNil(t, result.Packet.Inputs[0].NonWitnessUtxo)
	require.Len(t, result.Packet.Inputs[0].Bip32Derivations, 1)

	require.NoError(t, Sign(result.Packet, keys, result.SigningInputs))

	tx, err := result.Packet.Finalize()
	require.NoError(t, err)
	require.NotEmpty(t, tx.TxIn[0].SignatureScript)
	require.Empty(t, tx.TxIn[0].Witness)
}

func TestBuildLegacyInputRequiresRawPrevTx(t *testing.T) {
	_, addrLedger := testLedgers(t)
	utxos := []utxoset.UTXO{utxoAt("aa", 0, 100000, addresses.Legacy)}

	recipientScript := make([]byte, 22)
	recipientScript[0] = 0x00
	recipientScript[1] = 0x14

	cfg := Config{FeeStrategy: FixedFee(10), MinConfirmations: 1}
	_, err := Build(cfg, utxos, []Recipient{{ScriptPubKey: recipientScript, Amount: 50000, Family: addresses.NativeSegwit}}, addrLedger, 200)
	require.Error(t, err)
	var bErr *Error
	require.ErrorAs(t, err, &bErr)
	require.Equal(t, InvalidConfig, bErr.Kind)
}
