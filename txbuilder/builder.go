// Package txbuilder drives coin selection, fee estimation, and PSBT v2
// assembly over the address ledger (addresses), UTXO set (utxoset), and key
// ledger (hdkeys), then signs the result per address family.
package txbuilder

import (
	"bytes"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/hashicorp/go-hclog"

	"github.com/dan/btc-wallet-core/addresses"
	"github.com/dan/btc-wallet-core/hdkeys"
	"github.com/dan/btc-wallet-core/psbt2"
	"github.com/dan/btc-wallet-core/utxoset"
)

// baseVsize is the fixed transaction overhead (version, locktime, input and
// output counts) before any input or output is added.
const baseVsize = 10

// Recipient is a single payment the build must satisfy. Family drives
// output vsize estimation; ScriptPubKey is the already-resolved output
// script.
type Recipient struct {
	ScriptPubKey []byte
	Amount       int64
	Family       addresses.Family
}

// Config configures a single build.
type Config struct {
	FeeStrategy      FeeStrategy
	CoinSelection    CoinSelectionStrategy
	RBF              bool
	MinConfirmations uint32
	MaxFeeRate       int64             // 0 means no cap
	ChangeFamily     *addresses.Family // nil defaults to NativeSegwit
	Locktime         *uint32
	RandomSeed       int64
	Logger           hclog.Logger
}

// Result is the outcome of a successful build: the assembled (unsigned)
// packet plus bookkeeping the caller needs to sign and report on it.
type Result struct {
	Packet        *psbt2.Packet
	Fee           int64
	EstVsize      int64
	SelectedUTXOs []utxoset.UTXO
	ChangeRecord  *addresses.Record
	SigningInputs []SigningInput
}

func sequenceFor(cfg Config) uint32 {
	if cfg.RBF {
		return 0xFFFFFFFD
	}
	return 0xFFFFFFFF
}

func (cfg Config) logger() hclog.Logger {
	if cfg.Logger != nil {
		return cfg.Logger
	}
	return hclog.NewNullLogger()
}

// Build assembles a PSBT v2 packet spending from utxos to recipients:
// it resolves the fee rate, filters spendable UTXOs, selects coins,
// computes change (absorbing sub-dust change into the fee), and attaches
// each input's spent-output data, sequence number, and key origin. It
// does not sign; call Sign on the result.
func Build(cfg Config, utxos []utxoset.UTXO, recipients []Recipient, addrLedger *addresses.Ledger, currentHeight uint32) (*Result, error) {
	log := cfg.logger()
	if len(recipients) == 0 {
		return nil, newErr(InvalidConfig, "at least one recipient is required", nil)
	}

	feeRate := cfg.FeeStrategy.ResolveRate()
	if cfg.MaxFeeRate > 0 && feeRate > cfg.MaxFeeRate {
		return nil, newErr(FeeRateTooHigh, "resolved fee rate exceeds configured cap", nil)
	}

	var targetOut int64
	var recipientOutputVsize int64
	for _, r := range recipients {
		targetOut += r.Amount
		recipientOutputVsize += r.Family.OutputVsize()
	}

	spendable := filterSpendable(utxos, currentHeight, cfg.MinConfirmations)

	inputVsize := func(u utxoset.UTXO) int64 { return familyFromPath(u.OwningPath).InputVsize() }
	changeFamily := addresses.NativeSegwit
	if cfg.ChangeFamily != nil {
		changeFamily = *cfg.ChangeFamily
	}
	changeOutputVsize := changeFamily.OutputVsize()
	changeDust := changeFamily.DustThreshold()

	selected, feeCurrent, estVsize, err := SelectCoins(cfg.CoinSelection, spendable, targetOut, feeRate, baseVsize, inputVsize, recipientOutputVsize, changeOutputVsize, changeDust, cfg.RandomSeed)
	if err != nil {
		return nil, err
	}

	var sumIn int64
	for _, u := range selected {
		sumIn += u.Value
	}

	change := sumIn - targetOut - feeCurrent
	var changeRecord *addresses.Record
	if change > changeDust {
		changeRecord, err = addrLedger.NewChangeAddress(changeFamily)
		if err != nil {
			return nil, newErr(InvalidConfig, "failed to issue change address", err)
		}
		newVsize := baseVsize + recipientOutputVsize + changeOutputVsize
		for _, u := range selected {
			newVsize += inputVsize(u)
		}
		newFee := ceilFee(feeRate, newVsize)
		if abs64(newFee-feeCurrent) > 1 {
			log.Debug("fee changed after adding change output, recomputing", "old_fee", feeCurrent, "new_fee", newFee)
		}
		feeCurrent = newFee
		estVsize = newVsize
		change = sumIn - targetOut - feeCurrent
		if change <= changeDust {
			// Paying for the change output itself pushed the remainder
			// below dust; drop the output and absorb the leftover.
			changeRecord = nil
			estVsize -= changeOutputVsize
			feeCurrent = sumIn - targetOut
			change = 0
		}
	} else if change > 0 {
		// Sub-dust change is uneconomic to carry as an output; it is
		// absorbed into the fee.
		log.Debug("absorbing sub-dust change into fee", "change", change, "dust_threshold", changeDust)
		feeCurrent += change
		change = 0
	}

	packet := psbt2.NewPacket()
	if cfg.Locktime != nil {
		packet.FallbackLocktime = cfg.Locktime
	}

	keys := addrLedger.Keys()
	fingerprint, err := keys.MasterFingerprint()
	if err != nil {
		return nil, newErr(SigningFailed, "failed to compute master fingerprint", err)
	}
	signingInputs, err := addInputs(packet, selected, sequenceFor(cfg), keys, fingerprint)
	if err != nil {
		return nil, err
	}

	for _, r := range recipients {
		if _, err := packet.AddOutput(r.Amount, r.ScriptPubKey); err != nil {
			return nil, newErr(InvalidConfig, "invalid recipient", err)
		}
	}
	if change > 0 && changeRecord != nil {
		if _, err := packet.AddOutput(change, changeRecord.ScriptPubKey); err != nil {
			return nil, err
		}
	}

	return &Result{
		Packet:        packet,
		Fee:           feeCurrent,
		EstVsize:      estVsize,
		SelectedUTXOs: selected,
		ChangeRecord:  changeRecord,
		SigningInputs: signingInputs,
	}, nil
}

// BuildConsolidation sweeps every spendable UTXO in utxos into a single
// output at destinationScript, with no change: the destination receives
// the full input sum minus the fee.
func BuildConsolidation(cfg Config, utxos []utxoset.UTXO, destinationScript []byte, destinationFamily addresses.Family, keys *hdkeys.KeyLedger, currentHeight uint32) (*Result, error) {
	if len(utxos) < 2 {
		return nil, newErr(InvalidConfig, "need at least 2 UTXOs to consolidate", nil)
	}
	feeRate := cfg.FeeStrategy.ResolveRate()
	if cfg.MaxFeeRate > 0 && feeRate > cfg.MaxFeeRate {
		return nil, newErr(FeeRateTooHigh, "resolved fee rate exceeds configured cap", nil)
	}

	spendable := filterSpendable(utxos, currentHeight, cfg.MinConfirmations)
	var sumIn int64
	vsize := int64(baseVsize) + destinationFamily.OutputVsize()
	for _, u := range spendable {
		sumIn += u.Value
		vsize += familyFromPath(u.OwningPath).InputVsize()
	}
	fee := ceilFee(feeRate, vsize)
	if sumIn <= fee {
		return nil, insufficientFundsErr(sumIn, fee+1)
	}
	amount := sumIn - fee

	packet := psbt2.NewPacket()
	if cfg.Locktime != nil {
		packet.FallbackLocktime = cfg.Locktime
	}
	fingerprint, err := keys.MasterFingerprint()
	if err != nil {
		return nil, newErr(SigningFailed, "failed to compute master fingerprint", err)
	}
	signingInputs, err := addInputs(packet, spendable, sequenceFor(cfg), keys, fingerprint)
	if err != nil {
		return nil, err
	}
	if _, err := packet.AddOutput(amount, destinationScript); err != nil {
		return nil, newErr(InvalidConfig, "invalid destination", err)
	}

	return &Result{
		Packet:        packet,
		Fee:           fee,
		EstVsize:      vsize,
		SelectedUTXOs: spendable,
		SigningInputs: signingInputs,
	}, nil
}

// addInputs appends each UTXO to packet with sequence seq, attaching the
// spent-output data its family needs (the full previous transaction for
// legacy inputs, the witness UTXO otherwise) and the BIP-32 origin of its
// signing key, so an external signer can locate the key without the
// wallet present. Taproot inputs carry the x-only internal key and its
// taproot-flavored origin record instead.
func addInputs(packet *psbt2.Packet, utxos []utxoset.UTXO, seq uint32, keys *hdkeys.KeyLedger, fingerprint [4]byte) ([]SigningInput, error) {
	var signingInputs []SigningInput
	for _, u := range utxos {
		txid, err := chainhash.NewHashFromStr(u.Outpoint.Txid)
		if err != nil {
			return nil, newErr(InvalidConfig, "invalid utxo txid", err)
		}
		s := seq
		idx := packet.AddInput(*txid, u.Outpoint.Vout, &s)
		family := familyFromPath(u.OwningPath)

		if family == addresses.Legacy {
			if len(u.RawPrevTx) == 0 {
				return nil, newErr(InvalidConfig, "legacy input requires the raw previous transaction", nil)
			}
			prev := wire.NewMsgTx(wire.TxVersion)
			if err := prev.Deserialize(bytes.NewReader(u.RawPrevTx)); err != nil {
				return nil, newErr(InvalidConfig, "invalid raw previous transaction", err)
			}
			if int(u.Outpoint.Vout) >= len(prev.TxOut) {
				return nil, newErr(InvalidConfig, "previous transaction does not contain the spent output", nil)
			}
			if err := packet.SetNonWitnessUtxo(idx, prev); err != nil {
				return nil, err
			}
		} else {
			if err := packet.SetWitnessUtxo(idx, witnessUtxoFor(u)); err != nil {
				return nil, err
			}
		}

		pub, err := keys.PublicKey(u.OwningPath)
		if err != nil {
			return nil, newErr(SigningFailed, "failed to derive input key", err)
		}
		in := &packet.Inputs[idx]
		if family == addresses.Taproot {
			internal := schnorr.SerializePubKey(pub)
			in.TapInternalKey = internal
			in.TapBip32Deriv = append(in.TapBip32Deriv, psbt2.TapBip32Derivation{
				PubKey:            internal,
				MasterFingerprint: fingerprint,
				Path:              []uint32(u.OwningPath),
			})
		} else {
			in.Bip32Derivations = append(in.Bip32Derivations, psbt2.Bip32Derivation{
				PubKey:            pub.SerializeCompressed(),
				MasterFingerprint: fingerprint,
				Path:              []uint32(u.OwningPath),
			})
		}

		signingInputs = append(signingInputs, SigningInput{Family: family, Path: u.OwningPath})
	}
	return signingInputs, nil
}

func filterSpendable(utxos []utxoset.UTXO, currentHeight uint32, minConfirmations uint32) []utxoset.UTXO {
	s := utxoset.NewSet()
	for _, u := range utxos {
		s.Add(u)
	}
	return s.Spendable(currentHeight, minConfirmations)
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// familyFromPath recovers the address family a UTXO belongs to from the
// purpose level of its owning derivation path (m/purpose'/...).
func familyFromPath(path hdkeys.Path) addresses.Family {
	if len(path) == 0 {
		return addresses.NativeSegwit
	}
	purpose := path[0]
	if purpose >= hdkeys.HardenedOffset {
		purpose -= hdkeys.HardenedOffset
	}
	switch purpose {
	case 44:
		return addresses.Legacy
	case 49:
		return addresses.NestedSegwit
	case 86:
		return addresses.Taproot
	default:
		return addresses.NativeSegwit
	}
}

func witnessUtxoFor(u utxoset.UTXO) *wire.TxOut {
	return &wire.TxOut{Value: u.Value, PkScript: u.ScriptPubKey}
}
