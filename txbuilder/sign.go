package txbuilder

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/dan/btc-wallet-core/addresses"
	"github.com/dan/btc-wallet-core/hdkeys"
	"github.com/dan/btc-wallet-core/psbt2"
)

// SigningInput pairs a packet input (by position) with the family and
// derivation path of the key that spends it.
type SigningInput struct {
	Family addresses.Family
	Path   hdkeys.Path
}

// unsignedTx builds the transaction a packet's inputs and outputs describe,
// along with the spent-output lookup sighash computation needs. Mirrors
// psbt2.Packet.Finalize's transaction shape but without requiring the
// packet to already be finalizable.
func unsignedTx(p *psbt2.Packet) (*wire.MsgTx, map[wire.OutPoint]*wire.TxOut, error) {
	tx := wire.NewMsgTx(2)
	if p.FallbackLocktime != nil {
		tx.LockTime = *p.FallbackLocktime
	}

	prevOuts := make(map[wire.OutPoint]*wire.TxOut, len(p.Inputs))
	for _, in := range p.Inputs {
		seq := psbt2.DefaultSequence
		if in.Sequence != nil {
			seq = *in.Sequence
		}
		outpoint := wire.NewOutPoint(&in.PreviousTxid, in.OutputIndex)
		txIn := wire.NewTxIn(outpoint, nil, nil)
		txIn.Sequence = seq
		tx.AddTxIn(txIn)

		switch {
		case in.WitnessUtxo != nil:
			prevOuts[*outpoint] = in.WitnessUtxo
		case in.NonWitnessUtxo != nil && int(in.OutputIndex) < len(in.NonWitnessUtxo.TxOut):
			prevOuts[*outpoint] = in.NonWitnessUtxo.TxOut[in.OutputIndex]
		default:
			return nil, nil, newErr(SigningFailed, "input has neither witness-utxo nor non-witness-utxo", nil)
		}
	}

	for _, out := range p.Outputs {
		tx.AddTxOut(wire.NewTxOut(out.Amount, out.Script))
	}

	return tx, prevOuts, nil
}

// Sign produces a signature for every input in infos (by position) and
// writes the corresponding partial-sig/tap-key-sig record plus the final
// script-sig/witness fields, since this builder only ever produces
// single-signature spends. Per family:
//   - Legacy: pre-SegWit sighash, sighash-type ALL, final_script_sig =
//     PUSH(sig||0x01) PUSH(pubkey).
//   - Nested/NativeSegwit: BIP-143 sighash over the implicit P2WPKH script,
//     sighash-type ALL, witness = [sig||0x01, pubkey]; nested additionally
//     sets script_sig = PUSH(redeem_script).
//   - Taproot (key path): BIP-341 sighash with SIGHASH_DEFAULT, Schnorr sign
//     with the key-path-tweaked secret; witness = [signature].
func Sign(p *psbt2.Packet, ledger *hdkeys.KeyLedger, infos []SigningInput) error {
	if len(infos) != len(p.Inputs) {
		return newErr(InvalidConfig, "signing-input count does not match packet input count", nil)
	}

	tx, prevOuts, err := unsignedTx(p)
	if err != nil {
		return err
	}
	prevOutFetcher := txscript.NewMultiPrevOutFetcher(prevOuts)
	sigHashes := txscript.NewTxSigHashes(tx, prevOutFetcher)

	for i, info := range infos {
		priv, err := ledger.PrivateKey(info.Path)
		if err != nil {
			return newErr(SigningFailed, "failed to derive signing key", err)
		}
		pub := priv.PubKey()
		pubHex := hex.EncodeToString(pub.SerializeCompressed())

		in := &p.Inputs[i]
		txOut := prevOuts[tx.TxIn[i].PreviousOutPoint]

		switch info.Family {
		case addresses.Legacy:
			sig, err := txscript.RawTxInSignature(tx, i, txOut.PkScript, txscript.SigHashAll, priv)
			if err != nil {
				return newErr(SigningFailed, "legacy sighash/sign failed", err)
			}
			scriptSig, err := txscript.NewScriptBuilder().AddData(sig).AddData(pub.SerializeCompressed()).Script()
			if err != nil {
				return newErr(SigningFailed, "failed to build final script-sig", err)
			}
			in.PartialSigs[pubHex] = sig
			in.FinalScriptSig = scriptSig

		case addresses.NestedSegwit, addresses.NativeSegwit:
			subScript := txOut.PkScript
			if info.Family == addresses.NestedSegwit {
				subScript = addresses.RedeemScript(info.Family, pub)
			}
			witness, err := txscript.WitnessSignature(tx, sigHashes, i, txOut.Value, subScript, txscript.SigHashAll, priv, true)
			if err != nil {
				return newErr(SigningFailed, "segwit sighash/sign failed", err)
			}
			in.PartialSigs[pubHex] = witness[0]
			in.FinalScriptWitness = witness
			if info.Family == addresses.NestedSegwit {
				redeem := addresses.RedeemScript(info.Family, pub)
				scriptSig, err := txscript.NewScriptBuilder().AddData(redeem).Script()
				if err != nil {
					return newErr(SigningFailed, "failed to build nested-segwit script-sig", err)
				}
				in.FinalScriptSig = scriptSig
			}

		case addresses.Taproot:
			sig, err := txscript.RawTxInTaprootSignature(tx, sigHashes, i, txOut.Value, txOut.PkScript, nil, txscript.SigHashDefault, priv)
			if err != nil {
				return newErr(SigningFailed, "taproot sighash/sign failed", err)
			}
			in.TapKeySig = sig
			in.FinalScriptWitness = [][]byte{sig}

		default:
			return newErr(SigningFailed, "unsupported address family for signing", nil)
		}
	}

	return nil
}
