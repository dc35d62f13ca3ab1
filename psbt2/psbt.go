package psbt2

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// DefaultSequence is the sequence number used when an input does not
// specify one explicitly (final, no RBF).
const DefaultSequence uint32 = 0xFFFFFFFF

// AddInput appends an input identified by its mandatory
// (previousTxid, outputIndex) pair, setting input_count to len(Inputs).
// sequence is optional and defaults to 0xFFFFFFFF at finalize time if
// never set.
func (p *Packet) AddInput(previousTxid chainhash.Hash, outputIndex uint32, sequence *uint32) int {
	p.Inputs = append(p.Inputs, Input{
		PreviousTxid: previousTxid,
		OutputIndex:  outputIndex,
		Sequence:     sequence,
		PartialSigs:  make(map[string][]byte),
	})
	return len(p.Inputs) - 1
}

// AddOutput appends an output, setting output_count to len(Outputs).
// amount and script are both mandatory: zero amounts and empty scripts
// are rejected.
func (p *Packet) AddOutput(amount int64, script []byte) (int, error) {
	if amount == 0 {
		return 0, newErr(InvalidPSBT, "output amount must be non-zero", nil)
	}
	if len(script) == 0 {
		return 0, newErr(InvalidPSBT, "output script must be non-empty", nil)
	}
	p.Outputs = append(p.Outputs, Output{Amount: amount, Script: script})
	return len(p.Outputs) - 1, nil
}

// SetWitnessUtxo attaches the spent output directly (sufficient for SegWit
// v0 and v1 inputs).
func (p *Packet) SetWitnessUtxo(i int, txout *wire.TxOut) error {
	if i < 0 || i >= len(p.Inputs) {
		return newErr(InvalidPSBT, fmt.Sprintf("input index %d out of range", i), nil)
	}
	p.Inputs[i].WitnessUtxo = txout
	return nil
}

// SetNonWitnessUtxo attaches the full previous transaction (required for
// Legacy inputs, since their sighash commits to the whole spent tx).
func (p *Packet) SetNonWitnessUtxo(i int, tx *wire.MsgTx) error {
	if i < 0 || i >= len(p.Inputs) {
		return newErr(InvalidPSBT, fmt.Sprintf("input index %d out of range", i), nil)
	}
	p.Inputs[i].NonWitnessUtxo = tx
	return nil
}

// inputValue returns the value of input i's spent output, requiring at
// least one of witness-UTXO or non-witness-UTXO to be set.
func (p *Packet) inputValue(i int) (int64, error) {
	in := p.Inputs[i]
	if in.WitnessUtxo != nil {
		return in.WitnessUtxo.Value, nil
	}
	if in.NonWitnessUtxo != nil {
		if int(in.OutputIndex) >= len(in.NonWitnessUtxo.TxOut) {
			return 0, newErr(InvalidPSBT, fmt.Sprintf("input %d output index %d out of range of non-witness utxo", i, in.OutputIndex), nil)
		}
		return in.NonWitnessUtxo.TxOut[in.OutputIndex].Value, nil
	}
	return 0, newErr(InvalidPSBT, fmt.Sprintf("input %d has neither witness-utxo nor non-witness-utxo", i), nil)
}

// TotalInputValue sums the spent-output values over all inputs.
func (p *Packet) TotalInputValue() (int64, error) {
	var total int64
	for i := range p.Inputs {
		v, err := p.inputValue(i)
		if err != nil {
			return 0, err
		}
		total += v
	}
	return total, nil
}

// TotalOutputValue sums the amount over all outputs.
func (p *Packet) TotalOutputValue() int64 {
	var total int64
	for _, out := range p.Outputs {
		total += out.Amount
	}
	return total
}

// Fee returns total inputs minus total outputs, failing if inputs are
// insufficient to cover the outputs.
func (p *Packet) Fee() (int64, error) {
	in, err := p.TotalInputValue()
	if err != nil {
		return 0, err
	}
	out := p.TotalOutputValue()
	if in < out {
		return 0, newErr(InvalidPSBT, fmt.Sprintf("inputs (%d) less than outputs (%d)", in, out), nil)
	}
	return in - out, nil
}

// Validate checks well-formedness: counts match their vectors, every
// input has a UTXO attached, every output has a non-zero amount and
// non-empty script, and inputs cover outputs.
func (p *Packet) Validate() error {
	if p.InputCount() != uint32(len(p.Inputs)) {
		return newErr(InvalidPSBT, "input_count mismatch", nil)
	}
	if p.OutputCount() != uint32(len(p.Outputs)) {
		return newErr(InvalidPSBT, "output_count mismatch", nil)
	}
	for i := range p.Inputs {
		if _, err := p.inputValue(i); err != nil {
			return err
		}
	}
	for i, out := range p.Outputs {
		if out.Amount == 0 {
			return newErr(InvalidPSBT, fmt.Sprintf("output %d has zero amount", i), nil)
		}
		if len(out.Script) == 0 {
			return newErr(InvalidPSBT, fmt.Sprintf("output %d has empty script", i), nil)
		}
	}
	if _, err := p.Fee(); err != nil {
		return err
	}
	return nil
}

// IsReadyToFinalize reports whether every input has final script-sig or
// final witness data, or partial signatures sufficient for its detected
// script type. This implementation only recognizes the single-signature
// script templates the four supported address families use, so
// "sufficient partial signatures" means at least one partial signature or
// a taproot key-path signature.
func (p *Packet) IsReadyToFinalize() bool {
	for _, in := range p.Inputs {
		if in.FinalScriptSig != nil || in.FinalScriptWitness != nil {
			continue
		}
		if len(in.PartialSigs) > 0 {
			continue
		}
		if len(in.TapKeySig) > 0 {
			continue
		}
		return false
	}
	return true
}

// Finalize builds the concrete transaction once every input is ready.
// The finalized transaction uses version 2, the fallback locktime if set
// else 0, and each input's recorded sequence (defaulting to 0xFFFFFFFF).
func (p *Packet) Finalize() (*wire.MsgTx, error) {
	if !p.IsReadyToFinalize() {
		return nil, newErr(NotReady, "not every input has final signature data", nil)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	tx := wire.NewMsgTx(2)
	if p.FallbackLocktime != nil {
		tx.LockTime = *p.FallbackLocktime
	}

	for _, in := range p.Inputs {
		seq := DefaultSequence
		if in.Sequence != nil {
			seq = *in.Sequence
		}
		outpoint := wire.NewOutPoint(&in.PreviousTxid, in.OutputIndex)
		txIn := wire.NewTxIn(outpoint, nil, nil)
		txIn.Sequence = seq

		if in.FinalScriptSig != nil {
			txIn.SignatureScript = in.FinalScriptSig
		}
		if in.FinalScriptWitness != nil {
			txIn.Witness = wire.TxWitness(in.FinalScriptWitness)
		}
		tx.AddTxIn(txIn)
	}

	for _, out := range p.Outputs {
		tx.AddTxOut(wire.NewTxOut(out.Amount, out.Script))
	}

	return tx, nil
}
