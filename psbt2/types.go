// Package psbt2 implements a BIP-174 + BIP-370 (PSBT v2) partial
// transaction record: a pure data structure with constructors and
// accessors, no I/O. Inputs and outputs may be added independently of one
// another, the defining feature PSBT v2 adds over v0.
package psbt2

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Bip32Derivation records the origin of a key used in an input or output:
// the master-key fingerprint and the full derivation path from it.
type Bip32Derivation struct {
	PubKey            []byte
	MasterFingerprint [4]byte
	Path              []uint32
}

// TapBip32Derivation is the taproot-flavored analogue of Bip32Derivation,
// additionally recording which leaf hashes (if any) the key participates
// in. Script-path spending is not exercised by this implementation; the
// field exists so a packet round-trips key-path-only taproot inputs that
// still attach leaf-hash metadata.
type TapBip32Derivation struct {
	PubKey            []byte // x-only, 32 bytes
	LeafHashes        [][]byte
	MasterFingerprint [4]byte
	Path              []uint32
}

// Input is a single PSBT v2 input record.
type Input struct {
	PreviousTxid       chainhash.Hash
	OutputIndex        uint32
	Sequence           *uint32
	WitnessUtxo        *wire.TxOut
	NonWitnessUtxo     *wire.MsgTx
	RedeemScript       []byte
	WitnessScript      []byte
	PartialSigs        map[string][]byte // pubkey-hex -> DER sig || sighash byte
	Bip32Derivations   []Bip32Derivation
	SighashType        *uint32
	TapKeySig          []byte
	TapScriptSigs      map[string][]byte
	TapLeafScripts     map[string][]byte
	TapBip32Deriv      []TapBip32Derivation
	TapInternalKey     []byte
	TapMerkleRoot      []byte
	RequiredTimeLock   *uint32
	RequiredHeightLock *uint32

	FinalScriptSig     []byte
	FinalScriptWitness [][]byte
}

// Output is a single PSBT v2 output record.
type Output struct {
	Amount           int64
	Script           []byte
	RedeemScript     []byte
	WitnessScript    []byte
	Bip32Derivations []Bip32Derivation
	TapInternalKey   []byte
	TapTree          []byte
}

// Packet is a complete PSBT v2 record: version, input/output counts, an
// optional fallback locktime, and the input/output vectors.
type Packet struct {
	Version          uint32
	FallbackLocktime *uint32
	Inputs           []Input
	Outputs          []Output
}

// NewPacket creates an empty version-2 packet.
func NewPacket() *Packet {
	return &Packet{Version: 2}
}

// InputCount returns |inputs|, which must equal the serialized
// PSBT_GLOBAL_INPUT_COUNT field.
func (p *Packet) InputCount() uint32 { return uint32(len(p.Inputs)) }

// OutputCount returns |outputs|, which must equal the serialized
// PSBT_GLOBAL_OUTPUT_COUNT field.
func (p *Packet) OutputCount() uint32 { return uint32(len(p.Outputs)) }
