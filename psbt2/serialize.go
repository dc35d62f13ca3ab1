package psbt2

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Magic is the 5-byte PSBT magic: ASCII "psbt" followed by 0xff.
var Magic = []byte{0x70, 0x73, 0x62, 0x74, 0xff}

// Key-type bytes, BIP-174 plus the BIP-370 v2 additions.
const (
	keyGlobalTxVersion        = 0x02
	keyGlobalFallbackLocktime = 0x03
	keyGlobalInputCount       = 0x04
	keyGlobalOutputCount      = 0x05
	keyGlobalVersion          = 0xFB

	keyInNonWitnessUtxo         = 0x00
	keyInWitnessUtxo            = 0x01
	keyInPartialSig             = 0x02
	keyInSighashType            = 0x03
	keyInRedeemScript           = 0x04
	keyInWitnessScript          = 0x05
	keyInBip32Derivation        = 0x06
	keyInFinalScriptSig         = 0x07
	keyInFinalScriptWitness     = 0x08
	keyInPreviousTxid           = 0x0e
	keyInOutputIndex            = 0x0f
	keyInSequence               = 0x10
	keyInRequiredTimeLocktime   = 0x11
	keyInRequiredHeightLocktime = 0x12
	keyInTapKeySig              = 0x13
	keyInTapScriptSig           = 0x14
	keyInTapLeafScript          = 0x15
	keyInTapBip32Derivation     = 0x16
	keyInTapInternalKey         = 0x17
	keyInTapMerkleRoot          = 0x18

	keyOutRedeemScript       = 0x00
	keyOutWitnessScript      = 0x01
	keyOutBip32Derivation    = 0x02
	keyOutAmount             = 0x03
	keyOutScript             = 0x04
	keyOutTapInternalKey     = 0x05
	keyOutTapTree            = 0x06
	keyOutTapBip32Derivation = 0x07
)

func writeCompactSize(w io.Writer, v uint64) error {
	return wire.WriteVarInt(w, 0, v)
}

func readCompactSize(r io.Reader) (uint64, error) {
	return wire.ReadVarInt(r, 0)
}

func writeKV(w io.Writer, key, value []byte) error {
	if err := writeCompactSize(w, uint64(len(key))); err != nil {
		return err
	}
	if _, err := w.Write(key); err != nil {
		return err
	}
	if err := writeCompactSize(w, uint64(len(value))); err != nil {
		return err
	}
	_, err := w.Write(value)
	return err
}

func writeSeparator(w io.Writer) error {
	return writeCompactSize(w, 0)
}

func uint32LE(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func parseUint32LE(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, newErr(Malformed, fmt.Sprintf("expected 4-byte field, got %d", len(b)), nil)
	}
	return binary.LittleEndian.Uint32(b), nil
}

// serializeTxOut encodes a wire.TxOut the way it appears inline within a
// transaction: 8-byte LE value, compact-size script length, script bytes.
func serializeTxOut(out *wire.TxOut) []byte {
	var buf bytes.Buffer
	var val [8]byte
	binary.LittleEndian.PutUint64(val[:], uint64(out.Value))
	buf.Write(val[:])
	writeCompactSize(&buf, uint64(len(out.PkScript)))
	buf.Write(out.PkScript)
	return buf.Bytes()
}

func parseTxOut(b []byte) (*wire.TxOut, error) {
	r := bytes.NewReader(b)
	var val [8]byte
	if _, err := io.ReadFull(r, val[:]); err != nil {
		return nil, newErr(Malformed, "failed to read txout value", err)
	}
	scriptLen, err := readCompactSize(r)
	if err != nil {
		return nil, newErr(Malformed, "failed to read txout script length", err)
	}
	script := make([]byte, scriptLen)
	if _, err := io.ReadFull(r, script); err != nil {
		return nil, newErr(Malformed, "failed to read txout script", err)
	}
	return &wire.TxOut{Value: int64(binary.LittleEndian.Uint64(val[:])), PkScript: script}, nil
}

func serializeBip32(fp [4]byte, path []uint32) []byte {
	buf := make([]byte, 0, 4+4*len(path))
	buf = append(buf, fp[:]...)
	for _, seg := range path {
		buf = append(buf, uint32LE(seg)...)
	}
	return buf
}

func parseBip32Value(value []byte) (fp [4]byte, path []uint32, err error) {
	if len(value) < 4 || (len(value)-4)%4 != 0 {
		return fp, nil, newErr(Malformed, "malformed bip32 derivation value", nil)
	}
	copy(fp[:], value[:4])
	for off := 4; off < len(value); off += 4 {
		seg, err := parseUint32LE(value[off : off+4])
		if err != nil {
			return fp, nil, err
		}
		path = append(path, seg)
	}
	return fp, path, nil
}

func serializeTapBip32(d TapBip32Derivation) []byte {
	var buf bytes.Buffer
	writeCompactSize(&buf, uint64(len(d.LeafHashes)))
	for _, h := range d.LeafHashes {
		buf.Write(h)
	}
	buf.Write(serializeBip32(d.MasterFingerprint, d.Path))
	return buf.Bytes()
}

func parseTapBip32Value(value []byte) (TapBip32Derivation, error) {
	r := bytes.NewReader(value)
	n, err := readCompactSize(r)
	if err != nil {
		return TapBip32Derivation{}, newErr(Malformed, "failed to read tap bip32 leaf count", err)
	}
	d := TapBip32Derivation{}
	for i := uint64(0); i < n; i++ {
		h := make([]byte, 32)
		if _, err := io.ReadFull(r, h); err != nil {
			return TapBip32Derivation{}, newErr(Malformed, "failed to read tap leaf hash", err)
		}
		d.LeafHashes = append(d.LeafHashes, h)
	}
	rest, err := io.ReadAll(r)
	if err != nil {
		return TapBip32Derivation{}, newErr(Malformed, "failed to read tap bip32 remainder", err)
	}
	fp, path, err := parseBip32Value(rest)
	if err != nil {
		return TapBip32Derivation{}, err
	}
	d.MasterFingerprint = fp
	d.Path = path
	return d, nil
}

// Serialize encodes the packet per BIP-174 plus the BIP-370 v2 additions.
func (p *Packet) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(Magic)

	writeKV(&buf, []byte{keyGlobalTxVersion}, uint32LE(2))
	if p.FallbackLocktime != nil {
		writeKV(&buf, []byte{keyGlobalFallbackLocktime}, uint32LE(*p.FallbackLocktime))
	}
	var cs bytes.Buffer
	writeCompactSize(&cs, uint64(p.InputCount()))
	writeKV(&buf, []byte{keyGlobalInputCount}, cs.Bytes())
	cs.Reset()
	writeCompactSize(&cs, uint64(p.OutputCount()))
	writeKV(&buf, []byte{keyGlobalOutputCount}, cs.Bytes())
	writeKV(&buf, []byte{keyGlobalVersion}, uint32LE(2))
	writeSeparator(&buf)

	for _, in := range p.Inputs {
		if err := serializeInput(&buf, in); err != nil {
			return nil, err
		}
		writeSeparator(&buf)
	}

	for _, out := range p.Outputs {
		if err := serializeOutput(&buf, out); err != nil {
			return nil, err
		}
		writeSeparator(&buf)
	}

	return buf.Bytes(), nil
}

func serializeInput(buf *bytes.Buffer, in Input) error {
	writeKV(buf, []byte{keyInPreviousTxid}, in.PreviousTxid[:])
	writeKV(buf, []byte{keyInOutputIndex}, uint32LE(in.OutputIndex))
	if in.Sequence != nil {
		writeKV(buf, []byte{keyInSequence}, uint32LE(*in.Sequence))
	}
	if in.WitnessUtxo != nil {
		writeKV(buf, []byte{keyInWitnessUtxo}, serializeTxOut(in.WitnessUtxo))
	}
	if in.NonWitnessUtxo != nil {
		var txBuf bytes.Buffer
		if err := in.NonWitnessUtxo.Serialize(&txBuf); err != nil {
			return newErr(InvalidPSBT, "failed to serialize non-witness utxo", err)
		}
		writeKV(buf, []byte{keyInNonWitnessUtxo}, txBuf.Bytes())
	}
	if in.RedeemScript != nil {
		writeKV(buf, []byte{keyInRedeemScript}, in.RedeemScript)
	}
	if in.WitnessScript != nil {
		writeKV(buf, []byte{keyInWitnessScript}, in.WitnessScript)
	}
	for pubkeyHex, sig := range in.PartialSigs {
		pubkey, err := hexDecode(pubkeyHex)
		if err != nil {
			return err
		}
		key := append([]byte{keyInPartialSig}, pubkey...)
		writeKV(buf, key, sig)
	}
	if in.SighashType != nil {
		writeKV(buf, []byte{keyInSighashType}, uint32LE(*in.SighashType))
	}
	for _, d := range in.Bip32Derivations {
		key := append([]byte{keyInBip32Derivation}, d.PubKey...)
		writeKV(buf, key, serializeBip32(d.MasterFingerprint, d.Path))
	}
	if in.FinalScriptSig != nil {
		writeKV(buf, []byte{keyInFinalScriptSig}, in.FinalScriptSig)
	}
	if in.FinalScriptWitness != nil {
		var wbuf bytes.Buffer
		writeCompactSize(&wbuf, uint64(len(in.FinalScriptWitness)))
		for _, item := range in.FinalScriptWitness {
			writeCompactSize(&wbuf, uint64(len(item)))
			wbuf.Write(item)
		}
		writeKV(buf, []byte{keyInFinalScriptWitness}, wbuf.Bytes())
	}
	if in.RequiredTimeLock != nil {
		writeKV(buf, []byte{keyInRequiredTimeLocktime}, uint32LE(*in.RequiredTimeLock))
	}
	if in.RequiredHeightLock != nil {
		writeKV(buf, []byte{keyInRequiredHeightLocktime}, uint32LE(*in.RequiredHeightLock))
	}
	if in.TapKeySig != nil {
		writeKV(buf, []byte{keyInTapKeySig}, in.TapKeySig)
	}
	for pubkeyHex, sig := range in.TapScriptSigs {
		pubkey, err := hexDecode(pubkeyHex)
		if err != nil {
			return err
		}
		key := append([]byte{keyInTapScriptSig}, pubkey...)
		writeKV(buf, key, sig)
	}
	for controlHex, script := range in.TapLeafScripts {
		control, err := hexDecode(controlHex)
		if err != nil {
			return err
		}
		key := append([]byte{keyInTapLeafScript}, control...)
		writeKV(buf, key, script)
	}
	for _, d := range in.TapBip32Deriv {
		key := append([]byte{keyInTapBip32Derivation}, d.PubKey...)
		writeKV(buf, key, serializeTapBip32(d))
	}
	if in.TapInternalKey != nil {
		writeKV(buf, []byte{keyInTapInternalKey}, in.TapInternalKey)
	}
	if in.TapMerkleRoot != nil {
		writeKV(buf, []byte{keyInTapMerkleRoot}, in.TapMerkleRoot)
	}
	return nil
}

func serializeOutput(buf *bytes.Buffer, out Output) error {
	var amt [8]byte
	binary.LittleEndian.PutUint64(amt[:], uint64(out.Amount))
	writeKV(buf, []byte{keyOutAmount}, amt[:])
	writeKV(buf, []byte{keyOutScript}, out.Script)
	if out.RedeemScript != nil {
		writeKV(buf, []byte{keyOutRedeemScript}, out.RedeemScript)
	}
	if out.WitnessScript != nil {
		writeKV(buf, []byte{keyOutWitnessScript}, out.WitnessScript)
	}
	for _, d := range out.Bip32Derivations {
		key := append([]byte{keyOutBip32Derivation}, d.PubKey...)
		writeKV(buf, key, serializeBip32(d.MasterFingerprint, d.Path))
	}
	if out.TapInternalKey != nil {
		writeKV(buf, []byte{keyOutTapInternalKey}, out.TapInternalKey)
	}
	if out.TapTree != nil {
		writeKV(buf, []byte{keyOutTapTree}, out.TapTree)
	}
	return nil
}

// Parse decodes a serialized PSBT v2 packet. parse(serialize(x)) == x for
// every well-formed x.
func Parse(data []byte) (*Packet, error) {
	r := bytes.NewReader(data)

	magic := make([]byte, len(Magic))
	if _, err := io.ReadFull(r, magic); err != nil || !bytes.Equal(magic, Magic) {
		return nil, newErr(Malformed, "bad PSBT magic", nil)
	}

	p := &Packet{Version: 2}
	var inputCount, outputCount uint64
	haveInputCount, haveOutputCount := false, false

	for {
		key, value, isSep, err := readKV(r)
		if err != nil {
			return nil, err
		}
		if isSep {
			break
		}
		if len(key) == 0 {
			return nil, newErr(Malformed, "empty global key", nil)
		}
		switch key[0] {
		case keyGlobalTxVersion:
			// informational; this package always writes/reads version 2
		case keyGlobalFallbackLocktime:
			v, err := parseUint32LE(value)
			if err != nil {
				return nil, err
			}
			p.FallbackLocktime = &v
		case keyGlobalInputCount:
			v, err := readCompactSize(bytes.NewReader(value))
			if err != nil {
				return nil, newErr(Malformed, "bad input count", err)
			}
			inputCount = v
			haveInputCount = true
		case keyGlobalOutputCount:
			v, err := readCompactSize(bytes.NewReader(value))
			if err != nil {
				return nil, newErr(Malformed, "bad output count", err)
			}
			outputCount = v
			haveOutputCount = true
		case keyGlobalVersion:
			v, err := parseUint32LE(value)
			if err != nil {
				return nil, err
			}
			if v != 2 {
				return nil, newErr(InvalidPSBT, fmt.Sprintf("unsupported PSBT version %d", v), nil)
			}
		}
	}
	if !haveInputCount || !haveOutputCount {
		return nil, newErr(InvalidPSBT, "missing mandatory input/output count globals", nil)
	}

	for i := uint64(0); i < inputCount; i++ {
		in, err := parseInput(r)
		if err != nil {
			return nil, err
		}
		p.Inputs = append(p.Inputs, *in)
	}

	for i := uint64(0); i < outputCount; i++ {
		out, err := parseOutput(r)
		if err != nil {
			return nil, err
		}
		p.Outputs = append(p.Outputs, *out)
	}

	return p, nil
}

func parseInput(r *bytes.Reader) (*Input, error) {
	in := &Input{PartialSigs: make(map[string][]byte)}
	var havePrevTxid, haveOutputIndex bool

	for {
		key, value, isSep, err := readKV(r)
		if err != nil {
			return nil, err
		}
		if isSep {
			break
		}
		if len(key) == 0 {
			return nil, newErr(Malformed, "empty input key", nil)
		}
		keyType, keyData := key[0], key[1:]

		switch keyType {
		case keyInPreviousTxid:
			h, err := chainhash.NewHash(value)
			if err != nil {
				return nil, newErr(Malformed, "bad previous txid", err)
			}
			in.PreviousTxid = *h
			havePrevTxid = true
		case keyInOutputIndex:
			v, err := parseUint32LE(value)
			if err != nil {
				return nil, err
			}
			in.OutputIndex = v
			haveOutputIndex = true
		case keyInSequence:
			v, err := parseUint32LE(value)
			if err != nil {
				return nil, err
			}
			in.Sequence = &v
		case keyInWitnessUtxo:
			out, err := parseTxOut(value)
			if err != nil {
				return nil, err
			}
			in.WitnessUtxo = out
		case keyInNonWitnessUtxo:
			tx := wire.NewMsgTx(wire.TxVersion)
			if err := tx.Deserialize(bytes.NewReader(value)); err != nil {
				return nil, newErr(Malformed, "bad non-witness utxo", err)
			}
			in.NonWitnessUtxo = tx
		case keyInRedeemScript:
			in.RedeemScript = value
		case keyInWitnessScript:
			in.WitnessScript = value
		case keyInPartialSig:
			in.PartialSigs[hexEncode(keyData)] = value
		case keyInSighashType:
			v, err := parseUint32LE(value)
			if err != nil {
				return nil, err
			}
			in.SighashType = &v
		case keyInBip32Derivation:
			fp, path, err := parseBip32Value(value)
			if err != nil {
				return nil, err
			}
			in.Bip32Derivations = append(in.Bip32Derivations, Bip32Derivation{PubKey: keyData, MasterFingerprint: fp, Path: path})
		case keyInFinalScriptSig:
			in.FinalScriptSig = value
		case keyInFinalScriptWitness:
			items, err := parseWitnessStack(value)
			if err != nil {
				return nil, err
			}
			in.FinalScriptWitness = items
		case keyInRequiredTimeLocktime:
			v, err := parseUint32LE(value)
			if err != nil {
				return nil, err
			}
			in.RequiredTimeLock = &v
		case keyInRequiredHeightLocktime:
			v, err := parseUint32LE(value)
			if err != nil {
				return nil, err
			}
			in.RequiredHeightLock = &v
		case keyInTapKeySig:
			in.TapKeySig = value
		case keyInTapScriptSig:
			if in.TapScriptSigs == nil {
				in.TapScriptSigs = make(map[string][]byte)
			}
			in.TapScriptSigs[hexEncode(keyData)] = value
		case keyInTapLeafScript:
			if in.TapLeafScripts == nil {
				in.TapLeafScripts = make(map[string][]byte)
			}
			in.TapLeafScripts[hexEncode(keyData)] = value
		case keyInTapBip32Derivation:
			d, err := parseTapBip32Value(value)
			if err != nil {
				return nil, err
			}
			d.PubKey = keyData
			in.TapBip32Deriv = append(in.TapBip32Deriv, d)
		case keyInTapInternalKey:
			in.TapInternalKey = value
		case keyInTapMerkleRoot:
			in.TapMerkleRoot = value
		}
	}

	if !havePrevTxid || !haveOutputIndex {
		return nil, newErr(InvalidPSBT, "input missing mandatory previous_txid/output_index", nil)
	}
	return in, nil
}

func parseOutput(r *bytes.Reader) (*Output, error) {
	out := &Output{}
	var haveAmount, haveScript bool

	for {
		key, value, isSep, err := readKV(r)
		if err != nil {
			return nil, err
		}
		if isSep {
			break
		}
		if len(key) == 0 {
			return nil, newErr(Malformed, "empty output key", nil)
		}
		keyType, keyData := key[0], key[1:]

		switch keyType {
		case keyOutAmount:
			if len(value) != 8 {
				return nil, newErr(Malformed, "bad output amount", nil)
			}
			out.Amount = int64(binary.LittleEndian.Uint64(value))
			haveAmount = true
		case keyOutScript:
			out.Script = value
			haveScript = true
		case keyOutRedeemScript:
			out.RedeemScript = value
		case keyOutWitnessScript:
			out.WitnessScript = value
		case keyOutBip32Derivation:
			fp, path, err := parseBip32Value(value)
			if err != nil {
				return nil, err
			}
			out.Bip32Derivations = append(out.Bip32Derivations, Bip32Derivation{PubKey: keyData, MasterFingerprint: fp, Path: path})
		case keyOutTapInternalKey:
			out.TapInternalKey = value
		case keyOutTapTree:
			out.TapTree = value
		}
	}

	if !haveAmount || !haveScript {
		return nil, newErr(InvalidPSBT, "output missing mandatory amount/script", nil)
	}
	return out, nil
}

func parseWitnessStack(value []byte) ([][]byte, error) {
	r := bytes.NewReader(value)
	n, err := readCompactSize(r)
	if err != nil {
		return nil, newErr(Malformed, "bad witness stack count", err)
	}
	items := make([][]byte, 0, n)
	for i := uint64(0); i < n; i++ {
		itemLen, err := readCompactSize(r)
		if err != nil {
			return nil, newErr(Malformed, "bad witness item length", err)
		}
		item := make([]byte, itemLen)
		if _, err := io.ReadFull(r, item); err != nil {
			return nil, newErr(Malformed, "bad witness item", err)
		}
		items = append(items, item)
	}
	return items, nil
}

// readKV reads one key-value pair. A zero-length key signals the map
// separator.
func readKV(r *bytes.Reader) (key, value []byte, isSep bool, err error) {
	keyLen, err := readCompactSize(r)
	if err != nil {
		return nil, nil, false, newErr(Malformed, "failed to read key length", err)
	}
	if keyLen == 0 {
		return nil, nil, true, nil
	}
	key = make([]byte, keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, nil, false, newErr(Malformed, "failed to read key", err)
	}
	valLen, err := readCompactSize(r)
	if err != nil {
		return nil, nil, false, newErr(Malformed, "failed to read value length", err)
	}
	value = make([]byte, valLen)
	if _, err := io.ReadFull(r, value); err != nil {
		return nil, nil, false, newErr(Malformed, "failed to read value", err)
	}
	return key, value, false, nil
}

func hexEncode(b []byte) string {
	return hex.EncodeToString(b)
}

func hexDecode(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, newErr(Malformed, "invalid hex string", err)
	}
	return b, nil
}
