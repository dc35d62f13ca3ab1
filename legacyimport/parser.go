package legacyimport

import (
	"encoding/binary"
	"encoding/hex"
)

const (
	entryTypeAddressKey  = 1
	entryTypeAddressNote = 2
	entryTypeTxComment   = 3

	entryTypeLen = 4
	hashLen      = 20
)

// AddressKeyEntry is a type-1 entry: an address/key record. The importer
// does not reconstruct the legacy linear derivation, so the key material
// itself is kept opaque; only the address hash and type byte are surfaced.
type AddressKeyEntry struct {
	AddressHash160 [20]byte
	AddressType    byte
	KeyMaterial    []byte
}

// ParsedWallet is the fully decoded legacy file: header plus entry stream.
type ParsedWallet struct {
	Header      Header
	AddressKeys []AddressKeyEntry
	// AddressNotes maps hex(address_hash160) -> note.
	AddressNotes map[string]string
	// TxComments maps hex(txid) -> comment.
	TxComments map[string]string
}

// Parse decodes a full legacy wallet file: fixed header, then the typed
// entry stream. EOF exactly at an entry boundary is success; EOF partway
// through an entry is Truncated. An entry type outside {1,2,3} aborts the
// import with InvalidFormat, per the unresolved open question on stricter
// vs. more lenient handling (kept conservative).
func Parse(data []byte) (*ParsedWallet, error) {
	header, err := parseHeader(data)
	if err != nil {
		return nil, err
	}

	w := &ParsedWallet{
		Header:       *header,
		AddressNotes: make(map[string]string),
		TxComments:   make(map[string]string),
	}

	cursor := offEntries
	for cursor < len(data) {
		if len(data)-cursor < entryTypeLen {
			return nil, newErr(Truncated, "file ends mid entry-type field", nil)
		}
		entryType := binary.LittleEndian.Uint32(data[cursor : cursor+entryTypeLen])
		cursor += entryTypeLen

		if len(data)-cursor < hashLen {
			return nil, newErr(Truncated, "file ends mid address-hash field", nil)
		}
		var hash [20]byte
		copy(hash[:], data[cursor:cursor+hashLen])
		cursor += hashLen

		switch entryType {
		case entryTypeAddressKey:
			if len(data)-cursor < 1 {
				return nil, newErr(Truncated, "file ends mid address-key entry", nil)
			}
			addrType := data[cursor]
			cursor++
			payload, next, err := readLengthPrefixed(data, cursor)
			if err != nil {
				return nil, err
			}
			cursor = next
			w.AddressKeys = append(w.AddressKeys, AddressKeyEntry{
				AddressHash160: hash,
				AddressType:    addrType,
				KeyMaterial:    payload,
			})

		case entryTypeAddressNote:
			note, next, err := readLengthPrefixed(data, cursor)
			if err != nil {
				return nil, err
			}
			cursor = next
			w.AddressNotes[hex.EncodeToString(hash[:])] = string(note)

		case entryTypeTxComment:
			// The 20-byte "address hash" slot holds the first 20 bytes of a
			// 32-byte txid; the remaining 12 bytes precede the length field.
			if len(data)-cursor < 12 {
				return nil, newErr(Truncated, "file ends mid tx-comment txid tail", nil)
			}
			var txid [32]byte
			copy(txid[:20], hash[:])
			copy(txid[20:], data[cursor:cursor+12])
			cursor += 12

			comment, next, err := readLengthPrefixed(data, cursor)
			if err != nil {
				return nil, err
			}
			cursor = next
			w.TxComments[hex.EncodeToString(txid[:])] = string(comment)

		default:
			return nil, newErr(InvalidFormat, "unrecognized legacy entry type", nil)
		}
	}

	return w, nil
}

// readLengthPrefixed reads a (u32 LE length, bytes) pair starting at
// offset, returning the payload and the cursor position after it.
func readLengthPrefixed(data []byte, offset int) ([]byte, int, error) {
	if len(data)-offset < 4 {
		return nil, 0, newErr(Truncated, "file ends mid length-prefixed field", nil)
	}
	length := binary.LittleEndian.Uint32(data[offset : offset+4])
	offset += 4
	if uint32(len(data)-offset) < length {
		return nil, 0, newErr(Truncated, "file ends mid length-prefixed payload", nil)
	}
	payload := make([]byte, length)
	copy(payload, data[offset:offset+int(length)])
	return payload, offset + int(length), nil
}
