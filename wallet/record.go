package wallet

// EncryptedSeed is the AEAD-sealed wallet seed as persisted in a
// WalletRecord: a 96-bit nonce and the ciphertext it was sealed under.
type EncryptedSeed struct {
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// WalletRecord is the persisted form of a wallet: the sealed seed key
// material is reconstructed from, identity, descriptors, and user notes. It
// carries no issuance counters or issued-address list. Field layout matches
// the storage record schema verbatim.
type WalletRecord struct {
	ID            string            `json:"id"`
	Label         string            `json:"label"`
	EncryptedSeed EncryptedSeed     `json:"encrypted_seed"`
	Descriptors   []string          `json:"descriptors"`
	AddressBook   map[string]string `json:"address_book"`
	TxComments    map[string]string `json:"tx_comments"`
	CreatedAt     uint64            `json:"created_at"`
	ModifiedAt    uint64            `json:"modified_at"`
	Version       uint32            `json:"version"`
}

// RecordVersion is the only schema version this module writes or reads.
const RecordVersion = 1

// NewRecord builds a fresh record with empty note maps and the current
// schema version. Callers fill in EncryptedSeed/Descriptors.
func NewRecord(id, label string, now uint64) *WalletRecord {
	return &WalletRecord{
		ID:          id,
		Label:       label,
		AddressBook: make(map[string]string),
		TxComments:  make(map[string]string),
		CreatedAt:   now,
		ModifiedAt:  now,
		Version:     RecordVersion,
	}
}

// SetAddressNote attaches or replaces a note for an address and bumps
// ModifiedAt.
func (r *WalletRecord) SetAddressNote(address, note string, now uint64) {
	if r.AddressBook == nil {
		r.AddressBook = make(map[string]string)
	}
	r.AddressBook[address] = note
	r.ModifiedAt = now
}

// SetTxComment attaches or replaces a comment for a txid (hex) and bumps
// ModifiedAt.
func (r *WalletRecord) SetTxComment(txidHex, comment string, now uint64) {
	if r.TxComments == nil {
		r.TxComments = make(map[string]string)
	}
	r.TxComments[txidHex] = comment
	r.ModifiedAt = now
}

