// Package wallet composes the key ledger (hdkeys), address ledger
// (addresses), and UTXO set (utxoset) into a single wallet, and glues the
// result to encrypted, durable storage (crypto, storage) per the
// single-owner/cooperative concurrency model.
package wallet

import (
	"sync"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/dan/btc-wallet-core/addresses"
	"github.com/dan/btc-wallet-core/crypto"
	"github.com/dan/btc-wallet-core/hdkeys"
	"github.com/dan/btc-wallet-core/utxoset"
)

// Wallet is the root of a wallet's in-memory state: one key ledger, one
// address ledger, one UTXO set, plus the note-taking metadata a
// WalletRecord persists. Mutating operations take the write lock; reads
// take the read lock, matching the single-owner/cooperative model.
//
// The persisted record schema carries the seed, label, descriptors,
// and notes, but no per-family issuance counters or issued-address list;
// FromRecord therefore reconstructs a wallet with fresh (zeroed) issuance
// counters. Addresses already handed out to a counterparty are not lost
// (they remain derivable from the same seed and path), but the ledger does
// not remember having issued them until asked again.
type Wallet struct {
	mu sync.RWMutex

	id      string
	label   string
	network hdkeys.Network
	params  *chaincfg.Params

	seed  []byte
	keys  *hdkeys.KeyLedger
	addrs *addresses.Ledger
	utxos *utxoset.Set

	descriptors []string
	addressBook map[string]string
	txComments  map[string]string

	createdAt  uint64
	modifiedAt uint64
}

// New creates a fresh wallet over seed, bound to network, with id/label and
// a creation timestamp supplied by the caller (the core samples no wall
// clock internally, keeping wallet construction deterministic).
func New(id, label string, seed []byte, network hdkeys.Network, now uint64) (*Wallet, error) {
	keys, err := hdkeys.NewLedger(seed, network)
	if err != nil {
		return nil, err
	}
	params, err := hdkeys.Params(network)
	if err != nil {
		return nil, err
	}

	seedCopy := make([]byte, len(seed))
	copy(seedCopy, seed)

	return &Wallet{
		id:          id,
		label:       label,
		network:     network,
		params:      params,
		seed:        seedCopy,
		keys:        keys,
		addrs:       addresses.NewLedger(keys, params),
		utxos:       utxoset.NewSet(),
		addressBook: make(map[string]string),
		txComments:  make(map[string]string),
		createdAt:   now,
		modifiedAt:  now,
	}, nil
}

// FromRecord reconstructs a wallet from a previously-saved record, using
// sealKey to decrypt the seed (AuthFailure surfaces on tag mismatch).
func FromRecord(rec *WalletRecord, sealKey *crypto.SecureKey, network hdkeys.Network) (*Wallet, error) {
	seed, err := crypto.Decrypt(sealKey, &crypto.EncryptedData{Nonce: rec.EncryptedSeed.Nonce, Ciphertext: rec.EncryptedSeed.Ciphertext}, nil)
	if err != nil {
		return nil, err
	}

	w, err := New(rec.ID, rec.Label, seed, network, rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	w.modifiedAt = rec.ModifiedAt
	w.descriptors = append([]string(nil), rec.Descriptors...)
	w.addressBook = copyStringMap(rec.AddressBook)
	w.txComments = copyStringMap(rec.TxComments)
	return w, nil
}

// ID, Label, Network expose the wallet's identity without requiring the
// caller to hold the lock.
func (w *Wallet) ID() string              { return w.id }
func (w *Wallet) Label() string           { return w.label }
func (w *Wallet) Network() hdkeys.Network { return w.network }

// KeyLedger and Addresses expose the composed ledgers for callers that need
// to pass them into txbuilder directly (Build/BuildConsolidation/Sign all
// take these types by value/pointer, not the Wallet itself, keeping the
// transaction-construction surface decoupled from wallet locking).
func (w *Wallet) KeyLedger() *hdkeys.KeyLedger { return w.keys }
func (w *Wallet) Addresses() *addresses.Ledger { return w.addrs }

// NewReceiveAddress issues the next receive address for family under the
// write lock.
func (w *Wallet) NewReceiveAddress(family addresses.Family) (*addresses.Record, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.addrs.NewReceiveAddress(family)
}

// NewChangeAddress issues the next change address for family under the
// write lock. txbuilder.Build calls this itself when it needs a change
// output; exposed here too for callers issuing addresses directly.
func (w *Wallet) NewChangeAddress(family addresses.Family) (*addresses.Record, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.addrs.NewChangeAddress(family)
}

// Owns reports whether address was issued by this wallet.
func (w *Wallet) Owns(address string) (*addresses.Record, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.addrs.Owns(address)
}

// AddUTXO ingests utxo, idempotent on (txid, vout).
func (w *Wallet) AddUTXO(u utxoset.UTXO) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.utxos.Add(u)
}

// RemoveUTXO drops the UTXO at outpoint, e.g. once a spend confirms.
func (w *Wallet) RemoveUTXO(outpoint utxoset.Outpoint) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.utxos.Remove(outpoint)
}

// Balance returns the confirmed/unconfirmed balance split under the read
// lock.
func (w *Wallet) Balance() utxoset.Balance {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.utxos.Balance()
}

// Spendable returns UTXOs usable as build inputs given currentHeight and a
// minimum confirmation depth.
func (w *Wallet) Spendable(currentHeight uint32, minConfirmations uint32) []utxoset.UTXO {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.utxos.Spendable(currentHeight, minConfirmations)
}

// AllUTXOs returns every tracked UTXO in unspecified order.
func (w *Wallet) AllUTXOs() []utxoset.UTXO {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.utxos.All()
}

// SetAddressNote attaches a note to address in the persisted address book.
func (w *Wallet) SetAddressNote(address, note string, now uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.addressBook == nil {
		w.addressBook = make(map[string]string)
	}
	w.addressBook[address] = note
	w.modifiedAt = now
}

// SetTxComment attaches a comment to a txid (hex) in the persisted comment
// map.
func (w *Wallet) SetTxComment(txidHex, comment string, now uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.txComments == nil {
		w.txComments = make(map[string]string)
	}
	w.txComments[txidHex] = comment
	w.modifiedAt = now
}

// AddDescriptor appends a new output-script descriptor string to the
// wallet's descriptor list (e.g. an externally-imported watch-only
// template); duplicates are not filtered, matching how the descriptor list
// is a plain append-only log in the persisted record.
func (w *Wallet) AddDescriptor(descriptor string, now uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.descriptors = append(w.descriptors, descriptor)
	w.modifiedAt = now
}

// ToRecord snapshots the wallet's persisted fields into a WalletRecord,
// sealing the seed under sealKey with empty AAD.
func (w *Wallet) ToRecord(sealKey *crypto.SecureKey) (*WalletRecord, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	sealed, err := crypto.Encrypt(sealKey, w.seed, nil)
	if err != nil {
		return nil, err
	}

	return &WalletRecord{
		ID:            w.id,
		Label:         w.label,
		EncryptedSeed: EncryptedSeed{Nonce: sealed.Nonce, Ciphertext: sealed.Ciphertext},
		Descriptors:   append([]string(nil), w.descriptors...),
		AddressBook:   copyStringMap(w.addressBook),
		TxComments:    copyStringMap(w.txComments),
		CreatedAt:     w.createdAt,
		ModifiedAt:    w.modifiedAt,
		Version:       RecordVersion,
	}, nil
}

func copyStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
