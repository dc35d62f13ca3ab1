// Package utxoset tracks a wallet's unspent outputs and transaction
// history.
package utxoset

import (
	"github.com/dan/btc-wallet-core/hdkeys"
)

// Outpoint identifies a transaction output by (txid, vout).
type Outpoint struct {
	Txid string
	Vout uint32
}

// UTXO is a single unspent output owned by the wallet. RawPrevTx holds the
// serialized transaction that created this output; it is required to spend
// legacy (pre-segwit) outputs, whose signatures commit to the entire
// previous transaction, and may be left nil for segwit outputs.
type UTXO struct {
	Outpoint           Outpoint
	Value              int64
	ScriptPubKey       []byte
	OwningPath         hdkeys.Path
	ConfirmationHeight uint32 // 0 means unconfirmed
	RawPrevTx          []byte
}

// Confirmed reports whether this UTXO has a confirmation height recorded.
func (u UTXO) Confirmed() bool { return u.ConfirmationHeight > 0 }

// Set is a UTXO set keyed by (txid, vout). Ingestion is idempotent:
// re-adding the same outpoint is a no-op.
type Set struct {
	utxos map[Outpoint]UTXO
}

// NewSet creates an empty UTXO set.
func NewSet() *Set {
	return &Set{utxos: make(map[Outpoint]UTXO)}
}

// Add inserts utxo if its outpoint is not already present. Re-ingesting an
// outpoint already in the set is a no-op.
func (s *Set) Add(utxo UTXO) {
	if _, exists := s.utxos[utxo.Outpoint]; exists {
		return
	}
	s.utxos[utxo.Outpoint] = utxo
}

// Remove deletes the UTXO at outpoint, e.g. once it is spent by a
// broadcast transaction.
func (s *Set) Remove(outpoint Outpoint) {
	delete(s.utxos, outpoint)
}

// Get returns the UTXO at outpoint, if any.
func (s *Set) Get(outpoint Outpoint) (UTXO, bool) {
	u, ok := s.utxos[outpoint]
	return u, ok
}

// All returns every tracked UTXO in unspecified order.
func (s *Set) All() []UTXO {
	out := make([]UTXO, 0, len(s.utxos))
	for _, u := range s.utxos {
		out = append(out, u)
	}
	return out
}

// Balance is the confirmed/unconfirmed split of total UTXO value.
type Balance struct {
	Confirmed   int64
	Unconfirmed int64
}

// Total is the sum of confirmed and unconfirmed balances.
func (b Balance) Total() int64 { return b.Confirmed + b.Unconfirmed }

// Balance computes the confirmed/unconfirmed balance split. The sum of
// all tracked UTXO values equals Balance().Total().
func (s *Set) Balance() Balance {
	var b Balance
	for _, u := range s.utxos {
		if u.Confirmed() {
			b.Confirmed += u.Value
		} else {
			b.Unconfirmed += u.Value
		}
	}
	return b
}

// Spendable returns UTXOs confirmed at least minConfirmations deep,
// given the current chain height. An unconfirmed UTXO (height 0) is
// spendable only if minConfirmations is 0.
func (s *Set) Spendable(currentHeight uint32, minConfirmations uint32) []UTXO {
	var out []UTXO
	for _, u := range s.utxos {
		if minConfirmations == 0 {
			out = append(out, u)
			continue
		}
		if !u.Confirmed() {
			continue
		}
		confs := currentHeight - u.ConfirmationHeight + 1
		if confs >= minConfirmations {
			out = append(out, u)
		}
	}
	return out
}
