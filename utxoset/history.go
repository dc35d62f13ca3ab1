package utxoset

import "time"

// TxRecord is a wallet transaction history entry: the net effect of a
// transaction on the wallet's balance, independent of the UTXO set.
type TxRecord struct {
	Txid               string
	NetValueDelta      int64 // signed: positive for incoming, negative for outgoing
	ConfirmationHeight uint32
	WallClockTime      time.Time
	Label              string
}

// Confirmed reports whether this transaction has a confirmation height.
func (r TxRecord) Confirmed() bool { return r.ConfirmationHeight > 0 }

// History is the wallet's transaction history, keyed by txid.
type History struct {
	records map[string]TxRecord
}

// NewHistory creates an empty transaction history.
func NewHistory() *History {
	return &History{records: make(map[string]TxRecord)}
}

// Record inserts or replaces the history entry for rec.Txid.
func (h *History) Record(rec TxRecord) {
	h.records[rec.Txid] = rec
}

// Get returns the history entry for txid, if any.
func (h *History) Get(txid string) (TxRecord, bool) {
	r, ok := h.records[txid]
	return r, ok
}

// All returns every recorded transaction in unspecified order.
func (h *History) All() []TxRecord {
	out := make([]TxRecord, 0, len(h.records))
	for _, r := range h.records {
		out = append(out, r)
	}
	return out
}

// SetLabel attaches a note to an existing transaction record.
func (h *History) SetLabel(txid, label string) bool {
	r, ok := h.records[txid]
	if !ok {
		return false
	}
	r.Label = label
	h.records[txid] = r
	return true
}
