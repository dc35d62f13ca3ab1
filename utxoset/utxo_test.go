package utxoset

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBalanceIdentity(t *testing.T) {
	s := NewSet()
	s.Add(UTXO{Outpoint: Outpoint{Txid: "a", Vout: 0}, Value: 1000, ConfirmationHeight: 100})
	s.Add(UTXO{Outpoint: Outpoint{Txid: "b", Vout: 1}, Value: 2500, ConfirmationHeight: 0})
	s.Add(UTXO{Outpoint: Outpoint{Txid: "c", Vout: 0}, Value: 500, ConfirmationHeight: 200})

	var sum int64
	for _, u := range s.All() {
		sum += u.Value
	}

	bal := s.Balance()
	require.Equal(t, sum, bal.Total())
	require.Equal(t, int64(1500), bal.Confirmed)
	require.Equal(t, int64(2500), bal.Unconfirmed)
}

func TestIdempotentIngestion(t *testing.T) {
	s := NewSet()
	op := Outpoint{Txid: "a", Vout: 0}
	s.Add(UTXO{Outpoint: op, Value: 1000})
	s.Add(UTXO{Outpoint: op, Value: 9999}) // re-ingest, should be ignored

	got, ok := s.Get(op)
	require.True(t, ok)
	require.Equal(t, int64(1000), got.Value)
	require.Len(t, s.All(), 1)
}

func TestRemove(t *testing.T) {
	s := NewSet()
	op := Outpoint{Txid: "a", Vout: 0}
	s.Add(UTXO{Outpoint: op, Value: 1000})
	s.Remove(op)

	_, ok := s.Get(op)
	require.False(t, ok)
}

func TestSpendableRespectsMinConfirmations(t *testing.T) {
	s := NewSet()
	s.Add(UTXO{Outpoint: Outpoint{Txid: "a", Vout: 0}, Value: 1000, ConfirmationHeight: 100})
	s.Add(UTXO{Outpoint: Outpoint{Txid: "b", Vout: 0}, Value: 2000, ConfirmationHeight: 0})

	spendable := s.Spendable(105, 3)
	require.Len(t, spendable, 1)
	require.Equal(t, int64(1000), spendable[0].Value)

	spendableZeroConf := s.Spendable(105, 0)
	require.Len(t, spendableZeroConf, 2)
}

func TestHistoryLabel(t *testing.T) {
	h := NewHistory()
	h.Record(TxRecord{Txid: "deadbeef", NetValueDelta: -5000})

	ok := h.SetLabel("deadbeef", "coffee")
	require.True(t, ok)

	rec, ok := h.Get("deadbeef")
	require.True(t, ok)
	require.Equal(t, "coffee", rec.Label)

	require.False(t, h.SetLabel("missing", "x"))
}
