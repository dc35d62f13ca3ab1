package addresses

import (
	"errors"
	"sort"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/dan/btc-wallet-core/hdkeys"
)

// Record is an issued address: its family, full derivation path, script,
// and address string. Uniquely keyed by Path.
type Record struct {
	Family       Family
	Chain        Chain
	Index        uint32
	Path         hdkeys.Path
	ScriptPubKey []byte
	Address      string
}

type indexKey struct {
	family Family
	chain  Chain
}

// Ledger maintains, per family, a next-issuance counter for each chain, a
// path-to-address map, and the address-to-path reverse lookup. It derives
// keys through a hdkeys.KeyLedger on demand; it holds no secret material
// itself. Concurrency control is the owning wallet's responsibility;
// Ledger itself is not internally synchronized.
type Ledger struct {
	keys    *hdkeys.KeyLedger
	params  *chaincfg.Params
	account uint32

	nextIndices map[indexKey]uint32
	byPath      map[string]*Record
	byAddress   map[string]*Record
	issued      map[indexKey][]*Record
}

// NewLedger creates an address ledger over account 0 of keys.
func NewLedger(keys *hdkeys.KeyLedger, params *chaincfg.Params) *Ledger {
	return &Ledger{
		keys:        keys,
		params:      params,
		account:     0,
		nextIndices: make(map[indexKey]uint32),
		byPath:      make(map[string]*Record),
		byAddress:   make(map[string]*Record),
		issued:      make(map[indexKey][]*Record),
	}
}

// Keys returns the key ledger addresses derive through.
func (l *Ledger) Keys() *hdkeys.KeyLedger { return l.keys }

// NewReceiveAddress derives m/purpose(family)'/coin'/0'/0/i with i the next
// receive index for family, caches it, and advances the counter.
func (l *Ledger) NewReceiveAddress(family Family) (*Record, error) {
	return l.issue(family, Receive)
}

// NewChangeAddress derives m/purpose(family)'/coin'/0'/1/i with i the next
// change index for family, caches it, and advances the counter. The
// transaction builder calls this when it decides to emit a change output.
func (l *Ledger) NewChangeAddress(family Family) (*Record, error) {
	return l.issue(family, Change)
}

func (l *Ledger) issue(family Family, chain Chain) (*Record, error) {
	if err := validateFamily(family); err != nil {
		return nil, err
	}

	key := indexKey{family, chain}
	idx := l.nextIndices[key]

	for {
		path := hdkeys.AccountPath(family.Purpose(), hdkeys.CoinType(l.keys.Network()), l.account, uint32(chain), idx)

		pub, err := l.keys.PublicKey(path)
		if err != nil {
			var herr *hdkeys.Error
			if errors.As(err, &herr) && herr.Kind == hdkeys.KeyDerivation {
				// Mathematically-impossible child scalar: skip this index
				// without advancing the persisted counter until an index
				// actually succeeds.
				idx++
				continue
			}
			return nil, err
		}

		script, err := ScriptPubKey(family, pub, l.params)
		if err != nil {
			return nil, err
		}
		addr, err := AddressForPubKey(family, pub, l.params)
		if err != nil {
			return nil, err
		}

		rec := &Record{
			Family:       family,
			Chain:        chain,
			Index:        idx,
			Path:         path,
			ScriptPubKey: script,
			Address:      addr.EncodeAddress(),
		}

		l.nextIndices[key] = idx + 1
		l.byPath[path.String()] = rec
		l.byAddress[rec.Address] = rec
		l.issued[key] = append(l.issued[key], rec)

		return rec, nil
	}
}

// ListAddresses returns every issued address for (family, chain) in index
// order.
func (l *Ledger) ListAddresses(family Family, chain Chain) []*Record {
	recs := l.issued[indexKey{family, chain}]
	out := make([]*Record, len(recs))
	copy(out, recs)
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Owns reports whether address appears in the reverse index, returning its
// record if so.
func (l *Ledger) Owns(address string) (*Record, bool) {
	rec, ok := l.byAddress[address]
	return rec, ok
}

// ByPath looks up an issued address by its derivation path.
func (l *Ledger) ByPath(path hdkeys.Path) (*Record, bool) {
	rec, ok := l.byPath[path.String()]
	return rec, ok
}

// NextIndex returns the next index that will be issued for (family, chain),
// guaranteed strictly greater than the largest issued index for it.
func (l *Ledger) NextIndex(family Family, chain Chain) uint32 {
	return l.nextIndices[indexKey{family, chain}]
}
