package hdkeys

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

// HardenedOffset is the index at which hardened derivation begins.
const HardenedOffset = hdkeychain.HardenedKeyStart

// Hardened returns the hardened-index form of i.
func Hardened(i uint32) uint32 { return HardenedOffset + i }

// Path is an ordered sequence of BIP-32 child indices, hardened segments
// already carrying the hardened offset (via Hardened).
type Path []uint32

// String renders the path in m/44'/0'/0'/0/5 notation.
func (p Path) String() string {
	var b strings.Builder
	b.WriteByte('m')
	for _, seg := range p {
		b.WriteByte('/')
		if seg >= HardenedOffset {
			b.WriteString(strconv.FormatUint(uint64(seg-HardenedOffset), 10))
			b.WriteByte('\'')
		} else {
			b.WriteString(strconv.FormatUint(uint64(seg), 10))
		}
	}
	return b.String()
}

func (p Path) key() string { return p.String() }

// AccountPath builds the standard five-level path m/purpose'/coin'/account'/chain/index.
func AccountPath(purpose, coinType, account, chain, index uint32) Path {
	return Path{Hardened(purpose), Hardened(coinType), Hardened(account), chain, index}
}

// KeyLedger holds one master extended private key and memoizes derived
// nodes by path. Caching never evicts during the ledger's lifetime; secret
// material is released only when the ledger itself is dropped.
type KeyLedger struct {
	network Network
	master  *hdkeychain.ExtendedKey

	mu    sync.Mutex
	cache map[string]*hdkeychain.ExtendedKey
}

// NewLedger creates a master extended private key from seed, bound to
// network.
func NewLedger(seed []byte, network Network) (*KeyLedger, error) {
	params, err := Params(network)
	if err != nil {
		return nil, err
	}

	master, err := hdkeychain.NewMaster(seed, params)
	if err != nil {
		return nil, newErr(KeyDerivation, "failed to create master key", err)
	}

	return &KeyLedger{
		network: network,
		master:  master,
		cache:   map[string]*hdkeychain.ExtendedKey{"m": master},
	}, nil
}

// Network returns the network this ledger derives keys for.
func (l *KeyLedger) Network() Network { return l.network }

// MasterPublic returns the neutered (public-only) master extended key.
func (l *KeyLedger) MasterPublic() (*hdkeychain.ExtendedKey, error) {
	pub, err := l.master.Neuter()
	if err != nil {
		return nil, newErr(KeyDerivation, "failed to neuter master key", err)
	}
	return pub, nil
}

// MasterFingerprint returns the BIP-32 fingerprint of the master key, the
// first four bytes of HASH160 of its compressed public key. PSBT key-origin
// fields carry it so external signers can recognize which keys are theirs.
func (l *KeyLedger) MasterFingerprint() ([4]byte, error) {
	var fp [4]byte
	pub, err := l.master.ECPubKey()
	if err != nil {
		return fp, newErr(KeyDerivation, "failed to extract master public key", err)
	}
	copy(fp[:], btcutil.Hash160(pub.SerializeCompressed()))
	return fp, nil
}

// Derive returns the private extended key node at path, deriving and
// caching it if not already present. Derivation is idempotent: repeated
// calls with the same path return the cached node.
func (l *KeyLedger) Derive(path Path) (*hdkeychain.ExtendedKey, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.deriveLocked(path)
}

func (l *KeyLedger) deriveLocked(path Path) (*hdkeychain.ExtendedKey, error) {
	if cached, ok := l.cache[path.key()]; ok {
		return cached, nil
	}

	node := l.master
	var built Path
	for _, seg := range path {
		built = append(built, seg)
		if cached, ok := l.cache[built.key()]; ok {
			node = cached
			continue
		}

		child, err := node.Derive(seg)
		if err != nil {
			return nil, newErr(KeyDerivation, fmt.Sprintf("invalid child at %s", built), err)
		}
		l.cache[built.key()] = child
		node = child
	}

	return node, nil
}

// PrivateKey returns the 32-byte private scalar at path.
func (l *KeyLedger) PrivateKey(path Path) (*btcec.PrivateKey, error) {
	node, err := l.Derive(path)
	if err != nil {
		return nil, err
	}
	if !node.IsPrivate() {
		return nil, newErr(NotPrivate, path.String(), nil)
	}
	priv, err := node.ECPrivKey()
	if err != nil {
		return nil, newErr(KeyDerivation, "failed to extract EC private key", err)
	}
	return priv, nil
}

// PublicKey returns the compressed public key at path.
func (l *KeyLedger) PublicKey(path Path) (*btcec.PublicKey, error) {
	node, err := l.Derive(path)
	if err != nil {
		return nil, err
	}
	pub, err := node.ECPubKey()
	if err != nil {
		return nil, newErr(KeyDerivation, "failed to extract EC public key", err)
	}
	return pub, nil
}

// XOnlyPublicKey returns the public key at path whose x coordinate is the
// BIP-340/341 x-only key used by Taproot.
func (l *KeyLedger) XOnlyPublicKey(path Path) (*btcec.PublicKey, error) {
	return l.PublicKey(path)
}
