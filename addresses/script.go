package addresses

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// AddressForPubKey builds the btcutil.Address for pub under family and
// network params. Dispatch is on the family tag, not a type hierarchy, per
// the polymorphism-across-families design note.
func AddressForPubKey(family Family, pub *btcec.PublicKey, params *chaincfg.Params) (btcutil.Address, error) {
	if err := validateFamily(family); err != nil {
		return nil, err
	}

	compressed := pub.SerializeCompressed()
	hash160 := btcutil.Hash160(compressed)

	switch family {
	case Legacy:
		addr, err := btcutil.NewAddressPubKeyHash(hash160, params)
		if err != nil {
			return nil, newErr(InvalidAddress, "failed to build P2PKH address", err)
		}
		return addr, nil

	case NestedSegwit:
		// Redeem script 0x00 0x14 HASH160(K) (a P2WPKH witness program),
		// wrapped in P2SH.
		redeemScript := append([]byte{0x00, 0x14}, hash160...)
		addr, err := btcutil.NewAddressScriptHash(redeemScript, params)
		if err != nil {
			return nil, newErr(InvalidAddress, "failed to build P2SH-P2WPKH address", err)
		}
		return addr, nil

	case NativeSegwit:
		addr, err := btcutil.NewAddressWitnessPubKeyHash(hash160, params)
		if err != nil {
			return nil, newErr(InvalidAddress, "failed to build P2WPKH address", err)
		}
		return addr, nil

	case Taproot:
		tweaked := txscript.ComputeTaprootKeyNoScript(pub)
		addr, err := btcutil.NewAddressTaproot(schnorr.SerializePubKey(tweaked), params)
		if err != nil {
			return nil, newErr(InvalidAddress, "failed to build P2TR address", err)
		}
		return addr, nil

	default:
		return nil, newErr(UnknownFamily, fmt.Sprintf("family tag %d", family), nil)
	}
}

// ScriptPubKey returns the output script for pub under family.
func ScriptPubKey(family Family, pub *btcec.PublicKey, params *chaincfg.Params) ([]byte, error) {
	addr, err := AddressForPubKey(family, pub, params)
	if err != nil {
		return nil, err
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, newErr(InvalidAddress, "failed to build scriptPubKey", err)
	}
	return script, nil
}

// RedeemScript returns the NestedSegwit redeem script for pub, or nil for
// families that don't use one.
func RedeemScript(family Family, pub *btcec.PublicKey) []byte {
	if family != NestedSegwit {
		return nil
	}
	hash160 := btcutil.Hash160(pub.SerializeCompressed())
	return append([]byte{0x00, 0x14}, hash160...)
}

// DecodeAddress parses an address string for params, returning its family
// tag alongside the parsed address.
func DecodeAddress(address string, params *chaincfg.Params) (btcutil.Address, Family, error) {
	addr, err := btcutil.DecodeAddress(address, params)
	if err != nil {
		return nil, 0, newErr(InvalidAddress, fmt.Sprintf("failed to decode %s", address), err)
	}
	if !addr.IsForNet(params) {
		return nil, 0, newErr(InvalidAddress, fmt.Sprintf("%s is not for this network", address), nil)
	}

	switch addr.(type) {
	case *btcutil.AddressPubKeyHash:
		return addr, Legacy, nil
	case *btcutil.AddressScriptHash:
		return addr, NestedSegwit, nil
	case *btcutil.AddressWitnessPubKeyHash:
		return addr, NativeSegwit, nil
	case *btcutil.AddressTaproot:
		return addr, Taproot, nil
	default:
		return nil, 0, newErr(InvalidAddress, fmt.Sprintf("%s has an unsupported script family", address), nil)
	}
}
