package hdkeys

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
)

// Network identifies which Bitcoin network a wallet derives keys and
// addresses for.
type Network int

const (
	Mainnet Network = iota
	Testnet
	Signet
	Regtest
)

func (n Network) String() string {
	switch n {
	case Mainnet:
		return "mainnet"
	case Testnet:
		return "testnet"
	case Signet:
		return "signet"
	case Regtest:
		return "regtest"
	default:
		return "unknown"
	}
}

// Params returns the chaincfg network parameters for n.
func Params(n Network) (*chaincfg.Params, error) {
	switch n {
	case Mainnet:
		return &chaincfg.MainNetParams, nil
	case Testnet:
		return &chaincfg.TestNet3Params, nil
	case Signet:
		return &chaincfg.SigNetParams, nil
	case Regtest:
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, newErr(UnknownNetwork, fmt.Sprintf("network tag %d", n), nil)
	}
}

// CoinType returns the BIP-44 registry coin-type level: 0 for
// Mainnet/Regtest, 1 for Testnet/Signet.
func CoinType(n Network) uint32 {
	switch n {
	case Testnet, Signet:
		return 1
	default:
		return 0
	}
}

// ParseNetwork parses a network tag from its string form.
func ParseNetwork(s string) (Network, error) {
	switch s {
	case "mainnet":
		return Mainnet, nil
	case "testnet":
		return Testnet, nil
	case "signet":
		return Signet, nil
	case "regtest":
		return Regtest, nil
	default:
		return 0, newErr(UnknownNetwork, s, nil)
	}
}
