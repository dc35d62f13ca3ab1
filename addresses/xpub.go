package addresses

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/dan/btc-wallet-core/hdkeys"
)

// SLIP-0132 version bytes for extended public keys, letting a coordinator
// like Sparrow recognize the key type from the prefix without decoding a
// descriptor string.
var (
	zpubVersionMainnet = [4]byte{0x04, 0xb2, 0x47, 0x46}
	vpubVersionTest    = [4]byte{0x04, 0x5f, 0x1c, 0xf6}
)

// AccountXpub returns the account-level extended public key for family,
// for watch-only import into an external coordinator. NativeSegwit (BIP-84)
// is converted to SLIP-0132 zpub/vpub; other families are returned in
// standard xpub/tpub form (no SLIP-0132 registry entry exists for them).
func AccountXpub(keys *hdkeys.KeyLedger, family Family, params *chaincfg.Params) (xpub string, path string, err error) {
	if err := validateFamily(family); err != nil {
		return "", "", err
	}

	accountPath := hdkeys.Path{
		hdkeys.Hardened(family.Purpose()),
		hdkeys.Hardened(hdkeys.CoinType(keys.Network())),
		hdkeys.Hardened(0),
	}

	node, err := keys.Derive(accountPath)
	if err != nil {
		return "", "", err
	}
	pub, err := node.Neuter()
	if err != nil {
		return "", "", newErr(InvalidAddress, "failed to neuter account key", err)
	}

	pathStr := accountPath.String()

	if family != NativeSegwit {
		return pub.String(), pathStr, nil
	}

	converted, err := convertToSlip132(pub.String(), params)
	if err != nil {
		return "", "", err
	}
	return converted, pathStr, nil
}

func convertToSlip132(xpub string, params *chaincfg.Params) (string, error) {
	payload, version, err := decodeBase58Check(xpub)
	if err != nil {
		return "", err
	}

	expected := params.HDPublicKeyID[:]
	if !bytesEqual(version, expected) {
		return "", newErr(InvalidAddress, fmt.Sprintf("unexpected xpub version bytes: got %x, expected %x", version, expected), nil)
	}

	var newVersion [4]byte
	if params.Net == chaincfg.MainNetParams.Net {
		newVersion = zpubVersionMainnet
	} else {
		newVersion = vpubVersionTest
	}

	return encodeBase58Check(payload, newVersion[:]), nil
}

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

func decodeBase58Check(encoded string) ([]byte, []byte, error) {
	var result []byte
	for _, c := range encoded {
		charIndex := -1
		for i, a := range base58Alphabet {
			if a == c {
				charIndex = i
				break
			}
		}
		if charIndex == -1 {
			return nil, nil, newErr(InvalidAddress, fmt.Sprintf("invalid base58 character: %c", c), nil)
		}

		carry := charIndex
		for i := len(result) - 1; i >= 0; i-- {
			carry += int(result[i]) * 58
			result[i] = byte(carry & 0xff)
			carry >>= 8
		}
		for carry > 0 {
			result = append([]byte{byte(carry & 0xff)}, result...)
			carry >>= 8
		}
	}

	for _, c := range encoded {
		if c != '1' {
			break
		}
		result = append([]byte{0}, result...)
	}

	if len(result) < 5 {
		return nil, nil, newErr(InvalidAddress, "decoded data too short", nil)
	}

	version := result[:4]
	payload := result[4 : len(result)-4]
	return payload, version, nil
}

func encodeBase58Check(payload, version []byte) string {
	data := append(append([]byte{}, version...), payload...)

	first := sha256.Sum256(data)
	second := sha256.Sum256(first[:])
	checksum := second[:4]
	data = append(data, checksum...)

	var leadingZeros int
	for _, b := range data {
		if b != 0 {
			break
		}
		leadingZeros++
	}

	var result []byte
	for _, b := range data {
		carry := int(b)
		for i := len(result) - 1; i >= 0; i-- {
			carry += int(result[i]) << 8
			result[i] = byte(carry % 58)
			carry /= 58
		}
		for carry > 0 {
			result = append([]byte{byte(carry % 58)}, result...)
			carry /= 58
		}
	}

	for i := 0; i < leadingZeros; i++ {
		result = append([]byte{0}, result...)
	}

	encoded := make([]byte, len(result))
	for i, b := range result {
		encoded[i] = base58Alphabet[b]
	}
	return string(encoded)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
