package crypto

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// Sha256d computes the double-SHA256 digest used throughout Bitcoin as a
// message hash (txids, sighash preimages).
func Sha256d(msg []byte) [32]byte {
	first := sha256.Sum256(msg)
	return sha256.Sum256(first[:])
}

// SignECDSA produces a DER-encoded secp256k1 ECDSA signature over a 32-byte
// digest.
func SignECDSA(priv *btcec.PrivateKey, digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, newErr(InvalidParameters, "digest must be 32 bytes", nil)
	}
	sig := ecdsa.Sign(priv, digest)
	return sig.Serialize(), nil
}

// VerifyECDSA verifies a DER-encoded ECDSA signature over a 32-byte digest.
func VerifyECDSA(pub *btcec.PublicKey, digest, sig []byte) error {
	parsed, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return newErr(InvalidKey, "failed to parse DER signature", err)
	}
	if !parsed.Verify(digest, pub) {
		return newErr(SignatureVerification, "ECDSA signature verification failed", nil)
	}
	return nil
}

// zeroAux is the fixed 32-byte auxiliary randomness BIP-340 determinism
// requires: the same (key, digest) must always produce the same signature.
var zeroAux [32]byte

// SignSchnorr produces a BIP-340 64-byte Schnorr signature over a 32-byte
// digest, using fixed (zero) auxiliary randomness so signing is a pure
// function of (key, digest).
func SignSchnorr(priv *btcec.PrivateKey, digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, newErr(InvalidParameters, "digest must be 32 bytes", nil)
	}
	sig, err := schnorr.Sign(priv, digest, schnorr.CustomNonce(zeroAux))
	if err != nil {
		return nil, newErr(SignatureVerification, "schnorr signing failed", err)
	}
	return sig.Serialize(), nil
}

// VerifySchnorr verifies a BIP-340 signature over a 32-byte digest against a
// public key (only its x coordinate is used, per BIP-340).
func VerifySchnorr(pub *btcec.PublicKey, digest, sig []byte) error {
	parsed, err := schnorr.ParseSignature(sig)
	if err != nil {
		return newErr(InvalidKey, "failed to parse schnorr signature", err)
	}
	if !parsed.Verify(digest, pub) {
		return newErr(SignatureVerification, "schnorr signature verification failed", nil)
	}
	return nil
}
