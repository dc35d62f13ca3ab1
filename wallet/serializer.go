package wallet

import (
	"encoding/json"
	"fmt"

	"github.com/dan/btc-wallet-core/crypto"
	"github.com/dan/btc-wallet-core/hdkeys"
	"github.com/dan/btc-wallet-core/storage"
)

const recordIDPrefix = "wallet:"

// sealedPayload is the on-disk wrapper around an AEAD-encrypted record:
// (nonce, ciphertext) serialized the same way the plaintext record is.
type sealedPayload struct {
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// Save canonically serializes rec and writes it to engine under
// "wallet:"+rec.ID. If sealKey is non-nil the serialized bytes
// are AEAD-sealed (empty AAD) before being handed to storage; otherwise the
// plaintext serialization is stored directly.
func Save(engine *storage.Engine, rec *WalletRecord, sealKey *crypto.SecureKey) error {
	plaintext, err := json.Marshal(rec)
	if err != nil {
		return newErr(SerializationFailure, "failed to serialize wallet record", err)
	}

	payload := plaintext
	if sealKey != nil {
		sealed, err := crypto.Encrypt(sealKey, plaintext, nil)
		if err != nil {
			return newErr(SerializationFailure, "failed to seal wallet record", err)
		}
		payload, err = json.Marshal(sealedPayload{Nonce: sealed.Nonce, Ciphertext: sealed.Ciphertext})
		if err != nil {
			return newErr(SerializationFailure, "failed to serialize sealed payload", err)
		}
	}

	if err := engine.SaveRecord(recordIDPrefix+rec.ID, payload); err != nil {
		return fmt.Errorf("wallet: failed to save record %s: %w", rec.ID, err)
	}
	return nil
}

// Load fetches the record at id from engine and deserializes it, decrypting
// first if sealKey is non-nil. A tag mismatch during decryption surfaces the
// underlying crypto.Error (kind AuthFailure) unchanged.
func Load(engine *storage.Engine, id string, sealKey *crypto.SecureKey) (*WalletRecord, error) {
	payload, err := engine.LoadRecord(recordIDPrefix + id)
	if err != nil {
		return nil, fmt.Errorf("wallet: failed to load record %s: %w", id, err)
	}

	plaintext := payload
	if sealKey != nil {
		var sealed sealedPayload
		if err := json.Unmarshal(payload, &sealed); err != nil {
			return nil, newErr(SerializationFailure, "failed to parse sealed payload", err)
		}
		plaintext, err = crypto.Decrypt(sealKey, &crypto.EncryptedData{Nonce: sealed.Nonce, Ciphertext: sealed.Ciphertext}, nil)
		if err != nil {
			return nil, err
		}
	}

	var rec WalletRecord
	if err := json.Unmarshal(plaintext, &rec); err != nil {
		return nil, newErr(SerializationFailure, "failed to deserialize wallet record", err)
	}
	return &rec, nil
}

// SaveWallet snapshots w into a WalletRecord (sealing its seed under
// seedKey) and writes it to engine, additionally record-level sealing
// under recordKey if non-nil.
func SaveWallet(engine *storage.Engine, w *Wallet, seedKey *crypto.SecureKey, recordKey *crypto.SecureKey) error {
	rec, err := w.ToRecord(seedKey)
	if err != nil {
		return err
	}
	return Save(engine, rec, recordKey)
}

// LoadWallet loads and decrypts the record at id from engine, then
// reconstructs a Wallet over network, decrypting the seed with seedKey.
func LoadWallet(engine *storage.Engine, id string, seedKey *crypto.SecureKey, recordKey *crypto.SecureKey, network hdkeys.Network) (*Wallet, error) {
	rec, err := Load(engine, id, recordKey)
	if err != nil {
		return nil, err
	}
	return FromRecord(rec, seedKey, network)
}
