package legacyimport

import (
	"encoding/hex"

	"github.com/dan/btc-wallet-core/crypto"
	"github.com/dan/btc-wallet-core/wallet"
)

// seedLength is the number of leading bytes of the (decrypted) root-key
// blob treated as the modern HD seed.
const seedLength = 32

// Result is a fully imported legacy wallet: the decoded header/entries plus
// the recovered root seed, ready to become a modern wallet record.
// ModernKdf carries the legacy cost knobs translated into the Argon2id
// parameters the imported wallet should be re-encrypted under.
type Result struct {
	Parsed    *ParsedWallet
	Seed      []byte
	ModernKdf crypto.KdfParams
}

// Import parses data and, if the wallet is encrypted, decrypts its root-key
// blob with passphrase. Passphrase is ignored (and may be nil) for
// unencrypted wallets; MissingPassphrase is returned if the wallet is
// encrypted and passphrase is empty.
func Import(data []byte, passphrase []byte) (*Result, error) {
	parsed, err := Parse(data)
	if err != nil {
		return nil, err
	}

	var rootKey []byte
	if parsed.Header.Encrypted() {
		if len(passphrase) == 0 {
			return nil, newErr(MissingPassphrase, "wallet is encrypted but no passphrase was supplied", nil)
		}
		rootKey, err = decryptRootKeyBlob(passphrase, &parsed.Header)
		if err != nil {
			return nil, err
		}
	} else {
		rootKey = make([]byte, len(parsed.Header.RootKeyBlob))
		copy(rootKey, parsed.Header.RootKeyBlob[:])
	}

	if len(rootKey) < seedLength {
		return nil, newErr(InvalidFormat, "root-key blob shorter than the modern seed length", nil)
	}

	return &Result{
		Parsed:    parsed,
		Seed:      rootKey[:seedLength],
		ModernKdf: romixToKdfParams(parsed.Header.KdfMemory, parsed.Header.KdfIters),
	}, nil
}

// ToWalletRecord translates an imported legacy wallet into a modern
// WalletRecord. The seed is sealed under sealKey with empty AAD, the same
// as every other save path; label falls back to the long name, then
// the short name, when both are empty the id is used. created_at/modified_at
// both take the legacy file's creation time, since nothing has modified the
// record since.
func (r *Result) ToWalletRecord(sealKey *crypto.SecureKey) (*wallet.WalletRecord, error) {
	sealed, err := crypto.Encrypt(sealKey, r.Seed, nil)
	if err != nil {
		return nil, newErr(DecryptionFailed, "failed to seal imported seed", err)
	}

	id := hex.EncodeToString(r.Parsed.Header.UniqueID[:])
	label := r.Parsed.Header.LongName
	if label == "" {
		label = r.Parsed.Header.ShortName
	}
	if label == "" {
		label = id
	}

	now := r.Parsed.Header.CreateTime
	rec := wallet.NewRecord(id, label, now)
	rec.EncryptedSeed = wallet.EncryptedSeed{Nonce: sealed.Nonce, Ciphertext: sealed.Ciphertext}
	for addr, note := range r.Parsed.AddressNotes {
		rec.AddressBook[addr] = note
	}
	for txid, comment := range r.Parsed.TxComments {
		rec.TxComments[txid] = comment
	}
	return rec, nil
}
