package wallet

// BlockHeightSource is the only chain-state seam the core consumes. It
// backs confirmation-count arithmetic (utxoset.Set.Spendable and
// txbuilder's min-confirmations filter).
type BlockHeightSource interface {
	CurrentBlockHeight() (uint32, error)
}

// Broadcaster is the only outgoing-transaction seam the core consumes.
// Nothing in this module calls it directly; it exists so a caller can wire
// a finalized transaction's bytes out without the core knowing how.
type Broadcaster interface {
	Broadcast(txBytes []byte) (txid string, err error)
}

// PasswordProvider supplies the passphrase a wallet's seed is encrypted
// under, resolved lazily so callers can back it with a prompt, keychain, or
// static secret.
type PasswordProvider interface {
	Password() ([]byte, error)
}

// StaticPassword is a PasswordProvider over an in-memory passphrase, for
// callers that already hold the secret (tests, non-interactive daemons).
type StaticPassword []byte

func (p StaticPassword) Password() ([]byte, error) { return p, nil }
