package psync

import "io"

// Archive is an optional offsite copy of published assets. Content is
// keyed by its checksum, metadata by asset id. Archive failures never
// fail a publish that already committed locally.
type Archive interface {
	// PutContent stores content under its checksum. Idempotent.
	// size is the number of bytes that will be read from r; pass a
	// negative size to skip length verification (encrypted streams).
	PutContent(checksum string, r io.Reader, size int64) error

	// PutMetadata stores an asset's verbatim metadata record.
	PutMetadata(id string, metadata []byte) error

	// GetContent retrieves content by checksum and writes it to w.
	GetContent(checksum string, w io.Writer) error

	// GetMetadata retrieves an asset's metadata record.
	GetMetadata(id string) ([]byte, error)

	// ValidateSetup verifies the archive is accessible and configured.
	ValidateSetup() error
}

// Encryptor encrypts archived content. Encryption uses the public key
// only; decryption requires a passphrase to unlock the private key,
// producing a DecryptionContext for the session.
type Encryptor interface {
	// Setup performs one-time key generation. Called during `psync keys init`.
	Setup(passphrase string) error

	// Encrypt encrypts data read from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock decrypts the private key using the passphrase and returns a
	// DecryptionContext valid for the session.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured reports whether both key files exist.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key in memory for the
// duration of a session. The unlocked key is never written to disk.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}
