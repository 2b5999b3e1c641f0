package archive

import (
	"fmt"
	"io"

	"psync-go/internal/psync"
)

// EncryptingArchive wraps another Archive and encrypts content on the way
// in. Metadata stays plaintext: it is what makes the archive browsable.
// Encrypted content is retrieved as ciphertext; decryption happens at the
// CLI with an unlocked key, so the private key never reaches this layer.
type EncryptingArchive struct {
	inner     psync.Archive
	encryptor psync.Encryptor
}

var _ psync.Archive = (*EncryptingArchive)(nil)

// NewEncryptingArchive wraps inner so all content is encrypted with enc.
func NewEncryptingArchive(inner psync.Archive, enc psync.Encryptor) *EncryptingArchive {
	return &EncryptingArchive{inner: inner, encryptor: enc}
}

// PutContent encrypts the stream into the inner archive. The ciphertext
// length is unknown ahead of time, so the inner size check is skipped.
func (a *EncryptingArchive) PutContent(checksum string, r io.Reader, size int64) error {
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(a.encryptor.Encrypt(r, pw))
	}()

	if err := a.inner.PutContent(checksum, pr, -1); err != nil {
		pr.CloseWithError(err)
		return fmt.Errorf("storing encrypted content: %w", err)
	}
	return nil
}

func (a *EncryptingArchive) PutMetadata(id string, metadata []byte) error {
	return a.inner.PutMetadata(id, metadata)
}

func (a *EncryptingArchive) GetContent(checksum string, w io.Writer) error {
	return a.inner.GetContent(checksum, w)
}

func (a *EncryptingArchive) GetMetadata(id string) ([]byte, error) {
	return a.inner.GetMetadata(id)
}

func (a *EncryptingArchive) ValidateSetup() error {
	if !a.encryptor.IsConfigured() {
		return fmt.Errorf("archive encryption enabled but keys are not set up (run `psync keys init`)")
	}
	return a.inner.ValidateSetup()
}
