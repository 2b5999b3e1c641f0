package encryption

import (
	"fmt"

	"psync-go/internal/config"
	"psync-go/internal/psync"
)

// NewEncryptorFromConfig creates an Encryptor based on the configuration
// type. Returns (nil, nil) for type "none" or empty: archive encryption
// is optional.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (psync.Encryptor, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "age":
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
