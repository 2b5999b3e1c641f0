package archive

import (
	"fmt"

	"psync-go/internal/config"
	"psync-go/internal/psync"
)

// NewArchiveFromConfig creates an Archive implementation based on the
// archive config type. Returns (nil, nil) for type "none" or empty:
// archiving is optional. enc may be nil when encryption is disabled.
func NewArchiveFromConfig(cfg config.ArchiveConfig, enc psync.Encryptor) (psync.Archive, error) {
	var a psync.Archive
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem archive requires fs_root to be set")
		}
		fs, err := NewFilesystemArchive(cfg.FSRoot)
		if err != nil {
			return nil, err
		}
		a = fs
	case "s3":
		s3a, err := NewS3Archive(cfg)
		if err != nil {
			return nil, err
		}
		a = s3a
	default:
		return nil, fmt.Errorf("unknown archive type: %s", cfg.Type)
	}

	if enc != nil {
		a = NewEncryptingArchive(a, enc)
	}
	return a, nil
}
