package psync

import (
	"context"
	"fmt"
)

// DeletionProver builds and submits deletion proofs. A proof embeds the
// stored metadata record and content hash of a verified complete local
// record; the device independently recomputes its own hash and deletes
// only on a match.
type DeletionProver struct {
	device Device
	store  Store
	logger Logger
}

// NewDeletionProver creates a DeletionProver over the given device and store.
func NewDeletionProver(device Device, store Store, logger Logger) *DeletionProver {
	return &DeletionProver{device: device, store: store, logger: logger}
}

// BuildProof constructs a deletion proof for an asset. It fails with
// ErrNotEligible unless the store verifies the record complete — this is
// the safety gate: no deletion request is ever sent for an asset that is
// not provably mirrored.
func (p *DeletionProver) BuildProof(id string) (DeletionProof, error) {
	ok, err := p.store.VerifyComplete(id)
	if err != nil {
		return DeletionProof{}, fmt.Errorf("verifying %s: %w", id, err)
	}
	if !ok {
		return DeletionProof{}, fmt.Errorf("%w: %s", ErrNotEligible, id)
	}

	record, err := p.store.ReadRecord(id)
	if err != nil {
		return DeletionProof{}, fmt.Errorf("reading record for %s: %w", id, err)
	}

	return DeletionProof{
		AssetID:     record.ID,
		Metadata:    record.Raw,
		ContentHash: record.ContentHash,
	}, nil
}

// Prove builds the proof for id and submits it. It returns nil only when
// the device positively acknowledged the deletion.
func (p *DeletionProver) Prove(ctx context.Context, id string) error {
	proof, err := p.BuildProof(id)
	if err != nil {
		return err
	}

	if err := p.device.Delete(ctx, proof); err != nil {
		return fmt.Errorf("deleting %s on device: %w", id, err)
	}

	p.logger.Info("remote asset deleted", "asset", id)
	return nil
}
