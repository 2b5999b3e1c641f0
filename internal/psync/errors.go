package psync

import "errors"

// Error taxonomy for sync and deletion runs. Per-asset errors wrap one of
// these sentinels so the orchestrator can classify failures without
// inspecting transport details.
var (
	// ErrTransient marks network failures (timeout, reset) that may
	// succeed on retry. The asset is not marked fetched.
	ErrTransient = errors.New("transient network failure")

	// ErrIntegrity marks a content hash mismatch. Not retryable without
	// re-fetching from scratch; never silently accepted.
	ErrIntegrity = errors.New("content hash mismatch")

	// ErrNotEligible marks a deletion attempt on an asset without a
	// verified complete local record.
	ErrNotEligible = errors.New("asset not eligible for deletion")

	// ErrCatalog marks an unavailable remote listing. Fatal to the run.
	ErrCatalog = errors.New("remote catalog unavailable")

	// ErrProtocol marks a malformed remote response or one missing
	// required fields. Treated as failure, never partial success.
	ErrProtocol = errors.New("malformed remote response")
)

// Kind returns a short stable name for the taxonomy sentinel wrapped by
// err, or "error" if it carries none. Used for journal events and the
// final summary.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrTransient):
		return "transient"
	case errors.Is(err, ErrIntegrity):
		return "integrity"
	case errors.Is(err, ErrNotEligible):
		return "not-eligible"
	case errors.Is(err, ErrCatalog):
		return "catalog"
	case errors.Is(err, ErrProtocol):
		return "protocol"
	default:
		return "error"
	}
}
