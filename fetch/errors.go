package fetch

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the pipeline.
var (
	// ErrAuth indicates the remote site rejected the session. It is fatal
	// for the whole batch: nothing can be fetched without a valid login.
	ErrAuth = errors.New("fetch: session rejected")

	// ErrNotFound indicates a title has no exact match in the catalog.
	// It fails that novel only; the batch continues.
	ErrNotFound = errors.New("fetch: title not found in catalog")
)

// AssetUnavailableError marks a single chapter or image reference whose
// retrieval permanently failed (404, malformed response, or retries
// exhausted). Callers substitute a placeholder and keep going; one
// missing asset never aborts the book.
type AssetUnavailableError struct {
	Ref    string
	Status int
	Err    error
}

func (e *AssetUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch: asset unavailable: %s: %v", e.Ref, e.Err)
	}
	return fmt.Sprintf("fetch: asset unavailable: %s: status %d", e.Ref, e.Status)
}

func (e *AssetUnavailableError) Unwrap() error { return e.Err }
