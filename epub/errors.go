package epub

import "fmt"

// PackagingError indicates the final archive could not be written. It
// is fatal for that novel; no partial file is left at the destination.
type PackagingError struct {
	Path string
	Err  error
}

func (e *PackagingError) Error() string {
	return fmt.Sprintf("epub: failed to package %s: %v", e.Path, e.Err)
}

func (e *PackagingError) Unwrap() error { return e.Err }
