package resolve

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	ErrNoResults       = errors.New("no results")
	ErrUnsupported     = errors.New("unsupported input")
	ErrCatalogDisabled = errors.New("spotify is not configured")
	ErrClosed          = errors.New("resolver closed")
)

// ResolutionError is returned for any input the backends could not turn
// into something playable.
type ResolutionError struct {
	Input string
	Err   error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %q: %v", e.Input, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

func resolutionError(input string, err error) error {
	var re *ResolutionError
	if errors.As(err, &re) {
		return err
	}
	return &ResolutionError{Input: input, Err: err}
}
