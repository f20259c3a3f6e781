package loader

import (
	"errors"
	"fmt"

	"github.com/Faultbox/assetforge/pkg/bridge"
)

// Loader errors.
var (
	ErrClosed         = errors.New("loader is closed")
	ErrFileNotFound   = errors.New("file not found")
	ErrNotFound       = errors.New("not found")
	ErrMalformedData  = errors.New("malformed data")
	ErrPathTooLong    = errors.New("file path too long")
	ErrBufferTooSmall = errors.New("destination buffer too small")
	ErrPreprocess     = errors.New("hdr preprocessing failed")
	ErrNotAModel      = errors.New("handle is not a model")
)

// ImportError reports a failed import stage for one file.
type ImportError struct {
	Path  string
	Stage string
	Err   error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import %s: %s: %v", e.Path, e.Stage, e.Err)
}

func (e *ImportError) Unwrap() error { return e.Err }

// importError wraps err with the path and stage. Failures caused by a
// missing file additionally match ErrFileNotFound.
func importError(path, stage string, err error) error {
	if err == nil {
		return nil
	}
	var ie *ImportError
	if errors.As(err, &ie) {
		return err
	}
	if errors.Is(err, bridge.ErrNotExist) && !errors.Is(err, ErrFileNotFound) {
		err = fmt.Errorf("%w: File '%s' does not exist: %w", ErrFileNotFound, path, err)
	}
	return &ImportError{Path: path, Stage: stage, Err: err}
}
