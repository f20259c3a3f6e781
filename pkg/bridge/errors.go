package bridge

import (
	"errors"
	"fmt"
)

// Result is a status code returned by an import library call.
type Result int32

const (
	Success Result = iota
	ErrorGeneric
	ErrorFileNotFound
	ErrorInvalidHandle
	ErrorIndexOutOfRange
	ErrorBufferTooSmall
	ErrorUnsupportedFormat
	ErrorDecode
)

var resultNames = map[Result]string{
	Success:                "success",
	ErrorGeneric:           "generic failure",
	ErrorFileNotFound:      "file not found",
	ErrorInvalidHandle:     "invalid handle",
	ErrorIndexOutOfRange:   "index out of range",
	ErrorBufferTooSmall:    "buffer too small",
	ErrorUnsupportedFormat: "unsupported format",
	ErrorDecode:            "decode failure",
}

func (r Result) String() string {
	if s, ok := resultNames[r]; ok {
		return s
	}
	return fmt.Sprintf("result %d", int32(r))
}

// Err returns nil on Success, otherwise a *ResultError for op.
func (r Result) Err(op string) error {
	if r == Success {
		return nil
	}
	return &ResultError{Op: op, Code: r}
}

// Wrap is Err with an underlying cause attached.
func (r Result) Wrap(op string, cause error) error {
	if r == Success {
		return nil
	}
	return &ResultError{Op: op, Code: r, Cause: cause}
}

// ResultError wraps a non-success result code.
type ResultError struct {
	Op    string
	Code  Result
	Cause error
}

func (e *ResultError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("bridge: %s: %s (code %d): %v", e.Op, e.Code, int32(e.Code), e.Cause)
	}
	return fmt.Sprintf("bridge: %s: %s (code %d)", e.Op, e.Code, int32(e.Code))
}

func (e *ResultError) Unwrap() error { return e.Cause }

// Is matches ErrNotExist for file-not-found codes.
func (e *ResultError) Is(target error) bool {
	return target == ErrNotExist && e.Code == ErrorFileNotFound
}

// ErrNotExist is matched by result errors reporting a missing file.
var ErrNotExist = errors.New("bridge: file does not exist")

// CodeOf extracts the result code from err, or Success when err is nil.
func CodeOf(err error) Result {
	if err == nil {
		return Success
	}
	var re *ResultError
	if errors.As(err, &re) {
		return re.Code
	}
	return ErrorGeneric
}
