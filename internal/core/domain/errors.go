package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedFileType  = errors.New("unsupported file type")
	ErrFileNotFound         = errors.New("file not found")
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrIndexUnavailable     = errors.New("index unavailable")
	ErrIndexNotReady        = errors.New("index not ready")
	ErrMissingCredential    = errors.New("missing credential")
	ErrExternalService      = errors.New("external service error")

	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrTemporary    = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
