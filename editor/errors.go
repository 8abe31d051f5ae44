package editor

import (
	"errors"
	"fmt"
)

var (
	ErrNotImage           = errors.New("editor: file is not an image")
	ErrTooLarge           = errors.New("editor: file exceeds the upload limit")
	ErrNoContent          = errors.New("editor: file has no content")
	ErrClosed             = errors.New("editor: controller is closed")
	ErrUnknownTask        = errors.New("editor: unknown upload task")
	ErrCancelled          = errors.New("editor: upload cancelled")
	ErrPlaceholderRemoved = errors.New("editor: placeholder was removed before the upload finished")

	ErrMarkerNotFound = errors.New("editor: marker not found")
	ErrInsideMarker   = errors.New("editor: position is inside a placeholder")
	ErrOutOfRange     = errors.New("editor: position out of range")
)

// TransferError reports a failed transfer of an upload to object storage.
type TransferError struct {
	Key string
	Err error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Key, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// ResolutionError reports a transfer that succeeded but whose retrieval URL
// could not be obtained.
type ResolutionError struct {
	Key string
	Err error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve url for %s: %v", e.Key, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }
