package sink

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyDownloaded is returned by Save when the image URL was
	// already saved in this run or is being saved by another worker.
	ErrAlreadyDownloaded = errors.New("image already downloaded")

	// ErrPreviouslyFailed is returned by Save when writing the image failed
	// earlier in this run. Such images are not retried until the next run.
	ErrPreviouslyFailed = errors.New("image failed earlier in this run")

	// ErrTooManyCollisions is returned when no free filename was found
	// within MaxCollisionSuffix attempts.
	ErrTooManyCollisions = errors.New("too many filename collisions")
)

// WriteError reports an I/O failure while saving an image.
// The image is marked failed for the remainder of the run.
type WriteError struct {
	// URL is the image URL.
	URL string

	// Path is the file that was being written, empty if no file was created.
	Path string

	// Err is the underlying I/O error.
	Err error
}

// Error implements the error interface.
func (e *WriteError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("save %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("save %s to %s: %v", e.URL, e.Path, e.Err)
}

// Unwrap returns the underlying I/O error.
func (e *WriteError) Unwrap() error {
	return e.Err
}
