package sink

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/nao1215/spider/internal/fetch"
	"github.com/nao1215/spider/internal/model"
)

const (
	// MaxCollisionSuffix is the highest numeric suffix tried before Save
	// gives up with ErrTooManyCollisions.
	MaxCollisionSuffix = 10000

	defaultDirMode  fs.FileMode = 0o750
	defaultFileMode fs.FileMode = 0o600
)

// Fetcher retrieves a resource. *fetch.Fetcher implements it.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, opts ...fetch.RequestOption) (*fetch.Response, error)
}

// Sink saves images into one output directory.
// A Sink is safe for concurrent use.
type Sink struct {
	fetcher    Fetcher
	outputDir  string
	downloaded *DownloadedSet
	fileMode   fs.FileMode
	now        func() time.Time
}

// Option configures a Sink.
type Option func(*Sink)

// WithFileMode sets the permission bits of written image files.
func WithFileMode(mode fs.FileMode) Option {
	return func(s *Sink) {
		s.fileMode = mode
	}
}

// New creates a Sink writing into outputDir. downloaded is shared by every
// Sink of the same crawl run; a nil set creates a private one.
func New(fetcher Fetcher, outputDir string, downloaded *DownloadedSet, opts ...Option) *Sink {
	if downloaded == nil {
		downloaded = NewDownloadedSet()
	}
	s := &Sink{
		fetcher:    fetcher,
		outputDir:  outputDir,
		downloaded: downloaded,
		fileMode:   defaultFileMode,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Downloaded returns the set shared by this Sink.
func (s *Sink) Downloaded() *DownloadedSet {
	return s.downloaded
}

// Save downloads imageURL into the output directory. pageURL is the page
// the reference was found on and is only recorded in the result.
//
// Save returns ErrAlreadyDownloaded (or ErrPreviouslyFailed) without any
// network access when the URL was handled before in this run. A fetch
// failure leaves the DownloadedSet unchanged and returns the *fetch.Error.
// A write failure returns a *WriteError and marks the URL failed.
func (s *Sink) Save(ctx context.Context, imageURL, pageURL string) (*model.Download, error) {
	if err := s.downloaded.Claim(imageURL); err != nil {
		return nil, err
	}

	resp, err := s.fetcher.Fetch(ctx, imageURL, fetch.WithAccept("image/*,*/*;q=0.8"))
	if err != nil {
		s.downloaded.Release(imageURL)
		return nil, err
	}

	name := FilenameFromURL(imageURL)
	if name == "" {
		name = SynthesizeFilename(s.downloaded.Len(), resp.ContentType)
	}

	path, size, err := s.write(name, resp.Body)
	if err != nil {
		s.downloaded.Fail(imageURL)
		return nil, &WriteError{URL: imageURL, Path: path, Err: err}
	}
	s.downloaded.Commit(imageURL)

	sum := sha256.Sum256(resp.Body)
	return &model.Download{
		URL:         imageURL,
		PageURL:     pageURL,
		Path:        path,
		Size:        size,
		ContentType: resp.ContentType,
		SHA256:      hex.EncodeToString(sum[:]),
		Timestamp:   s.now(),
	}, nil
}

// write stores data under a free variant of name and returns the path.
// On error the returned path is the partially written file (already
// removed), or empty when no file was created.
func (s *Sink) write(name string, data []byte) (string, int64, error) {
	if err := os.MkdirAll(s.outputDir, defaultDirMode); err != nil {
		return "", 0, fmt.Errorf("failed to create output directory: %w", err)
	}

	f, path, err := s.createExclusive(name)
	if err != nil {
		return "", 0, err
	}

	n, writeErr := f.Write(data)
	closeErr := f.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		_ = os.Remove(path) //nolint:errcheck // Best effort cleanup
		return path, 0, fmt.Errorf("failed to write image: %w", err)
	}
	return path, int64(n), nil
}

// createExclusive creates the first non-existing file among name,
// name_1, name_2, ... in the output directory. O_EXCL makes the existence
// check and the creation one step, so a file created by another worker
// between two attempts is never truncated.
func (s *Sink) createExclusive(name string) (*os.File, string, error) {
	for i := 0; i <= MaxCollisionSuffix; i++ {
		path := filepath.Join(s.outputDir, suffixedName(name, i))
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, s.fileMode) //nolint:gosec // path is built from a sanitized basename
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", fmt.Errorf("failed to create %s: %w", path, err)
		}
	}
	return nil, "", fmt.Errorf("%w: %s", ErrTooManyCollisions, name)
}
