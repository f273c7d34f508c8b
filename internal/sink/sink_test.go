package sink

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/nao1215/spider/internal/fetch"
)

// countingFetcher serves fixed bodies and counts requests per URL.
type countingFetcher struct {
	mu     sync.Mutex
	calls  map[string]int
	bodies map[string]string
	err    error
}

func newCountingFetcher(bodies map[string]string) *countingFetcher {
	return &countingFetcher{calls: make(map[string]int), bodies: bodies}
}

func (f *countingFetcher) Fetch(_ context.Context, rawURL string, _ ...fetch.RequestOption) (*fetch.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[rawURL]++
	if f.err != nil {
		return nil, f.err
	}
	return &fetch.Response{URL: rawURL, StatusCode: http.StatusOK, ContentType: "image/png", Body: []byte(f.bodies[rawURL])}, nil
}

func (f *countingFetcher) count(rawURL string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[rawURL]
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path) //nolint:gosec // test file under t.TempDir
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

func TestSinkSave(t *testing.T) {
	t.Parallel()

	t.Run("writes image under its basename", func(t *testing.T) {
		t.Parallel()

		dir := filepath.Join(t.TempDir(), "nested", "out")
		f := newCountingFetcher(map[string]string{"http://a.example/img/pic.jpg": "jpegdata"})
		s := New(f, dir, nil)

		d, err := s.Save(context.Background(), "http://a.example/img/pic.jpg", "http://a.example/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d.Path != filepath.Join(dir, "pic.jpg") {
			t.Errorf("expected path %s, got %s", filepath.Join(dir, "pic.jpg"), d.Path)
		}
		if d.Size != int64(len("jpegdata")) {
			t.Errorf("expected size %d, got %d", len("jpegdata"), d.Size)
		}
		if d.PageURL != "http://a.example/" {
			t.Errorf("unexpected page URL %q", d.PageURL)
		}
		if len(d.SHA256) != 64 {
			t.Errorf("expected hex sha256, got %q", d.SHA256)
		}
		if got := readFile(t, d.Path); got != "jpegdata" {
			t.Errorf("unexpected file content %q", got)
		}
		if !s.Downloaded().Contains("http://a.example/img/pic.jpg") {
			t.Error("expected URL to be recorded as downloaded")
		}
	})

	t.Run("second save of the same URL is a no-op", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		f := newCountingFetcher(map[string]string{"http://a.example/pic.jpg": "x"})
		s := New(f, dir, nil)

		if _, err := s.Save(context.Background(), "http://a.example/pic.jpg", ""); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		_, err := s.Save(context.Background(), "http://a.example/pic.jpg", "")
		if !errors.Is(err, ErrAlreadyDownloaded) {
			t.Errorf("expected ErrAlreadyDownloaded, got %v", err)
		}
		if n := f.count("http://a.example/pic.jpg"); n != 1 {
			t.Errorf("expected 1 fetch, got %d", n)
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 1 {
			t.Errorf("expected 1 file, got %d", len(entries))
		}
	})

	t.Run("existing file gets a numeric suffix", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "pic.jpg"), []byte("old"), 0o600); err != nil {
			t.Fatal(err)
		}
		f := newCountingFetcher(map[string]string{"http://a.example/other/pic.jpg": "new"})
		s := New(f, dir, nil)

		d, err := s.Save(context.Background(), "http://a.example/other/pic.jpg", "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if filepath.Base(d.Path) != "pic_1.jpg" {
			t.Errorf("expected pic_1.jpg, got %s", filepath.Base(d.Path))
		}
		if got := readFile(t, filepath.Join(dir, "pic.jpg")); got != "old" {
			t.Errorf("existing file was overwritten: %q", got)
		}
	})

	t.Run("distinct URLs with the same basename produce distinct files", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		f := newCountingFetcher(map[string]string{
			"http://a.example/a/logo.png": "first",
			"http://a.example/b/logo.png": "second",
			"http://a.example/c/logo.png": "third",
		})
		s := New(f, dir, nil)

		var paths []string
		for _, u := range []string{"http://a.example/a/logo.png", "http://a.example/b/logo.png", "http://a.example/c/logo.png"} {
			d, err := s.Save(context.Background(), u, "")
			if err != nil {
				t.Fatalf("unexpected error for %s: %v", u, err)
			}
			paths = append(paths, filepath.Base(d.Path))
		}

		want := []string{"logo.png", "logo_1.png", "logo_2.png"}
		for i := range want {
			if paths[i] != want[i] {
				t.Errorf("file %d: expected %s, got %s", i, want[i], paths[i])
			}
		}
		if got := readFile(t, filepath.Join(dir, "logo_1.png")); got != "second" {
			t.Errorf("unexpected content %q", got)
		}
	})

	t.Run("unusable basename gets a synthesized name", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		f := newCountingFetcher(map[string]string{
			"http://a.example/first.gif": "g",
			"http://a.example/img/.jpg":  "anon",
		})
		s := New(f, dir, nil)

		if _, err := s.Save(context.Background(), "http://a.example/first.gif", ""); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		d, err := s.Save(context.Background(), "http://a.example/img/.jpg", "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		// countingFetcher reports image/png.
		if filepath.Base(d.Path) != "image_1.png" {
			t.Errorf("expected image_1.png, got %s", filepath.Base(d.Path))
		}
	})

	t.Run("fetch failure leaves the set unchanged", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		f := newCountingFetcher(nil)
		f.err = &fetch.Error{URL: "http://a.example/pic.jpg", Kind: fetch.KindStatus, StatusCode: 404}
		s := New(f, dir, nil)

		_, err := s.Save(context.Background(), "http://a.example/pic.jpg", "")
		if !fetch.IsKind(err, fetch.KindStatus) {
			t.Fatalf("expected status error, got %v", err)
		}
		if s.Downloaded().Contains("http://a.example/pic.jpg") || s.Downloaded().Len() != 0 {
			t.Error("expected set to be unchanged")
		}
		if err := s.Downloaded().Claim("http://a.example/pic.jpg"); err != nil {
			t.Errorf("expected URL to be claimable again, got %v", err)
		}
		entries, _ := os.ReadDir(dir) //nolint:errcheck
		if len(entries) != 0 {
			t.Errorf("expected no files, got %d", len(entries))
		}
	})

	t.Run("write failure marks the URL failed", func(t *testing.T) {
		t.Parallel()

		// The output "directory" is a regular file, so MkdirAll fails.
		blocker := filepath.Join(t.TempDir(), "blocker")
		if err := os.WriteFile(blocker, nil, 0o600); err != nil {
			t.Fatal(err)
		}
		f := newCountingFetcher(map[string]string{"http://a.example/pic.jpg": "x"})
		s := New(f, blocker, nil)

		_, err := s.Save(context.Background(), "http://a.example/pic.jpg", "")
		var we *WriteError
		if !errors.As(err, &we) {
			t.Fatalf("expected *WriteError, got %T: %v", err, err)
		}
		if s.Downloaded().Contains("http://a.example/pic.jpg") {
			t.Error("failed URL must not be recorded as downloaded")
		}

		_, err = s.Save(context.Background(), "http://a.example/pic.jpg", "")
		if !errors.Is(err, ErrPreviouslyFailed) {
			t.Errorf("expected ErrPreviouslyFailed, got %v", err)
		}
		if n := f.count("http://a.example/pic.jpg"); n != 1 {
			t.Errorf("expected 1 fetch, got %d", n)
		}
	})
}

func TestSinkFileMode(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("skipping permission test on Windows")
	}

	const imageURL = "http://a.example/pic.png"

	t.Run("default mode is owner only", func(t *testing.T) {
		t.Parallel()

		fetcher := newCountingFetcher(map[string]string{imageURL: "png"})
		d, err := New(fetcher, t.TempDir(), NewDownloadedSet()).Save(context.Background(), imageURL, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		info, err := os.Stat(d.Path)
		if err != nil {
			t.Fatalf("failed to stat %s: %v", d.Path, err)
		}
		if perm := info.Mode().Perm(); perm&0o077 != 0 {
			t.Errorf("expected no group or other bits, got %o", perm)
		}
	})

	t.Run("WithFileMode sets the permission", func(t *testing.T) {
		t.Parallel()

		fetcher := newCountingFetcher(map[string]string{imageURL: "png"})
		d, err := New(fetcher, t.TempDir(), NewDownloadedSet(), WithFileMode(0o640)).Save(context.Background(), imageURL, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		info, err := os.Stat(d.Path)
		if err != nil {
			t.Fatalf("failed to stat %s: %v", d.Path, err)
		}
		// The umask may clear bits but never adds any.
		perm := info.Mode().Perm()
		if perm&^0o640 != 0 || perm&0o600 != 0o600 {
			t.Errorf("expected permission within 0640, got %o", perm)
		}
	})
}

func TestSinkSaveConcurrent(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte(r.URL.Path))
	}))
	defer server.Close()

	dir := t.TempDir()
	s := New(fetch.New(server.Client()), dir, NewDownloadedSet())

	// Ten workers save the same URL, ten more save distinct URLs sharing
	// the basename.
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = s.Save(context.Background(), server.URL+"/same/pic.jpg", "") //nolint:errcheck
		}()
		go func(i int) {
			defer wg.Done()
			if _, err := s.Save(context.Background(), server.URL+"/d"+string(rune('a'+i))+"/pic.jpg", ""); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 11 {
		t.Errorf("expected 11 files, got %d", len(entries))
	}
	if got := requests.Load(); got != 11 {
		t.Errorf("expected 11 requests, got %d", got)
	}
	if s.Downloaded().Len() != 11 {
		t.Errorf("expected 11 downloads, got %d", s.Downloaded().Len())
	}
}

func TestFilenameFromURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		url  string
		want string
	}{
		{name: "simple", url: "http://a.example/pic.jpg", want: "pic.jpg"},
		{name: "query ignored", url: "http://a.example/img/pic.PNG?w=100", want: "pic.PNG"},
		{name: "escaped", url: "http://a.example/my%20pic.gif", want: "my pic.gif"},
		{name: "escaped slash", url: "http://a.example/a%2Fb.jpg", want: "b.jpg"},
		{name: "escaped backslash", url: "http://a.example/a%5Cb.jpg", want: "a_b.jpg"},
		{name: "no extension", url: "http://a.example/download?id=5", want: ""},
		{name: "extension only", url: "http://a.example/.jpg", want: ""},
		{name: "root", url: "http://a.example/", want: ""},
		{name: "empty path", url: "http://a.example", want: ""},
		{name: "unparseable", url: "http://a.example/%zz.jpg", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := FilenameFromURL(tt.url); got != tt.want {
				t.Errorf("FilenameFromURL(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestSynthesizeFilename(t *testing.T) {
	t.Parallel()

	tests := []struct {
		contentType string
		want        string
	}{
		{contentType: "image/png", want: "image_3.png"},
		{contentType: "image/gif; charset=binary", want: "image_3.gif"},
		{contentType: "IMAGE/BMP", want: "image_3.bmp"},
		{contentType: "application/octet-stream", want: "image_3.jpg"},
		{contentType: "", want: "image_3.jpg"},
	}

	for _, tt := range tests {
		if got := SynthesizeFilename(3, tt.contentType); got != tt.want {
			t.Errorf("SynthesizeFilename(3, %q) = %q, want %q", tt.contentType, got, tt.want)
		}
	}
}

func TestSuffixedName(t *testing.T) {
	t.Parallel()

	if got := suffixedName("pic.jpg", 0); got != "pic.jpg" {
		t.Errorf("expected pic.jpg, got %s", got)
	}
	if got := suffixedName("pic.jpg", 2); got != "pic_2.jpg" {
		t.Errorf("expected pic_2.jpg, got %s", got)
	}
	if got := suffixedName("archive.tar.gz", 1); got != "archive.tar_1.gz" {
		t.Errorf("expected archive.tar_1.gz, got %s", got)
	}
}

func TestDownloadedSet(t *testing.T) {
	t.Parallel()

	s := NewDownloadedSet()
	u := "http://A.example/pic.jpg#frag"

	if err := s.Claim(u); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Claim("http://a.example/pic.jpg"); !errors.Is(err, ErrAlreadyDownloaded) {
		t.Errorf("expected in-flight claim to be rejected, got %v", err)
	}
	if s.Contains(u) {
		t.Error("in-flight URL must not count as downloaded")
	}

	s.Commit(u)
	s.Commit(u)
	if !s.Contains("http://a.example/pic.jpg") {
		t.Error("expected normalized URL to be contained")
	}
	if s.Len() != 1 {
		t.Errorf("expected Len 1, got %d", s.Len())
	}

	s.Release(u)
	if !s.Contains(u) {
		t.Error("Release must not drop a committed URL")
	}
	s.Fail(u)
	if !s.Contains(u) {
		t.Error("Fail must not drop a committed URL")
	}
}
