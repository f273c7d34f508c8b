package model

import (
	"errors"
	"sync"
	"testing"
)

func TestParseTarget(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		wantURL  string
		wantHost string
		wantPath string
		wantExt  string
	}{
		{
			name:     "lowercases scheme and host",
			input:    "HTTP://A.Example/Pics/Cat.JPG",
			wantURL:  "http://a.example/Pics/Cat.JPG",
			wantHost: "a.example",
			wantPath: "/Pics/Cat.JPG",
			wantExt:  ".jpg",
		},
		{
			name:     "empty path becomes slash",
			input:    "https://a.example",
			wantURL:  "https://a.example/",
			wantHost: "a.example",
			wantPath: "/",
			wantExt:  "",
		},
		{
			name:     "drops fragment keeps query",
			input:    "http://a.example/x?page=2#top",
			wantURL:  "http://a.example/x?page=2",
			wantHost: "a.example",
			wantPath: "/x",
			wantExt:  "",
		},
		{
			name:     "keeps port in host",
			input:    "http://127.0.0.1:8080/index.html",
			wantURL:  "http://127.0.0.1:8080/index.html",
			wantHost: "127.0.0.1:8080",
			wantPath: "/index.html",
			wantExt:  ".html",
		},
		{
			name:     "drops default http port",
			input:    "http://A.example:80/x",
			wantURL:  "http://a.example/x",
			wantHost: "a.example",
			wantPath: "/x",
			wantExt:  "",
		},
		{
			name:     "drops default https port",
			input:    "https://a.example:443",
			wantURL:  "https://a.example/",
			wantHost: "a.example",
			wantPath: "/",
			wantExt:  "",
		},
		{
			name:     "keeps https port on http",
			input:    "http://a.example:443/x",
			wantURL:  "http://a.example:443/x",
			wantHost: "a.example:443",
			wantPath: "/x",
			wantExt:  "",
		},
		{
			name:     "drops default port of an IPv6 host",
			input:    "http://[::1]:80/x",
			wantURL:  "http://[::1]/x",
			wantHost: "[::1]",
			wantPath: "/x",
			wantExt:  "",
		},
		{
			name:     "trims surrounding space",
			input:    "  http://a.example/x  ",
			wantURL:  "http://a.example/x",
			wantHost: "a.example",
			wantPath: "/x",
			wantExt:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			target, err := ParseTarget(tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if target.URL != tt.wantURL {
				t.Errorf("URL = %q, want %q", target.URL, tt.wantURL)
			}
			if target.Host != tt.wantHost {
				t.Errorf("Host = %q, want %q", target.Host, tt.wantHost)
			}
			if target.Path != tt.wantPath {
				t.Errorf("Path = %q, want %q", target.Path, tt.wantPath)
			}
			if target.Ext != tt.wantExt {
				t.Errorf("Ext = %q, want %q", target.Ext, tt.wantExt)
			}
		})
	}
}

func TestParseTargetRejectsNonAbsolute(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"/relative/path", "ftp://a.example/file", "mailto:me@a.example", "a.example/x"} {
		_, err := ParseTarget(input)
		if !errors.Is(err, ErrNotAbsoluteURL) {
			t.Errorf("ParseTarget(%q) error = %v, want ErrNotAbsoluteURL", input, err)
		}
	}

	if _, err := ParseTarget("http://a.example/%zz"); err == nil {
		t.Error("expected error for malformed escape")
	}
}

func TestTargetSameHost(t *testing.T) {
	t.Parallel()

	target, err := ParseTarget("http://a.example/x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !target.SameHost("A.EXAMPLE") {
		t.Error("expected host comparison to ignore case")
	}
	if target.SameHost("b.example") {
		t.Error("expected different host to not match")
	}
	if target.SameHost("a.example:8080") {
		t.Error("expected port to be part of the host")
	}
}

func TestURLSet(t *testing.T) {
	t.Parallel()

	t.Run("add reports first insertion only", func(t *testing.T) {
		t.Parallel()

		set := NewURLSet()
		if !set.Add("http://a.example/x") {
			t.Error("expected first Add to return true")
		}
		if set.Add("http://a.example/x") {
			t.Error("expected second Add to return false")
		}
		if set.Len() != 1 {
			t.Errorf("expected 1 entry, got %d", set.Len())
		}
	})

	t.Run("normalizes equivalent URLs", func(t *testing.T) {
		t.Parallel()

		set := NewURLSet()
		set.Add("http://A.example")
		if !set.Contains("http://a.example/") {
			t.Error("expected host case and empty path to be normalized")
		}
		if !set.Contains("http://a.example/#section") {
			t.Error("expected fragment to be ignored")
		}
		if !set.Contains("http://a.example:80/") {
			t.Error("expected default port to be ignored")
		}
		if set.Contains("http://a.example/?q=1") {
			t.Error("expected query string to be significant")
		}
	})

	t.Run("concurrent adds insert exactly once", func(t *testing.T) {
		t.Parallel()

		set := NewURLSet()
		var wg sync.WaitGroup
		var mu sync.Mutex
		inserted := 0

		for range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if set.Add("http://a.example/page") {
					mu.Lock()
					inserted++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if inserted != 1 {
			t.Errorf("expected exactly one successful Add, got %d", inserted)
		}
	})
}
