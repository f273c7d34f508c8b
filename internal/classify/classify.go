package classify

import (
	"net/url"
	"path"
	"strings"
)

// imageExtensions is the fixed set of supported image extensions.
// All entries are lowercase and include the leading dot.
var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp"}

// Extensions returns a copy of the supported image extensions.
func Extensions() []string {
	exts := make([]string, len(imageExtensions))
	copy(exts, imageExtensions)
	return exts
}

// IsImage reports whether rawURL points to a supported image resource.
// Only the path is considered, so query strings and fragments never
// affect the result: "http://a.example/p.PNG?w=10#top" is an image,
// "http://a.example/download?id=5.jpg" is not.
func IsImage(rawURL string) bool {
	return hasImageExtension(urlPath(rawURL))
}

// IsImageFilename reports whether name is usable as an image filename.
// In addition to the extension check, the stem must not be empty, which
// rejects names such as ".jpg".
func IsImageFilename(name string) bool {
	if !hasImageExtension(name) {
		return false
	}
	ext := path.Ext(name)
	return strings.TrimSuffix(name, ext) != ""
}

// Ext returns the lowercase supported extension of the URL path,
// or an empty string when the URL is not an image.
func Ext(rawURL string) string {
	p := strings.ToLower(urlPath(rawURL))
	for _, ext := range imageExtensions {
		if strings.HasSuffix(p, ext) {
			return ext
		}
	}
	return ""
}

func hasImageExtension(p string) bool {
	p = strings.ToLower(p)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(p, ext) {
			return true
		}
	}
	return false
}

// urlPath extracts the path component of rawURL. Unparseable input falls
// back to cutting at the first '?' or '#'.
func urlPath(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		return u.Path
	}
	if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}
