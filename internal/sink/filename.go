package sink

import (
	"mime"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/nao1215/spider/internal/classify"
)

// defaultExt is used for synthesized names when the Content-Type does not
// map to a known image type.
const defaultExt = ".jpg"

// contentTypeExt maps image media types to file extensions.
var contentTypeExt = map[string]string{
	"image/jpeg":          ".jpg",
	"image/pjpeg":         ".jpg",
	"image/png":           ".png",
	"image/gif":           ".gif",
	"image/bmp":           ".bmp",
	"image/x-bmp":         ".bmp",
	"image/x-ms-bmp":      ".bmp",
	"image/x-windows-bmp": ".bmp",
}

// FilenameFromURL returns the unescaped basename of the URL path when it is
// usable as an image filename, or an empty string otherwise.
// Path separators and NUL bytes that survive unescaping are replaced.
func FilenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	base := path.Base(u.Path)
	if base == "." || base == "/" {
		return ""
	}

	name := sanitizeFilename(base)
	if !classify.IsImageFilename(name) {
		return ""
	}
	return name
}

// SynthesizeFilename returns image_<n><ext>, where ext is derived from the
// Content-Type and falls back to .jpg.
func SynthesizeFilename(n int, contentType string) string {
	return "image_" + strconv.Itoa(n) + extForContentType(contentType)
}

func extForContentType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return defaultExt
	}
	if ext, ok := contentTypeExt[strings.ToLower(mt)]; ok {
		return ext
	}
	return defaultExt
}

func sanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		default:
			return r
		}
	}, name)
}

// suffixedName returns name with "_i" inserted before the extension.
// i == 0 returns name unchanged.
func suffixedName(name string, i int) string {
	if i == 0 {
		return name
	}
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	return stem + "_" + strconv.Itoa(i) + ext
}
