// Package sink saves downloaded images into the output directory.
//
// A Sink fetches each image URL at most once per crawl run, derives a
// filename from the URL path and writes the bytes without ever replacing
// an existing file. When the derived name is taken, a numeric suffix is
// appended before the extension (pic.jpg, pic_1.jpg, pic_2.jpg, ...).
// Name selection uses exclusive file creation, so concurrent writers and
// files left by earlier runs are handled the same way.
package sink
