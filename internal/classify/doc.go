// Package classify decides whether a URL or filename refers to an image
// the spider is willing to download.
//
// Classification is purely lexical. The extension of the URL path is
// compared case-insensitively against a fixed set; the response body is
// never inspected and no network access happens here.
package classify
