// Package fetch performs single HTTP GET requests for the spider.
//
// A Fetcher wraps an *http.Client. It returns the whole response body
// (bounded by a size limit) together with a decoded text view for HTML
// parsing. Every failure is reported as an *Error whose Kind tells the
// caller whether the network, the timeout, the HTTP status, a redirect or
// the size limit was the cause. Requests are never retried.
package fetch
