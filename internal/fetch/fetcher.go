package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

const (
	// DefaultTimeout is the per-request timeout applied by NewHTTPClient.
	DefaultTimeout = 10 * time.Second

	// DefaultMaxBodySize is the largest body Fetch accepts.
	// Larger responses fail with KindTooLarge and are never truncated.
	DefaultMaxBodySize int64 = 32 * 1024 * 1024 // 32MB

	// DefaultUserAgent is sent when no other User-Agent is configured.
	DefaultUserAgent = "spider/1.0"

	// MaxRedirects is the longest redirect chain that is followed.
	MaxRedirects = 10
)

// Fetcher performs HTTP GET requests with a fixed timeout and size limit.
// A Fetcher is safe for concurrent use.
type Fetcher struct {
	// client performs the requests. Its CheckRedirect is replaced by
	// the Fetcher's redirect policy.
	client *http.Client

	// userAgent is the User-Agent header value.
	userAgent string

	// maxBodySize limits the number of body bytes read.
	maxBodySize int64
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithMaxBodySize sets the maximum response body size in bytes.
// Non-positive values keep the default.
func WithMaxBodySize(size int64) Option {
	return func(f *Fetcher) {
		if size > 0 {
			f.maxBodySize = size
		}
	}
}

// New creates a Fetcher using client. A nil client is replaced by
// NewHTTPClient(DefaultTimeout). The client is copied, so the caller's
// client is not modified.
func New(client *http.Client, opts ...Option) *Fetcher {
	if client == nil {
		client = NewHTTPClient(DefaultTimeout)
	}
	c := *client
	c.CheckRedirect = checkRedirect

	f := &Fetcher{
		client:      &c,
		userAgent:   DefaultUserAgent,
		maxBodySize: DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewHTTPClient creates a direct (non-proxied) HTTP client with the given
// per-request timeout. No cookie jar is attached, so no cookies persist
// between requests.
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// Response is a successfully fetched resource.
type Response struct {
	// URL is the final URL after redirects.
	URL string

	// StatusCode is the HTTP status code (always 2xx).
	StatusCode int

	// ContentType is the raw Content-Type header value.
	ContentType string

	// Body is the complete response body.
	Body []byte
}

// MediaType returns the lowercase media type without parameters.
// When the server sent no usable Content-Type, the type is sniffed from
// the body.
func (r *Response) MediaType() string {
	if r.ContentType != "" {
		if mt, _, err := mime.ParseMediaType(r.ContentType); err == nil {
			return strings.ToLower(mt)
		}
	}
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(r.Body)) //nolint:errcheck // DetectContentType always returns a valid type
	return mt
}

// IsHTML reports whether the response is an HTML document.
func (r *Response) IsHTML() bool {
	switch r.MediaType() {
	case "text/html", "application/xhtml+xml":
		return true
	default:
		return false
	}
}

// Text decodes the body to a UTF-8 string. The character set is taken
// from the Content-Type header, a byte order mark, or a <meta charset>
// declaration, in that order of precedence, defaulting to windows-1252
// for HTML without any declaration.
func (r *Response) Text() (string, error) {
	enc, _, _ := charset.DetermineEncoding(r.Body, r.ContentType)
	decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(r.Body), enc.NewDecoder()))
	if err != nil {
		return "", fmt.Errorf("failed to decode body of %s: %w", r.URL, err)
	}
	return string(decoded), nil
}

// RequestOption configures a single Fetch call.
type RequestOption func(*requestConfig)

type requestConfig struct {
	redirectHost   string
	redirectFilter func(*url.URL) error
	accept         string
}

// WithSameHostRedirects rejects any redirect whose target host differs
// from host (compared case-insensitively, port included).
func WithSameHostRedirects(host string) RequestOption {
	return func(c *requestConfig) {
		c.redirectHost = host
	}
}

// WithRedirectFilter calls filter with the target of every redirect hop,
// after the same-host check. A non-nil error stops the request; Fetch then
// fails with KindRedirect and the error wraps both ErrRedirectRejected and
// the filter's error.
func WithRedirectFilter(filter func(target *url.URL) error) RequestOption {
	return func(c *requestConfig) {
		c.redirectFilter = filter
	}
}

// WithAccept sets the Accept header of the request.
func WithAccept(accept string) RequestOption {
	return func(c *requestConfig) {
		c.accept = accept
	}
}

// redirectHostKey is the context key carrying the allowed redirect host.
type redirectHostKey struct{}

// redirectFilterKey is the context key carrying the redirect filter.
type redirectFilterKey struct{}

// checkRedirect is the redirect policy of every Fetcher client.
func checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= MaxRedirects {
		return ErrTooManyRedirects
	}
	if host, ok := req.Context().Value(redirectHostKey{}).(string); ok && host != "" {
		if !strings.EqualFold(redirectHost(req.URL), host) {
			return fmt.Errorf("%w: %s", ErrCrossHostRedirect, req.URL.Host)
		}
	}
	if filter, ok := req.Context().Value(redirectFilterKey{}).(func(*url.URL) error); ok && filter != nil {
		if err := filter(req.URL); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrRedirectRejected, req.URL, err)
		}
	}
	return nil
}

// redirectHost returns the host of u without the default port of its
// scheme, matching the host form of model.ParseTarget.
func redirectHost(u *url.URL) string {
	if port := u.Port(); (port == "80" && u.Scheme == "http") || (port == "443" && u.Scheme == "https") {
		return strings.TrimSuffix(u.Host, ":"+port)
	}
	return u.Host
}

// Fetch performs a GET request for rawURL and returns the response.
// Every failure is returned as an *Error.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, opts ...RequestOption) (*Response, error) {
	cfg := requestConfig{accept: "*/*"}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.redirectHost != "" {
		ctx = context.WithValue(ctx, redirectHostKey{}, cfg.redirectHost)
	}
	if cfg.redirectFilter != nil {
		ctx = context.WithValue(ctx, redirectFilterKey{}, cfg.redirectFilter)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &Error{URL: rawURL, Kind: KindRequest, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", cfg.accept)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &Error{URL: rawURL, Kind: classifyTransportError(err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{URL: rawURL, Kind: KindStatus, StatusCode: resp.StatusCode}
	}

	if resp.ContentLength > f.maxBodySize {
		return nil, &Error{URL: rawURL, Kind: KindTooLarge, Err: ErrBodyTooLarge}
	}

	// Read one byte past the limit to tell "exactly at the limit" from "over it".
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize+1))
	if err != nil {
		return nil, &Error{URL: rawURL, Kind: classifyReadError(err), Err: err}
	}
	if int64(len(body)) > f.maxBodySize {
		return nil, &Error{URL: rawURL, Kind: KindTooLarge, Err: ErrBodyTooLarge}
	}

	return &Response{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// classifyTransportError maps an error from http.Client.Do to a Kind.
func classifyTransportError(err error) Kind {
	switch {
	case errors.Is(err, ErrCrossHostRedirect), errors.Is(err, ErrTooManyRedirects), errors.Is(err, ErrRedirectRejected):
		return KindRedirect
	case isTimeout(err):
		return KindTimeout
	default:
		return KindTransport
	}
}

// classifyReadError maps an error from reading the body to a Kind.
func classifyReadError(err error) Kind {
	if isTimeout(err) {
		return KindTimeout
	}
	return KindRead
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
