// Package log provides secure logging functionality with automatic sanitization
// of sensitive information, built on top of the standard slog package.
//
// This package extends slog to provide:
//   - Automatic sanitization of sensitive attribute values (cookies, tokens, secrets)
//   - Redaction of credentials embedded in URLs, both in the userinfo part
//     and in query parameters of signed links
//   - Configurable log levels with verbose mode support
//
// Crawled pages routinely link to URLs carrying access tokens or
// signatures. Those URLs end up in log attributes and in error messages,
// so the SecureHandler rewrites them before they reach the output.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Warn("image download failed",
//	    "url", "https://cdn.example.com/a.png?sig=abc", // sig value is masked
//	    "error", err,
//	)
package log
