// Package tor routes spider's requests through a SOCKS5 proxy, optionally
// an embedded Tor daemon started with tornago.
//
// By default spider connects directly. With --proxy every request goes
// through the given SOCKS5 proxy; with --tor an embedded Tor daemon is
// started and its SOCKS port is used instead. Onion seeds require one of
// the two and are validated as v3 addresses before any request is made.
//
// Create a Client and hand its HTTP client to the fetcher.
package tor
