package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and provide specific
// information about what is wrong with the configuration.
var (
	// ErrNoTarget is returned when no seed URL is specified.
	ErrNoTarget = errors.New("no target specified: provide a URL to crawl")

	// ErrInvalidURL is returned when the seed is not an absolute http(s) URL.
	ErrInvalidURL = errors.New("invalid URL")

	// ErrInvalidDepth is returned when the maximum depth is negative.
	ErrInvalidDepth = errors.New("invalid depth: must be non-negative")

	// ErrNoOutputDir is returned when the output directory is empty.
	ErrNoOutputDir = errors.New("no output directory specified")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	// A timeout of zero or negative would cause immediate connection failures.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidWorkers is returned when the worker count is not positive.
	ErrInvalidWorkers = errors.New("invalid workers: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	// A negative body size is invalid; use 0 to use the default limit.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrConflictingTransports is returned when both --tor and --proxy are given.
	ErrConflictingTransports = errors.New("conflicting transports: --tor and --proxy cannot be used together")

	// ErrInvalidTorStartupTimeout is returned when --tor is given with a
	// non-positive startup timeout.
	ErrInvalidTorStartupTimeout = errors.New("invalid tor startup timeout: must be positive")

	// ErrOnionRequiresTor is returned for a .onion seed without --tor or --proxy.
	// Onion services are unreachable over direct connections.
	ErrOnionRequiresTor = errors.New("onion address requires --tor or --proxy")

	// ErrInvalidOnionAddress is returned for a .onion seed that is not a
	// valid v3 onion address.
	ErrInvalidOnionAddress = errors.New("invalid onion address: must be a v3 address")

	// ErrInvalidFileMode is returned for a file mode that is not an octal
	// permission between 0 and 0777.
	ErrInvalidFileMode = errors.New("invalid file mode: must be an octal permission such as 0644")

	// ErrV2AddressDeprecated is returned for a 16 character v2 onion seed.
	// The Tor network stopped serving v2 onion services in October 2021.
	ErrV2AddressDeprecated = errors.New("v2 onion addresses are no longer supported: use a v3 address")
)
