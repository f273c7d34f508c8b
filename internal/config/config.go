package config

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/spider/internal/model"
	"github.com/nao1215/spider/internal/tor"
)

// Default configuration values.
const (
	// DefaultMaxDepth is the recursion depth used with -r when -l is not given.
	DefaultMaxDepth = 5

	// DefaultOutputDir is where images are saved when -p is not given.
	DefaultOutputDir = "./data/"

	// DefaultTimeout is the per-request timeout. A single slow resource
	// never blocks the crawl for longer than this.
	DefaultTimeout = 10 * time.Second

	// DefaultWorkers keeps the crawl strictly sequential.
	DefaultWorkers = 1

	// AppName is the application name used for XDG directory paths.
	AppName = "spider"

	// DefaultUserAgent identifies spider in HTTP requests.
	DefaultUserAgent = "spider/1.0"

	// DefaultMaxBodySize limits the size of a single page or image.
	// Larger responses are skipped rather than truncated.
	DefaultMaxBodySize = 32 * 1024 * 1024 // 32MB

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap. 3 minutes is typically sufficient for most
	// network conditions, but may need to be increased for slow connections.
	DefaultTorStartupTimeout = 3 * time.Minute

	// DefaultFileMode is the permission of saved images.
	DefaultFileMode fs.FileMode = 0o600
)

// Config holds all configuration options for one spider run.
// It is populated from CLI flags and optionally merged with the
// configuration file.
type Config struct {
	// StartURL is the seed URL of the crawl.
	StartURL string

	// Recursive enables link traversal. When false only the seed page is
	// scanned for images, whatever MaxDepth says.
	Recursive bool

	// MaxDepth is the maximum link depth followed when Recursive is set.
	MaxDepth int

	// OutputDir is the directory images are saved to. It is created if absent.
	OutputDir string

	// Verbose enables detailed log output using slog.LevelDebug.
	// When false, only warnings and errors are logged.
	Verbose bool

	// Timeout is the timeout of each HTTP request.
	Timeout time.Duration

	// Workers is the number of pages of one depth level fetched concurrently.
	Workers int

	// ConfigFilePath is the path to the configuration file.
	// If empty, FindConfigFile searches the default locations.
	ConfigFilePath string

	// SiteConfigs holds site-specific configurations loaded from the config file.
	SiteConfigs *File

	// JSONReport enables JSON report output instead of human-readable format.
	// Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport enables Markdown report output.
	// Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile is the output file path for the report.
	// When set, the report is written to this file instead of stdout.
	ReportFile string

	// ProxyAddress is a SOCKS5 proxy in "host:port" format. Empty means
	// direct connections.
	ProxyAddress string

	// UseTor starts an embedded Tor daemon and routes all requests through it.
	// Mutually exclusive with ProxyAddress.
	//
	// Note: The embedded Tor daemon takes 1-3 minutes to bootstrap and connect
	// to the Tor network on first start.
	UseTor bool

	// TorStartupTimeout is the maximum time to wait for the embedded Tor daemon
	// to start and bootstrap. Only used when UseTor is true.
	TorStartupTimeout time.Duration

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string

	// MaxBodySize is the maximum response body size in bytes.
	MaxBodySize int64

	// SameDomainImages restricts image downloads to the seed's host.
	SameDomainImages bool

	// FileMode is the permission of saved images.
	FileMode fs.FileMode

	// IgnorePatterns are URL path patterns never followed.
	IgnorePatterns []string

	// FollowPatterns, when set, restrict link following to matching paths.
	FollowPatterns []string

	// DBDir is the directory of the history database.
	// Defaults to XDG data directory (~/.local/share/spider on Linux).
	DBDir string

	// SaveToDB indicates whether the run is recorded in the history database.
	SaveToDB bool
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		MaxDepth:          DefaultMaxDepth,
		OutputDir:         DefaultOutputDir,
		Timeout:           DefaultTimeout,
		Workers:           DefaultWorkers,
		TorStartupTimeout: DefaultTorStartupTimeout,
		UserAgent:         DefaultUserAgent,
		MaxBodySize:       DefaultMaxBodySize,
		FileMode:          DefaultFileMode,
		DBDir:             XDGDataDir(),
		SaveToDB:          true,
	}
}

// EffectiveMaxDepth returns the depth bound of the crawl: MaxDepth when
// Recursive is set, otherwise 0.
func (c *Config) EffectiveMaxDepth() int {
	if !c.Recursive {
		return 0
	}
	return c.MaxDepth
}

// XDGDataDir returns the XDG data directory for spider.
// On Linux: ~/.local/share/spider
// On macOS: ~/Library/Application Support/spider
// On Windows: %LOCALAPPDATA%\spider
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for spider.
// On Linux: ~/.config/spider
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// ParseFileMode parses an octal permission such as "0644" or "600".
func ParseFileMode(s string) (fs.FileMode, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 8, 32)
	if err != nil || v > uint64(fs.ModePerm) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFileMode, s)
	}
	return fs.FileMode(v), nil
}

// Validate checks if the configuration is valid.
// It returns the first problem found, wrapping one of the sentinel errors.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.StartURL) == "" {
		return ErrNoTarget
	}

	target, err := model.ParseTarget(c.StartURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}

	if c.MaxDepth < 0 {
		return ErrInvalidDepth
	}

	if strings.TrimSpace(c.OutputDir) == "" {
		return ErrNoOutputDir
	}

	// Timeout must be positive; zero timeout would cause immediate failures
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.Workers <= 0 {
		return ErrInvalidWorkers
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}

	if c.FileMode&^fs.ModePerm != 0 {
		return fmt.Errorf("%w: %o", ErrInvalidFileMode, c.FileMode)
	}

	if c.UseTor && c.ProxyAddress != "" {
		return ErrConflictingTransports
	}

	if c.UseTor && c.TorStartupTimeout <= 0 {
		return ErrInvalidTorStartupTimeout
	}

	if tor.IsOnionHost(target.Host) {
		if tor.IsV2Address(target.Host) {
			return fmt.Errorf("%w: %s", ErrV2AddressDeprecated, target.Host)
		}
		if !c.UseTor && c.ProxyAddress == "" {
			return ErrOnionRequiresTor
		}
		if !tor.IsValidV3Address(target.Host) {
			return fmt.Errorf("%w: %s", ErrInvalidOnionAddress, target.Host)
		}
	}

	return nil
}
