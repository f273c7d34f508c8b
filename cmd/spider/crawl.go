package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/spider/internal/config"
	"github.com/nao1215/spider/internal/crawler"
	"github.com/nao1215/spider/internal/database"
	"github.com/nao1215/spider/internal/fetch"
	"github.com/nao1215/spider/internal/log"
	"github.com/nao1215/spider/internal/model"
	"github.com/nao1215/spider/internal/report"
	"github.com/nao1215/spider/internal/sink"
	"github.com/nao1215/spider/internal/tor"
)

// addCrawlFlags registers the flags of a crawl run on cmd.
func addCrawlFlags(cmd *cobra.Command) {
	// Crawl scope flags
	cmd.Flags().BoolP("recursive", "r", false,
		"Recursively follow links on the same host")
	cmd.Flags().IntP(config.FlagLevel, "l", config.DefaultMaxDepth,
		"Maximum depth of recursion (only used with -r)")
	cmd.Flags().StringP(config.FlagPath, "p", config.DefaultOutputDir,
		"Directory the images are saved to")
	cmd.Flags().Bool("same-domain-images", false,
		"Only download images served from the start URL's host")
	cmd.Flags().String(config.FlagFileMode, fmt.Sprintf("%04o", config.DefaultFileMode),
		"Permission of saved images, in octal")

	// Request flags
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each request")
	cmd.Flags().IntP(config.FlagWorkers, "w", config.DefaultWorkers,
		"Number of pages fetched concurrently")
	cmd.Flags().String(config.FlagUserAgent, defaultUserAgent(),
		"User-Agent header sent with every request")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum size in bytes of a single page or image")

	// Transport flags
	cmd.Flags().String("proxy", "",
		"Send all requests through a SOCKS5 proxy (e.g., 127.0.0.1:9050)")
	cmd.Flags().Bool("tor", false,
		"Start an embedded Tor daemon and send all requests through it")
	cmd.Flags().Duration("tor-timeout", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .spider in current or home directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")

	// History flags
	cmd.Flags().Bool("no-history", false,
		"Do not record this run in the history database")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the history database")
}

// defaultUserAgent returns the User-Agent including the build version.
func defaultUserAgent() string {
	v := getVersion()
	if v == "" || v == "(devel)" {
		return config.DefaultUserAgent
	}
	return "spider/" + v
}

// runCrawlCmd executes a crawl run.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd.ErrOrStderr(), cfg.Verbose)
	slog.SetDefault(logger)

	// Set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runCrawl(ctx, cfg, cmd.OutOrStdout(), logger)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from cobra command flags and the
// configuration file. Flags given on the command line win over the file.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error

	if len(args) > 0 {
		cfg.StartURL = args[0]
	}
	cfg.Verbose = getVerboseFlag(cmd)

	if cfg.Recursive, err = flags.GetBool("recursive"); err != nil {
		return nil, err
	}
	if cfg.MaxDepth, err = flags.GetInt(config.FlagLevel); err != nil {
		return nil, err
	}
	if cfg.OutputDir, err = flags.GetString(config.FlagPath); err != nil {
		return nil, err
	}
	if cfg.SameDomainImages, err = flags.GetBool("same-domain-images"); err != nil {
		return nil, err
	}
	fileMode, err := flags.GetString(config.FlagFileMode)
	if err != nil {
		return nil, err
	}
	if cfg.FileMode, err = config.ParseFileMode(fileMode); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.Workers, err = flags.GetInt(config.FlagWorkers); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString(config.FlagUserAgent); err != nil {
		return nil, err
	}
	if cfg.MaxBodySize, err = flags.GetInt64("max-body-size"); err != nil {
		return nil, err
	}
	if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.UseTor, err = flags.GetBool("tor"); err != nil {
		return nil, err
	}
	if cfg.TorStartupTimeout, err = flags.GetDuration("tor-timeout"); err != nil {
		return nil, err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}

	noHistory, err := flags.GetBool("no-history")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noHistory
	if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
		return nil, err
	}

	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}
	if err := loadSiteConfigs(cfg); err != nil {
		return nil, err
	}

	// Site overrides are keyed by host; an invalid URL is reported by Validate.
	if target, err := model.ParseTarget(cfg.StartURL); err == nil {
		cfg.ApplySiteConfig(cfg.SiteConfigs.GetSiteConfig(target.Host), func(name string) bool {
			return flags.Changed(name)
		})
	}

	return cfg, nil
}

// loadSiteConfigs loads the configuration file into cfg.SiteConfigs.
// If the user explicitly specified a path, a missing file is an error.
// Otherwise a missing file yields an empty configuration.
func loadSiteConfigs(cfg *config.Config) error {
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)

	switch {
	case configPath != "":
		siteConfigs, err := config.LoadConfigFile(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		cfg.SiteConfigs = siteConfigs
	case explicitConfigPath:
		return fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	default:
		cfg.SiteConfigs = &config.File{
			Sites: make(map[string]config.SiteConfig),
		}
	}
	return nil
}

// setupLogger creates a structured logger based on verbosity setting.
// Sensitive values such as signed URL parameters are redacted.
func setupLogger(w io.Writer, verbose bool) *slog.Logger {
	return log.NewSecureLogger(w, verbose)
}

// runCrawl performs one crawl run and writes its report.
// An interrupted run still writes and records its partial report.
func runCrawl(ctx context.Context, cfg *config.Config, out io.Writer, logger *slog.Logger) error {
	logger.Info("starting crawl",
		"url", cfg.StartURL,
		"recursive", cfg.Recursive,
		"maxDepth", cfg.EffectiveMaxDepth(),
		"outputDir", cfg.OutputDir,
		"workers", cfg.Workers,
	)

	httpClient, cleanup, err := newHTTPClient(ctx, cfg, out, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	fetcher := fetch.New(httpClient,
		fetch.WithUserAgent(cfg.UserAgent),
		fetch.WithMaxBodySize(cfg.MaxBodySize),
	)

	var mu sync.Mutex
	spider := crawler.NewSpider(fetcher,
		crawler.WithMaxDepth(cfg.EffectiveMaxDepth()),
		crawler.WithWorkers(cfg.Workers),
		crawler.WithLogger(logger),
		crawler.WithIgnorePatterns(cfg.IgnorePatterns),
		crawler.WithFollowPatterns(cfg.FollowPatterns),
		crawler.WithSameDomainImages(cfg.SameDomainImages),
		crawler.WithSinkOptions(sink.WithFileMode(cfg.FileMode)),
		crawler.WithOnDownload(func(d model.Download) {
			mu.Lock()
			defer mu.Unlock()
			fmt.Fprintf(out, "[+] Downloaded %s\n", filepath.Base(d.Path))
		}),
	)

	crawlReport, crawlErr := spider.Crawl(ctx, cfg.StartURL, cfg.OutputDir)
	if crawlReport == nil {
		return crawlErr
	}

	if err := outputReport(cfg, out, crawlReport); err != nil {
		logger.Error("failed to write report", "error", err)
	}

	// The history is recorded even for an interrupted run.
	if err := saveRun(context.WithoutCancel(ctx), cfg, crawlReport, logger); err != nil {
		logger.Warn("failed to record run in history", "error", err)
	}

	if crawlErr != nil {
		if errors.Is(crawlErr, context.Canceled) {
			return errors.New("crawl interrupted")
		}
		return crawlErr
	}
	return nil
}

// newHTTPClient returns the HTTP client for the configured transport and
// a cleanup function that releases it.
func newHTTPClient(ctx context.Context, cfg *config.Config, out io.Writer, logger *slog.Logger) (*http.Client, func(), error) {
	noop := func() {}

	switch {
	case cfg.UseTor:
		client, embeddedTor, err := startEmbeddedTor(ctx, cfg, out, logger)
		if err != nil {
			return nil, noop, err
		}
		cleanup := func() {
			logger.Info("stopping embedded Tor daemon...")
			if err := embeddedTor.Stop(); err != nil {
				logger.Error("failed to stop embedded Tor", "error", err)
			}
		}
		return client.NewHTTPClient(), cleanup, nil

	case cfg.ProxyAddress != "":
		client, err := tor.NewClient(cfg.ProxyAddress, cfg.Timeout)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create proxy client: %w", err)
		}

		status := client.CheckConnection(ctx)
		if status != tor.ProxyStatusOK {
			return nil, noop, fmt.Errorf("proxy check failed: %s (make sure a SOCKS5 proxy is running at %s)",
				status, cfg.ProxyAddress)
		}

		logger.Info("proxy connection verified", "address", cfg.ProxyAddress)
		return client.NewHTTPClient(), noop, nil

	default:
		return fetch.NewHTTPClient(cfg.Timeout), noop, nil
	}
}

// startEmbeddedTor starts an embedded Tor daemon using tornago.
// Returns the proxy client and embedded Tor manager on success.
func startEmbeddedTor(ctx context.Context, cfg *config.Config, out io.Writer, logger *slog.Logger) (*tor.Client, *tor.EmbeddedTor, error) {
	fmt.Fprintln(out, "Starting embedded Tor daemon...")
	fmt.Fprintf(out, "This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")

	embeddedTor := tor.NewEmbeddedTor(
		tor.WithStartupTimeout(cfg.TorStartupTimeout),
	)

	if err := embeddedTor.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to start embedded Tor: %w", err)
	}

	logger.Info("embedded Tor daemon started", "socksAddr", embeddedTor.SocksAddr())
	fmt.Fprintf(out, "Embedded Tor daemon started (SOCKS proxy: %s)\n\n", embeddedTor.SocksAddr())

	client, err := embeddedTor.NewClient(cfg.Timeout)
	if err != nil {
		_ = embeddedTor.Stop() //nolint:errcheck // Best effort cleanup
		return nil, nil, fmt.Errorf("failed to create Tor client: %w", err)
	}

	status := client.CheckConnection(ctx)
	if status != tor.ProxyStatusOK {
		_ = embeddedTor.Stop() //nolint:errcheck // Best effort cleanup
		return nil, nil, fmt.Errorf("embedded Tor proxy check failed: %s", status)
	}

	return client, embeddedTor, nil
}

// reportFormat returns the report format selected by cfg.
func reportFormat(cfg *config.Config) report.Format {
	switch {
	case cfg.JSONReport:
		return report.FormatJSON
	case cfg.MarkdownReport:
		return report.FormatMarkdown
	default:
		return report.FormatText
	}
}

// outputReport writes the run report in the requested format, either to
// cfg.ReportFile or to out.
func outputReport(cfg *config.Config, out io.Writer, crawlReport *model.CrawlReport) error {
	output := out
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		// Reports are readable by the owner only.
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	}

	writer := report.NewWriter(output, reportFormat(cfg), getVersion())
	_, err := writer.Write(crawlReport)
	return err
}

// saveRun records the run in the history database if enabled.
func saveRun(ctx context.Context, cfg *config.Config, crawlReport *model.CrawlReport, logger *slog.Logger) error {
	if !cfg.SaveToDB {
		return nil
	}

	db, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	id, err := db.SaveRun(ctx, crawlReport)
	if err != nil {
		return err
	}

	logger.Info("run recorded in history", "id", id, "db", db.Path())
	return nil
}
