package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/pcrawl/internal/batch"
	"github.com/nao1215/pcrawl/internal/config"
	"github.com/nao1215/pcrawl/internal/crawler"
	"github.com/nao1215/pcrawl/internal/database"
	"github.com/nao1215/pcrawl/internal/fetcher"
	"github.com/nao1215/pcrawl/internal/log"
	"github.com/nao1215/pcrawl/internal/metrics"
	"github.com/nao1215/pcrawl/internal/model"
	"github.com/nao1215/pcrawl/internal/report"
	"github.com/nao1215/pcrawl/internal/urlnorm"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [start-url...]",
		Short: "Crawl one or more websites",
		Long: `Crawl walks a website breadth-first from each start URL.

Only URLs on the start URL's host are followed (use --subdomains to include
subdomains). Each URL is fetched at most once. The crawl stops when no
in-scope URLs remain, when --max-pages fetches have started, or when
--deadline expires. Several start URLs are crawled independently,
--batch at a time.

Examples:
  # Crawl up to 100 pages of a site
  pcrawl crawl https://example.com/

  # Larger budget, 16 workers, 2 minute deadline
  pcrawl crawl -p 1000 -w 16 -D 2m https://example.com/

  # Be polite: at most one request per second per host
  pcrawl crawl --crawl-delay 1s https://example.com/

  # Crawl every URL listed in a file, Markdown report to a file
  pcrawl crawl --list urls.txt -m -o report.md

  # Keep history for 'pcrawl history' and export metrics
  pcrawl crawl --save --metrics-file crawl.prom https://example.com/

Configuration file (.pcrawl) example:
  sites:
    example.com:
      cookie: "session_id=abc123"
      maxPages: 500
      ignorePatterns:
        - "/logout"`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	// Crawl limits
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages, "Maximum number of pages fetched per crawl")
	cmd.Flags().IntP("workers", "w", config.DefaultMaxWorkers, "Number of concurrent fetches per crawl")
	cmd.Flags().DurationP("timeout", "t", config.DefaultRequestTimeout, "Timeout for each request")
	cmd.Flags().DurationP("deadline", "D", 0, "Deadline for the whole crawl (0 = none)")
	cmd.Flags().Duration("crawl-delay", 0, "Minimum delay between requests to the same host (0 = none)")
	cmd.Flags().Bool("subdomains", false, "Also crawl subdomains of the start host")

	// Fetcher
	cmd.Flags().String("user-agent", config.DefaultUserAgent, "User-Agent header")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize, "Maximum response body size in bytes")
	cmd.Flags().String("proxy", "", "Proxy URL (http://, https:// or socks5://host:port; bare host:port is SOCKS5)")

	// Targets
	cmd.Flags().StringP("list", "l", "", "File with one start URL per line")
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize, "Number of concurrent crawls")
	cmd.Flags().StringP("config", "c", "", "Configuration file path (default: .pcrawl in current or home directory)")

	// Output
	cmd.Flags().BoolP("json", "j", false, "Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false, "Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "", "Write report to the specified file path (creates directories if needed)")
	cmd.Flags().String("metrics-file", "", "Write Prometheus metrics to this file after the crawl")

	// History
	cmd.Flags().Bool("save", false, "Save results to the history database")
	cmd.Flags().String("db-dir", config.XDGDataDir(), "Directory of the history database")

	return cmd
}

func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runCrawl(ctx, cfg, cmd.OutOrStdout(), logger)
}

// buildConfig creates a Config from cobra command flags and the config file.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	if cfg.MaxPages, err = flags.GetInt("max-pages"); err != nil {
		return nil, err
	}
	if cfg.MaxWorkers, err = flags.GetInt("workers"); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.GlobalDeadline, err = flags.GetDuration("deadline"); err != nil {
		return nil, err
	}
	if cfg.CrawlDelay, err = flags.GetDuration("crawl-delay"); err != nil {
		return nil, err
	}
	if cfg.IncludeSubdomains, err = flags.GetBool("subdomains"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.MaxBodySize, err = flags.GetInt64("max-body-size"); err != nil {
		return nil, err
	}
	if cfg.Proxy, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
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
	if cfg.MetricsFile, err = flags.GetString("metrics-file"); err != nil {
		return nil, err
	}
	if cfg.SaveHistory, err = flags.GetBool("save"); err != nil {
		return nil, err
	}
	if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
		return nil, err
	}
	cfg.Verbose = persistentBool(cmd, "verbose")
	cfg.LogJSON = persistentBool(cmd, "log-json")

	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}
	if err := loadSiteConfigs(cfg); err != nil {
		return nil, err
	}

	cfg.StartURLs = append(cfg.StartURLs, args...)
	listFile, err := flags.GetString("list")
	if err != nil {
		return nil, err
	}
	if listFile != "" {
		urls, err := readURLList(listFile)
		if err != nil {
			return nil, err
		}
		cfg.StartURLs = append(cfg.StartURLs, urls...)
	}

	return cfg, nil
}

// persistentBool reads a flag that may be defined on the command or the root.
func persistentBool(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return v
}

// loadSiteConfigs loads the config file. A missing file is only an error
// when the user named it explicitly.
func loadSiteConfigs(cfg *config.Config) error {
	path := config.FindConfigFile(cfg.ConfigFilePath)
	if path == "" {
		if cfg.ConfigFilePath != "" {
			return fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
		}
		cfg.SiteConfigs = &config.File{Sites: make(map[string]config.SiteConfig)}
		return nil
	}

	sites, err := config.LoadConfigFile(path)
	if err != nil {
		return fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	cfg.SiteConfigs = sites
	return nil
}

// readURLList reads start URLs from a file, one per line.
// Blank lines and lines starting with '#' are skipped.
func readURLList(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // User-provided list path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to open URL list: %w", err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read URL list: %w", err)
	}
	return urls, nil
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	if cfg.LogJSON {
		return log.NewSecureJSONLogger(w, cfg.Verbose)
	}
	return log.NewSecureLogger(w, cfg.Verbose)
}

// runCrawl crawls every start URL and writes one report per crawl.
func runCrawl(ctx context.Context, cfg *config.Config, stdout io.Writer, logger *slog.Logger) error {
	logger.Info("starting crawl",
		"start_urls", len(cfg.StartURLs),
		"max_pages", cfg.MaxPages,
		"workers", cfg.MaxWorkers,
		"batch", cfg.BatchSize,
		"save", cfg.SaveHistory,
	)

	var collector *metrics.Collector
	if cfg.MetricsFile != "" {
		var err error
		if collector, err = metrics.NewCollector(); err != nil {
			return fmt.Errorf("failed to create metrics collector: %w", err)
		}
	}

	var db *database.CrawlDB
	if cfg.SaveHistory {
		var err error
		if db, err = database.Open(cfg.DBDir, database.DefaultOptions()); err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Info("database opened", "path", db.Path())
	}

	out, closeOut, err := openReportOutput(cfg, stdout)
	if err != nil {
		return err
	}
	defer closeOut()
	writer := newReportWriter(cfg, out, len(cfg.StartURLs) > 1)

	sc := &siteCrawler{cfg: cfg, logger: logger}
	if collector != nil {
		sc.recorder = collector
	}

	var (
		mu       sync.Mutex
		failures []error
	)
	processor := batch.NewProcessor(sc,
		batch.WithConcurrency(cfg.BatchSize),
		batch.WithLogger(logger),
	)
	processor.RunWithCallback(ctx, cfg.StartURLs, func(o batch.Outcome, _ int) {
		// Reports from concurrent crawls must not interleave.
		mu.Lock()
		defer mu.Unlock()

		if o.Err != nil {
			failures = append(failures, fmt.Errorf("%s: %w", o.StartURL, o.Err))
			return
		}
		if _, err := writer.Write(o.Result); err != nil {
			failures = append(failures, fmt.Errorf("%s: failed to write report: %w", o.StartURL, err))
		}
		if err := saveCrawlResult(ctx, db, o.Result, logger); err != nil {
			logger.Error("failed to save crawl result", "start_url", o.StartURL, "error", err)
		}
	})

	if collector != nil {
		if err := collector.WriteTextfile(cfg.MetricsFile); err != nil {
			failures = append(failures, fmt.Errorf("failed to write metrics: %w", err))
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("%d of %d crawl(s) failed: %w", len(failures), len(cfg.StartURLs), errors.Join(failures...))
	}
	return nil
}

// siteCrawler builds a Spider per start URL so that per-site settings from
// the config file apply in batch mode too.
type siteCrawler struct {
	cfg      *config.Config
	logger   *slog.Logger
	recorder crawler.Recorder
}

// Crawl implements batch.Crawler.
func (c *siteCrawler) Crawl(ctx context.Context, startURL string) (*model.CrawlResult, error) {
	host, err := urlnorm.Domain(startURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", crawler.ErrInvalidStartURL, err)
	}
	site := c.cfg.Site(host)

	f, err := c.newFetcher(site)
	if err != nil {
		return nil, err
	}

	maxPages := c.cfg.MaxPages
	if site.MaxPages > 0 {
		maxPages = site.MaxPages
	}
	subdomains := c.cfg.IncludeSubdomains
	if site.IncludeSubdomains != nil {
		subdomains = *site.IncludeSubdomains
	}

	opts := []crawler.SpiderOption{
		crawler.WithMaxPages(maxPages),
		crawler.WithMaxWorkers(c.cfg.MaxWorkers),
		crawler.WithRequestTimeout(c.cfg.RequestTimeout),
		crawler.WithDeadline(c.cfg.GlobalDeadline),
		crawler.WithSubdomains(subdomains),
		crawler.WithIgnorePatterns(site.IgnorePatterns),
		crawler.WithFollowPatterns(site.FollowPatterns),
		crawler.WithLogger(c.logger),
	}
	if c.recorder != nil {
		opts = append(opts, crawler.WithRecorder(c.recorder))
	}

	return crawler.NewSpider(f, opts...).Crawl(ctx, startURL)
}

func (c *siteCrawler) newFetcher(site config.SiteConfig) (crawler.Fetcher, error) {
	opts := []fetcher.Option{
		fetcher.WithTimeout(c.cfg.RequestTimeout),
		fetcher.WithUserAgent(c.cfg.UserAgent),
		fetcher.WithMaxBodySize(c.cfg.MaxBodySize),
		fetcher.WithCookie(site.Cookie),
		fetcher.WithHeaders(site.Headers),
	}
	if c.cfg.Proxy != "" {
		opts = append(opts, fetcher.WithProxy(c.cfg.Proxy))
	}

	f, err := fetcher.NewHTTPFetcher(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetcher: %w", err)
	}
	if c.cfg.CrawlDelay > 0 {
		return fetcher.NewRateLimited(f, c.cfg.CrawlDelay), nil
	}
	return f, nil
}

// openReportOutput returns the report destination and a function closing it.
func openReportOutput(cfg *config.Config, stdout io.Writer) (io.Writer, func(), error) {
	if cfg.ReportFile == "" {
		return stdout, func() {}, nil
	}

	if dir := filepath.Dir(cfg.ReportFile); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, nil, fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	f, err := os.Create(cfg.ReportFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create report file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// newReportWriter selects the report format. Several crawls in JSON mode
// produce one compact JSON document per line.
func newReportWriter(cfg *config.Config, out io.Writer, multi bool) report.Writer {
	switch {
	case cfg.JSONReport && multi:
		return report.NewFullJSONWriter(out, getVersion())
	case cfg.JSONReport:
		return report.NewFullJSONWriter(out, getVersion(), report.WithPrettyPrint())
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(out)
	default:
		return report.NewSimpleWriter(out, report.WithVerbose(cfg.Verbose))
	}
}

func saveCrawlResult(ctx context.Context, db *database.CrawlDB, result *model.CrawlResult, logger *slog.Logger) error {
	if db == nil {
		return nil
	}
	// The crawl may have been interrupted; the result is still worth keeping.
	id, err := db.SaveCrawlResult(context.WithoutCancel(ctx), result)
	if err != nil {
		return err
	}
	logger.Info("crawl result saved", "start_url", result.StartURL, "run_id", id)
	return nil
}
