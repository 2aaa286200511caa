package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "pcrawl"

	// DefaultMaxPages caps the number of pages dequeued per crawl.
	DefaultMaxPages = 100

	// DefaultMaxWorkers is the number of concurrent fetches within one crawl.
	DefaultMaxWorkers = 8

	// DefaultRequestTimeout bounds a single fetch.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultBatchSize is the number of independent crawls run at once
	// when several start URLs are given.
	DefaultBatchSize = 4

	// DefaultUserAgent identifies pcrawl in HTTP requests.
	DefaultUserAgent = "pcrawl/1.0 (+https://github.com/nao1215/pcrawl)"

	// DefaultMaxBodySize limits the response body read per page.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB
)

// Config holds all configuration options for pcrawl.
// It is populated from CLI flags and passed down explicitly.
type Config struct {
	// StartURLs are the seeds. Each one is crawled independently.
	StartURLs []string

	// MaxPages is the page budget per crawl.
	MaxPages int

	// MaxWorkers is the number of concurrent fetches per crawl.
	MaxWorkers int

	// RequestTimeout bounds each fetch.
	RequestTimeout time.Duration

	// GlobalDeadline bounds a whole crawl. Zero means no deadline.
	GlobalDeadline time.Duration

	// CrawlDelay is the minimum interval between requests to the same host.
	// Zero disables the per-host limiter.
	CrawlDelay time.Duration

	// UserAgent is the User-Agent header sent with every request.
	UserAgent string

	// MaxBodySize is the maximum response body size in bytes.
	// Zero means the fetcher default.
	MaxBodySize int64

	// IncludeSubdomains puts subdomains of the start host in scope.
	IncludeSubdomains bool

	// Proxy is an optional proxy URL (http, https or socks5). A bare
	// "host:port" is a SOCKS5 proxy.
	Proxy string

	// BatchSize is the number of concurrent crawls when several
	// start URLs are given.
	BatchSize int

	// ConfigFilePath is the path to the configuration file.
	// If empty, FindConfigFile searches the default locations.
	ConfigFilePath string

	// SiteConfigs holds the per-site settings loaded from the config file.
	SiteConfigs *File

	// JSONReport selects JSON output. Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport selects Markdown output. Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile writes the report to a file instead of stdout.
	ReportFile string

	// SaveHistory stores every crawl result in the SQLite database.
	SaveHistory bool

	// DBDir is the directory holding the history database.
	// Defaults to the XDG data directory (~/.local/share/pcrawl on Linux).
	DBDir string

	// MetricsFile, when set, receives the crawl metrics in Prometheus
	// text exposition format after the crawl.
	MetricsFile string

	// LogJSON switches the logger to JSON output.
	LogJSON bool

	// Verbose enables debug logging. When false only warnings and errors are logged.
	Verbose bool
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		MaxPages:       DefaultMaxPages,
		MaxWorkers:     DefaultMaxWorkers,
		RequestTimeout: DefaultRequestTimeout,
		BatchSize:      DefaultBatchSize,
		UserAgent:      DefaultUserAgent,
		MaxBodySize:    DefaultMaxBodySize,
		DBDir:          XDGDataDir(),
	}
}

// XDGDataDir returns the XDG data directory for pcrawl.
// On Linux: ~/.local/share/pcrawl
// On macOS: ~/Library/Application Support/pcrawl
// On Windows: %LOCALAPPDATA%\pcrawl
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for pcrawl.
// On Linux: ~/.config/pcrawl
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if len(c.StartURLs) == 0 {
		return ErrNoTarget
	}
	if c.MaxPages <= 0 {
		return ErrInvalidMaxPages
	}
	if c.MaxWorkers <= 0 {
		return ErrInvalidMaxWorkers
	}
	if c.RequestTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.GlobalDeadline < 0 {
		return ErrInvalidDeadline
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if c.CrawlDelay < 0 {
		return ErrInvalidCrawlDelay
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	return nil
}

// Site returns the merged site settings for host, or the zero value
// when no config file was loaded.
func (c *Config) Site(host string) SiteConfig {
	if c.SiteConfigs == nil {
		return SiteConfig{}
	}
	return c.SiteConfigs.GetSiteConfig(host)
}
