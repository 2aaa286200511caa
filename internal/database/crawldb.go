package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/pcrawl/internal/model"
)

// FileName is the database file created inside the database directory.
const FileName = "pcrawl.db"

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// CrawlDB provides SQLite storage for crawl runs.
type CrawlDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the directory and database file if missing.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the database in dbDir.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	mode := "rwc"
	if opts.CreateIfNotExists {
		if err := os.MkdirAll(dbDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	} else {
		mode = "rw"
		if _, err := os.Stat(dbPath); errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDatabaseNotFound, dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?mode="+mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{db: db, dbPath: dbPath}

	ctx := context.Background()
	if opts.EnableWAL {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if err := cdb.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return cdb, nil
}

// Path returns the database file path.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

func (cdb *CrawlDB) createTables(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS crawl_runs (
		id TEXT PRIMARY KEY,
		start_url TEXT NOT NULL,
		base_domain TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		visited INTEGER NOT NULL,
		fetched INTEGER NOT NULL,
		errors INTEGER NOT NULL,
		partial INTEGER NOT NULL,
		reason TEXT NOT NULL,
		result_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_start_url ON crawl_runs(start_url);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON crawl_runs(started_at);

	CREATE TABLE IF NOT EXISTS crawl_pages (
		run_id TEXT NOT NULL REFERENCES crawl_runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		url TEXT NOT NULL,
		fetched INTEGER NOT NULL,
		status_code INTEGER NOT NULL,
		error TEXT,
		content_hash TEXT,
		PRIMARY KEY (run_id, url)
	);

	CREATE INDEX IF NOT EXISTS idx_pages_url ON crawl_pages(url);
	`
	_, err := cdb.db.ExecContext(ctx, schema)
	return err
}

// RunMetadata summarizes a stored run without its pages.
type RunMetadata struct {
	ID         string
	StartURL   string
	BaseDomain string
	StartedAt  time.Time
	FinishedAt time.Time
	Visited    int
	Fetched    int
	Errors     int
	Partial    bool
	Reason     model.StopReason
}

// Run is a stored run with its decoded result.
type Run struct {
	RunMetadata

	Result *model.CrawlResult
}

// SaveCrawlResult stores result and returns the new run ID.
func (cdb *CrawlDB) SaveCrawlResult(ctx context.Context, result *model.CrawlResult) (string, error) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to serialize crawl result: %w", err)
	}

	id := uuid.NewString()

	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO crawl_runs (id, start_url, base_domain, started_at, finished_at,
		visited, fetched, errors, partial, reason, result_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		id,
		result.StartURL,
		result.BaseDomain,
		formatTime(result.StartedAt),
		formatTime(result.FinishedAt),
		len(result.Pages),
		result.FetchedCount(),
		result.ErrorCount(),
		result.Partial,
		string(result.Reason),
		string(resultJSON),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert crawl run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO crawl_pages (run_id, seq, url, fetched, status_code, error, content_hash)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare page insert: %w", err)
	}
	defer stmt.Close()

	for i := range result.Pages {
		p := &result.Pages[i]
		var errMsg sql.NullString
		if p.Error != nil {
			errMsg = sql.NullString{String: *p.Error, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, id, p.Seq, p.URL, p.Fetched, p.StatusCode, errMsg, p.ContentHash); err != nil {
			return "", fmt.Errorf("failed to insert page %s: %w", p.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit crawl run: %w", err)
	}
	return id, nil
}

const runColumns = `id, start_url, base_domain, started_at, finished_at, visited, fetched, errors, partial, reason`

// GetLatestRun returns the most recent run for startURL, or nil if there is none.
func (cdb *CrawlDB) GetLatestRun(ctx context.Context, startURL string) (*Run, error) {
	row := cdb.db.QueryRowContext(ctx, `
	SELECT `+runColumns+`, result_json FROM crawl_runs
	WHERE start_url = ?
	ORDER BY started_at DESC, rowid DESC
	LIMIT 1
	`, startURL)
	return scanRun(row)
}

// GetRunByID returns the run with the given ID, or nil if there is none.
func (cdb *CrawlDB) GetRunByID(ctx context.Context, id string) (*Run, error) {
	row := cdb.db.QueryRowContext(ctx, `
	SELECT `+runColumns+`, result_json FROM crawl_runs
	WHERE id = ?
	`, id)
	return scanRun(row)
}

// ListStartURLs returns every start URL with at least one stored run.
func (cdb *CrawlDB) ListStartURLs(ctx context.Context) ([]string, error) {
	rows, err := cdb.db.QueryContext(ctx, `SELECT DISTINCT start_url FROM crawl_runs ORDER BY start_url`)
	if err != nil {
		return nil, fmt.Errorf("failed to list start URLs: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("failed to scan start URL: %w", err)
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

// GetRunHistory returns the runs for startURL, newest first.
func (cdb *CrawlDB) GetRunHistory(ctx context.Context, startURL string) ([]RunMetadata, error) {
	rows, err := cdb.db.QueryContext(ctx, `
	SELECT `+runColumns+` FROM crawl_runs
	WHERE start_url = ?
	ORDER BY started_at DESC, rowid DESC
	`, startURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get run history: %w", err)
	}
	defer rows.Close()

	var history []RunMetadata
	for rows.Next() {
		var meta RunMetadata
		if err := scanMetadata(rows, &meta); err != nil {
			return nil, err
		}
		history = append(history, meta)
	}
	return history, rows.Err()
}

// VisitedURLs returns the visited set of a run in discovery order.
func (cdb *CrawlDB) VisitedURLs(ctx context.Context, runID string) ([]string, error) {
	rows, err := cdb.db.QueryContext(ctx, `SELECT url FROM crawl_pages WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get visited URLs: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("failed to scan visited URL: %w", err)
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

// RunDiff lists the URLs that differ between two runs' visited sets.
type RunDiff struct {
	// Added were visited by the newer run only.
	Added []string
	// Removed were visited by the older run only.
	Removed []string
}

// HasChanges reports whether the visited sets differ.
func (d *RunDiff) HasChanges() bool {
	return len(d.Added) > 0 || len(d.Removed) > 0
}

// DiffRuns compares the visited sets of oldID and newID.
func (cdb *CrawlDB) DiffRuns(ctx context.Context, oldID, newID string) (*RunDiff, error) {
	oldURLs, err := cdb.VisitedURLs(ctx, oldID)
	if err != nil {
		return nil, err
	}
	newURLs, err := cdb.VisitedURLs(ctx, newID)
	if err != nil {
		return nil, err
	}
	return DiffVisited(oldURLs, newURLs), nil
}

// DiffVisited compares two visited sets. Results are sorted.
func DiffVisited(oldURLs, newURLs []string) *RunDiff {
	inOld := make(map[string]struct{}, len(oldURLs))
	for _, u := range oldURLs {
		inOld[u] = struct{}{}
	}
	inNew := make(map[string]struct{}, len(newURLs))
	for _, u := range newURLs {
		inNew[u] = struct{}{}
	}

	diff := &RunDiff{}
	for u := range inNew {
		if _, ok := inOld[u]; !ok {
			diff.Added = append(diff.Added, u)
		}
	}
	for u := range inOld {
		if _, ok := inNew[u]; !ok {
			diff.Removed = append(diff.Removed, u)
		}
	}
	slices.Sort(diff.Added)
	slices.Sort(diff.Removed)
	return diff
}

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanMetadata(s rowScanner, meta *RunMetadata, extra ...any) error {
	var (
		startedAt, finishedAt, reason string
	)
	dest := []any{
		&meta.ID, &meta.StartURL, &meta.BaseDomain, &startedAt, &finishedAt,
		&meta.Visited, &meta.Fetched, &meta.Errors, &meta.Partial, &reason,
	}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return err
	}
	meta.StartedAt = parseTimestamp(startedAt)
	meta.FinishedAt = parseTimestamp(finishedAt)
	meta.Reason = model.StopReason(reason)
	return nil
}

func scanRun(row *sql.Row) (*Run, error) {
	var (
		run        Run
		resultJSON string
	)
	err := scanMetadata(row, &run.RunMetadata, &resultJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // absence is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get crawl run: %w", err)
	}

	var result model.CrawlResult
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return nil, fmt.Errorf("failed to parse crawl result: %w", err)
	}
	run.Result = &result
	return &run, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// timestampFormats are tried in order by parseTimestamp.
var timestampFormats = []string{
	timeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
}

// parseTimestamp returns the zero time if s matches no known format.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
