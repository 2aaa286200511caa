package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"

	"github.com/nao1215/pcrawl/internal/config"
	"github.com/nao1215/pcrawl/internal/database"
	"github.com/nao1215/pcrawl/internal/urlnorm"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [start-url]",
		Short: "Compare crawl results with earlier runs",
		Long: `History shows how a site changed between crawls saved with 'pcrawl crawl --save'.

By default the latest two runs for the start URL are compared and the
URLs that appeared or disappeared from the visited set are listed.

Examples:
  # Compare the latest two runs
  pcrawl history https://example.com/

  # List stored runs for a start URL
  pcrawl history --list https://example.com/

  # Compare the latest run with a specific run
  pcrawl history --with-run-id 0b6d... https://example.com/

  # Compare with the first run on or after a date
  pcrawl history --since 2026-01-01 https://example.com/

  # List every start URL in the database
  pcrawl history --list-urls`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().BoolP("list", "l", false, "List stored runs for the start URL")
	cmd.Flags().BoolP("list-urls", "L", false, "List all start URLs in the database")
	cmd.Flags().StringP("with-run-id", "i", "", "Compare the latest run with this run ID")
	cmd.Flags().StringP("since", "s", "", "Compare with the first run on or after this date (YYYY-MM-DD)")
	cmd.Flags().BoolP("json", "j", false, "Output the comparison as JSON")
	cmd.Flags().BoolP("markdown", "m", false, "Output the comparison as Markdown")
	cmd.Flags().String("db-dir", config.XDGDataDir(), "Directory of the history database")

	return cmd
}

func runHistoryCmd(cmd *cobra.Command, args []string) error {
	listURLs, err := cmd.Flags().GetBool("list-urls")
	if err != nil {
		return err
	}

	// Validate arguments before opening the database.
	var startURL string
	if !listURLs {
		if len(args) == 0 {
			return errors.New("start URL is required (use --list-urls to see stored start URLs)")
		}
		u, err := urlnorm.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid start URL: %w", err)
		}
		startURL = u.String()
	}

	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}
	db, err := database.Open(dbDir, database.Options{CreateIfNotExists: false, EnableWAL: true})
	if err != nil {
		if errors.Is(err, database.ErrDatabaseNotFound) {
			return fmt.Errorf("%w: run 'pcrawl crawl --save' first", err)
		}
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if listURLs {
		return listStartURLs(ctx, out, db)
	}

	listRuns, err := cmd.Flags().GetBool("list")
	if err != nil {
		return err
	}
	if listRuns {
		return listRunHistory(ctx, out, db, startURL)
	}

	withRunID, err := cmd.Flags().GetString("with-run-id")
	if err != nil {
		return err
	}
	since, err := cmd.Flags().GetString("since")
	if err != nil {
		return err
	}
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	markdownOutput, err := cmd.Flags().GetBool("markdown")
	if err != nil {
		return err
	}
	if jsonOutput && markdownOutput {
		return config.ErrConflictingReportFormats
	}

	cmp, err := compareRuns(ctx, db, startURL, withRunID, since)
	if err != nil {
		return err
	}

	switch {
	case jsonOutput:
		return writeComparisonJSON(out, cmp)
	case markdownOutput:
		return writeComparisonMarkdown(out, cmp)
	default:
		return writeComparisonText(out, cmp)
	}
}

func listStartURLs(ctx context.Context, out io.Writer, db *database.CrawlDB) error {
	urls, err := db.ListStartURLs(ctx)
	if err != nil {
		return err
	}
	if len(urls) == 0 {
		fmt.Fprintln(out, "No crawl runs found in the database.")
		fmt.Fprintln(out, "\nUse 'pcrawl crawl --save <url>' to record a crawl.")
		return nil
	}

	fmt.Fprintf(out, "Crawled start URLs (%d):\n\n", len(urls))
	for _, u := range urls {
		fmt.Fprintf(out, "  • %s\n", u)
	}
	fmt.Fprintln(out, "\nUse 'pcrawl history --list <url>' to see the runs for a start URL.")
	return nil
}

func listRunHistory(ctx context.Context, out io.Writer, db *database.CrawlDB, startURL string) error {
	runs, err := db.GetRunHistory(ctx, startURL)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintf(out, "No crawl runs found for %s\n", startURL)
		return nil
	}

	fmt.Fprintf(out, "Crawl runs for %s (%d):\n\n", startURL, len(runs))
	fmt.Fprintf(out, "  %-36s  %-19s  %7s  %7s  %6s  %s\n", "ID", "Started", "Visited", "Fetched", "Errors", "Reason")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 96))
	for _, r := range runs {
		fmt.Fprintf(out, "  %-36s  %-19s  %7d  %7d  %6d  %s\n",
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Visited,
			r.Fetched,
			r.Errors,
			r.Reason,
		)
	}
	return nil
}

// RunSummary identifies one side of a comparison.
type RunSummary struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	Visited   int       `json:"visited"`
	Errors    int       `json:"errors"`
	Reason    string    `json:"reason"`
}

// Comparison is the difference between two runs for one start URL.
type Comparison struct {
	StartURL string     `json:"start_url"`
	Previous RunSummary `json:"previous"`
	Current  RunSummary `json:"current"`
	Added    []string   `json:"added"`
	Removed  []string   `json:"removed"`
}

// HasChanges reports whether the visited sets differ.
func (c *Comparison) HasChanges() bool {
	return len(c.Added) > 0 || len(c.Removed) > 0
}

// compareRuns picks the runs to compare: the latest run against withRunID,
// against the first run on or after since, or against the run before it.
func compareRuns(ctx context.Context, db *database.CrawlDB, startURL, withRunID, since string) (*Comparison, error) {
	history, err := db.GetRunHistory(ctx, startURL)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("no crawl runs found for %s", startURL)
	}
	if len(history) < 2 && withRunID == "" && since == "" {
		return nil, fmt.Errorf("at least 2 runs are required for comparison (found %d)", len(history))
	}

	current := history[0]
	var previous *database.RunMetadata

	switch {
	case withRunID != "":
		run, err := db.GetRunByID(ctx, withRunID)
		if err != nil {
			return nil, err
		}
		if run == nil {
			return nil, fmt.Errorf("run %s not found", withRunID)
		}
		if run.StartURL != startURL {
			return nil, fmt.Errorf("run %s belongs to %s, not %s", withRunID, run.StartURL, startURL)
		}
		previous = &run.RunMetadata
	case since != "":
		date, err := time.Parse(time.DateOnly, since)
		if err != nil {
			return nil, fmt.Errorf("invalid date format (use YYYY-MM-DD): %w", err)
		}
		// History is newest first; the oldest match is closest to the end.
		for i := len(history) - 1; i >= 0; i-- {
			if !history[i].StartedAt.Before(date) {
				previous = &history[i]
				break
			}
		}
		if previous == nil {
			return nil, fmt.Errorf("no runs found since %s", since)
		}
	default:
		previous = &history[1]
	}

	if previous.ID == current.ID {
		return nil, errors.New("at least 2 runs are required for comparison")
	}

	diff, err := db.DiffRuns(ctx, previous.ID, current.ID)
	if err != nil {
		return nil, err
	}

	return &Comparison{
		StartURL: startURL,
		Previous: summarizeRun(*previous),
		Current:  summarizeRun(current),
		Added:    diff.Added,
		Removed:  diff.Removed,
	}, nil
}

func summarizeRun(m database.RunMetadata) RunSummary {
	return RunSummary{
		ID:        m.ID,
		StartedAt: m.StartedAt,
		Visited:   m.Visited,
		Errors:    m.Errors,
		Reason:    m.Reason.String(),
	}
}

func writeComparisonJSON(out io.Writer, c *Comparison) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}

func writeComparisonText(out io.Writer, c *Comparison) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Comparison for %s\n\n", c.StartURL)
	fmt.Fprintf(&sb, "  Previous: %s  %s  visited %d, errors %d (%s)\n",
		c.Previous.ID, c.Previous.StartedAt.Local().Format(time.DateTime), c.Previous.Visited, c.Previous.Errors, c.Previous.Reason)
	fmt.Fprintf(&sb, "  Current:  %s  %s  visited %d, errors %d (%s)\n\n",
		c.Current.ID, c.Current.StartedAt.Local().Format(time.DateTime), c.Current.Visited, c.Current.Errors, c.Current.Reason)

	if !c.HasChanges() {
		sb.WriteString("No changes in the visited URLs.\n")
		_, err := io.WriteString(out, sb.String())
		return err
	}

	fmt.Fprintf(&sb, "New URLs (%d):\n", len(c.Added))
	for _, u := range c.Added {
		fmt.Fprintf(&sb, "  + %s\n", u)
	}
	fmt.Fprintf(&sb, "\nGone URLs (%d):\n", len(c.Removed))
	for _, u := range c.Removed {
		fmt.Fprintf(&sb, "  - %s\n", u)
	}
	_, err := io.WriteString(out, sb.String())
	return err
}

func writeComparisonMarkdown(out io.Writer, c *Comparison) error {
	md := markdown.NewMarkdown(out)
	md.H1("Crawl Comparison")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"", "Previous", "Current"},
		Rows: [][]string{
			{"Run", "`" + c.Previous.ID + "`", "`" + c.Current.ID + "`"},
			{"Started", c.Previous.StartedAt.Format(time.DateTime), c.Current.StartedAt.Format(time.DateTime)},
			{"Visited", strconv.Itoa(c.Previous.Visited), strconv.Itoa(c.Current.Visited)},
			{"Errors", strconv.Itoa(c.Previous.Errors), strconv.Itoa(c.Current.Errors)},
			{"Stop reason", c.Previous.Reason, c.Current.Reason},
		},
	})
	md.PlainText("")

	if !c.HasChanges() {
		md.Tip("No changes in the visited URLs.")
		return md.Build()
	}

	if len(c.Added) > 0 {
		md.H2(fmt.Sprintf("New URLs (%d)", len(c.Added)))
		md.BulletList(c.Added...)
		md.PlainText("")
	}
	if len(c.Removed) > 0 {
		md.H2(fmt.Sprintf("Gone URLs (%d)", len(c.Removed)))
		md.BulletList(c.Removed...)
		md.PlainText("")
	}
	return md.Build()
}
