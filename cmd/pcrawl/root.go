package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for pcrawl.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pcrawl",
		Short: "Bounded-concurrency breadth-first web crawler",
		Long: `pcrawl crawls a website breadth-first from a start URL.

It stays on the start URL's host, visits each normalized URL at most once,
and stops when the site is exhausted, the page budget is spent, or the
deadline expires. Interrupting a crawl (Ctrl-C) still prints the partial result.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
