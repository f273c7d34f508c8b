package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for spider.
// The root command itself runs a crawl; maintenance tasks are subcommands.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spider [flags] <url>",
		Short: "Download the images of a website",
		Long: `spider extracts all images from a website.

It fetches the given URL, saves every image referenced by an <img> tag
(.jpg, .jpeg, .png, .gif, .bmp) and, with -r, follows <a> links on the
same host until the maximum depth is reached. Each page and each image is
fetched at most once per run.

Examples:
  # Save the images of one page into ./data/
  spider https://example.com/

  # Follow links two levels deep and save into ./images
  spider -r -l 2 -p ./images https://example.com/

  # Crawl a v3 onion service through an embedded Tor daemon
  spider -r --tor http://<56 characters>.onion/

  # Write a Markdown report of the run
  spider -r -m -o report.md https://example.com/`,
		Args:          cobra.ExactArgs(1),
		RunE:          runCrawlCmd,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	addCrawlFlags(cmd)

	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewHistoryCmd())
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
