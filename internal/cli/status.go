package cli

import (
	"fmt"
	"os"
	"sort"

	"github.com/dshills/vigil/internal/config"
	"github.com/dshills/vigil/internal/ledger"
	"github.com/dshills/vigil/internal/logging"
	"github.com/spf13/cobra"
)

var flagRecent int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show processing statistics from the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath(), nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitCode = ExitRuntimeError
			return nil
		}

		log, err := logging.New("error", false)
		if err != nil {
			return err
		}
		led, err := ledger.Open(cfg.Ledger.Path, cfg.Ledger.LegacyPath, log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitCode = ExitRuntimeError
			return nil
		}

		stats := led.Statistics()
		fmt.Fprintf(os.Stdout, "Total commits:     %d\n", stats.Total)
		fmt.Fprintf(os.Stdout, "Last 24 hours:     %d\n", stats.Recent24h)
		fmt.Fprintf(os.Stdout, "Failed attempts:   %d\n", stats.FailedAttempts)
		fmt.Fprintf(os.Stdout, "Avg review time:   %.1fs\n\n", stats.AvgProcessingSecs)

		fmt.Fprintln(os.Stdout, "By status:")
		for _, s := range ledger.AllStatuses() {
			if n := stats.ByStatus[s.String()]; n > 0 {
				fmt.Fprintf(os.Stdout, "  %-15s %d\n", s.String(), n)
			}
		}

		if len(stats.ByAuthor) > 0 {
			authors := make([]string, 0, len(stats.ByAuthor))
			for a := range stats.ByAuthor {
				authors = append(authors, a)
			}
			sort.Strings(authors)
			fmt.Fprintln(os.Stdout, "\nBy author:")
			for _, a := range authors {
				fmt.Fprintf(os.Stdout, "  %-15s %d\n", a, stats.ByAuthor[a])
			}
		}

		if flagRecent > 0 {
			fmt.Fprintln(os.Stdout, "\nRecent commits:")
			for _, rec := range led.Recent(flagRecent) {
				score := "-"
				if rec.ReviewScore != nil {
					score = fmt.Sprintf("%d", *rec.ReviewScore)
				}
				fmt.Fprintf(os.Stdout, "  r%-8s %-13s score=%-3s %s\n",
					rec.Revision, rec.Status.String(), score, rec.Author)
			}
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().IntVar(&flagRecent, "recent", 0, "Also list the N most recent commits")
}
