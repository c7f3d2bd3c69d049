package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var flagNotify bool

var reviewCmd = &cobra.Command{
	Use:   "review <revision>",
	Short: "Review a single revision and print the outcome",
	Long:  "Review one commit immediately, bypassing the ledger. Useful for trying out prompt and model settings.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildComponents()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitCode = ExitRuntimeError
			return nil
		}
		defer func() { _ = c.log.Sync() }()

		ctx := cmd.Context()
		revision := args[0]

		commit, err := c.source.Lookup(ctx, revision)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitCode = ExitRuntimeError
			return nil
		}
		diff, err := c.source.Diff(ctx, revision)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitCode = ExitRuntimeError
			return nil
		}

		outcome, err := c.review.Review(ctx, *commit, diff)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitCode = ExitRuntimeError
			return nil
		}

		fmt.Fprintf(os.Stdout, "Revision: %s\n", commit.Revision)
		fmt.Fprintf(os.Stdout, "Author:   %s\n", commit.Author)
		fmt.Fprintf(os.Stdout, "Score:    %d/10\n\n", outcome.Score)
		fmt.Fprintln(os.Stdout, outcome.Summary)

		if len(outcome.Comments) > 0 {
			fmt.Fprintln(os.Stdout, "\nComments:")
			for i, comment := range outcome.Comments {
				fmt.Fprintf(os.Stdout, "%d. [%s] %s: %s\n", i+1, comment.Type, comment.File, comment.Comment)
			}
		}
		if len(outcome.Suggestions) > 0 {
			fmt.Fprintln(os.Stdout, "\nSuggestions:")
			for i, s := range outcome.Suggestions {
				fmt.Fprintf(os.Stdout, "%d. %s\n", i+1, s)
			}
		}
		if len(outcome.Risks) > 0 {
			fmt.Fprintln(os.Stdout, "\nRisks:")
			for i, r := range outcome.Risks {
				fmt.Fprintf(os.Stdout, "%d. %s\n", i+1, r)
			}
		}

		if flagNotify {
			if err := c.notify.SendReview(ctx, *commit, outcome); err != nil {
				fmt.Fprintf(os.Stderr, "Error sending notification: %v\n", err)
				exitCode = ExitRuntimeError
				return nil
			}
			fmt.Fprintln(os.Stdout, "\nNotification sent")
		}
		return nil
	},
}

func init() {
	reviewCmd.Flags().BoolVar(&flagNotify, "notify", false, "Send the outcome to DingTalk as well")
}
