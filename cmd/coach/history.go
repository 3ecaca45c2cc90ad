package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/go-writecoach/internal/history"
	"github.com/jamesainslie/go-writecoach/internal/report"
)

func newHistoryCommand(root *rootOptions) *cobra.Command {
	var (
		limit int
		since time.Duration
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past assessments from the history database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := root.cfg.Output.HistoryDB
			if path == "" {
				return errors.New("no history database configured (set COACH_HISTORY_DB)")
			}
			db, err := history.Open(path)
			if err != nil {
				return fmt.Errorf("opening history: %w", err)
			}
			defer db.Close()

			var entries []history.Entry
			if since > 0 {
				now := time.Now()
				entries, err = history.Between(db, now.Add(-since), now.Add(time.Second))
			} else {
				entries, err = history.Recent(db, limit)
			}
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "No assessments recorded.")
				return nil
			}
			return report.History(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of recent assessments to show")
	cmd.Flags().DurationVar(&since, "since", 0, "show assessments from this long ago instead, e.g. 168h")
	return cmd
}
