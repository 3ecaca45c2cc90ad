package main

import (
	"github.com/spf13/cobra"

	coach "github.com/jamesainslie/go-writecoach"
	"github.com/jamesainslie/go-writecoach/internal/history"
	"github.com/jamesainslie/go-writecoach/internal/watch"
)

func newWatchCommand(root *rootOptions) *cobra.Command {
	var (
		once        bool
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Grade essays dropped into the inbox directory on a schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := root.cfg

			a, err := newApp(ctx, cfg, history.SourceWatch, coach.WithConcurrency(concurrency))
			if err != nil {
				return err
			}
			defer a.Close()

			opts := []watch.Option{watch.WithConcurrency(concurrency)}
			if a.history != nil {
				opts = append(opts, watch.WithHistory(a.history))
			}
			w := watch.New(a.coach, cfg.Watch.Inbox, cfg.Watch.Processed, opts...)

			if once {
				_, err := w.RunOnce(ctx)
				return err
			}
			return w.Run(ctx, cfg.Watch.Schedule)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "scan the inbox once and exit")
	cmd.Flags().IntVar(&concurrency, "concurrency", 2, "essays graded at once")
	return cmd
}
