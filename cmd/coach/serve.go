package main

import (
	"github.com/spf13/cobra"

	"github.com/jamesainslie/go-writecoach/internal/history"
	"github.com/jamesainslie/go-writecoach/internal/server"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the grading pipeline over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := root.cfg
			if addr != "" {
				cfg.Server.Addr = addr
			}

			a, err := newApp(ctx, cfg, history.SourceServer)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := server.New(a.coach, a.scorer, a.feedback, server.WithMaxBodyBytes(cfg.Server.MaxBodyBytes))
			return srv.ListenAndServe(ctx, cfg.Server.Addr, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8000)")
	return cmd
}
