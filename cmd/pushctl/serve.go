package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/pushgate/internal/auth"
	"github.com/danmuck/pushgate/internal/feedbackstore"
	"github.com/danmuck/pushgate/internal/server"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose send and feedback over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := root.cfg
			if cmd.Flags().Changed("addr") {
				cfg.HTTPAddr = addr
			}

			s, err := cfg.openSession(nil)
			if err != nil {
				return err
			}
			defer s.Close()

			var store feedbackstore.Store
			if cfg.StorePath != "" {
				store, err = feedbackstore.OpenSQLite(cfg.StorePath)
				if err != nil {
					return err
				}
				defer store.Close()
			}

			log.Info().
				Str("environment", string(s.Environment())).
				Str("gateway", s.Endpoints().Gateway).
				Str("feedback", s.Endpoints().Feedback).
				Bool("store", store != nil).
				Bool("auth", cfg.APIToken != "").
				Msg("pushctl serve")

			opts := server.Options{
				Addr:        cfg.HTTPAddr,
				CORSOrigins: cfg.CORSOrigins,
			}
			if cfg.APIToken != "" {
				opts.Validator = auth.StaticToken{Token: cfg.APIToken}
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return server.New(s, store, opts).Serve(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides http_addr)")
	return cmd
}
