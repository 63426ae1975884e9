package main

import (
	"context"
	"fmt"

	"github.com/danmuck/pushgate/internal/feedbackstore"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newFeedbackCmd(root *rootOptions) *cobra.Command {
	var storePath string
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Harvest the feedback service once and print unreachable tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := root.cfg
			if cmd.Flags().Changed("store") {
				cfg.StorePath = storePath
			}

			s, err := cfg.openSession(nil)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			records, err := s.Read().Wait(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range records {
				fmt.Fprintf(out, "%s\t%s\n", r.Timestamp.Format("2006-01-02T15:04:05Z07:00"), r.Token)
			}

			if cfg.StorePath == "" || len(records) == 0 {
				return nil
			}
			store, err := feedbackstore.OpenSQLite(cfg.StorePath)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Put(ctx, records); err != nil {
				return err
			}
			log.Info().Str("store", cfg.StorePath).Int("records", len(records)).Msg("feedback stored")
			return nil
		},
	}
	cmd.Flags().StringVar(&storePath, "store", "", "SQLite file to persist harvested tokens (overrides store_path)")
	return cmd
}
