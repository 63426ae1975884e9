package main

import (
	"github.com/danmuck/pushgate/internal/logging"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	cfg        runtimeConfig
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "pushctl",
		Short:         "pushctl sends notifications through the legacy binary push gateway",
		Long:          `pushctl sends notification frames to the push gateway, harvests the feedback service, and can expose both over HTTP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logging.ConfigureRuntime()
			cfg, err := loadRuntimeConfig(opts.configPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to pushctl config.toml")

	cmd.AddCommand(newSendCmd(opts), newFeedbackCmd(opts), newServeCmd(opts), newConfigCmd(opts))
	return cmd
}
