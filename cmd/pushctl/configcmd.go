package main

import (
	"fmt"

	"github.com/danmuck/pushgate/internal/config"
	"github.com/spf13/cobra"
)

func newConfigCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Write or validate a pushctl config file",
	}

	var (
		output string
		env    string
		force  bool
	)
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config (production, sandbox or local)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteTemplate(output, env, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s config to %s\n", env, output)
			return nil
		},
	}
	initCmd.Flags().StringVar(&output, "output", "config.toml", "output path")
	initCmd.Flags().StringVar(&env, "env", "sandbox", "template: production|sandbox|local")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Load --config and report whether it is valid",
		RunE: func(cmd *cobra.Command, args []string) error {
			if root.configPath == "" {
				return fmt.Errorf("config validate: --config is required")
			}
			// PersistentPreRunE already loaded it.
			fmt.Fprintf(cmd.OutOrStdout(), "config %s ok (environment %s)\n", root.configPath, root.cfg.Session.Environment)
			return nil
		},
	}

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}
