package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"dwh/internal/config"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}
	cmd.AddCommand(newConfigValidateCmd(a))
	return cmd
}

func newConfigValidateCmd(a *app) *cobra.Command {
	var show bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Print configuration issues and fail on errors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Read(a.cfgPath, a.envFile)
			if err != nil {
				return fmt.Errorf("%w: %w", errBadConfig, err)
			}

			issues := config.Validate(cfg)
			printIssues(cmd.ErrOrStderr(), issues)
			if config.HasErrors(issues) {
				return &config.Error{Issues: issues}
			}

			if show {
				out, err := yaml.Marshal(cfg.Redacted())
				if err != nil {
					return fmt.Errorf("render config: %w", err)
				}
				if _, err := cmd.OutOrStdout().Write(out); err != nil {
					return fmt.Errorf("write config: %w", err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration is valid: %s\n", a.cfgPath)
			return nil
		},
	}

	cmd.Flags().BoolVar(&show, "show", false, "print the effective configuration with secrets masked")
	return cmd
}
