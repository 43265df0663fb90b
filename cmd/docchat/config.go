package main

import (
	"fmt"
	"os"

	"github.com/4thel00z/docchat/internal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func NewConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	cmd.AddCommand(
		newConfigShowCmd(a),
		newConfigInitCmd(a),
		newConfigPathCmd(a),
	)
	return cmd
}

func newConfigShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the config after defaults and environment overrides",
		RunE: func(cmd *cobra.Command, _ []string) error {
			scopeHint, _ := cmd.Flags().GetString("scope")
			asJSON, _ := cmd.Flags().GetBool("json")

			_, cfg, err := a.config(scopeHint)
			if err != nil {
				return err
			}
			redacted := redactConfig(*cfg)

			if asJSON {
				return writeJSON(cmd, redacted)
			}
			data, err := yaml.Marshal(redacted)
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newConfigInitCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config to the workspace",
		RunE: func(cmd *cobra.Command, _ []string) error {
			scopeHint, _ := cmd.Flags().GetString("scope")
			force, _ := cmd.Flags().GetBool("force")

			scope := a.resolver.Resolve(scopeHint)
			if _, err := os.Stat(scope.ConfigPath()); err == nil && !force {
				return fmt.Errorf("config already exists at %s (use --force to overwrite)", scope.ConfigPath())
			}
			if err := scope.Init(); err != nil {
				return err
			}
			if err := internal.SaveConfig(scope, internal.DefaultConfig()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", scope.ConfigPath())
			return nil
		},
	}

	cmd.Flags().Bool("force", false, "Overwrite an existing config")
	return cmd
}

func newConfigPathCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		RunE: func(cmd *cobra.Command, _ []string) error {
			scopeHint, _ := cmd.Flags().GetString("scope")
			scope := a.resolver.Resolve(scopeHint)
			fmt.Fprintln(cmd.OutOrStdout(), scope.ConfigPath())
			return nil
		},
	}
}

// redactConfig hides secrets so config output can be shared.
func redactConfig(cfg internal.Config) internal.Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}
	cfg.LLM.APIKey = mask(cfg.LLM.APIKey)
	cfg.Embeddings.APIKey = mask(cfg.Embeddings.APIKey)
	cfg.Transcription.APIKey = mask(cfg.Transcription.APIKey)
	cfg.Embeddings.Local.Token = mask(cfg.Embeddings.Local.Token)
	if cfg.Store.Driver == internal.DriverPostgres {
		cfg.Store.DSN = mask(cfg.Store.DSN)
	}
	return cfg
}
