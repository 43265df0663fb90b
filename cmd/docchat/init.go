package main

import (
	"fmt"

	"github.com/4thel00z/docchat/internal"
	"github.com/spf13/cobra"
)

func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a docchat workspace",
		Long:  `Create a .docchat directory holding the config, vector index, session database and exports.`,
		RunE:  runInit,
	}

	cmd.Flags().Bool("global", false, "Initialize the global workspace (~/.docchat)")
	return cmd
}

func runInit(cmd *cobra.Command, _ []string) error {
	isGlobal, _ := cmd.Flags().GetBool("global")

	resolver := internal.NewScopeResolver()

	scope := resolver.Global()
	if !isGlobal {
		local, err := resolver.Local()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
		scope = local
	}

	if scope.Exists() {
		return fmt.Errorf("already initialized at %s", scope.DataPath)
	}
	if err := scope.Init(); err != nil {
		return err
	}
	if err := internal.SaveConfig(scope, internal.DefaultConfig()); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Initialized docchat workspace at %s\n", scope.DataPath)
	return nil
}
