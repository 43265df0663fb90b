package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewModelsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List selectable chat models",
		RunE: func(cmd *cobra.Command, _ []string) error {
			scopeHint, _ := cmd.Flags().GetString("scope")
			asJSON, _ := cmd.Flags().GetBool("json")

			_, cfg, err := a.config(scopeHint)
			if err != nil {
				return err
			}
			def := cfg.LLM.ResolveModel(cfg.LLM.DefaultModel)

			if asJSON {
				return writeJSON(cmd, cfg.LLM.Models)
			}
			for _, m := range cfg.LLM.Models {
				marker := " "
				if m.Label == def.Label {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %-32s %s\n", marker, m.Label, m.ID)
			}
			return nil
		},
	}
}
