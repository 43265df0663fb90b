package main

import (
	"fmt"
	"strings"

	"github.com/4thel00z/docchat/internal"
	"github.com/spf13/cobra"
)

func NewSearchCmd(searchUC *internal.SearchUseCase) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed documents",
		Long:  `Return the chunks most similar to the query without asking the chat model.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("number")
			scopeHint, _ := cmd.Flags().GetString("scope")
			asJSON, _ := cmd.Flags().GetBool("json")

			out, err := searchUC.Execute(cmd.Context(), internal.SearchInput{
				Query: args[0],
				Limit: limit,
				Scope: scopeHint,
			})
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			if asJSON {
				return writeJSON(cmd, out.Results)
			}
			for _, r := range out.Results {
				fmt.Fprintf(cmd.OutOrStdout(), "%.4f  %s  %s\n", r.Score, r.Source, firstLine(r.Content, 80))
			}
			return nil
		},
	}

	cmd.Flags().IntP("number", "n", 4, "Maximum results")
	return cmd
}

func firstLine(s string, limit int) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	if r := []rune(line); len(r) > limit {
		return string(r[:limit]) + "..."
	}
	return line
}
