package main

import (
	"fmt"
	"time"

	"github.com/4thel00z/docchat/internal"
	"github.com/spf13/cobra"
)

func NewIndexCmd(statusUC *internal.IndexStatusUseCase) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Inspect the vector index",
	}

	cmd.AddCommand(newIndexStatusCmd(statusUC))
	return cmd
}

func newIndexStatusCmd(statusUC *internal.IndexStatusUseCase) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the persisted index",
		RunE: func(cmd *cobra.Command, _ []string) error {
			scopeHint, _ := cmd.Flags().GetString("scope")
			asJSON, _ := cmd.Flags().GetBool("json")

			out, err := statusUC.Execute(cmd.Context(), internal.IndexStatusInput{Scope: scopeHint})
			if err != nil {
				return fmt.Errorf("index status: %w", err)
			}

			if asJSON {
				return writeJSON(cmd, out)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Path:      %s\n", out.Path)
			if out.Provider == "" {
				fmt.Fprintln(w, "Index status: none, use 'docchat process <path>' to build.")
				return nil
			}
			fmt.Fprintf(w, "Provider:  %s\n", out.Provider)
			fmt.Fprintf(w, "Dimension: %d\n", out.Dimension)
			fmt.Fprintf(w, "Chunks:    %d\n", out.Chunks)
			fmt.Fprintf(w, "Trees:     %d\n", out.Trees)
			fmt.Fprintf(w, "Built:     %s\n", out.CreatedAt.Local().Format(time.DateTime))
			if out.Problem != "" {
				fmt.Fprintf(w, "Problem:   %s\n", out.Problem)
			}
			return nil
		},
	}
}
