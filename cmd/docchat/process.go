package main

import (
	"fmt"

	"github.com/4thel00z/docchat/internal"
	"github.com/spf13/cobra"
)

func NewProcessCmd(processUC *internal.ProcessDocumentsUseCase) *cobra.Command {
	return &cobra.Command{
		Use:   "process <path>...",
		Short: "Index documents for chat",
		Long: `Load files and directories, split them into chunks and rebuild the vector index.
Supported: PDF, DOCX, TXT, Markdown, HTML, CSV/TSV, source files and, with transcription
configured, audio and video. Directories honor .docchatignore.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scopeHint, _ := cmd.Flags().GetString("scope")
			asJSON, _ := cmd.Flags().GetBool("json")

			out, err := processUC.Execute(cmd.Context(), internal.ProcessDocumentsInput{
				Paths: args,
				Scope: scopeHint,
			})
			if out != nil {
				for _, f := range out.Failures {
					fmt.Fprintf(cmd.ErrOrStderr(), "skipped %s: %s\n", f.Path, f.Error)
				}
			}
			if err != nil {
				return fmt.Errorf("process documents: %w", err)
			}

			if asJSON {
				return writeJSON(cmd, out)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.Status)
			return nil
		},
	}
}
