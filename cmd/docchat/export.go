package main

import (
	"fmt"

	"github.com/4thel00z/docchat/internal"
	"github.com/spf13/cobra"
)

func NewExportCmd(exportUC *internal.ExportChatUseCase) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "export <json|pdf>",
		Short:     "Export a chat session",
		Long:      `Write a session's conversation to a JSON or PDF file named chat_export_<timestamp>.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{internal.FormatJSON, internal.FormatPDF},
		RunE: func(cmd *cobra.Command, args []string) error {
			scopeHint, _ := cmd.Flags().GetString("scope")
			asJSON, _ := cmd.Flags().GetBool("json")
			session, _ := cmd.Flags().GetInt64("session")
			dest, _ := cmd.Flags().GetString("dest")

			out, err := exportUC.Execute(cmd.Context(), internal.ExportChatInput{
				Format:    args[0],
				Dest:      dest,
				SessionID: session,
				Scope:     scopeHint,
			})
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd, out)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.Status)
			return nil
		},
	}

	cmd.Flags().StringP("dest", "o", "", "Destination file or directory")
	return cmd
}
