package main

import (
	"fmt"
	"strings"

	"github.com/4thel00z/docchat/internal"
	"github.com/spf13/cobra"
)

func NewAskCmd(askUC *internal.AskUseCase) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask one question about the indexed documents",
		Long: `Answer a question from the indexed documents and list the sources used.
With --session the session's history conditions the answer and stores the exchange.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scopeHint, _ := cmd.Flags().GetString("scope")
			asJSON, _ := cmd.Flags().GetBool("json")
			model, _ := cmd.Flags().GetString("model")
			session, _ := cmd.Flags().GetInt64("session")
			noSources, _ := cmd.Flags().GetBool("no-sources")

			out, err := askUC.Execute(cmd.Context(), internal.AskInput{
				Question:  strings.Join(args, " "),
				Model:     model,
				SessionID: session,
				Scope:     scopeHint,
			})
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			if asJSON {
				return writeJSON(cmd, out)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintln(w, out.Answer)
			if noSources || len(out.Sources) == 0 {
				return nil
			}
			fmt.Fprintln(w, "\nSources:")
			for i, s := range out.Sources {
				fmt.Fprintf(w, "  [%d] %s\n", i+1, s.Label())
				fmt.Fprintf(w, "      %s\n", firstLine(s.Content, 100))
			}
			return nil
		},
	}

	cmd.Flags().Bool("no-sources", false, "Print only the answer")
	return cmd
}
