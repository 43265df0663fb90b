package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/4thel00z/docchat/internal"
	"github.com/4thel00z/docchat/internal/tui"
)

func NewChatCmd(engineFor internal.EngineFor) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open the interactive chat",
		Long: `Chat with the indexed documents. Follow-up questions are rewritten
with the conversation history before retrieval.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			scopeHint, _ := cmd.Flags().GetString("scope")
			username, _ := cmd.Flags().GetString("user")
			model, _ := cmd.Flags().GetString("model")
			session, _ := cmd.Flags().GetInt64("session")
			name, _ := cmd.Flags().GetString("name")
			ephemeral, _ := cmd.Flags().GetBool("no-save")

			ctx := cmd.Context()
			eng, err := engineFor(ctx, scopeHint)
			if err != nil {
				return err
			}
			if err := eng.Open(ctx); err != nil {
				return err
			}

			switch {
			case session != 0:
				if _, err := eng.ResumeSession(ctx, session); err != nil {
					return fmt.Errorf("resume session: %w", err)
				}
			case !ephemeral:
				if _, err := eng.StartSession(ctx, username, name); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "chat will not be saved: %v\n", err)
				}
			}

			status, err := eng.SelectModel(ctx, model)
			if err != nil {
				return err
			}
			if !eng.IndexStatus().Loaded {
				status = "No documents indexed yet. Run 'docchat process <path>' first."
			}

			var labels []string
			for _, m := range eng.Models() {
				labels = append(labels, m.Label)
			}

			p := tea.NewProgram(
				tui.New(ctx, eng, labels, status),
				tea.WithContext(ctx),
				tea.WithInput(cmd.InOrStdin()),
				tea.WithOutput(cmd.OutOrStdout()),
				tea.WithAltScreen(),
			)
			_, err = p.Run()
			return err
		},
	}

	cmd.Flags().String("name", "", "Name for the new session")
	cmd.Flags().Bool("no-save", false, "Do not store this chat")
	return cmd
}
