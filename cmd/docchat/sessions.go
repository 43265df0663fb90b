package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/4thel00z/docchat/internal"
	"github.com/spf13/cobra"
)

func NewSessionsCmd(listUC *internal.ListSessionsUseCase, engineFor internal.EngineFor) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage saved chat sessions",
	}

	cmd.AddCommand(
		newSessionsListCmd(listUC),
		newSessionsNewCmd(engineFor),
		newSessionsShowCmd(engineFor),
		newSessionsDeleteCmd(engineFor),
	)
	return cmd
}

func newSessionsListCmd(listUC *internal.ListSessionsUseCase) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions, most recently active first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			scopeHint, _ := cmd.Flags().GetString("scope")
			username, _ := cmd.Flags().GetString("user")
			asJSON, _ := cmd.Flags().GetBool("json")

			out, err := listUC.Execute(cmd.Context(), internal.ListSessionsInput{Username: username, Scope: scopeHint})
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd, out.Sessions)
			}
			if len(out.Sessions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sessions.")
				return nil
			}
			for _, s := range out.Sessions {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\n", s.ID, s.UpdatedAt.Local().Format(time.DateTime), s.Name)
			}
			return nil
		},
	}
}

func newSessionsNewCmd(engineFor internal.EngineFor) *cobra.Command {
	return &cobra.Command{
		Use:   "new [name]",
		Short: "Create a session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scopeHint, _ := cmd.Flags().GetString("scope")
			username, _ := cmd.Flags().GetString("user")

			eng, err := engineFor(cmd.Context(), scopeHint)
			if err != nil {
				return err
			}

			var name string
			if len(args) == 1 {
				name = args[0]
			}
			info, err := eng.StartSession(cmd.Context(), username, name)
			if err != nil {
				return fmt.Errorf("create session: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created session %d (%s)\n", info.ID, info.Name)
			return nil
		},
	}
}

func newSessionsShowCmd(engineFor internal.EngineFor) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a session's conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scopeHint, _ := cmd.Flags().GetString("scope")
			asJSON, _ := cmd.Flags().GetBool("json")

			id, err := parseSessionID(args[0])
			if err != nil {
				return err
			}
			eng, err := engineFor(cmd.Context(), scopeHint)
			if err != nil {
				return err
			}
			info, err := eng.ResumeSession(cmd.Context(), id)
			if err != nil {
				return err
			}

			pairs := eng.Pairs()
			if asJSON {
				return writeJSON(cmd, map[string]any{"session": info, "exchanges": pairs})
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Session %d: %s\n", info.ID, info.Name)
			for _, p := range pairs {
				fmt.Fprintf(w, "\nQ: %s\nA: %s\n", p.Question, p.Answer)
			}
			return nil
		},
	}
}

func newSessionsDeleteCmd(engineFor internal.EngineFor) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a session and its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scopeHint, _ := cmd.Flags().GetString("scope")

			id, err := parseSessionID(args[0])
			if err != nil {
				return err
			}
			eng, err := engineFor(cmd.Context(), scopeHint)
			if err != nil {
				return err
			}
			if err := eng.DeleteSession(cmd.Context(), id); err != nil {
				return fmt.Errorf("delete session: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %d\n", id)
			return nil
		},
	}
}

func parseSessionID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid session id %q", s)
	}
	return id, nil
}
