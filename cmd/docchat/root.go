package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func NewRootCmd(version string, a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "docchat",
		Short:         "Chat with your documents",
		Long:          `Index PDF, Word, text, web and media files and ask questions about them with cited sources.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	addPersistentFlags(rootCmd)
	setHelpWithExternals(rootCmd)

	if a != nil {
		addSubcommands(rootCmd, a)
	}

	return rootCmd
}

func addPersistentFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("scope", "", "Target scope (global|project)")
	cmd.PersistentFlags().String("user", defaultUsername(), "Username owning chat sessions")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	cmd.PersistentFlags().StringP("model", "m", "", "Chat model label (see 'docchat models')")
	cmd.PersistentFlags().Int64("session", 0, "Chat session to continue or export")
}

func addSubcommands(root *cobra.Command, a *app) {
	root.AddCommand(
		NewInitCmd(),
		NewConfigCmd(a),
		NewModelsCmd(a),
		NewProcessCmd(a.processUC),
		NewSearchCmd(a.searchUC),
		NewAskCmd(a.askUC),
		NewChatCmd(a.engineFor),
		NewIndexCmd(a.statusUC),
		NewSessionsCmd(a.sessionsUC, a.engineFor),
		NewExportCmd(a.exportUC),
		NewWatchCmd(a.processUC, a.resolver),
	)
}

func setHelpWithExternals(cmd *cobra.Command) {
	defaultHelp := cmd.HelpFunc()

	cmd.SetHelpFunc(func(c *cobra.Command, args []string) {
		defaultHelp(c, args)
		if c == cmd {
			printExternalCommands(c)
		}
	})
}

func printExternalCommands(cmd *cobra.Command) {
	externals := listExternalCommands()
	if len(externals) == 0 {
		return
	}

	fmt.Fprintln(cmd.OutOrStdout(), "\nExternal commands (docchat-*):")
	for _, name := range externals {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", name)
	}
}

func defaultUsername() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "default"
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
