package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command. Without a subcommand it serves.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "server",
		Short:        "Session authentication service",
		Long:         `Account registration, cookie sessions and password reset over HTTP.`,
		SilenceUsage: true,
		RunE:         runServe,
	}

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}

func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE:  runServe,
	}
}
