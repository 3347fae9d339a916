package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X main.Version=..."
var Version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "oauth2-server",
		Short: "OAuth 2.0 authorization server",
		Long: "oauth2-server issues authorization codes and tokens for the authorization_code,\n" +
			"password and refresh_token grants.\n\n" +
			"Run 'oauth2-server serve --config config.yaml' to start the server.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newHashSecretCmd())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "oauth2-server %s\n", Version)
		},
	})

	return root
}

// Execute runs the root command
func Execute() error {
	return newRootCmd().Execute()
}
