package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/avorobev/chatauth/internal/service/session"
)

func newStatusCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current session state",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			out := cmd.OutOrStdout()

			if !app.Sessions.IsAuthenticated() {
				fmt.Fprintln(out, "Not authenticated. Run 'chatauth login <email>' to request an access token.")
				return nil
			}

			fmt.Fprintln(out, "Authenticated.")
			if app.Sessions.IsExpiringSoon(session.DefaultExpiryWarningWindow) {
				fmt.Fprintln(out, app.Sessions.ExpiryMessage())
			}
			return nil
		},
	}
}
