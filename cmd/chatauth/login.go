package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newLoginCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "login <email>",
		Short: "Request an access token by email",
		Long: `Asks the chat backend to email an access token to the given address.
Once received, activate it with 'chatauth validate <code>'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			result := app.Auth.RequestToken(cmd.Context(), args[0])
			if !result.Success {
				return errors.New(result.Message)
			}

			fmt.Fprintln(cmd.OutOrStdout(), result.Message)
			return nil
		},
	}
}
