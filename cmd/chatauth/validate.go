package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/avorobev/chatauth/internal/models"
)

func newValidateCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <code>",
		Short: "Activate an emailed access token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			result := app.Auth.ValidateToken(cmd.Context(), args[0])
			if !result.Accepted {
				if result.ActionRequired == models.ActionRequestNewToken {
					return fmt.Errorf("%s Run 'chatauth login <email>' to get a new one.", result.Message)
				}
				return errors.New(result.Message)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Token accepted, valid for %d days.\n", result.DaysRemaining)
			return nil
		},
	}
}
