package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/avorobev/chatauth/internal/apiclient"
	"github.com/avorobev/chatauth/internal/apperrors"
)

type callOptions struct {
	data string
}

func newCallCmd(cfg *Config) *cobra.Command {
	opts := &callOptions{}

	cmd := &cobra.Command{
		Use:   "call <method> <path>",
		Short: "Make an authenticated request to the chat backend",
		Example: `  chatauth call GET /api/v1/conversations
  chatauth call POST /api/v1/chat --data '{"message": "hello"}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			if !app.Sessions.IsAuthenticated() {
				return fmt.Errorf("%w: run 'chatauth login <email>' first", apperrors.ErrNotAuthenticated)
			}

			var body any
			if opts.data != "" {
				if err := json.Unmarshal([]byte(opts.data), &body); err != nil {
					return fmt.Errorf("request body is not valid JSON: %w", err)
				}
			}

			method := strings.ToUpper(args[0])
			resp, err := app.API.Do(cmd.Context(), method, args[1], apiclient.Options{Body: body})
			if err != nil {
				// Expired or revoked tokens get evicted here, so the next
				// invocation prompts for a fresh login
				if info := app.Auth.HandleAPIAuthError(cmd.Context(), err); info.IsAuthError {
					return errors.New(info.Message)
				}
				return err
			}

			out := cmd.OutOrStdout()
			switch resp.Kind {
			case apiclient.KindData:
				fmt.Fprintln(out, string(resp.Data))
			case apiclient.KindMessage:
				fmt.Fprintln(out, resp.Message)
			case apiclient.KindRaw:
				fmt.Fprintln(out, string(resp.Raw))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.data, "data", "", "JSON request body")

	return cmd
}
