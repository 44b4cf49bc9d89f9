package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newRootCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chatauth",
		Short: "Chat backend access token manager",
		Long: `Manages access tokens for the chat backend: request a token by email,
validate the emailed code, inspect the current session and sign out.`,
		SilenceUsage: true,
	}

	cfg.BindFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		newLoginCmd(cfg),
		newValidateCmd(cfg),
		newStatusCmd(cfg),
		newLogoutCmd(cfg),
		newCallCmd(cfg),
	)

	return cmd
}

func main() {
	cfg := NewConfig()
	if err := cfg.LoadDotEnv(os.Getwd); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	cfg.LoadEnv(os.Getenv)

	// Cancel in-flight requests on Ctrl-C
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCmd(cfg)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
