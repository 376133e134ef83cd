package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTokenCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage cached OAuth2 tokens in the shared Redis cache",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if g.redisAddr == "" {
				return fmt.Errorf("--redis-addr is required: tokens cached in memory die with the process")
			}
			return nil
		},
	}
	cmd.AddCommand(newTokenInvalidateCmd(g), newTokenClearCmd(g))
	return cmd
}

func newTokenInvalidateCmd(g *globalFlags) *cobra.Command {
	var tokenURL, identity string

	cmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Drop the cached tokens of one client or user at one token endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			engine, closeFn, err := g.engine(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := engine.Invalidate(cmd.Context(), tokenURL, identity); err != nil {
				return fmt.Errorf("invalidate tokens: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "invalidated tokens for %s at %s\n", identity, tokenURL)
			return nil
		},
	}

	cmd.Flags().StringVar(&tokenURL, "token-url", "", "OAuth2 token endpoint")
	cmd.Flags().StringVar(&identity, "identity", "", "Client ID (client credentials) or username (password grant)")
	_ = cmd.MarkFlagRequired("token-url")
	_ = cmd.MarkFlagRequired("identity")

	return cmd
}

func newTokenClearCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop every cached token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			engine, closeFn, err := g.engine(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := engine.ClearAll(cmd.Context()); err != nil {
				return fmt.Errorf("clear tokens: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cleared all cached tokens")
			return nil
		},
	}
}
