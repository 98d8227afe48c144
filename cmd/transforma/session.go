package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/transformahq/transforma-agent/internal/cli"
)

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect the Helium session used for submissions",
	}

	cmd.AddCommand(sessionShowCmd())
	cmd.AddCommand(sessionClearCmd())

	return cmd
}

func sessionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current session",
		RunE: func(_ *cobra.Command, _ []string) error {
			cred := openSessionStore().Load()
			if !cred.Valid {
				fmt.Println(cli.FormatError(cred.Err))
				return nil
			}

			fmt.Println(cli.FormatSuccess("Signed in as " + cred.Username))
			if cred.UserID != "" {
				fmt.Printf("  User ID: %s\n", cred.UserID)
			}
			fmt.Printf("  Expiry:  %s\n", cred.ExpiresAt.Local().Format(time.RFC822))
			return nil
		},
	}
}

func sessionClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Forget the stored session",
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := openSessionStore().Clear(); err != nil {
				return fmt.Errorf("failed to clear session: %w", err)
			}
			fmt.Println(cli.FormatSuccess("Session cleared"))
			return nil
		},
	}
}
