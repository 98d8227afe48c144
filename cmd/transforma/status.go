package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/transformahq/transforma-agent/internal/cli"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show session, relay, and cache status",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	var lines []string

	cred := openSessionStore().Load()
	if cred.Valid {
		expiry := "expires " + cred.ExpiresAt.Local().Format(time.RFC822)
		lines = append(lines, cli.FormatSuccess(fmt.Sprintf("Session: %s (%s)", cred.Username, expiry)))
	} else {
		lines = append(lines, cli.FormatError("Session: "+cred.Err))
	}

	if relayClient().IsAvailable(ctx) {
		lines = append(lines, cli.FormatSuccess("Relay:   reachable"))
	} else {
		lines = append(lines, cli.FormatError("Relay:   not reachable"))
	}

	cache, err := openCache()
	if err != nil {
		lines = append(lines, cli.FormatError("Cache:   "+err.Error()))
	} else {
		lastSync := "never"
		if !cache.LastSync().IsZero() {
			lastSync = cache.LastSync().Local().Format(time.RFC822)
		}
		lines = append(lines, cli.FormatInfo(fmt.Sprintf("Cache:   %d entries, last sync %s", cache.Len(), lastSync)))
	}

	content := ""
	for i, line := range lines {
		if i > 0 {
			content += "\n"
		}
		content += line
	}
	fmt.Println(cli.RenderBox("Transforma Agent", content))

	return nil
}
