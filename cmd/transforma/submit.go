package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/transformahq/transforma-agent/internal/cli"
	"github.com/transformahq/transforma-agent/internal/common"
	"github.com/transformahq/transforma-agent/internal/coordinator"
)

func submitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit <file>",
		Short: "Submit an invoice to FIRS through the Helium Relay",
		Long: `Submit a document for FIRS processing. The submission pipeline
verifies the session, consults the duplicate cache, and forwards the
document to the Helium Relay.

Examples:
  transforma submit invoice.pdf          # Submit one document
  transforma submit invoice.pdf --sync   # Reconcile the cache first`,
		Args: cobra.ExactArgs(1),
		RunE: runSubmit,
	}

	cmd.Flags().Bool("sync", false, "Reconcile the duplicate cache from the sync source before submitting")
	cmd.Flags().Bool("wait", false, "Wait for the post-success state settle before exiting")
	cmd.Flags().Duration("timeout", 2*time.Minute, "Maximum time to wait for the submission to finish")

	return cmd
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	documentPath := args[0]
	syncFirst, _ := cmd.Flags().GetBool("sync")
	wait, _ := cmd.Flags().GetBool("wait")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	if _, err := os.Stat(documentPath); err != nil {
		return fmt.Errorf("cannot read %s: %w", documentPath, err)
	}

	cache, err := openCache()
	if err != nil {
		return err
	}

	if syncFirst {
		if syncErr := cache.SyncOnce(ctx, syncSourcePath()); syncErr != nil {
			slog.Warn("Cache reconciliation failed, continuing with local cache", "error", syncErr)
		}
	}

	coord := coordinator.New(openSessionStore(), cache, relayClient())
	defer coord.Close()

	snaps := make(chan coordinator.Snapshot, 16)
	coord.Subscribe(func(s coordinator.Snapshot) {
		select {
		case snaps <- s:
		default:
		}
	})

	coord.Init(ctx)
	switch state := coord.State(); state.State {
	case coordinator.StateNoSession:
		return common.NewUserError(state.Tooltip, common.ErrNoSession)
	case coordinator.StateRelayDown:
		return common.NewUserError("Helium Relay is not reachable", common.ErrRelayUnavailable)
	}

	if !coord.Submit(documentPath) {
		return fmt.Errorf("submission was not accepted (state: %s)", coord.State().State)
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	succeeded := false
	for {
		select {
		case <-ctx.Done():
			coord.Cancel()
			return ctx.Err()
		case <-deadline.C:
			coord.Cancel()
			return fmt.Errorf("timed out waiting for submission to finish")
		case snap := <-snaps:
			switch snap.State {
			case coordinator.StateChecking:
				fmt.Println(cli.FormatInfo("Checking session and duplicate cache..."))
			case coordinator.StateSubmitting:
				fmt.Println(cli.FormatInfo("Sending to Helium Relay..."))
			case coordinator.StateSuccess:
				fmt.Println(cli.FormatSuccess("Submitted! FIRS Reference: " + snap.Reference))
				if !wait {
					return nil
				}
				succeeded = true
			case coordinator.StateAlreadySubmitted:
				if succeeded {
					return nil
				}
				fmt.Println(cli.FormatWarning("Already submitted: " + snap.Tooltip))
				return common.ErrDuplicateSubmission
			case coordinator.StateError:
				return fmt.Errorf("submission failed: %s", snap.Tooltip)
			case coordinator.StateNoSession:
				return common.NewUserError(snap.Tooltip, common.ErrNoSession)
			case coordinator.StateRelayDown:
				return common.NewUserError("Helium Relay is not reachable", common.ErrRelayUnavailable)
			}
		}
	}
}
