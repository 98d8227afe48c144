package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/transformahq/transforma-agent/internal/cli"
	"github.com/transformahq/transforma-agent/internal/model"
)

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the duplicate-submission cache",
	}

	cmd.AddCommand(cacheListCmd())
	cmd.AddCommand(cacheSyncCmd())
	cmd.AddCommand(cacheCheckCmd())
	cmd.AddCommand(cacheClearCmd())

	return cmd
}

func cacheListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached submissions",
		RunE: func(_ *cobra.Command, _ []string) error {
			cache, err := openCache()
			if err != nil {
				return err
			}

			entries := cache.Entries()
			if len(entries) == 0 {
				fmt.Println(cli.FormatInfo("Cache is empty"))
				return nil
			}

			header := fmt.Sprintf("%-40s %-20s %-24s %s", "FILENAME", "SUBMITTED", "REFERENCE", "SUBMITTER")
			fmt.Println(cli.TableHeaderStyle.Render(header))
			for _, entry := range entries {
				fmt.Printf("%-40s %-20s %-24s %s\n",
					entry.Filename,
					entry.SubmittedAt.Local().Format("2006-01-02 15:04"),
					entry.Reference,
					entry.Submitter)
			}

			fmt.Println()
			fmt.Println(cli.SubtleStyle.Render(fmt.Sprintf("%d entries in %s", len(entries), cachePath())))
			return nil
		},
	}
}

func cacheSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the cache from the Helium sync database",
		RunE: func(c *cobra.Command, _ []string) error {
			watch, _ := c.Flags().GetBool("watch")

			cache, err := openCache()
			if err != nil {
				return err
			}

			before := cache.Len()
			if err := cache.SyncOnce(c.Context(), syncSourcePath()); err != nil {
				return fmt.Errorf("cache sync failed: %w", err)
			}
			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Synced %d entries (was %d)", cache.Len(), before)))

			if !watch {
				return nil
			}

			cache.StartBackgroundSync(syncSourcePath())
			defer cache.StopBackgroundSync()
			fmt.Println(cli.FormatInfo("Watching sync source; press Ctrl-C to stop"))
			<-c.Context().Done()
			return nil
		},
	}

	cmd.Flags().Bool("watch", false, "Keep reconciling on the configured interval until interrupted")
	return cmd
}

func cacheCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <file>",
		Short: "Check whether a document was already submitted",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cache, err := openCache()
			if err != nil {
				return err
			}

			filename := filepath.Base(args[0])
			result := cache.Check(filename)
			switch result.Status {
			case model.StatusAlreadySubmitted:
				fmt.Println(cli.FormatWarning(fmt.Sprintf("%s was submitted by %s on %s (Ref: %s)",
					filename,
					result.Entry.Submitter,
					result.Entry.SubmittedAt.Local().Format(time.RFC822),
					result.Entry.Reference)))
			case model.StatusNotSubmitted:
				fmt.Println(cli.FormatSuccess(filename + " has not been submitted"))
			case model.StatusCacheUnavailable:
				fmt.Println(cli.FormatError("Duplicate cache is unavailable"))
			}
			return nil
		},
	}
}

func cacheClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every entry from the local cache",
		RunE: func(c *cobra.Command, _ []string) error {
			force, _ := c.Flags().GetBool("force")
			if !force {
				return fmt.Errorf("refusing to clear the cache without --force")
			}

			cache, err := openCache()
			if err != nil {
				return err
			}

			if err := cache.Clear(); err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}

			fmt.Println(cli.FormatSuccess("Cache cleared"))
			return nil
		},
	}

	cmd.Flags().Bool("force", false, "Confirm clearing the cache")
	return cmd
}
