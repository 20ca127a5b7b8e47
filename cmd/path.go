package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/surge-downloader/localcopy/internal/core"
	"github.com/surge-downloader/localcopy/internal/source"
)

var errNotDownloaded = errors.New("not downloaded")

var pathCmd = &cobra.Command{
	Use:   "path <url>",
	Short: "Print the local path of a completed download without touching the network",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := source.Identity(args[0])
		if err != nil {
			return core.NewError(core.KindInvalidLocator, args[0], err)
		}

		s, err := openSession()
		if err != nil {
			return err
		}
		path, ok := s.service.LocalPath(id)
		if err := s.Close(); err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s: %w", args[0], errNotDownloaded)
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

var progressCmd = &cobra.Command{
	Use:   "progress <url>",
	Short: "Print the state and last recorded progress of a download",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := source.Identity(args[0])
		if err != nil {
			return core.NewError(core.KindInvalidLocator, args[0], err)
		}

		s, err := openSession()
		if err != nil {
			return err
		}
		status := statusOf(s.service.Snapshot(), id)
		progress := s.service.Progress(id)
		if status == "completed" {
			progress = 1
		}
		if err := s.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %.1f%%\n", status, progress*100)
		return nil
	},
}

// statusOf names the registry set id belongs to.
func statusOf(snap core.Snapshot, id string) string {
	for _, c := range snap.Completed {
		if c.Download.ID == id {
			return "completed"
		}
	}
	for _, i := range snap.Interrupted {
		if i.Download.ID == id {
			return "interrupted"
		}
	}
	for _, a := range snap.Active {
		if a.ID == id {
			return "active"
		}
	}
	return "unknown"
}

func init() {
	rootCmd.AddCommand(pathCmd)
	rootCmd.AddCommand(progressCmd)
}
