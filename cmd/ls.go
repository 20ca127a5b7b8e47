package cmd

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/surge-downloader/localcopy/internal/core"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF79C6"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6272A4"))
)

var lsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"l"},
	Short:   "List active, interrupted and completed downloads",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		snap := s.service.Snapshot()
		if err := s.Close(); err != nil {
			return err
		}
		printSnapshot(cmd.OutOrStdout(), snap)
		return nil
	},
}

func printSnapshot(w io.Writer, snap core.Snapshot) {
	if len(snap.Active)+len(snap.Interrupted)+len(snap.Completed) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No downloads."))
		return
	}

	if len(snap.Active) > 0 {
		fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("Active (%d)", len(snap.Active))))
		for _, a := range snap.Active {
			fmt.Fprintf(w, "  %5.1f%%  %s\n", a.Progress*100, a.URL)
		}
	}
	if len(snap.Interrupted) > 0 {
		fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("Interrupted (%d)", len(snap.Interrupted))))
		for _, i := range snap.Interrupted {
			fmt.Fprintf(w, "  %s\n", i.Download.URL)
		}
	}
	if len(snap.Completed) > 0 {
		fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("Completed (%d)", len(snap.Completed))))
		for _, c := range snap.Completed {
			size := dimStyle.Render("missing")
			if c.Size >= 0 {
				size = humanize.Bytes(uint64(c.Size))
			}
			fmt.Fprintf(w, "  %-9s %s\n", size, c.Download.URL)
			fmt.Fprintf(w, "            %s\n", dimStyle.Render(c.Path))
		}
	}
}

func init() {
	rootCmd.AddCommand(lsCmd)
}
