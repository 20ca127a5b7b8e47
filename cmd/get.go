package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/surge-downloader/localcopy/internal/clipboard"
	"github.com/surge-downloader/localcopy/internal/core"
	"github.com/surge-downloader/localcopy/internal/source"
	"github.com/surge-downloader/localcopy/internal/utils"
)

var getCmd = &cobra.Command{
	Use:     "get [url]...",
	Aliases: []string{"add"},
	Short:   "Resolve URLs to local copies, downloading or resuming as needed",
	Long: `Resolve one or more URLs to local files. Completed downloads are served
from storage, interrupted ones are resumed and the rest are downloaded.
Interrupting the command keeps partial transfers resumable.`,
	RunE: runGet,
}

// resolution is the outcome for one requested locator.
type resolution struct {
	locator string
	path    string
	err     error
}

func runGet(cmd *cobra.Command, args []string) error {
	batchFile, _ := cmd.Flags().GetString("batch")
	fromClipboard, _ := cmd.Flags().GetBool("clipboard")
	showProgress, _ := cmd.Flags().GetBool("progress")

	inputs := append([]string(nil), args...)
	if batchFile != "" {
		fileURLs, err := readURLsFromFile(batchFile)
		if err != nil {
			return fmt.Errorf("failed to read batch file: %w", err)
		}
		inputs = append(inputs, fileURLs...)
	}
	if fromClipboard {
		inputs = append(inputs, clipboard.ReadURLs()...)
	}

	locators, rejected := splitLocators(inputs)
	for _, raw := range rejected {
		fmt.Fprintf(cmd.ErrOrStderr(), "Skipping %q: not an http(s) URL\n", raw)
	}
	if len(locators) == 0 {
		if len(rejected) > 0 {
			return core.ErrInvalidLocator
		}
		return cmd.Help()
	}

	s, err := openSession()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	limit := s.settings.Network.MaxConcurrentResolves
	var results []resolution
	if showProgress {
		results, err = resolveWithProgress(ctx, s.service, locators, limit, cmd.ErrOrStderr())
		if err != nil {
			utils.Debug("Progress view failed: %v", err)
		}
	} else {
		results = resolveAll(ctx, s.service, locators, limit, nil)
	}
	closeErr := s.Close()

	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s: %v\n", r.locator, describe(r.err))
			continue
		}
		fmt.Fprintln(cmd.OutOrStdout(), r.path)
	}
	if closeErr != nil {
		return closeErr
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d downloads failed", failed, len(results))
	}
	return nil
}

// resolveAll resolves locators with at most limit in flight. Results keep
// the input order. onDone, when set, is called as each locator settles.
func resolveAll(ctx context.Context, svc core.DownloadService, locators []string, limit int, onDone func(int, resolution)) []resolution {
	results := make([]resolution, len(locators))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(limit, 1))
	for i, locator := range locators {
		g.Go(func() error {
			path, err := svc.Resolve(ctx, locator)
			results[i] = resolution{locator: locator, path: path, err: err}
			if onDone != nil {
				onDone(i, results[i])
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// splitLocators deduplicates inputs by identity and separates out the ones
// that are not http(s) URLs.
func splitLocators(inputs []string) (locators, rejected []string) {
	seen := make(map[string]bool)
	for _, in := range inputs {
		if source.Normalize(in) == "" {
			continue
		}
		id, err := source.Identity(in)
		if err != nil {
			rejected = append(rejected, in)
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		locators = append(locators, source.Normalize(in))
	}
	return locators, rejected
}

// describe adds a resume hint to errors that left the download resumable.
func describe(err error) string {
	switch {
	case core.IsClosed(err), errors.Is(err, context.Canceled):
		return "interrupted, run get again to resume"
	case errors.Is(err, core.ErrInvalidResumeToken):
		return fmt.Sprintf("%v (partial data discarded)", err)
	default:
		return err.Error()
	}
}

func init() {
	rootCmd.AddCommand(getCmd)
	getCmd.Flags().StringP("batch", "b", "", "File containing URLs to download (one per line)")
	getCmd.Flags().BoolP("clipboard", "c", false, "Also resolve URLs found in the clipboard")
	getCmd.Flags().BoolP("progress", "p", false, "Show a progress bar per URL on stderr")
}
