package commands

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/sugar/internal/compiler/build"
	"github.com/conduit-lang/sugar/internal/manifest"
	"github.com/conduit-lang/sugar/internal/watch"
)

// NewWatchCommand creates the watch command
func NewWatchCommand(g *globalFlags) *cobra.Command {
	var (
		output   string
		maps     bool
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch [files or directories...]",
		Short: "Re-expand files as they change",
		Long: `Expand the given files into the output directory, then keep watching
their directories. A changed file is expanded again together with every
file depending on it; unchanged files are served from the cache.

When the config names a manifest file, it is reloaded on every write and
falls back to the built-in defaults when removed.`,
		Example: `  # Keep gen/ up to date with the current directory
  sugar watch --output gen

  # Watch two packages, with source maps
  sugar watch ./shapes ./render -o gen --map`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				return errors.New("watch needs --output")
			}

			s, err := newSession(g)
			if err != nil {
				return err
			}
			defer s.logger.Sync() //nolint:errcheck

			files, err := collectFiles(args)
			if err != nil {
				return err
			}
			if files = withoutDir(files, output); len(files) == 0 {
				return errors.New("no Go files found outside the output directory")
			}

			out := cmd.OutOrStdout()
			errOut := cmd.ErrOrStderr()
			coordinator := build.NewCoordinator(s.transformer, s.logger)

			report := func(results []*build.FileResult, metrics *build.Metrics) {
				written, err := writeOutputs(output, results, maps)
				if err != nil {
					color.New(color.FgRed, color.Bold).Fprintf(errOut, "✗ %v\n", err)
				}
				printDiagnostics(errOut, diagnostics(results, true))
				for _, f := range failures(results) {
					color.New(color.FgRed, color.Bold).Fprintf(errOut, "✗ %v\n", f)
				}
				summary := color.New(color.FgGreen)
				if metrics.Errors > 0 {
					summary = color.New(color.FgYellow)
				}
				summary.Fprintf(out, "%s expanded %d of %d file(s), %d cached, wrote %d file(s) in %s\n",
					time.Now().Format("15:04:05"), metrics.FilesExpanded, metrics.TotalFiles,
					metrics.CacheHits, len(written), metrics.TotalDuration.Round(time.Millisecond))
			}

			results, metrics, err := coordinator.Build(files)
			if err != nil {
				return err
			}
			report(results, metrics)

			fw, err := watch.NewFileWatcher(watch.Options{
				Dirs:     watchDirs(files),
				Patterns: []string{"*.go"},
				Ignored:  []string{"*~", "*.swp"},
				Debounce: debounce,
				Logger:   s.logger,
			}, func(changes []watch.Change) error {
				results, metrics, err := coordinator.Rebuild(changes)
				if err != nil {
					return err
				}
				report(results, metrics)
				return nil
			})
			if err != nil {
				return err
			}
			if err := fw.Start(); err != nil {
				return err
			}
			defer fw.Stop() //nolint:errcheck

			if s.cfg.Manifest != "" {
				mw, err := manifest.NewWatcher(s.cfg.Manifest, s.transformer.Registry(), s.logger,
					func(m *manifest.Manifest) {
						color.New(color.FgCyan).Fprintf(out, "manifest reloaded: %d macro(s)\n", m.Len())
					})
				if err != nil {
					return err
				}
				if err := mw.Start(); err != nil {
					s.logger.Warn("manifest not watched", zap.String("file", s.cfg.Manifest), zap.Error(err))
				} else {
					defer mw.Stop() //nolint:errcheck
				}
			}

			printBanner(out, files, output)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			fmt.Fprintln(out, "\nStopped watching")
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Directory to write expanded files to")
	cmd.Flags().BoolVar(&maps, "map", false, "Write a source map next to each expanded file")
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "Quiet period before a batch of changes is expanded")

	return cmd
}

// watchDirs returns the directories of files
func watchDirs(files []string) []string {
	seen := make(map[string]bool)
	var dirs []string
	for _, f := range files {
		dir := filepath.Dir(f)
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	sort.Strings(dirs)
	return dirs
}

func printBanner(w io.Writer, files []string, output string) {
	banner := color.New(color.FgCyan, color.Bold)
	fmt.Fprintln(w)
	banner.Fprintln(w, "sugar watch")
	fmt.Fprintf(w, "   Watching %d file(s), writing to %s\n", len(files), output)
	color.New(color.FgYellow).Fprintln(w, "   Press Ctrl+C to stop")
	fmt.Fprintln(w)
}
