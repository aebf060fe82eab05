package commands

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.lsp.dev/protocol"

	"github.com/conduit-lang/sugar/internal/compiler/build"
	cerrors "github.com/conduit-lang/sugar/internal/compiler/errors"
)

// expandReport is the --json output of expand
type expandReport struct {
	Files       int               `json:"files"`
	Changed     int               `json:"changed"`
	Expansions  int               `json:"expansions"`
	Written     []string          `json:"written,omitempty"`
	Diagnostics cerrors.ErrorList `json:"diagnostics"`
	Failures    []string          `json:"failures,omitempty"`
	DurationMS  int64             `json:"duration_ms"`
}

// NewExpandCommand creates the expand command
func NewExpandCommand(g *globalFlags) *cobra.Command {
	var (
		output  string
		maps    bool
		jsonOut bool
		lspOut  bool
	)

	cmd := &cobra.Command{
		Use:   "expand [files or directories...]",
		Short: "Expand the macros of Go source files",
		Long: `Expand every macro marker in the given Go files, or in the Go files
under the given directories, and write the resulting plain Go.

Files declaring typeclasses, instances or implicit functions are expanded
before the files that use them. Without --output the expanded code is
printed; diagnostics always refer to the original source.`,
		Example: `  # Print the expansion of one file
  sugar expand main.go

  # Expand a package into gen/ with source maps
  sugar expand ./pkg/shapes --output gen --map

  # Report diagnostics as JSON (useful for tooling)
  sugar expand . --json

  # Report diagnostics as LSP publishDiagnostics params, one per file
  sugar expand . --lsp`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if maps && output == "" {
				return errors.New("--map needs --output")
			}
			start := time.Now()

			s, err := newSession(g)
			if err != nil {
				return err
			}
			defer s.logger.Sync() //nolint:errcheck

			files, err := collectFiles(args)
			if err != nil {
				return err
			}
			if output != "" {
				files = withoutDir(files, output)
			}

			coordinator := build.NewCoordinator(s.transformer, s.logger)
			results, metrics, err := coordinator.Build(files)
			if err != nil {
				return err
			}

			var written []string
			if output != "" {
				if written, err = writeOutputs(output, results, maps); err != nil {
					return err
				}
			}

			diags := diagnostics(results, !jsonOut && !lspOut)
			fails := failures(results)

			switch {
			case lspOut:
				params, err := lspDiagnostics(results)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(params); err != nil {
					return err
				}
				for _, f := range fails {
					color.New(color.FgRed, color.Bold).Fprintf(cmd.ErrOrStderr(), "✗ %v\n", f)
				}
			case jsonOut:
				report := expandReport{
					Files:       metrics.TotalFiles,
					Changed:     metrics.FilesChanged,
					Expansions:  metrics.Expansions,
					Written:     written,
					Diagnostics: diags,
					DurationMS:  time.Since(start).Milliseconds(),
				}
				if report.Diagnostics == nil {
					report.Diagnostics = cerrors.ErrorList{}
				}
				for _, f := range fails {
					report.Failures = append(report.Failures, f.Error())
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			default:
				if output == "" {
					printCode(cmd, results)
				}
				printDiagnostics(cmd.ErrOrStderr(), diags)
				for _, f := range fails {
					color.New(color.FgRed, color.Bold).Fprintf(cmd.ErrOrStderr(), "✗ %v\n", f)
				}
				if output != "" {
					color.New(color.FgGreen, color.Bold).Fprintf(cmd.OutOrStdout(),
						"✓ Expanded %d file(s), %d expansion(s), wrote %d file(s) to %s in %s\n",
						metrics.TotalFiles, metrics.Expansions, len(written), output,
						time.Since(start).Round(time.Millisecond))
				}
			}

			if n := metrics.Errors; n > 0 {
				return errors.Newf("expansion failed with %d error(s)", n)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Directory to write expanded files to")
	cmd.Flags().BoolVar(&maps, "map", false, "Write a source map next to each expanded file")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output a JSON report instead of code")
	cmd.Flags().BoolVar(&lspOut, "lsp", false, "Output LSP diagnostics per file instead of code")
	cmd.MarkFlagsMutuallyExclusive("json", "lsp")

	return cmd
}

// printCode writes the expanded code; several files are separated by a
// comment naming each
func printCode(cmd *cobra.Command, results []*build.FileResult) {
	out := cmd.OutOrStdout()
	for _, r := range results {
		if r.Result == nil {
			continue
		}
		if len(results) > 1 {
			fmt.Fprintf(out, "// %s\n", r.Path)
		}
		fmt.Fprint(out, r.Result.Code)
	}
}

// lspDiagnostics converts the diagnostics of every expanded file into the
// params of an LSP publishDiagnostics notification. Files without
// diagnostics are included so that a client clears them.
func lspDiagnostics(results []*build.FileResult) ([]protocol.PublishDiagnosticsParams, error) {
	out := make([]protocol.PublishDiagnosticsParams, 0, len(results))
	for _, r := range results {
		if r.Result == nil {
			continue
		}
		abs, err := filepath.Abs(r.Path)
		if err != nil {
			return nil, errors.Wrapf(err, "resolve %s", r.Path)
		}
		out = append(out, protocol.PublishDiagnosticsParams{
			URI:         protocol.DocumentURI("file://" + filepath.ToSlash(abs)),
			Diagnostics: r.Result.Diagnostics.ToProtocol(),
		})
	}
	return out, nil
}
