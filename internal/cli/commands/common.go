package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/conduit-lang/sugar/internal/cli/config"
	"github.com/conduit-lang/sugar/internal/compiler/build"
	cerrors "github.com/conduit-lang/sugar/internal/compiler/errors"
	"github.com/conduit-lang/sugar/internal/compiler/transform"
	"github.com/conduit-lang/sugar/internal/logging"
)

// session is what every command needs: the loaded config, a logger and a
// transformer configured from both
type session struct {
	cfg         *config.Config
	logger      *zap.Logger
	transformer *transform.Transformer
}

func newSession(g *globalFlags) (*session, error) {
	cfg, err := config.Load(g.dir)
	if err != nil {
		return nil, err
	}
	if g.verbose {
		cfg.Verbose = true
	}
	// macro directories and the manifest are relative to the config
	cfg.MacroDirectories = resolveAll(g.dir, cfg.MacroDirectories)
	if cfg.Manifest != "" {
		cfg.Manifest = resolve(g.dir, cfg.Manifest)
	}

	logger := logging.New(cfg.Verbose)
	return &session{
		cfg:         cfg,
		logger:      logger,
		transformer: transform.NewDefault(cfg.Transform(logger)),
	}, nil
}

func resolve(dir, path string) string {
	if filepath.IsAbs(path) || dir == "" {
		return path
	}
	return filepath.Join(dir, path)
}

func resolveAll(dir string, paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = resolve(dir, p)
	}
	return out
}

// collectFiles expands directory arguments into their Go files. No
// arguments means the current directory.
func collectFiles(args []string) ([]string, error) {
	if len(args) == 0 {
		args = []string{"."}
	}
	seen := make(map[string]bool)
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot read %s", arg)
		}
		found := []string{arg}
		if info.IsDir() {
			if found, err = build.ScanDirectory(arg); err != nil {
				return nil, err
			}
		}
		for _, f := range found {
			if !seen[f] {
				seen[f] = true
				files = append(files, f)
			}
		}
	}
	if len(files) == 0 {
		return nil, errors.New("no Go files found")
	}
	return files, nil
}

// withoutDir drops the files under dir, so expanded output is never
// expanded again
func withoutDir(files []string, dir string) []string {
	root, err := filepath.Abs(dir)
	if err != nil {
		return files
	}
	var out []string
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err == nil && (abs == root || strings.HasPrefix(abs, root+string(filepath.Separator))) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// diagnostics gathers the diagnostics of every result, with source context
// for terminal output
func diagnostics(results []*build.FileResult, withContext bool) cerrors.ErrorList {
	var all cerrors.ErrorList
	for _, r := range results {
		if r.Result == nil {
			continue
		}
		var source string
		if withContext {
			if data, err := os.ReadFile(r.Path); err == nil {
				source = string(data)
			}
		}
		for _, d := range r.Result.Diagnostics {
			if source != "" && d.Context == nil && d.Location.Line > 0 {
				current, lines := cerrors.ExtractContext(source, d.Location.Line)
				d.WithContext(current, lines)
			}
			all = append(all, d)
		}
	}
	return all
}

// failures are the files that could not be transformed at all
func failures(results []*build.FileResult) []error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errs
}

// printDiagnostics writes diagnostics to w in colour, errors red and
// warnings yellow
func printDiagnostics(w io.Writer, diags cerrors.ErrorList) {
	if len(diags) == 0 {
		return
	}
	errorColor := color.New(color.FgRed, color.Bold)
	warningColor := color.New(color.FgYellow)
	infoColor := color.New(color.FgCyan)

	for _, d := range diags {
		c := infoColor
		switch d.Severity {
		case cerrors.SeverityError:
			c = errorColor
		case cerrors.SeverityWarning:
			c = warningColor
		}
		c.Fprint(w, d.Format())
		fmt.Fprintln(w)
	}
	errs, warns, _ := diags.ErrorCount()
	fmt.Fprintf(w, "%d error(s), %d warning(s)\n", errs, warns)
}

// outputPath places path under dir, keeping its position relative to the
// working directory when it has one
func outputPath(dir, path string) string {
	rel := filepath.Base(path)
	if wd, err := os.Getwd(); err == nil {
		if abs, err := filepath.Abs(path); err == nil {
			if r, err := filepath.Rel(wd, abs); err == nil && !strings.HasPrefix(r, "..") {
				rel = r
			}
		}
	}
	return filepath.Join(dir, rel)
}

// writeOutputs writes the expanded code of every result under dir, with a
// source map next to each changed file when maps is set. It returns the
// written paths.
func writeOutputs(dir string, results []*build.FileResult, maps bool) ([]string, error) {
	var written []string
	for _, r := range results {
		if r.Result == nil || r.Err != nil {
			continue
		}
		out := outputPath(dir, r.Path)
		if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
			return written, errors.Wrapf(err, "failed to create directory for %s", out)
		}
		if err := os.WriteFile(out, []byte(r.Result.Code), 0644); err != nil {
			return written, errors.Wrapf(err, "failed to write %s", out)
		}
		written = append(written, out)

		if maps && r.Result.Map != nil {
			if err := r.Result.Map.SaveToFile(out + ".map"); err != nil {
				return written, err
			}
			written = append(written, out+".map")
		}
	}
	return written, nil
}
