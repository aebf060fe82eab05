package commands

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/sugar/internal/cli/ui"
	cerrors "github.com/conduit-lang/sugar/internal/compiler/errors"
	"github.com/conduit-lang/sugar/internal/compiler/registry"
	"github.com/conduit-lang/sugar/internal/manifest"
)

// NewMacrosCommand creates the macros command
func NewMacrosCommand(g *globalFlags) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "macros [name]",
		Short: "List the available macros",
		Long: `List the registered macros by kind, as described by the manifest:
the built-in defaults merged with the manifests of the configured macro
directories. With a name, show that macro in detail.

--json prints the merged manifest, the document editors read.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(g)
			if err != nil {
				return err
			}
			defer s.logger.Sync() //nolint:errcheck

			m, diags := manifest.LoadDirectories(s.cfg.MacroDirectories, s.transformer.Registry())
			printDiagnostics(cmd.ErrOrStderr(), diags)

			if jsonOut {
				data, err := m.JSON()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			if len(args) == 1 {
				return describeMacro(cmd, m, args[0], g.noColor)
			}

			table := ui.NewTable(cmd.OutOrStdout(), g.noColor, "Kind", "Name", "Args", "Description")
			for _, kind := range registry.Kinds {
				for _, name := range m.Names(kind) {
					e, _ := m.Entry(kind, name)
					table.AddRow(kind.String(), name, strings.Join(e.Args, ", "), e.Description)
				}
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the merged manifest as JSON")

	return cmd
}

func describeMacro(cmd *cobra.Command, m *manifest.Manifest, name string, noColor bool) error {
	var all []string
	found := false
	for _, kind := range registry.Kinds {
		all = append(all, m.Names(kind)...)
		e, ok := m.Entry(kind, name)
		if !ok {
			continue
		}
		found = true

		out := cmd.OutOrStdout()
		ui.Header(out, name, noColor)
		kv := ui.NewKeyValueTable(out, noColor)
		kv.AddRow("Kind", kind.String())
		kv.AddRow("Package", e.Module)
		if e.Description != "" {
			kv.AddRow("Description", e.Description)
		}
		if len(e.Args) > 0 {
			kv.AddRow("Args", strings.Join(e.Args, ", "))
		}
		if len(e.Continuations) > 0 {
			kv.AddRow("Continuations", strings.Join(e.Continuations, ", "))
		}
		kv.Render()
		fmt.Fprintln(out)
	}
	if found {
		return nil
	}

	if similar := cerrors.FindSimilar(name, all); len(similar) > 0 {
		return errors.Newf("no macro named %q, did you mean %s?", name, strings.Join(similar, " or "))
	}
	return errors.Newf("no macro named %q", name)
}

