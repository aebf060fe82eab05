package manifest

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/cockroachdb/errors"

	cerrors "github.com/conduit-lang/sugar/internal/compiler/errors"
	"github.com/conduit-lang/sugar/internal/compiler/registry"
)

// Patterns match the manifest files of a macro directory
var Patterns = []string{"*.macros.json", "*.macros.yaml", "*.macros.yml"}

// Files lists the manifest files of dir, sorted
func Files(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrap(err, "macro directory")
	}
	if !info.IsDir() {
		return nil, errors.Newf("macro directory %s is not a directory", dir)
	}

	var files []string
	for _, pattern := range Patterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, errors.Wrapf(err, "scan %s", dir)
		}
		files = append(files, matches...)
	}
	sort.Strings(files)
	return files, nil
}

// LoadDirectories merges the manifests of dirs over the defaults of reg.
// Nothing here is fatal: a file that cannot be loaded is skipped, an entry
// naming an unregistered macro is dropped, and both are reported as
// warnings.
func LoadDirectories(dirs []string, reg *registry.Registry) (*Manifest, cerrors.ErrorList) {
	m := Defaults(reg)
	var diags cerrors.ErrorList

	for _, dir := range dirs {
		files, err := Files(dir)
		if err != nil {
			diags = append(diags, cerrors.NewManifestLoad(dir, err))
			continue
		}
		for _, file := range files {
			custom, err := Load(file)
			if err != nil {
				diags = append(diags, cerrors.NewManifestLoad(file, err))
				continue
			}
			for _, miss := range custom.prune(reg) {
				diags = append(diags, cerrors.NewManifestEntry(file, miss[0], miss[1]))
			}
			m = Merge(m, custom)
		}
	}
	return m, diags
}
