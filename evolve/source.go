package evolve

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// readSource walks every whitelisted package directory under root
// collecting .go files (tests excluded, to keep the prompt focused on
// shipped behavior), then adds whichever root whitelist files exist.
// Missing files and unreadable directories are skipped rather than
// failing the whole snapshot — a partial source view still lets the
// router propose something.
func readSource(root string) (map[string]string, error) {
	files := make(map[string]string)

	for _, pkg := range sourcePackages {
		pkgDir := filepath.Join(root, pkg)
		if _, err := os.Stat(pkgDir); err != nil {
			continue
		}
		err := filepath.WalkDir(pkgDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil // skip the unreadable entry, keep walking
			}
			if d.IsDir() {
				return nil
			}
			if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
				return nil
			}
			data, readErr := os.ReadFile(path)
			if readErr != nil {
				return nil
			}
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				rel = path
			}
			files[filepath.ToSlash(rel)] = string(data)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	for _, name := range rootWhitelist {
		path := filepath.Join(root, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		files[name] = string(data)
	}

	return files, nil
}
