package elfspace

import (
	"fmt"

	"github.com/pkg/errors"
)

// SharedLib describes one dynamically-linked dependency of the image
// under ingestion (SPEC_FULL.md supplemented feature 1, grounded in
// egalito's `ElfDynamic::parse` / `ElfSpace::findDependencies`). It is
// the "optional external symbol source" spec.md §6 mentions for a
// library ElfSpace is constructed to ingest on behalf of another
// module, and also the result type FindDependencies populates for the
// module's own DT_NEEDED entries.
type SharedLib struct {
	ShortName string
	Path      string
	Image     *Image
}

// NewSharedLib wraps an already-opened Image as a named dependency.
func NewSharedLib(shortName, path string, img *Image) *SharedLib {
	return &SharedLib{ShortName: shortName, Path: path, Image: img}
}

// Close releases the underlying image, if one was opened.
func (s *SharedLib) Close() error {
	if s.Image == nil {
		return nil
	}
	return s.Image.Close()
}

// FindDependencies reads img's DT_NEEDED entries and resolves each
// against searchPaths, opening every dependency it can find (spec.md
// §6, egalito's findDependencies). A DT_NEEDED entry that cannot be
// located on any search path is recorded with a nil Image rather than
// aborting ingestion — a missing shared library is an analysis failure
// (spec.md §7), not a malformed-input one, since the main image itself
// parsed fine.
func FindDependencies(img *Image, searchPaths []string) ([]*SharedLib, error) {
	needed, err := img.File().ImportedLibraries()
	if err != nil {
		return nil, errors.Wrap(err, "reading DT_NEEDED entries")
	}

	deps := make([]*SharedLib, 0, len(needed))
	for _, name := range needed {
		path, ok := locateLibrary(name, searchPaths)
		if !ok {
			deps = append(deps, &SharedLib{ShortName: name})
			continue
		}

		depImg, err := OpenImage(path)
		if err != nil {
			return nil, errors.Wrapf(err, "opening dependency %q", name)
		}
		deps = append(deps, NewSharedLib(name, path, depImg))
	}
	return deps, nil
}

// locateLibrary searches searchPaths in order for a file named name,
// the same linear "first match wins" strategy the dynamic loader's
// search path resolution follows.
func locateLibrary(name string, searchPaths []string) (string, bool) {
	for _, dir := range searchPaths {
		candidate := fmt.Sprintf("%s/%s", dir, name)
		if fileExists(candidate) {
			return candidate, true
		}
	}
	return "", false
}
