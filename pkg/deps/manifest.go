package deps

import (
	"fmt"
	"path/filepath"
)

// ManifestParser reads dependency declarations from local manifest files.
type ManifestParser interface {
	// Parse reads the manifest at path. Malformed content yields fewer
	// dependencies, never an error; errors are reserved for unreadable
	// files and cyclic includes.
	Parse(path string) (*ManifestResult, error)
	// Supports reports whether this parser handles the given filename.
	Supports(filename string) bool
	// Type returns the manifest type identifier (e.g., "conda", "requirements").
	Type() string
}

// ManifestResult holds the parsed dependency data from a manifest file.
type ManifestResult struct {
	Type         string           // Parser type that produced this result
	Path         string           // Manifest path as given to Parse
	Channels     []string         // Channels declared by the manifest (conda only)
	Dependencies []DependencySpec // In declaration order; ecosystems may be mixed
}

// Count returns the number of dependencies declared for ecosystem e.
func (r *ManifestResult) Count(e Ecosystem) int {
	n := 0
	for _, d := range r.Dependencies {
		if d.Ecosystem == e {
			n++
		}
	}
	return n
}

// DetectManifest finds a parser that supports the given file path.
// Returns an error if no parser matches.
func DetectManifest(path string, parsers ...ManifestParser) (ManifestParser, error) {
	name := filepath.Base(path)
	for _, p := range parsers {
		if p.Supports(name) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("unsupported manifest: %s", name)
}
