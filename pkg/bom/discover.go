package bom

import (
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/superbom/pkg/deps"
	"github.com/matzehuels/superbom/pkg/deps/conda"
	"github.com/matzehuels/superbom/pkg/deps/python"
	bomerrors "github.com/matzehuels/superbom/pkg/errors"
)

// DefaultLabel labels manifests whose parent directory has no name.
const DefaultLabel = "default"

// manifestExts are the extensions considered during discovery.
var manifestExts = map[string]bool{".yml": true, ".yaml": true, ".txt": true, ".toml": true}

// Manifest is a discovered manifest file.
type Manifest struct {
	Path   string
	Label  string
	Parser deps.ManifestParser
}

// DefaultParsers returns the parsers for every supported manifest type:
// conda environment files, pip requirements files and pyproject.toml.
func DefaultParsers(logger *log.Logger) []deps.ManifestParser {
	return []deps.ManifestParser{
		&conda.EnvironmentParser{Logger: logger},
		&python.Requirements{Logger: logger},
		&python.Pyproject{Logger: logger},
	}
}

// Discover returns the manifests at path. A file is returned when a parser
// supports its name; a directory is walked recursively in lexical order,
// skipping hidden directories. Requirements files already included by
// another discovered requirements file are left out. Labels are made unique
// by suffixing "-2", "-3", ... With no parsers given, [DefaultParsers] are
// used.
func Discover(path string, parsers ...deps.ManifestParser) ([]Manifest, error) {
	if len(parsers) == 0 {
		parsers = DefaultParsers(nil)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, bomerrors.Wrap(bomerrors.ErrCodeFileNotFound, err, "stat %s", path)
	}

	var found []Manifest
	add := func(p string) {
		if !manifestExts[strings.ToLower(filepath.Ext(p))] {
			return
		}
		parser, err := deps.DetectManifest(p, parsers...)
		if err != nil {
			return
		}
		found = append(found, Manifest{Path: p, Label: Label(p), Parser: parser})
	}

	if !info.IsDir() {
		add(path)
	} else {
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if p != path && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type().IsRegular() {
				add(p)
			}
			return nil
		})
		if err != nil {
			return nil, bomerrors.Wrap(bomerrors.ErrCodeInvalidInput, err, "walk %s", path)
		}
	}

	found = dropIncluded(found)
	uniqueLabels(found)
	return found, nil
}

// dropIncluded removes requirements files that another discovered
// requirements file already pulls in with -r, directly or through other
// includes. Files that include each other are kept so the cycle is reported.
func dropIncluded(ms []Manifest) []Manifest {
	abs := make([]string, len(ms))
	reach := make(map[string]map[string]bool)
	for i, m := range ms {
		if _, ok := m.Parser.(*python.Requirements); !ok {
			continue
		}
		a, err := filepath.Abs(m.Path)
		if err != nil {
			continue
		}
		abs[i] = a
		reach[a] = includeClosure(a)
	}

	included := func(p string) bool {
		for other, r := range reach {
			if other != p && r[p] && !reach[p][other] {
				return true
			}
		}
		return false
	}

	out := ms[:0]
	for i, m := range ms {
		if abs[i] != "" && included(abs[i]) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// includeClosure returns every file reachable from path through -r
// includes. Unreadable files end their branch.
func includeClosure(path string) map[string]bool {
	seen := make(map[string]bool)
	var walk func(string)
	walk = func(p string) {
		incs, err := python.RequirementsIncludes(p)
		if err != nil {
			return
		}
		for _, inc := range incs {
			if !seen[inc] {
				seen[inc] = true
				walk(inc)
			}
		}
	}
	walk(path)
	return seen
}

// Label returns the name of the directory containing path, or
// [DefaultLabel].
func Label(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	name := filepath.Base(filepath.Dir(abs))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return DefaultLabel
	}
	return name
}

func uniqueLabels(ms []Manifest) {
	seen := make(map[string]int, len(ms))
	for i := range ms {
		base := ms[i].Label
		seen[base]++
		if n := seen[base]; n > 1 {
			ms[i].Label = base + "-" + strconv.Itoa(n)
		}
	}
}
