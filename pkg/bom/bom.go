// Package bom assembles bills of materials from dependency manifests.
//
// An [Assembler] discovers manifests under a path, parses each one with the
// matching [deps.ManifestParser] and resolves every declared dependency with
// the resolver of its ecosystem. Dependencies are resolved one at a time in
// manifest order; entries are never dropped, so an unresolvable dependency
// shows up with [deps.NoLicense].
//
// # Usage
//
//	a := bom.NewAssembler(bom.Options{
//	    Conda:  condaResolver,
//	    Python: pypiResolver,
//	    Logger: logger,
//	})
//	report, err := a.Generate(ctx, "./project")
//	if err != nil {
//	    return err
//	}
//	for _, m := range report.Manifests {
//	    fmt.Println(m.Label, len(m.Entries))
//	}
package bom

import (
	"time"

	"github.com/matzehuels/superbom/pkg/deps"
)

// Report is the result of one BOM run over a file or directory.
type Report struct {
	ID          string           `json:"id"`
	Root        string           `json:"root"`
	GeneratedAt time.Time        `json:"generated_at"`
	Manifests   []ManifestReport `json:"manifests"`
	Stats       Stats            `json:"stats"`
}

// ManifestReport holds the entries resolved from one manifest.
type ManifestReport struct {
	Label    string       `json:"label"` // parent directory name, unique within a Report
	Path     string       `json:"path"`
	Type     string       `json:"type"`
	Channels []string     `json:"channels,omitempty"`
	Entries  []deps.Entry `json:"entries"`
	Stats    Stats        `json:"stats"`
	Error    string       `json:"error,omitempty"` // set when the manifest could not be parsed
}

// Stats counts the entries of a report.
type Stats struct {
	Total      int           `json:"total"`
	Validated  int           `json:"validated"`
	Unresolved int           `json:"unresolved"`
	Duration   time.Duration `json:"duration_ns"`
}

func (s *Stats) add(e deps.Entry) {
	s.Total++
	if e.Validated {
		s.Validated++
	}
	if e.Source == deps.NotAvailable {
		s.Unresolved++
	}
}

func (s *Stats) merge(o Stats) {
	s.Total += o.Total
	s.Validated += o.Validated
	s.Unresolved += o.Unresolved
}

// Entries returns the entries of every manifest in report order.
func (r *Report) Entries() []deps.Entry {
	var out []deps.Entry
	for _, m := range r.Manifests {
		out = append(out, m.Entries...)
	}
	return out
}
