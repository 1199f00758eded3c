package deps

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Display sentinels used when a dependency cannot be resolved.
const (
	NoLicense    = "No License Information" // license of an entry with no license candidate
	NotAvailable = "N/A"                    // version or source of an unresolved entry
)

// DefaultCacheTTL is the default lifetime of cached registry responses.
const DefaultCacheTTL = 24 * time.Hour

// Ecosystem identifies the manifest family a dependency was declared in.
type Ecosystem string

const (
	Conda  Ecosystem = "conda"
	Pip    Ecosystem = "pip"
	Poetry Ecosystem = "poetry"
)

// ecosystemAliases maps user-facing names to ecosystems.
var ecosystemAliases = map[string]Ecosystem{
	"conda":        Conda,
	"environment":  Conda,
	"pip":          Pip,
	"pypi":         Pip,
	"requirements": Pip,
	"poetry":       Poetry,
	"pyproject":    Poetry,
}

// ParseEcosystem resolves an ecosystem name or alias ("requirements",
// "pyproject", ...). Matching is case-insensitive.
func ParseEcosystem(s string) (Ecosystem, error) {
	if e, ok := ecosystemAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return e, nil
	}
	return "", fmt.Errorf("unknown ecosystem %q (available: conda, pip, poetry)", s)
}

// DependencySpec is one dependency as declared in a manifest.
//
// Name is always non-empty and trimmed. Constraint is the raw version
// constraint in the manifest's own syntax (">=1.18", "==2.31.0", "1.18.*");
// it is empty when the manifest does not constrain the version.
type DependencySpec struct {
	Name       string    `json:"name"`
	Channel    string    `json:"channel,omitempty"`    // conda only: "conda-forge::numpy"
	Constraint string    `json:"constraint,omitempty"` // raw version constraint
	Extras     []string  `json:"extras,omitempty"`     // sorted, deduplicated
	Marker     string    `json:"marker,omitempty"`     // PEP 508 environment marker
	URL        string    `json:"url,omitempty"`        // direct reference (git, path, url)
	Ecosystem  Ecosystem `json:"ecosystem"`
}

// Version returns the constraint with comparison operators and wildcards
// stripped, the form used for substring matching against index versions.
// For multi-clause constraints only the first clause is kept.
func (d DependencySpec) Version() string {
	return StripConstraint(d.Constraint)
}

// StripConstraint removes comparison operators, wildcards and whitespace
// from the first clause of a version constraint: ">=1.18,<2" becomes "1.18".
func StripConstraint(c string) string {
	if i := strings.IndexAny(c, ",|"); i >= 0 {
		c = c[:i]
	}
	return strings.Trim(c, " =<>!~*")
}

// Entry is one resolved dependency: the unit of a BOM.
type Entry struct {
	Package       string    `json:"package"`
	Version       string    `json:"version"`
	License       string    `json:"license"`
	Validated     bool      `json:"validated"`
	Source        string    `json:"source"`                   // where the record came from: "conda-forge/noarch", "pypi", "github"
	LicenseSource string    `json:"license_source,omitempty"` // cascade tier that produced License
	Ecosystem     Ecosystem `json:"ecosystem"`
}

// Unresolved returns the degraded entry for a dependency no source knew
// about. The requested name and constraint stay visible so the dependency
// is never silently dropped.
func Unresolved(spec DependencySpec) Entry {
	version := spec.Version()
	if version == "" {
		version = NotAvailable
	}
	return Entry{
		Package:   spec.Name,
		Version:   version,
		License:   NoLicense,
		Source:    NotAvailable,
		Ecosystem: spec.Ecosystem,
	}
}

// Resolver turns a declared dependency into a BOM entry.
//
// Resolve never fails: lookup misses and transport failures surface as a
// degraded entry (see [Unresolved]) and are logged by the implementation.
type Resolver interface {
	Resolve(ctx context.Context, spec DependencySpec) Entry
}

// Options holds settings shared by the resolvers.
type Options struct {
	Refresh bool        // Bypass cached registry responses
	Logger  *log.Logger // Defaults to log.Default()
}

// WithDefaults returns a copy of Options with zero values replaced by defaults.
func (o Options) WithDefaults() Options {
	opts := o
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return opts
}
