package conda

import (
	"regexp"
	"strings"

	"github.com/matzehuels/superbom/pkg/deps"
)

// MatchSpec is a parsed conda dependency string such as
// "conda-forge::numpy>=1.18.0" or "numpy=1.18.0=py38_0".
type MatchSpec struct {
	Channel    string // "" unless the match spec is channel-qualified
	Package    string
	Version    string // constraint with operators stripped
	Constraint string // raw constraint, e.g. ">=1.18.0"
	Build      string // build string without the leading "="
}

var (
	matchSpecPattern = regexp.MustCompile(
		`^(?:([^:]+)::)?` + // channel
			`([^=<>!~]+)` + // package
			`([=<>!~*]+[^=<>!]+(?:[<>!]=?[^=<>!]+)*)?` + // version constraint
			`(=\w+)?`) // build
	packagePattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9._+-]*$`)
)

// ParseMatchSpec parses a conda match spec. The space-separated form
// "name version build" is accepted too. It reports false when no valid
// package name can be extracted.
func ParseMatchSpec(s string) (MatchSpec, bool) {
	s = strings.TrimSpace(s)
	m := matchSpecPattern.FindStringSubmatch(s)
	if m == nil {
		return MatchSpec{}, false
	}
	spec := MatchSpec{
		Channel:    strings.TrimSpace(m[1]),
		Package:    strings.TrimSpace(m[2]),
		Constraint: strings.TrimSpace(m[3]),
		Build:      strings.TrimPrefix(m[4], "="),
	}
	if m[1] != "" && spec.Channel == "" {
		return MatchSpec{}, false
	}

	if fields := strings.Fields(spec.Package); len(fields) > 1 {
		if spec.Constraint != "" || len(fields) > 3 {
			return MatchSpec{}, false
		}
		spec.Package, spec.Constraint = fields[0], fields[1]
		if len(fields) == 3 {
			spec.Build = fields[2]
		}
	}
	if !packagePattern.MatchString(spec.Package) {
		return MatchSpec{}, false
	}
	spec.Version = deps.StripConstraint(spec.Constraint)
	return spec, true
}

// Spec converts m to a conda dependency.
func (m MatchSpec) Spec() deps.DependencySpec {
	return deps.DependencySpec{
		Name:       m.Package,
		Channel:    m.Channel,
		Constraint: m.Constraint,
		Ecosystem:  deps.Conda,
	}
}
