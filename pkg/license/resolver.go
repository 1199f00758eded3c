package license

import (
	"context"
	"regexp"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/superbom/pkg/deps"
)

// Source names the cascade tier a [Resolution] came from.
type Source string

const (
	SourceDeclared   Source = "declared"
	SourceClassifier Source = "classifier"
	SourceRemote     Source = "remote-source"
	SourceNone       Source = "none"
)

// Resolution is the outcome of the license cascade for one package.
type Resolution struct {
	Declared   string `json:"declared,omitempty"` // raw candidate of the deciding tier
	Normalized string `json:"normalized"`         // oracle's canonical text, or deps.NoLicense
	Validated  bool   `json:"validated"`
	Source     Source `json:"source"`
}

// RepoHost looks up licenses on a source-code hosting service. Both methods
// return "" with a nil error when the host knows nothing; errors are
// transport failures and are treated the same way after logging.
type RepoHost interface {
	// LicenseForURL returns the license of the repository at rawURL. URLs
	// that do not point at the host are resolved by searching for their
	// last path segment.
	LicenseForURL(ctx context.Context, rawURL string) (string, error)
	// LicenseForName searches for a repository named name.
	LicenseForName(ctx context.Context, name string) (string, error)
}

// sourceLabels are the normalized project URL labels that point at source code.
var sourceLabels = []string{"repository", "sourcecode", "github", "source"}

var labelNoise = regexp.MustCompile(`[\p{P}\p{S}\s]+`)

// Option configures a [Resolver].
type Option func(*Resolver)

// WithLogger sets the logger for remote lookup failures.
func WithLogger(l *log.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// Resolver runs the license cascade:
//
//  1. the declared license field
//  2. the first trove classifier mentioning "License" (PyPI only)
//  3. the repository linked from the project URLs (PyPI only)
//  4. for conda records whose declared license did not validate, a
//     repository search by package name
//
// Every candidate goes through the [Oracle]; the first supported one wins.
// When none is supported the canonical text of the last candidate tried is
// reported, unvalidated. With no candidate at all the result is
// [deps.NoLicense].
type Resolver struct {
	oracle Oracle
	host   RepoHost
	logger *log.Logger
}

// NewResolver creates a Resolver. host may be nil, which disables tiers 3
// and 4.
func NewResolver(oracle Oracle, host RepoHost, opts ...Option) *Resolver {
	r := &Resolver{oracle: oracle, host: host, logger: log.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Oracle returns the oracle candidates are checked against.
func (r *Resolver) Oracle() Oracle { return r.oracle }

// Resolve runs the cascade for md.
func (r *Resolver) Resolve(ctx context.Context, md Metadata) Resolution {
	c := cascade{oracle: r.oracle}

	if c.try(SourceDeclared, md.Declared) {
		return c.result()
	}

	if md.Origin == OriginPyPI {
		if c.try(SourceClassifier, classifierLicense(md.Classifiers)) {
			return c.result()
		}
		if r.host != nil {
			for _, u := range sourceURLs(md.ProjectURLs) {
				lic, err := r.host.LicenseForURL(ctx, u)
				if err != nil {
					r.logger.Warn("repository license lookup failed", "package", md.Name, "url", u, "err", err)
					continue
				}
				if lic == "" {
					continue
				}
				if c.try(SourceRemote, lic) {
					return c.result()
				}
				break
			}
		}
	}

	if md.Origin == OriginConda && md.Declared != "" && r.host != nil && md.Name != "" {
		lic, err := r.host.LicenseForName(ctx, md.Name)
		if err != nil {
			r.logger.Warn("repository search failed", "package", md.Name, "err", err)
		} else if c.try(SourceRemote, lic) {
			return c.result()
		}
	}

	return c.result()
}

// ResolveByName asks the repository host for a repository named name. It is
// the fallback for packages no registry knows; without a host, or when the
// host finds nothing, the result is [deps.NoLicense].
func (r *Resolver) ResolveByName(ctx context.Context, name string) Resolution {
	c := cascade{oracle: r.oracle}
	if r.host == nil || name == "" {
		return c.result()
	}
	lic, err := r.host.LicenseForName(ctx, name)
	if err != nil {
		r.logger.Warn("repository search failed", "package", name, "err", err)
		return c.result()
	}
	c.try(SourceRemote, lic)
	return c.result()
}

// cascade tracks the last candidate tried.
type cascade struct {
	oracle Oracle
	last   *Resolution
}

// try checks candidate and records it. It reports whether the candidate
// was supported; an empty candidate is not a try.
func (c *cascade) try(source Source, candidate string) bool {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return false
	}
	v := c.oracle.Check(candidate)
	res := Resolution{
		Declared:   candidate,
		Normalized: v.Canonical,
		Validated:  v.Supported,
		Source:     source,
	}
	if res.Normalized == "" {
		res.Normalized = candidate
	}
	c.last = &res
	return v.Supported
}

func (c *cascade) result() Resolution {
	if c.last == nil {
		return Resolution{Normalized: deps.NoLicense, Source: SourceNone}
	}
	return *c.last
}

// classifierLicense returns the text after the last "::" of the first
// classifier mentioning "License".
func classifierLicense(classifiers []string) string {
	for _, c := range classifiers {
		if !strings.Contains(c, "License") {
			continue
		}
		if i := strings.LastIndex(c, "::"); i >= 0 {
			c = c[i+2:]
		}
		return strings.TrimSpace(c)
	}
	return ""
}

// sourceURLs returns the URLs whose label names source code, ordered by
// label.
func sourceURLs(urls map[string]string) []string {
	labels := make([]string, 0, len(urls))
	for k := range urls {
		labels = append(labels, k)
	}
	slices.Sort(labels)

	var out []string
	for _, k := range labels {
		if !slices.Contains(sourceLabels, normalizeLabel(k)) {
			continue
		}
		if u := strings.TrimRight(strings.TrimSpace(urls[k]), "/"); u != "" {
			out = append(out, u)
		}
	}
	return out
}

// normalizeLabel strips punctuation, symbols and whitespace and lowercases
// the rest: "Source Code" and "source-code" both become "sourcecode".
func normalizeLabel(label string) string {
	return strings.ToLower(labelNoise.ReplaceAllString(label, ""))
}
