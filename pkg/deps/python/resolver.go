package python

import (
	"context"
	"errors"
	"time"

	"github.com/matzehuels/superbom/pkg/deps"
	bomerrors "github.com/matzehuels/superbom/pkg/errors"
	"github.com/matzehuels/superbom/pkg/httputil"
	"github.com/matzehuels/superbom/pkg/integrations"
	"github.com/matzehuels/superbom/pkg/integrations/pypi"
	"github.com/matzehuels/superbom/pkg/license"
	"github.com/matzehuels/superbom/pkg/observability"
)

// Entry sources reported by [Resolver].
const (
	SourcePyPI   = "pypi"
	SourceGitHub = "github"
)

// Registry fetches project metadata. [*pypi.Client] implements it.
type Registry interface {
	FetchPackage(ctx context.Context, name, version string, refresh bool) (*pypi.PackageInfo, error)
}

// Resolver resolves pip and Poetry dependencies against PyPI.
type Resolver struct {
	registry Registry
	licenses *license.Resolver
	opts     deps.Options
}

// NewResolver creates a Resolver.
func NewResolver(reg Registry, lic *license.Resolver, opts deps.Options) *Resolver {
	return &Resolver{registry: reg, licenses: lic, opts: opts.WithDefaults()}
}

// Resolve implements [deps.Resolver].
//
// An exact "==" pin selects that release's metadata; otherwise the latest
// release is used. A project PyPI does not know is looked up on the
// repository host by name and reported with version N/A and source
// "github"; when that finds nothing either the entry is [deps.Unresolved].
func (r *Resolver) Resolve(ctx context.Context, spec deps.DependencySpec) deps.Entry {
	hooks := observability.Resolve()
	hooks.OnResolveStart(ctx, string(spec.Ecosystem), spec.Name)
	start := time.Now()

	entry := r.resolve(ctx, spec)

	hooks.OnResolveComplete(ctx, string(spec.Ecosystem), spec.Name, entry.Validated, time.Since(start))
	r.opts.Logger.Debug("resolved", "package", entry.Package, "version", entry.Version,
		"license", entry.License, "validated", entry.Validated, "source", entry.Source)
	return entry
}

func (r *Resolver) resolve(ctx context.Context, spec deps.DependencySpec) deps.Entry {
	info, err := r.registry.FetchPackage(ctx, spec.Name, exactPin(spec.Constraint), r.opts.Refresh)
	switch {
	case err == nil:
		res := r.licenses.Resolve(ctx, license.PyPIMetadata(info))
		name := info.Name
		if name == "" {
			name = spec.Name
		}
		return deps.Entry{
			Package:       name,
			Version:       info.Version,
			License:       res.Normalized,
			Validated:     res.Validated,
			Source:        SourcePyPI,
			LicenseSource: string(res.Source),
			Ecosystem:     spec.Ecosystem,
		}
	case errors.Is(err, integrations.ErrNotFound):
		r.opts.Logger.Debug("not on PyPI, searching repositories", "package", spec.Name)
		res := r.licenses.ResolveByName(ctx, spec.Name)
		if res.Source == license.SourceNone {
			return deps.Unresolved(spec)
		}
		return deps.Entry{
			Package:       spec.Name,
			Version:       deps.NotAvailable,
			License:       res.Normalized,
			Validated:     res.Validated,
			Source:        SourceGitHub,
			LicenseSource: string(res.Source),
			Ecosystem:     spec.Ecosystem,
		}
	case bomerrors.Is(err, bomerrors.ErrCodeInvalidPackage):
		r.opts.Logger.Debug("invalid package name", "package", spec.Name, "err", err)
	default:
		r.opts.Logger.Warn("PyPI lookup failed", "package", spec.Name, "transient", httputil.IsRetryable(err), "err", err)
	}
	return deps.Unresolved(spec)
}
