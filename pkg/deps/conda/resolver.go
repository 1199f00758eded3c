package conda

import (
	"context"
	"time"

	"github.com/matzehuels/superbom/pkg/deps"
	"github.com/matzehuels/superbom/pkg/index"
	"github.com/matzehuels/superbom/pkg/license"
	"github.com/matzehuels/superbom/pkg/observability"
)

// SnapshotSource returns the index snapshot for a channel and platform. A
// nil snapshot means no data. [*index.Cache] implements it.
type SnapshotSource interface {
	Get(ctx context.Context, channel, platform string) (*index.Snapshot, error)
}

// Match is the record selected for a dependency and where it was found.
type Match struct {
	Record   index.PackageRecord
	Channel  string
	Platform string
	Found    bool
}

// Source returns "channel/platform", or "" when nothing was found.
func (m Match) Source() string {
	if !m.Found {
		return ""
	}
	return m.Channel + "/" + m.Platform
}

// Resolver looks conda dependencies up in channel index snapshots.
type Resolver struct {
	src      SnapshotSource
	cfg      index.Config
	licenses *license.Resolver
	opts     deps.Options
}

// NewResolver creates a Resolver searching the channels and platforms of
// cfg. The Resolver keeps its own copy of cfg.
func NewResolver(src SnapshotSource, cfg index.Config, lic *license.Resolver, opts deps.Options) *Resolver {
	opts = opts.WithDefaults()
	return &Resolver{
		src:      src,
		cfg:      cfg.WithLogger(opts.Logger),
		licenses: lic,
		opts:     opts,
	}
}

// Config returns the configuration the Resolver searches.
func (r *Resolver) Config() index.Config { return r.cfg }

// WithConfig returns a Resolver sharing r's snapshot source and license
// resolver but searching cfg.
func (r *Resolver) WithConfig(cfg index.Config) *Resolver {
	out := *r
	out.cfg = cfg.WithLogger(r.opts.Logger)
	return &out
}

// ForChannels returns a resolver searching channels instead of the
// configured ones. Deny-listed and invalid channels are dropped; when none
// remain the configured channels are kept.
func (r *Resolver) ForChannels(channels ...string) deps.Resolver {
	return r.WithConfig(r.cfg.WithChannels(channels...))
}

// Find selects the record for spec.
//
// A channel named in the match spec replaces the configured channels unless it is
// deny-listed. Channels are tried in order and, within a channel, platforms
// in order. Per snapshot the candidates are: records matching name and
// version, then records matching the name, then the platform-qualified
// name "<name>_<platform>". A platform yielding a record with license
// information ends the search in that channel; a record without one is kept
// while later platforms are tried. The first channel yielding any record
// wins.
func (r *Resolver) Find(ctx context.Context, spec deps.DependencySpec) Match {
	channels := r.cfg.Channels()
	if spec.Channel != "" {
		if index.IsDenied(spec.Channel) {
			r.opts.Logger.Warn("channel is deny-listed, using configured channels",
				"channel", spec.Channel, "package", spec.Name)
		} else {
			channels = []string{spec.Channel}
		}
	}
	version := spec.Version()

	for _, ch := range channels {
		var found Match
		for _, pl := range r.cfg.Platforms() {
			if ctx.Err() != nil {
				return found
			}
			snap, err := r.src.Get(ctx, ch, pl)
			if err != nil {
				r.opts.Logger.Debug("no index data", "channel", ch, "platform", pl, "err", err)
				continue
			}
			rec, ok := lookup(snap, spec.Name, version, pl)
			if !ok {
				continue
			}
			if !found.Found || rec.HasLicense() {
				found = Match{Record: rec, Channel: ch, Platform: pl, Found: true}
			}
			if rec.HasLicense() {
				break
			}
		}
		if found.Found {
			return found
		}
	}
	return Match{}
}

func lookup(snap *index.Snapshot, name, version, platform string) (index.PackageRecord, bool) {
	if rec, ok := snap.Lookup(name, version); ok {
		return rec, true
	}
	return snap.Lookup(name+"_"+platform, "")
}

// Resolve implements [deps.Resolver]. The entry source is
// "channel/platform"; a dependency found nowhere is [deps.Unresolved].
func (r *Resolver) Resolve(ctx context.Context, spec deps.DependencySpec) deps.Entry {
	hooks := observability.Resolve()
	hooks.OnResolveStart(ctx, string(deps.Conda), spec.Name)
	start := time.Now()

	entry := r.resolve(ctx, spec)

	hooks.OnResolveComplete(ctx, string(deps.Conda), spec.Name, entry.Validated, time.Since(start))
	r.opts.Logger.Debug("resolved", "package", entry.Package, "version", entry.Version,
		"license", entry.License, "validated", entry.Validated, "source", entry.Source)
	return entry
}

func (r *Resolver) resolve(ctx context.Context, spec deps.DependencySpec) deps.Entry {
	m := r.Find(ctx, spec)
	if !m.Found {
		r.opts.Logger.Debug("package not found in any channel", "package", spec.Name, "channels", r.cfg.Channels())
		return deps.Unresolved(spec)
	}

	res := r.licenses.Resolve(ctx, license.CondaMetadata(m.Record))
	entry := deps.Entry{
		Package:       m.Record.Name,
		Version:       m.Record.Version,
		License:       res.Normalized,
		Validated:     res.Validated,
		Source:        m.Source(),
		LicenseSource: string(res.Source),
		Ecosystem:     deps.Conda,
	}
	if entry.Version == "" {
		entry.Version = deps.NotAvailable
	}
	return entry
}
