package bom

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/superbom/pkg/deps"
	bomerrors "github.com/matzehuels/superbom/pkg/errors"
	"github.com/matzehuels/superbom/pkg/integrations"
)

// ChannelScoped is implemented by resolvers whose search channels can be
// narrowed to those a manifest declares. *conda.Resolver implements it.
type ChannelScoped interface {
	deps.Resolver
	ForChannels(channels ...string) deps.Resolver
}

// ProgressFunc is called after each dependency of a manifest is resolved.
type ProgressFunc func(m *ManifestReport, done, total int)

// Options configures an [Assembler].
type Options struct {
	Conda    deps.Resolver         // resolves conda dependencies
	Python   deps.Resolver         // resolves pip and Poetry dependencies
	Parsers  []deps.ManifestParser // defaults to DefaultParsers(Logger)
	Logger   *log.Logger           // defaults to log.Default()
	Progress ProgressFunc          // optional
}

// WithDefaults returns a copy of Options with zero values replaced by defaults.
func (o Options) WithDefaults() Options {
	opts := o
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if len(opts.Parsers) == 0 {
		opts.Parsers = DefaultParsers(opts.Logger)
	}
	return opts
}

// Assembler turns manifests into reports. It holds no per-run state and may
// be shared by goroutines as long as its resolvers allow that.
type Assembler struct {
	opts Options
}

// NewAssembler creates an Assembler.
func NewAssembler(opts Options) *Assembler {
	return &Assembler{opts: opts.WithDefaults()}
}

// Parsers returns the manifest parsers in use.
func (a *Assembler) Parsers() []deps.ManifestParser { return a.opts.Parsers }

// Generate builds a report for every manifest at path. A manifest that
// fails to parse is logged and reported with its error; the run continues.
// An error is returned when path holds no manifest or every manifest
// failed.
func (a *Assembler) Generate(ctx context.Context, path string) (*Report, error) {
	start := time.Now()
	manifests, err := Discover(path, a.opts.Parsers...)
	if err != nil {
		return nil, err
	}
	if len(manifests) == 0 {
		return nil, bomerrors.New(bomerrors.ErrCodeInvalidManifest, "no manifests found in %s", path)
	}

	report := &Report{
		ID:          uuid.NewString(),
		Root:        path,
		GeneratedAt: start.UTC(),
	}
	var errs []error
	for _, m := range manifests {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		mr, err := a.generate(ctx, m)
		if err != nil {
			a.opts.Logger.Error("skipping manifest", "path", m.Path, "err", err)
			errs = append(errs, err)
			mr = &ManifestReport{Label: m.Label, Path: m.Path, Type: m.Parser.Type(), Error: err.Error()}
		}
		report.Manifests = append(report.Manifests, *mr)
		report.Stats.merge(mr.Stats)
	}
	report.Stats.Duration = time.Since(start)

	if len(errs) == len(manifests) {
		return nil, errors.Join(errs...)
	}
	a.opts.Logger.Info("generated bom",
		"manifests", len(report.Manifests),
		"entries", report.Stats.Total,
		"validated", report.Stats.Validated,
		"duration", report.Stats.Duration)
	return report, nil
}

// GenerateManifest builds the report for a single manifest file.
func (a *Assembler) GenerateManifest(ctx context.Context, path string) (*ManifestReport, error) {
	parser, err := deps.DetectManifest(path, a.opts.Parsers...)
	if err != nil {
		return nil, bomerrors.Wrap(bomerrors.ErrCodeUnsupported, err, "detect manifest")
	}
	return a.generate(ctx, Manifest{Path: path, Label: Label(path), Parser: parser})
}

func (a *Assembler) generate(ctx context.Context, m Manifest) (*ManifestReport, error) {
	a.opts.Logger.Info("processing manifest", "type", m.Parser.Type(), "path", m.Path)
	res, err := m.Parser.Parse(m.Path)
	if err != nil {
		return nil, err
	}
	return a.Resolve(ctx, res, m.Label), nil
}

// Resolve resolves every dependency of a parsed manifest in order. The
// implicit python dependency of pip and Poetry manifests is skipped.
// Dependencies of an ecosystem without a configured resolver are reported
// unresolved.
func (a *Assembler) Resolve(ctx context.Context, res *deps.ManifestResult, label string) *ManifestReport {
	start := time.Now()
	mr := &ManifestReport{
		Label:    label,
		Path:     res.Path,
		Type:     res.Type,
		Channels: res.Channels,
		Entries:  []deps.Entry{},
	}

	condaResolver := a.opts.Conda
	if cs, ok := condaResolver.(ChannelScoped); ok && len(res.Channels) > 0 {
		condaResolver = cs.ForChannels(res.Channels...)
	}

	specs := make([]deps.DependencySpec, 0, len(res.Dependencies))
	for _, spec := range res.Dependencies {
		if spec.Ecosystem != deps.Conda && integrations.NormalizePkgName(spec.Name) == "python" {
			continue
		}
		specs = append(specs, spec)
	}

	for i, spec := range specs {
		if ctx.Err() != nil {
			break
		}
		var r deps.Resolver
		switch spec.Ecosystem {
		case deps.Conda:
			r = condaResolver
		default:
			r = a.opts.Python
		}

		var e deps.Entry
		if r == nil {
			a.opts.Logger.Warn("no resolver configured", "ecosystem", spec.Ecosystem, "package", spec.Name)
			e = deps.Unresolved(spec)
		} else {
			e = r.Resolve(ctx, spec)
		}
		mr.Entries = append(mr.Entries, e)
		mr.Stats.add(e)
		if a.opts.Progress != nil {
			a.opts.Progress(mr, i+1, len(specs))
		}
	}
	mr.Stats.Duration = time.Since(start)
	return mr
}
