package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/superbom/pkg/bom"
	"github.com/matzehuels/superbom/pkg/buildinfo"
	"github.com/matzehuels/superbom/pkg/cache"
	"github.com/matzehuels/superbom/pkg/deps"
	"github.com/matzehuels/superbom/pkg/deps/conda"
	"github.com/matzehuels/superbom/pkg/deps/python"
	"github.com/matzehuels/superbom/pkg/index"
	condarepo "github.com/matzehuels/superbom/pkg/integrations/conda"
	"github.com/matzehuels/superbom/pkg/integrations/github"
	"github.com/matzehuels/superbom/pkg/integrations/pypi"
	"github.com/matzehuels/superbom/pkg/license"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "superbom"

	// indexSubdir and httpSubdir live under the cache directory.
	indexSubdir = "index"
	httpSubdir  = "http"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
	verbose    bool
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level. At debug level the resolve, cache
// and HTTP hooks are routed to the logger as well.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
	c.verbose = level <= log.DebugLevel
	if c.verbose {
		registerDebugHooks(c.Logger)
	}
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	versionTemplate := buildinfo.Template()
	root := &cobra.Command{
		Use:          appName,
		Short:        "Superbom generates license bills of materials for Python projects",
		Long:         `Superbom reads conda environment files, pip requirements and pyproject.toml manifests and reports the version and license of every declared dependency.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
	}

	root.SetVersionTemplate(versionTemplate)
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default ./"+defaultConfigFile+")")

	root.AddCommand(c.generateCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.licenseCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Pipeline Factory
// =============================================================================

// pipelineOpts are the per-run switches shared by generate and serve.
type pipelineOpts struct {
	noCache   bool
	refresh   bool
	channels  []string
	platforms []string
	onFetch   func(url string, received int64)
	progress  bom.ProgressFunc
}

// pipeline is everything one command run resolves dependencies with.
type pipeline struct {
	assembler *bom.Assembler
	index     *index.Cache
	config    index.Config
	oracle    license.Oracle
	responses cache.Cache
}

// Close releases the response cache.
func (p *pipeline) Close() error { return p.responses.Close() }

// newPipeline wires the index cache, registry clients, license cascade and
// resolvers into an assembler.
func (c *CLI) newPipeline(ctx context.Context, fc *FileConfig, opts pipelineOpts) (*pipeline, error) {
	dir, err := cacheDir()
	if err != nil {
		return nil, err
	}

	cfg, err := fc.indexConfig(c.Logger)
	if err != nil {
		return nil, err
	}
	for _, ch := range opts.channels {
		cfg.AddChannel(ch)
	}
	for _, pl := range opts.platforms {
		cfg.AddPlatform(pl)
	}

	oracle, err := license.NewSPDXOracle(fc.AllowedLicenses)
	if err != nil {
		return nil, err
	}

	responses, err := newCache(ctx, fc, dir, opts.noCache)
	if err != nil {
		return nil, err
	}

	idx, err := newIndex(dir, c.Logger, fc.Index, opts.onFetch)
	if err != nil {
		responses.Close()
		return nil, err
	}

	ttl := fc.Cache.ttl()
	gh := github.NewClient(responses, fc.GitHubToken, ttl)
	licenses := license.NewResolver(oracle, license.NewGitHubHost(gh, opts.refresh), license.WithLogger(c.Logger))
	resolverOpts := deps.Options{Refresh: opts.refresh, Logger: c.Logger}

	asm := bom.NewAssembler(bom.Options{
		Conda:    conda.NewResolver(idx, cfg, licenses, resolverOpts),
		Python:   python.NewResolver(pypi.NewClient(responses, ttl), licenses, resolverOpts),
		Logger:   c.Logger,
		Progress: opts.progress,
	})

	return &pipeline{
		assembler: asm,
		index:     idx,
		config:    cfg,
		oracle:    oracle,
		responses: responses,
	}, nil
}

func newIndex(dir string, logger *log.Logger, src IndexSource, onFetch func(string, int64)) (*index.Cache, error) {
	copts := src.options()
	if onFetch != nil {
		copts = append(copts, condarepo.WithProgress(onFetch))
	}
	return index.New(index.Options{
		Dir:     filepath.Join(dir, indexSubdir),
		Fetcher: condarepo.NewClient(copts...),
		Logger:  logger,
	})
}

func newCache(ctx context.Context, fc *FileConfig, dir string, noCache bool) (cache.Cache, error) {
	if noCache {
		return cache.NewNullCache(), nil
	}
	return cache.Open(ctx, cache.Config{
		Backend: fc.Cache.Backend,
		Dir:     filepath.Join(dir, httpSubdir),
		URL:     fc.Cache.URL,
	})
}

// =============================================================================
// Paths
// =============================================================================

// cacheDir returns SUPERBOM_CACHE_DIR if set, otherwise the XDG cache
// location ($XDG_CACHE_HOME/superbom or ~/.cache/superbom).
func cacheDir() (string, error) {
	if dir := os.Getenv(envCacheDir); dir != "" {
		return dir, nil
	}
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}
