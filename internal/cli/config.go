package cli

import (
	"errors"
	"io/fs"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/matzehuels/superbom/pkg/cache"
	bomerrors "github.com/matzehuels/superbom/pkg/errors"
	"github.com/matzehuels/superbom/pkg/index"
	condarepo "github.com/matzehuels/superbom/pkg/integrations/conda"
)

const (
	defaultConfigFile = "superbom.yaml"
	defaultEnvFile    = ".env"
	defaultCacheTTL   = 24 * time.Hour
)

// Environment variables that override the config file.
const (
	envGitHubToken  = "GITHUB_TOKEN"
	envCacheBackend = "SUPERBOM_CACHE_BACKEND"
	envCacheURL     = "SUPERBOM_CACHE_URL"
	envCacheDir     = "SUPERBOM_CACHE_DIR"
)

// FileConfig is the optional superbom.yaml.
//
//	channels: [conda-forge, bioconda]
//	platforms: [noarch, linux-64]
//	allowed_licenses: [MIT, Apache-2.0, BSD-3-Clause]
//	cache:
//	  backend: redis
//	  url: redis://localhost:6379/0
//	  ttl: 12h
//	index:
//	  url: https://conda.anaconda.org
//	  file: repodata.json.zst
//	github_token: ghp_...
//
// Channels and platforms are kept untyped so a non-string entry is reported
// as a configuration error instead of being coerced.
type FileConfig struct {
	Channels        []any       `yaml:"channels"`
	Platforms       []any       `yaml:"platforms"`
	AllowedLicenses []string    `yaml:"allowed_licenses"`
	Cache           CacheConfig `yaml:"cache"`
	Index           IndexSource `yaml:"index"`
	GitHubToken     string      `yaml:"github_token"`
}

// IndexSource selects where snapshots are downloaded from. Empty fields use
// the anaconda.org host and repodata.json.bz2.
type IndexSource struct {
	URL  string `yaml:"url"`
	File string `yaml:"file"` // repodata.json, repodata.json.bz2 or repodata.json.zst
}

func (s IndexSource) options() []condarepo.Option {
	var opts []condarepo.Option
	if s.URL != "" {
		opts = append(opts, condarepo.WithBaseURL(s.URL))
	}
	if s.File != "" {
		opts = append(opts, condarepo.WithFile(s.File))
	}
	return opts
}

// CacheConfig selects the HTTP response cache backend.
type CacheConfig struct {
	Backend string        `yaml:"backend"` // file (default), redis, mongo, none
	URL     string        `yaml:"url"`
	TTL     time.Duration `yaml:"ttl"`
}

func (c CacheConfig) ttl() time.Duration {
	if c.TTL <= 0 {
		return defaultCacheTTL
	}
	return c.TTL
}

// loadConfig reads envFile into the process environment, decodes the YAML
// config at path and applies environment overrides. An empty path reads
// ./superbom.yaml when it exists; an explicit path must exist.
func loadConfig(path, envFile string) (*FileConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, bomerrors.Wrap(bomerrors.ErrCodeInvalidConfig, err, "load %s", envFile)
		}
	}

	fc := &FileConfig{}
	explicit := path != ""
	if !explicit {
		path = defaultConfigFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, fc); err != nil {
			return nil, bomerrors.Wrap(bomerrors.ErrCodeInvalidConfig, err, "parse %s", path)
		}
	case explicit || !errors.Is(err, fs.ErrNotExist):
		return nil, bomerrors.Wrap(bomerrors.ErrCodeFileNotFound, err, "read config %s", path)
	}

	fc.applyEnv()
	if err := fc.validate(); err != nil {
		return nil, err
	}
	return fc, nil
}

func (fc *FileConfig) applyEnv() {
	if v := os.Getenv(envGitHubToken); v != "" {
		fc.GitHubToken = v
	}
	if v := os.Getenv(envCacheBackend); v != "" {
		fc.Cache.Backend = v
	}
	if v := os.Getenv(envCacheURL); v != "" {
		fc.Cache.URL = v
	}
}

func (fc *FileConfig) validate() error {
	fc.Cache.Backend = strings.ToLower(strings.TrimSpace(fc.Cache.Backend))
	switch fc.Cache.Backend {
	case "", cache.BackendFile, cache.BackendNone:
	case cache.BackendRedis, cache.BackendMongo:
		if fc.Cache.URL == "" {
			return bomerrors.New(bomerrors.ErrCodeInvalidConfig, "cache backend %s requires a url", fc.Cache.Backend)
		}
	default:
		return bomerrors.New(bomerrors.ErrCodeInvalidConfig, "unknown cache backend %q", fc.Cache.Backend)
	}
	if f := fc.Index.File; f != "" && !slices.Contains(condarepo.Files, f) {
		return bomerrors.New(bomerrors.ErrCodeInvalidConfig,
			"unknown index file %q (available: %s)", f, strings.Join(condarepo.Files, ", "))
	}
	if u := fc.Index.URL; u != "" {
		if err := bomerrors.ValidateURL(u); err != nil {
			return bomerrors.Wrap(bomerrors.ErrCodeInvalidConfig, err, "index url %q", u)
		}
	}
	return nil
}

// indexConfig builds the channel/platform search order. The defaults come
// first; configured values are appended behind them.
func (fc *FileConfig) indexConfig(logger *log.Logger) (index.Config, error) {
	cfg := index.DefaultConfig().WithLogger(logger)
	for _, v := range fc.Channels {
		if err := cfg.AddChannelValue(v); err != nil {
			return cfg, err
		}
	}
	for _, v := range fc.Platforms {
		if err := cfg.AddPlatformValue(v); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}
