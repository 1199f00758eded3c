package index

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	bomerrors "github.com/matzehuels/superbom/pkg/errors"
	"github.com/matzehuels/superbom/pkg/integrations"
	"github.com/matzehuels/superbom/pkg/integrations/conda"
	"github.com/matzehuels/superbom/pkg/observability"
)

// Fetcher downloads and decompresses the repodata document for a
// (channel, platform) pair, writing the JSON to w.
// [*conda.Client] is the production implementation.
type Fetcher interface {
	Fetch(ctx context.Context, channel, platform string, w io.Writer) (conda.Stats, error)
}

// Options configures a [Cache].
type Options struct {
	Dir     string      // Snapshot directory (required)
	Fetcher Fetcher     // Defaults to conda.NewClient()
	Logger  *log.Logger // Defaults to log.Default()
}

// entry is the outcome of loading one key. A nil snap with a nil err is a
// miss. Only snapshots and misses are kept in memory.
type entry struct {
	snap *Snapshot
	err  error
}

// Cache holds repodata snapshots in memory and on disk.
//
// Get looks in memory, then on disk, then downloads. Files on disk are
// trusted forever; use [Cache.Clear] or delete the file to refresh. Each key
// is populated at most once per process even under concurrent callers;
// failed downloads are retried by the next Get.
//
// All methods are safe for concurrent use.
type Cache struct {
	dir     string
	fetcher Fetcher
	logger  *log.Logger

	mu    sync.RWMutex
	mem   map[string]entry
	group singleflight.Group
}

// New creates a Cache rooted at opts.Dir, creating the directory if needed.
func New(opts Options) (*Cache, error) {
	if opts.Dir == "" {
		return nil, bomerrors.New(bomerrors.ErrCodeInvalidConfig, "index directory is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, bomerrors.Wrap(bomerrors.ErrCodeInternal, err, "create index directory %s", opts.Dir)
	}
	if opts.Fetcher == nil {
		opts.Fetcher = conda.NewClient()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Cache{
		dir:     opts.Dir,
		fetcher: opts.Fetcher,
		logger:  opts.Logger,
		mem:     make(map[string]entry),
	}, nil
}

// Dir returns the snapshot directory.
func (c *Cache) Dir() string { return c.dir }

// Path returns the on-disk location of the channel/platform snapshot.
// Slashes in namespaced channels ("pytorch/label/nightly") become
// underscores so every snapshot lives directly in [Cache.Dir].
func (c *Cache) Path(channel, platform string) string {
	return filepath.Join(c.dir, fileName(channel, platform))
}

func fileName(channel, platform string) string {
	return strings.ReplaceAll(channel, "/", "_") + "_" + platform + ".json"
}

// Get returns the snapshot for channel/platform.
//
// A (nil, nil) result means the index has no data for the key (the remote
// answered 404); callers treat it as "no data". Transport and decoding
// failures return (nil, err), where errors.Is(err, integrations.ErrNetwork)
// distinguishes network trouble. Snapshots and 404 misses are remembered for
// the lifetime of the Cache; failures are not, so a later Get retries.
//
// Concurrent callers share one download. The download is not tied to any
// single caller: a caller whose ctx ends stops waiting and gets ctx.Err(),
// while the others still receive the result.
func (c *Cache) Get(ctx context.Context, channel, platform string) (*Snapshot, error) {
	key := fileName(channel, platform)

	if e, ok := c.lookup(key); ok {
		observability.Cache().OnCacheHit(ctx, "index")
		return e.snap, e.err
	}

	ch := c.group.DoChan(key, func() (any, error) {
		if e, ok := c.lookup(key); ok {
			return e, nil
		}
		e, remember := c.load(context.WithoutCancel(ctx), channel, platform)
		if remember {
			c.store(key, e)
		}
		return e, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		e := r.Val.(entry)
		return e.snap, e.err
	}
}

func (c *Cache) lookup(key string) (entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.mem[key]
	return e, ok
}

func (c *Cache) store(key string, e entry) {
	c.mu.Lock()
	c.mem[key] = e
	c.mu.Unlock()
}

// load reads or downloads one snapshot. remember reports whether the outcome
// is final for this process: a snapshot or a 404 miss.
func (c *Cache) load(ctx context.Context, channel, platform string) (e entry, remember bool) {
	path := c.Path(channel, platform)

	if snap, err := c.readDisk(channel, platform, path); err == nil {
		observability.Cache().OnCacheHit(ctx, "index")
		return entry{snap: snap}, true
	} else if !errors.Is(err, os.ErrNotExist) {
		c.logger.Warn("discarding unreadable snapshot", "path", path, "err", err)
		_ = os.Remove(path)
	}
	observability.Cache().OnCacheMiss(ctx, "index")

	snap, err := c.download(ctx, channel, platform, path)
	switch {
	case err == nil:
		return entry{snap: snap}, true
	case errors.Is(err, integrations.ErrNotFound):
		c.logger.Debug("no index for channel/platform", "channel", channel, "platform", platform)
		return entry{}, true
	default:
		c.logger.Warn("index unavailable", "channel", channel, "platform", platform, "err", err)
		return entry{err: err}, false
	}
}

func (c *Cache) readDisk(channel, platform, path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSnapshot(channel, platform, data)
}

// download fetches into a temporary file in the cache directory, validates
// it, and renames it into place so readers never see a partial snapshot.
func (c *Cache) download(ctx context.Context, channel, platform, path string) (*Snapshot, error) {
	tmp, err := os.CreateTemp(c.dir, ".download-*")
	if err != nil {
		return nil, bomerrors.Wrap(bomerrors.ErrCodeInternal, err, "create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	c.logger.Info("downloading index", "channel", channel, "platform", platform)
	stats, err := c.fetcher.Fetch(ctx, channel, platform, tmp)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = bomerrors.Wrap(bomerrors.ErrCodeInternal, cerr, "write %s", tmpName)
	}
	if err != nil {
		return nil, err
	}
	if stats.LengthMismatch() {
		c.logger.Error("content length mismatch",
			"url", stats.URL, "expected", stats.ContentLength, "received", stats.Received)
	}

	data, err := os.ReadFile(tmpName)
	if err != nil {
		return nil, bomerrors.Wrap(bomerrors.ErrCodeInternal, err, "read %s", tmpName)
	}
	snap, err := ParseSnapshot(channel, platform, data)
	if err != nil {
		return nil, err
	}
	if err := os.Rename(tmpName, path); err != nil {
		c.logger.Warn("could not persist snapshot", "path", path, "err", err)
	}
	observability.Cache().OnCacheSet(ctx, "index", len(data))
	c.logger.Debug("index ready", "channel", channel, "platform", platform,
		"packages", snap.Len(), "bytes", stats.Received, "took", stats.Duration.Round(time.Millisecond))
	return snap, nil
}

// Warm populates every channel × platform key of cfg, downloading what is
// not on disk yet. Keys the index does not have are skipped; other
// failures are joined into the returned error.
func (c *Cache) Warm(ctx context.Context, cfg Config) error {
	var errs []error
	for _, ch := range cfg.Channels() {
		for _, pl := range cfg.Platforms() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := c.Get(ctx, ch, pl); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Clear removes every snapshot from disk and forgets everything held in
// memory.
func (c *Cache) Clear() error {
	c.mu.Lock()
	c.mem = make(map[string]entry)
	c.mu.Unlock()

	matches, err := filepath.Glob(filepath.Join(c.dir, "*.json"))
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}
