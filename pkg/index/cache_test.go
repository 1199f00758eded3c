package index

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/superbom/pkg/integrations"
	"github.com/matzehuels/superbom/pkg/integrations/conda"
)

// fakeFetcher serves fixture bodies keyed by "channel/platform".
type fakeFetcher struct {
	bodies map[string][]byte
	errs   map[string]error
	calls  atomic.Int32
	failN  atomic.Int32  // remaining calls that fail with a reset
	gate   chan struct{} // when set, Fetch blocks until it is closed
	start  chan struct{} // when set, closed by the first Fetch
	once   sync.Once
}

func (f *fakeFetcher) Fetch(ctx context.Context, channel, platform string, w io.Writer) (conda.Stats, error) {
	f.calls.Add(1)
	if f.start != nil {
		f.once.Do(func() { close(f.start) })
	}
	if f.gate != nil {
		<-f.gate
	}
	if err := ctx.Err(); err != nil {
		return conda.Stats{}, fmt.Errorf("%w: %v", integrations.ErrNetwork, err)
	}
	if f.failN.Add(-1) >= 0 {
		return conda.Stats{}, fmt.Errorf("%w: connection reset", integrations.ErrNetwork)
	}
	key := channel + "/" + platform
	if err := f.errs[key]; err != nil {
		return conda.Stats{}, err
	}
	body, ok := f.bodies[key]
	if !ok {
		return conda.Stats{}, fmt.Errorf("%w: %s", integrations.ErrNotFound, key)
	}
	n, err := w.Write(body)
	return conda.Stats{ContentLength: int64(n), Received: int64(n), Decoded: int64(n)}, err
}

func fixture(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/repodata.json")
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func newTestCache(t *testing.T, f Fetcher) (*Cache, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	c, err := New(Options{Dir: t.TempDir(), Fetcher: f, Logger: log.New(&buf)})
	if err != nil {
		t.Fatal(err)
	}
	return c, &buf
}

func TestNew_RequiresDir(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("expected error for empty Dir")
	}
}

func TestCache_Path(t *testing.T) {
	c, _ := newTestCache(t, &fakeFetcher{})
	tests := []struct {
		channel, platform, want string
	}{
		{"conda-forge", "noarch", "conda-forge_noarch.json"},
		{"pytorch/label/nightly", "linux-64", "pytorch_label_nightly_linux-64.json"},
	}
	for _, tt := range tests {
		if got := c.Path(tt.channel, tt.platform); got != filepath.Join(c.Dir(), tt.want) {
			t.Errorf("Path(%q, %q) = %q", tt.channel, tt.platform, got)
		}
	}
}

func TestCache_Get_DownloadsOnceAndPersists(t *testing.T) {
	f := &fakeFetcher{bodies: map[string][]byte{"conda-forge/noarch": fixture(t)}}
	c, _ := newTestCache(t, f)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		snap, err := c.Get(ctx, "conda-forge", "noarch")
		if err != nil {
			t.Fatal(err)
		}
		if snap == nil || snap.Len() != 4 {
			t.Fatalf("snapshot = %v", snap)
		}
	}
	if got := f.calls.Load(); got != 1 {
		t.Errorf("fetch calls = %d, want 1", got)
	}

	if _, err := os.Stat(c.Path("conda-forge", "noarch")); err != nil {
		t.Errorf("snapshot not persisted: %v", err)
	}
	leftovers, _ := filepath.Glob(filepath.Join(c.Dir(), ".download-*"))
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}

func TestCache_Get_FromDisk(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bioconda_linux-64.json"), fixture(t), 0o644); err != nil {
		t.Fatal(err)
	}
	f := &fakeFetcher{}
	c, err := New(Options{Dir: dir, Fetcher: f, Logger: log.New(io.Discard)})
	if err != nil {
		t.Fatal(err)
	}

	snap, err := c.Get(context.Background(), "bioconda", "linux-64")
	if err != nil || snap == nil {
		t.Fatalf("Get = %v, %v", snap, err)
	}
	if snap.Channel != "bioconda" || snap.Platform != "linux-64" {
		t.Errorf("snapshot identity = %s/%s", snap.Channel, snap.Platform)
	}
	if f.calls.Load() != 0 {
		t.Error("disk hit should not download")
	}
}

func TestCache_Get_CorruptDiskFileRefetched(t *testing.T) {
	f := &fakeFetcher{bodies: map[string][]byte{"conda-forge/noarch": fixture(t)}}
	c, logs := newTestCache(t, f)
	if err := os.WriteFile(c.Path("conda-forge", "noarch"), []byte("{truncated"), 0o644); err != nil {
		t.Fatal(err)
	}

	snap, err := c.Get(context.Background(), "conda-forge", "noarch")
	if err != nil || snap == nil {
		t.Fatalf("Get = %v, %v", snap, err)
	}
	if f.calls.Load() != 1 {
		t.Errorf("fetch calls = %d, want 1", f.calls.Load())
	}
	if !bytes.Contains(logs.Bytes(), []byte("discarding unreadable snapshot")) {
		t.Errorf("expected warning, got %q", logs.String())
	}
}

func TestCache_Get_NotFoundIsRemembered(t *testing.T) {
	f := &fakeFetcher{}
	c, _ := newTestCache(t, f)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		snap, err := c.Get(ctx, "conda-forge", "win-64")
		if snap != nil || err != nil {
			t.Fatalf("Get = %v, %v; want nil, nil", snap, err)
		}
	}
	if f.calls.Load() != 1 {
		t.Errorf("fetch calls = %d, want 1", f.calls.Load())
	}
	if _, err := os.Stat(c.Path("conda-forge", "win-64")); !errors.Is(err, os.ErrNotExist) {
		t.Error("a miss must not be written to disk")
	}
}

func TestCache_Get_TransportFailure(t *testing.T) {
	netErr := fmt.Errorf("%w: connection reset", integrations.ErrNetwork)
	f := &fakeFetcher{errs: map[string]error{"conda-forge/noarch": netErr}}
	c, logs := newTestCache(t, f)

	snap, err := c.Get(context.Background(), "conda-forge", "noarch")
	if snap != nil {
		t.Error("expected no snapshot")
	}
	if !errors.Is(err, integrations.ErrNetwork) {
		t.Errorf("expected ErrNetwork, got %v", err)
	}
	if !bytes.Contains(logs.Bytes(), []byte("index unavailable")) {
		t.Errorf("expected warning, got %q", logs.String())
	}

	_, err = c.Get(context.Background(), "conda-forge", "noarch")
	if !errors.Is(err, integrations.ErrNetwork) || f.calls.Load() != 2 {
		t.Errorf("failure should be retried: err=%v calls=%d", err, f.calls.Load())
	}
}

func TestCache_Get_TransientFailureRetried(t *testing.T) {
	f := &fakeFetcher{bodies: map[string][]byte{"conda-forge/noarch": fixture(t)}}
	f.failN.Store(1)
	c, _ := newTestCache(t, f)

	if _, err := c.Get(context.Background(), "conda-forge", "noarch"); !errors.Is(err, integrations.ErrNetwork) {
		t.Fatalf("first Get error = %v, want ErrNetwork", err)
	}
	snap, err := c.Get(context.Background(), "conda-forge", "noarch")
	if err != nil || snap == nil {
		t.Fatalf("second Get = %v, %v; want snapshot", snap, err)
	}
	if got := f.calls.Load(); got != 2 {
		t.Errorf("fetch calls = %d, want 2", got)
	}

	if _, err := c.Get(context.Background(), "conda-forge", "noarch"); err != nil || f.calls.Load() != 2 {
		t.Errorf("snapshot should be remembered after recovery: err=%v calls=%d", err, f.calls.Load())
	}
}

func TestCache_Get_CancelledCallerDoesNotFailOthers(t *testing.T) {
	f := &fakeFetcher{
		bodies: map[string][]byte{"conda-forge/noarch": fixture(t)},
		gate:   make(chan struct{}),
		start:  make(chan struct{}),
	}
	c, _ := newTestCache(t, f)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := c.Get(ctxA, "conda-forge", "noarch")
		errA <- err
	}()
	<-f.start

	type result struct {
		snap *Snapshot
		err  error
	}
	resB := make(chan result, 1)
	go func() {
		snap, err := c.Get(context.Background(), "conda-forge", "noarch")
		resB <- result{snap, err}
	}()

	cancelA()
	if err := <-errA; !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled caller error = %v, want context.Canceled", err)
	}
	close(f.gate)

	b := <-resB
	if b.err != nil || b.snap == nil {
		t.Errorf("live caller got snap=%v err=%v", b.snap != nil, b.err)
	}
	if got := f.calls.Load(); got != 1 {
		t.Errorf("fetch calls = %d, want 1", got)
	}
}

func TestCache_Get_InvalidPayload(t *testing.T) {
	f := &fakeFetcher{bodies: map[string][]byte{"conda-forge/noarch": []byte("<html>")}}
	c, _ := newTestCache(t, f)

	snap, err := c.Get(context.Background(), "conda-forge", "noarch")
	if snap != nil || err == nil {
		t.Fatalf("Get = %v, %v; want error", snap, err)
	}
	if _, err := os.Stat(c.Path("conda-forge", "noarch")); !errors.Is(err, os.ErrNotExist) {
		t.Error("an invalid payload must not be persisted")
	}
}

func TestCache_Get_ConcurrentFirstPopulation(t *testing.T) {
	f := &fakeFetcher{
		bodies: map[string][]byte{"conda-forge/noarch": fixture(t)},
		gate:   make(chan struct{}),
	}
	c, _ := newTestCache(t, f)

	const n = 16
	var wg sync.WaitGroup
	results := make([]*Snapshot, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = c.Get(context.Background(), "conda-forge", "noarch")
		}(i)
	}
	close(f.gate)
	wg.Wait()

	if got := f.calls.Load(); got != 1 {
		t.Errorf("fetch calls = %d, want 1", got)
	}
	for i, s := range results {
		if s == nil {
			t.Errorf("caller %d got no snapshot", i)
		}
	}
}

func TestCache_Warm(t *testing.T) {
	f := &fakeFetcher{bodies: map[string][]byte{
		"conda-forge/noarch":   fixture(t),
		"conda-forge/linux-64": fixture(t),
	}}
	c, _ := newTestCache(t, f)

	cfg := DefaultConfig().WithLogger(log.New(io.Discard))
	cfg.AddPlatform("linux-64")
	cfg.AddPlatform("osx-64")

	if err := c.Warm(context.Background(), cfg); err != nil {
		t.Fatalf("Warm: %v", err)
	}
	if f.calls.Load() != 3 {
		t.Errorf("fetch calls = %d, want 3", f.calls.Load())
	}
	for _, pl := range []string{"noarch", "linux-64"} {
		if _, err := os.Stat(c.Path("conda-forge", pl)); err != nil {
			t.Errorf("%s not warmed: %v", pl, err)
		}
	}
}

func TestCache_Warm_ReportsFailures(t *testing.T) {
	f := &fakeFetcher{errs: map[string]error{
		"conda-forge/noarch": fmt.Errorf("%w: boom", integrations.ErrNetwork),
	}}
	c, _ := newTestCache(t, f)
	if err := c.Warm(context.Background(), DefaultConfig()); !errors.Is(err, integrations.ErrNetwork) {
		t.Errorf("Warm error = %v", err)
	}
}

func TestCache_Clear(t *testing.T) {
	f := &fakeFetcher{bodies: map[string][]byte{"conda-forge/noarch": fixture(t)}}
	c, _ := newTestCache(t, f)
	ctx := context.Background()

	if _, err := c.Get(ctx, "conda-forge", "noarch"); err != nil {
		t.Fatal(err)
	}
	if err := c.Clear(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(c.Path("conda-forge", "noarch")); !errors.Is(err, os.ErrNotExist) {
		t.Error("snapshot should be removed")
	}
	if _, err := c.Get(ctx, "conda-forge", "noarch"); err != nil {
		t.Fatal(err)
	}
	if f.calls.Load() != 2 {
		t.Errorf("Clear should force a new download, calls = %d", f.calls.Load())
	}
}

func TestCache_WithCondaClient(t *testing.T) {
	body := fixture(t)
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/conda-forge/noarch/repodata.json" {
			http.NotFound(w, r)
			return
		}
		w.Write(body)
	}))
	defer server.Close()

	client := conda.NewClient(conda.WithBaseURL(server.URL), conda.WithFile("repodata.json"))
	c, err := New(Options{Dir: t.TempDir(), Fetcher: client, Logger: log.New(io.Discard)})
	if err != nil {
		t.Fatal(err)
	}

	snap, err := c.Get(context.Background(), "conda-forge", "noarch")
	if err != nil || snap == nil {
		t.Fatalf("Get = %v, %v", snap, err)
	}
	if rec, ok := snap.Lookup("requests", ""); !ok || rec.License != "Apache-2.0" {
		t.Errorf("Lookup(requests) = %+v, %v", rec, ok)
	}

	snap, err = c.Get(context.Background(), "conda-forge", "linux-64")
	if snap != nil || err != nil {
		t.Errorf("missing platform = %v, %v; want nil, nil", snap, err)
	}
	if hits.Load() != 2 {
		t.Errorf("server hits = %d, want 2", hits.Load())
	}
}
