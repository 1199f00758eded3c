package conda

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/superbom/pkg/deps"
	"github.com/matzehuels/superbom/pkg/index"
	"github.com/matzehuels/superbom/pkg/license"
)

var _ SnapshotSource = (*index.Cache)(nil)

// fakeSource serves in-memory snapshots keyed by "channel/platform".
type fakeSource struct {
	mu    sync.Mutex
	snaps map[string]*index.Snapshot
	errs  map[string]error
	calls []string
}

func (f *fakeSource) Get(_ context.Context, channel, platform string) (*index.Snapshot, error) {
	key := channel + "/" + platform
	f.mu.Lock()
	f.calls = append(f.calls, key)
	f.mu.Unlock()
	if err := f.errs[key]; err != nil {
		return nil, err
	}
	return f.snaps[key], nil
}

func snapshot(channel, platform string, recs ...index.PackageRecord) *index.Snapshot {
	s := &index.Snapshot{Channel: channel, Platform: platform, Packages: make(map[string]index.PackageRecord)}
	for _, r := range recs {
		if r.Key == "" {
			r.Key = r.Name + "-" + r.Version + ".conda"
		}
		s.Packages[r.Key] = r
	}
	return s
}

type setOracle map[string]bool

func (o setOracle) Check(text string) license.Verdict {
	return license.Verdict{Supported: o[text], Canonical: text}
}

func testConfig(channels, platforms []string) index.Config {
	cfg := index.Config{}.WithLogger(log.New(&bytes.Buffer{}))
	for _, c := range channels {
		cfg.AddChannel(c)
	}
	for _, p := range platforms {
		cfg.AddPlatform(p)
	}
	return cfg
}

func newTestResolver(src SnapshotSource, cfg index.Config) (*Resolver, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := log.New(&buf)
	lic := license.NewResolver(setOracle{"BSD-3-Clause": true, "Apache-2.0": true}, nil)
	return NewResolver(src, cfg, lic, deps.Options{Logger: logger}), &buf
}

var forgeNoarch = snapshot("conda-forge", "noarch",
	index.PackageRecord{Name: "numpy", Version: "1.18.0", License: "BSD-3-Clause"},
	index.PackageRecord{Name: "numpy", Version: "1.9.0", License: "BSD-3-Clause"},
	index.PackageRecord{Name: "requests", Version: "2.31.0", License: "Apache-2.0"},
	index.PackageRecord{Name: "nolicense", Version: "0.1"},
	index.PackageRecord{Name: "bar", Version: "1.0"},
)

func TestResolver_Find_Selection(t *testing.T) {
	src := &fakeSource{snaps: map[string]*index.Snapshot{"conda-forge/noarch": forgeNoarch}}
	r, _ := newTestResolver(src, testConfig([]string{"conda-forge"}, []string{"noarch"}))

	tests := []struct {
		name        string
		spec        deps.DependencySpec
		wantVersion string
		wantFound   bool
	}{
		{"exact pin", deps.DependencySpec{Name: "numpy", Constraint: "==1.18.0"}, "1.18.0", true},
		{"version substring", deps.DependencySpec{Name: "numpy", Constraint: ">=1.18"}, "1.18.0", true},
		{"no constraint sorts as strings", deps.DependencySpec{Name: "numpy"}, "1.9.0", true},
		{"unknown version falls back to name", deps.DependencySpec{Name: "numpy", Constraint: "==2.0"}, "1.9.0", true},
		{"absent name", deps.DependencySpec{Name: "pandas"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := r.Find(context.Background(), tt.spec)
			if m.Found != tt.wantFound || m.Record.Version != tt.wantVersion {
				t.Errorf("Find() = %+v, want found=%v version=%q", m, tt.wantFound, tt.wantVersion)
			}
		})
	}
}

func TestResolver_Find_PlatformQualifiedName(t *testing.T) {
	src := &fakeSource{snaps: map[string]*index.Snapshot{
		"conda-forge/linux-64": snapshot("conda-forge", "linux-64",
			index.PackageRecord{Name: "tool_linux-64", Version: "3.0", License: "MIT"}),
	}}
	r, _ := newTestResolver(src, testConfig([]string{"conda-forge"}, []string{"noarch", "linux-64"}))

	m := r.Find(context.Background(), deps.DependencySpec{Name: "tool"})
	if !m.Found || m.Record.Name != "tool_linux-64" || m.Platform != "linux-64" {
		t.Errorf("Find() = %+v, want the platform-qualified record", m)
	}
}

func TestResolver_Find_PrefersLicensedPlatform(t *testing.T) {
	tests := []struct {
		name         string
		linux        *index.Snapshot
		wantPlatform string
		wantLicense  string
	}{
		{
			name:         "later platform with license wins",
			linux:        snapshot("conda-forge", "linux-64", index.PackageRecord{Name: "bar", Version: "1.0", License: "MIT"}),
			wantPlatform: "linux-64",
			wantLicense:  "MIT",
		},
		{
			name:         "earlier record kept when later has none",
			linux:        snapshot("conda-forge", "linux-64", index.PackageRecord{Name: "bar", Version: "2.0"}),
			wantPlatform: "noarch",
		},
		{
			name:         "earlier record kept when later misses",
			linux:        snapshot("conda-forge", "linux-64"),
			wantPlatform: "noarch",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{snaps: map[string]*index.Snapshot{
				"conda-forge/noarch":   forgeNoarch,
				"conda-forge/linux-64": tt.linux,
			}}
			r, _ := newTestResolver(src, testConfig([]string{"conda-forge"}, []string{"noarch", "linux-64"}))

			m := r.Find(context.Background(), deps.DependencySpec{Name: "bar"})
			if m.Platform != tt.wantPlatform || m.Record.License != tt.wantLicense {
				t.Errorf("Find() = %+v, want platform %q license %q", m, tt.wantPlatform, tt.wantLicense)
			}
		})
	}
}

func TestResolver_Find_StopsOnLicensedRecord(t *testing.T) {
	src := &fakeSource{snaps: map[string]*index.Snapshot{"conda-forge/noarch": forgeNoarch}}
	r, _ := newTestResolver(src, testConfig([]string{"conda-forge", "bioconda"}, []string{"noarch", "linux-64"}))

	r.Find(context.Background(), deps.DependencySpec{Name: "requests"})
	if want := []string{"conda-forge/noarch"}; strings.Join(src.calls, ",") != strings.Join(want, ",") {
		t.Errorf("queried %v, want %v", src.calls, want)
	}
}

func TestResolver_Find_ChannelOrder(t *testing.T) {
	src := &fakeSource{
		snaps: map[string]*index.Snapshot{
			"conda-forge/noarch": forgeNoarch,
			"bioconda/noarch": snapshot("bioconda", "noarch",
				index.PackageRecord{Name: "samtools", Version: "1.17", License: "MIT"},
				index.PackageRecord{Name: "bar", Version: "9.9", License: "MIT"}),
		},
		errs: map[string]error{"conda-forge/linux-64": errors.New("connection refused")},
	}
	r, _ := newTestResolver(src, testConfig([]string{"conda-forge", "bioconda"}, []string{"noarch", "linux-64"}))

	m := r.Find(context.Background(), deps.DependencySpec{Name: "samtools"})
	if m.Channel != "bioconda" || m.Source() != "bioconda/noarch" {
		t.Errorf("Find(samtools) = %+v, want bioconda/noarch", m)
	}

	// An unlicensed record in the first channel still ends the channel loop.
	m = r.Find(context.Background(), deps.DependencySpec{Name: "bar"})
	if m.Channel != "conda-forge" || m.Record.Version != "1.0" {
		t.Errorf("Find(bar) = %+v, want the conda-forge record", m)
	}
}

func TestResolver_Find_ExplicitChannel(t *testing.T) {
	src := &fakeSource{snaps: map[string]*index.Snapshot{
		"conda-forge/noarch": forgeNoarch,
		"bioconda/noarch":    snapshot("bioconda", "noarch", index.PackageRecord{Name: "numpy", Version: "0.1", License: "MIT"}),
	}}
	r, buf := newTestResolver(src, testConfig([]string{"conda-forge"}, []string{"noarch"}))

	m := r.Find(context.Background(), deps.DependencySpec{Name: "numpy", Channel: "bioconda"})
	if m.Channel != "bioconda" || m.Record.Version != "0.1" {
		t.Errorf("Find() = %+v, want the bioconda record", m)
	}

	m = r.Find(context.Background(), deps.DependencySpec{Name: "numpy", Channel: "defaults", Constraint: "==1.18.0"})
	if m.Channel != "conda-forge" || m.Record.Version != "1.18.0" {
		t.Errorf("Find() = %+v, want fallback to configured channels", m)
	}
	if !strings.Contains(buf.String(), "deny-listed") {
		t.Errorf("expected a deny-list warning, log:\n%s", buf.String())
	}
	for _, c := range src.calls {
		if strings.HasPrefix(c, "defaults/") {
			t.Errorf("deny-listed channel was queried: %v", src.calls)
		}
	}
}

func TestResolver_Resolve(t *testing.T) {
	src := &fakeSource{snaps: map[string]*index.Snapshot{"conda-forge/noarch": forgeNoarch}}
	r, _ := newTestResolver(src, testConfig([]string{"conda-forge"}, []string{"noarch"}))

	tests := []struct {
		name string
		spec deps.DependencySpec
		want deps.Entry
	}{
		{
			name: "validated",
			spec: deps.DependencySpec{Name: "numpy", Constraint: "==1.18.0", Ecosystem: deps.Conda},
			want: deps.Entry{Package: "numpy", Version: "1.18.0", License: "BSD-3-Clause", Validated: true,
				Source: "conda-forge/noarch", LicenseSource: "declared", Ecosystem: deps.Conda},
		},
		{
			name: "record without license",
			spec: deps.DependencySpec{Name: "nolicense", Ecosystem: deps.Conda},
			want: deps.Entry{Package: "nolicense", Version: "0.1", License: deps.NoLicense,
				Source: "conda-forge/noarch", LicenseSource: "none", Ecosystem: deps.Conda},
		},
		{
			name: "not found",
			spec: deps.DependencySpec{Name: "pandas", Constraint: ">=2.0", Ecosystem: deps.Conda},
			want: deps.Entry{Package: "pandas", Version: "2.0", License: deps.NoLicense,
				Source: deps.NotAvailable, Ecosystem: deps.Conda},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Resolve(context.Background(), tt.spec)
			if got != tt.want {
				t.Errorf("Resolve() = %+v, want %+v", got, tt.want)
			}
			if again := r.Resolve(context.Background(), tt.spec); again != got {
				t.Errorf("second Resolve() = %+v, want %+v", again, got)
			}
		})
	}
}

func TestResolver_WithConfig(t *testing.T) {
	src := &fakeSource{snaps: map[string]*index.Snapshot{
		"bioconda/noarch": snapshot("bioconda", "noarch", index.PackageRecord{Name: "samtools", Version: "1.17", License: "MIT"}),
	}}
	base, _ := newTestResolver(src, testConfig([]string{"conda-forge"}, []string{"noarch"}))
	r := base.WithConfig(base.Config().WithChannels("bioconda"))

	if m := r.Find(context.Background(), deps.DependencySpec{Name: "samtools"}); !m.Found {
		t.Error("WithConfig resolver should search bioconda")
	}
	if m := base.Find(context.Background(), deps.DependencySpec{Name: "samtools"}); m.Found {
		t.Error("base resolver must keep its own channels")
	}
}

func TestResolver_CancelledContext(t *testing.T) {
	src := &fakeSource{snaps: map[string]*index.Snapshot{"conda-forge/noarch": forgeNoarch}}
	r, _ := newTestResolver(src, testConfig([]string{"conda-forge"}, []string{"noarch"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if m := r.Find(ctx, deps.DependencySpec{Name: "numpy"}); m.Found {
		t.Errorf("Find() with cancelled context = %+v", m)
	}
	if len(src.calls) != 0 {
		t.Errorf("no snapshot should be requested, got %v", src.calls)
	}
}
