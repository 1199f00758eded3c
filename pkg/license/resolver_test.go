package license

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/superbom/pkg/deps"
	"github.com/matzehuels/superbom/pkg/index"
	"github.com/matzehuels/superbom/pkg/integrations/pypi"
)

// tableOracle supports exactly the keys of its map, canonicalizing to the value.
type tableOracle map[string]string

func (o tableOracle) Check(text string) Verdict {
	if c, ok := o[text]; ok {
		return Verdict{Supported: true, Canonical: c}
	}
	return Verdict{Canonical: strings.ToUpper(text)}
}

// fakeHost answers from fixed maps and records what it was asked.
type fakeHost struct {
	byURL  map[string]string
	byName map[string]string
	err    error
	urls   []string
	names  []string
}

func (h *fakeHost) LicenseForURL(_ context.Context, u string) (string, error) {
	h.urls = append(h.urls, u)
	return h.byURL[u], h.err
}

func (h *fakeHost) LicenseForName(_ context.Context, name string) (string, error) {
	h.names = append(h.names, name)
	return h.byName[name], h.err
}

func TestResolver_Declared(t *testing.T) {
	r := NewResolver(tableOracle{"MIT": "MIT"}, nil)

	got := r.Resolve(context.Background(), CondaMetadata(index.PackageRecord{
		Name: "test-package", Version: "1.0.0", License: "MIT",
	}))
	want := Resolution{Declared: "MIT", Normalized: "MIT", Validated: true, Source: SourceDeclared}
	if got != want {
		t.Errorf("Resolve() = %+v, want %+v", got, want)
	}
}

func TestResolver_NoCandidate(t *testing.T) {
	host := &fakeHost{}
	r := NewResolver(tableOracle{}, host)

	got := r.Resolve(context.Background(), CondaMetadata(index.PackageRecord{Name: "nolicense", Version: "0.1"}))
	want := Resolution{Normalized: deps.NoLicense, Source: SourceNone}
	if got != want {
		t.Errorf("Resolve() = %+v, want %+v", got, want)
	}
	if len(host.names)+len(host.urls) != 0 {
		t.Error("a conda record without a license must not trigger the remote fallback")
	}
}

func TestResolver_PyPICascade(t *testing.T) {
	oracle := tableOracle{
		"Apache-2.0":              "Apache-2.0",
		"Apache Software License": "Apache-2.0",
		"BSD-3-Clause":            "BSD-3-Clause",
	}

	tests := []struct {
		name      string
		md        Metadata
		host      *fakeHost
		want      Resolution
		wantURLs  int
		wantNames int
	}{
		{
			name: "declared wins",
			md: Metadata{Origin: OriginPyPI, Declared: "Apache-2.0",
				Classifiers: []string{"License :: OSI Approved :: Apache Software License"}},
			host: &fakeHost{},
			want: Resolution{Declared: "Apache-2.0", Normalized: "Apache-2.0", Validated: true, Source: SourceDeclared},
		},
		{
			name: "classifier after invalid declared",
			md: Metadata{Origin: OriginPyPI, Declared: "Apache 2",
				Classifiers: []string{
					"Intended Audience :: Developers",
					"License :: OSI Approved :: Apache Software License",
					"License :: Other/Proprietary License",
				}},
			host: &fakeHost{},
			want: Resolution{Declared: "Apache Software License", Normalized: "Apache-2.0", Validated: true, Source: SourceClassifier},
		},
		{
			name: "remote source",
			md: Metadata{Origin: OriginPyPI, ProjectURLs: map[string]string{
				"Documentation": "https://docs.example.com",
				"Source Code":   "https://github.com/org/pkg/",
			}},
			host:     &fakeHost{byURL: map[string]string{"https://github.com/org/pkg": "BSD-3-Clause"}},
			want:     Resolution{Declared: "BSD-3-Clause", Normalized: "BSD-3-Clause", Validated: true, Source: SourceRemote},
			wantURLs: 1,
		},
		{
			name: "last tier text wins on total failure",
			md: Metadata{Origin: OriginPyPI, Declared: "custom",
				Classifiers: []string{"License :: Other/Proprietary License"},
				ProjectURLs: map[string]string{"Repository": "https://github.com/org/pkg"}},
			host:     &fakeHost{byURL: map[string]string{"https://github.com/org/pkg": "NOASSERTION"}},
			want:     Resolution{Declared: "NOASSERTION", Normalized: "NOASSERTION", Source: SourceRemote},
			wantURLs: 1,
		},
		{
			name: "last candidate, not last tier, when remote yields nothing",
			md: Metadata{Origin: OriginPyPI, Declared: "custom",
				Classifiers: []string{"License :: Other/Proprietary License"},
				ProjectURLs: map[string]string{"GitHub": "https://github.com/org/pkg"}},
			host:     &fakeHost{},
			want:     Resolution{Declared: "Other/Proprietary License", Normalized: "OTHER/PROPRIETARY LICENSE", Source: SourceClassifier},
			wantURLs: 1,
		},
		{
			name: "non-source labels ignored",
			md: Metadata{Origin: OriginPyPI, ProjectURLs: map[string]string{
				"Homepage": "https://github.com/org/pkg",
				"Tracker":  "https://github.com/org/pkg/issues",
			}},
			host: &fakeHost{byURL: map[string]string{"https://github.com/org/pkg": "BSD-3-Clause"}},
			want: Resolution{Normalized: deps.NoLicense, Source: SourceNone},
		},
		{
			name: "pypi never searches by name",
			md:   Metadata{Name: "pkg", Origin: OriginPyPI, Declared: "custom"},
			host: &fakeHost{byName: map[string]string{"pkg": "BSD-3-Clause"}},
			want: Resolution{Declared: "custom", Normalized: "CUSTOM", Source: SourceDeclared},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(oracle, tt.host, WithLogger(log.New(&bytes.Buffer{})))
			got := r.Resolve(context.Background(), tt.md)
			if got != tt.want {
				t.Errorf("Resolve() = %+v, want %+v", got, tt.want)
			}
			if len(tt.host.urls) != tt.wantURLs || len(tt.host.names) != tt.wantNames {
				t.Errorf("host calls: urls=%v names=%v", tt.host.urls, tt.host.names)
			}
		})
	}
}

func TestResolver_CondaFallback(t *testing.T) {
	oracle := tableOracle{"BSD-3-Clause": "BSD-3-Clause"}

	t.Run("validates by name", func(t *testing.T) {
		host := &fakeHost{byName: map[string]string{"numpy": "BSD-3-Clause"}}
		r := NewResolver(oracle, host)
		got := r.Resolve(context.Background(), CondaMetadata(index.PackageRecord{Name: "numpy", License: "BSD"}))
		want := Resolution{Declared: "BSD-3-Clause", Normalized: "BSD-3-Clause", Validated: true, Source: SourceRemote}
		if got != want {
			t.Errorf("Resolve() = %+v, want %+v", got, want)
		}
		if len(host.names) != 1 || host.names[0] != "numpy" {
			t.Errorf("searched %v", host.names)
		}
	})

	t.Run("declared kept when search finds nothing", func(t *testing.T) {
		r := NewResolver(oracle, &fakeHost{})
		got := r.Resolve(context.Background(), CondaMetadata(index.PackageRecord{Name: "numpy", LicenseFamily: "BSD"}))
		want := Resolution{Declared: "BSD", Normalized: "BSD", Source: SourceDeclared}
		if got != want {
			t.Errorf("Resolve() = %+v, want %+v", got, want)
		}
	})

	t.Run("transport error is logged", func(t *testing.T) {
		var buf bytes.Buffer
		r := NewResolver(oracle, &fakeHost{err: errors.New("boom")}, WithLogger(log.New(&buf)))
		got := r.Resolve(context.Background(), CondaMetadata(index.PackageRecord{Name: "numpy", License: "BSD"}))
		if got.Validated || got.Normalized != "BSD" {
			t.Errorf("Resolve() = %+v", got)
		}
		if !strings.Contains(buf.String(), "repository search failed") {
			t.Errorf("expected warning, got %q", buf.String())
		}
	})

	t.Run("nil host", func(t *testing.T) {
		r := NewResolver(oracle, nil)
		got := r.Resolve(context.Background(), CondaMetadata(index.PackageRecord{Name: "numpy", License: "BSD"}))
		if got.Validated || got.Source != SourceDeclared {
			t.Errorf("Resolve() = %+v", got)
		}
	})
}

func TestResolver_Idempotent(t *testing.T) {
	o, err := NewSPDXOracle(nil)
	if err != nil {
		t.Fatal(err)
	}
	r := NewResolver(o, nil)
	md := PyPIMetadata(&pypi.PackageInfo{
		Name:        "requests",
		License:     "Apache 2.0",
		Classifiers: []string{"License :: OSI Approved :: Apache Software License"},
	})
	first := r.Resolve(context.Background(), md)
	second := r.Resolve(context.Background(), md)
	if first != second {
		t.Errorf("Resolve not idempotent: %+v vs %+v", first, second)
	}
	if !first.Validated || first.Normalized != "Apache-2.0" {
		t.Errorf("Resolve() = %+v", first)
	}
}

func TestClassifierLicense(t *testing.T) {
	tests := []struct {
		in   []string
		want string
	}{
		{nil, ""},
		{[]string{"Programming Language :: Python"}, ""},
		{[]string{"License :: OSI Approved :: MIT License"}, "MIT License"},
		{[]string{"License :: OSI Approved :: BSD License", "License :: OSI Approved :: MIT License"}, "BSD License"},
		{[]string{"License"}, "License"},
	}
	for _, tt := range tests {
		if got := classifierLicense(tt.in); got != tt.want {
			t.Errorf("classifierLicense(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeLabel(t *testing.T) {
	tests := map[string]string{
		"Source Code":  "sourcecode",
		"source-code":  "sourcecode",
		"Source_Code":  "sourcecode",
		"GitHub":       "github",
		" Repository ": "repository",
		"Source:":      "source",
	}
	for in, want := range tests {
		if got := normalizeLabel(in); got != want {
			t.Errorf("normalizeLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSourceURLs(t *testing.T) {
	got := sourceURLs(map[string]string{
		"Source":     "https://github.com/b/b/",
		"Repository": "https://github.com/a/a",
		"Homepage":   "https://example.com",
		"GitHub":     "  ",
	})
	want := []string{"https://github.com/a/a", "https://github.com/b/b"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("sourceURLs() = %v, want %v", got, want)
	}
}

func TestResolver_ResolveByName(t *testing.T) {
	oracle := tableOracle{"MIT": "MIT"}
	host := &fakeHost{byName: map[string]string{"tool": "MIT", "odd": "custom"}}
	r := NewResolver(oracle, host)
	ctx := context.Background()

	if got := r.ResolveByName(ctx, "tool"); !got.Validated || got.Normalized != "MIT" || got.Source != SourceRemote {
		t.Errorf("ResolveByName(tool) = %+v", got)
	}
	if got := r.ResolveByName(ctx, "odd"); got.Validated || got.Normalized != "CUSTOM" {
		t.Errorf("ResolveByName(odd) = %+v", got)
	}
	if got := r.ResolveByName(ctx, "missing"); got.Source != SourceNone || got.Normalized != deps.NoLicense {
		t.Errorf("ResolveByName(missing) = %+v", got)
	}
	if got := NewResolver(oracle, nil).ResolveByName(ctx, "tool"); got.Source != SourceNone {
		t.Errorf("nil host = %+v", got)
	}
}
