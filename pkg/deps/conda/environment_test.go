package conda

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/superbom/pkg/deps"
	bomerrors "github.com/matzehuels/superbom/pkg/errors"
)

const environmentYAML = `
name: analysis
channels:
  - conda-forge
  - bioconda
dependencies:
  - python=3.11
  - conda-forge::numpy>=1.18.0
  - pandas 2.1.0 py311_0
  - 42
  - ">=broken"
  - pip
  - pip:
      - requests>=2.31
      - git+https://github.com/user/repo.git#egg=toolkit
      - not valid!!
  - scipy
`

func TestParseEnvironment(t *testing.T) {
	env := ParseEnvironment([]byte(environmentYAML))

	if env.Name != "analysis" {
		t.Errorf("Name = %q", env.Name)
	}
	if want := []string{"conda-forge", "bioconda"}; !reflect.DeepEqual(env.Channels, want) {
		t.Errorf("Channels = %v, want %v", env.Channels, want)
	}

	wantConda := []deps.DependencySpec{
		{Name: "python", Constraint: "=3.11", Ecosystem: deps.Conda},
		{Name: "numpy", Channel: "conda-forge", Constraint: ">=1.18.0", Ecosystem: deps.Conda},
		{Name: "pandas", Constraint: "2.1.0", Ecosystem: deps.Conda},
		{Name: "pip", Ecosystem: deps.Conda},
		{Name: "scipy", Ecosystem: deps.Conda},
	}
	if !reflect.DeepEqual(env.Dependencies, wantConda) {
		t.Errorf("Dependencies =\n%+v\nwant\n%+v", env.Dependencies, wantConda)
	}

	wantPip := []deps.DependencySpec{
		{Name: "requests", Constraint: ">=2.31", Ecosystem: deps.Pip},
		{Name: "toolkit", URL: "git+https://github.com/user/repo.git#egg=toolkit", Ecosystem: deps.Pip},
	}
	if !reflect.DeepEqual(env.PipDependencies, wantPip) {
		t.Errorf("PipDependencies =\n%+v\nwant\n%+v", env.PipDependencies, wantPip)
	}
}

func TestParseEnvironment_Channels(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want []string
	}{
		{"absent", "dependencies:\n  - numpy\n", []string{"conda-forge"}},
		{"empty list", "channels: []\ndependencies:\n  - numpy\n", []string{}},
		{"null", "channels:\ndependencies:\n  - numpy\n", []string{}},
		{"non-strings skipped", "channels:\n  - 1\n  - ' nvidia '\n  - ''\n", []string{"nvidia"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseEnvironment([]byte(tt.doc)).Channels
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Channels = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestParseEnvironment_Malformed(t *testing.T) {
	for _, in := range []string{
		"",
		"---\n",
		"- just\n- a list\n",
		"scalar",
		"channels: [unclosed",
		"dependencies: numpy\n",
		"channels: {a: b}\n",
		"\x00\xff\xfe",
	} {
		env := ParseEnvironment([]byte(in))
		if len(env.Dependencies)+len(env.PipDependencies) != 0 {
			t.Errorf("ParseEnvironment(%q) = %+v, want no dependencies", in, env)
		}
	}
}

func TestEnvironmentParser(t *testing.T) {
	p := &EnvironmentParser{Logger: log.New(&bytes.Buffer{})}
	if p.Type() != "conda" {
		t.Errorf("Type() = %q", p.Type())
	}
	for name, want := range map[string]bool{
		"environment.yml":  true,
		"environment.yaml": true,
		"env.yml":          false,
		"requirements.txt": false,
	} {
		if got := p.Supports(name); got != want {
			t.Errorf("Supports(%q) = %v, want %v", name, got, want)
		}
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "environment.yml")
	if err := os.WriteFile(path, []byte(environmentYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := p.Parse(path)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if res.Count(deps.Conda) != 5 || res.Count(deps.Pip) != 2 {
		t.Errorf("Count(conda) = %d, Count(pip) = %d; want 5, 2", res.Count(deps.Conda), res.Count(deps.Pip))
	}
	if res.Dependencies[0].Ecosystem != deps.Conda || res.Dependencies[len(res.Dependencies)-1].Ecosystem != deps.Pip {
		t.Error("conda dependencies should precede pip dependencies")
	}
	if want := []string{"conda-forge", "bioconda"}; !reflect.DeepEqual(res.Channels, want) {
		t.Errorf("Channels = %v, want %v", res.Channels, want)
	}

	if _, err := p.Parse(filepath.Join(dir, "missing.yml")); !bomerrors.Is(err, bomerrors.ErrCodeFileNotFound) {
		t.Errorf("Parse(missing) error = %v, want FILE_NOT_FOUND", err)
	}
}
