package python

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/superbom/pkg/deps"
	bomerrors "github.com/matzehuels/superbom/pkg/errors"
)

const poetryProject = `
[tool.poetry]
name = "demo"
version = "0.1.0"

[tool.poetry.dependencies]
python = "^3.10"
requests = "^2.31"
click = "8.1.7"
rich = "*"
httpx = { version = "~0.27", extras = ["HTTP2", "cli", "http2"] }
pywin32 = { version = ">=306", markers = "sys_platform == 'win32'" }
mylib = { git = "https://github.com/org/mylib.git", branch = "main" }
numpy = [
    { version = "<1.25", python = "<3.9" },
    { version = ">=1.26", python = ">=3.9" },
]

[tool.poetry.group.dev.dependencies]
pytest = ">= 7.0, < 9"
Requests = "2.0"

[tool.poetry.dev-dependencies]
black = "~=24.1"
`

func TestParsePoetry(t *testing.T) {
	want := []deps.DependencySpec{
		{Name: "requests", Constraint: ">=2.31", Ecosystem: deps.Poetry},
		{Name: "click", Constraint: "==8.1.7", Ecosystem: deps.Poetry},
		{Name: "rich", Ecosystem: deps.Poetry},
		{Name: "httpx", Constraint: ">=0.27", Extras: []string{"cli", "http2"}, Ecosystem: deps.Poetry},
		{Name: "pywin32", Constraint: ">=306", Marker: `sys_platform == "win32"`, Ecosystem: deps.Poetry},
		{Name: "mylib", URL: "https://github.com/org/mylib.git", Ecosystem: deps.Poetry},
		{Name: "numpy", Constraint: "<1.25", Ecosystem: deps.Poetry},
		{Name: "pytest", Constraint: ">=7.0,<9", Ecosystem: deps.Poetry},
		{Name: "black", Constraint: "~=24.1", Ecosystem: deps.Poetry},
	}

	got := ParsePoetry([]byte(poetryProject))
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParsePoetry() =\n%+v\nwant\n%+v", got, want)
	}
}

func TestParsePEP621(t *testing.T) {
	data := `
[project]
name = "demo"
dependencies = [
    "requests>=2.28",
    "tomli; python_version < '3.11'",
    "not a requirement!!",
    42,
]

[project.optional-dependencies]
test = ["pytest>=7", "Requests"]
docs = ["sphinx"]
`
	want := []deps.DependencySpec{
		{Name: "requests", Constraint: ">=2.28", Ecosystem: deps.Pip},
		{Name: "tomli", Marker: `python_version < "3.11"`, Ecosystem: deps.Pip},
		{Name: "pytest", Constraint: ">=7", Ecosystem: deps.Pip},
		{Name: "sphinx", Ecosystem: deps.Pip},
	}

	got := ParsePEP621([]byte(data))
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParsePEP621() =\n%+v\nwant\n%+v", got, want)
	}
}

func TestParsePEP621_InlineGroups(t *testing.T) {
	data := `
[project]
name = "demo"
optional-dependencies = { zeta = ["zlib-ng"], alpha = ["attrs"] }
`
	got := names(ParsePEP621([]byte(data)))
	slices.Sort(got)
	if want := []string{"attrs", "zlib-ng"}; !reflect.DeepEqual(got, want) {
		t.Errorf("names = %v, want %v", got, want)
	}
}

func TestParsePyproject_Union(t *testing.T) {
	data := `
[project]
name = "demo"
dependencies = ["requests>=2.0", "attrs"]

[tool.poetry.dependencies]
python = "^3.10"
requests = "^2.31"
`
	got := ParsePyproject([]byte(data))
	want := []deps.DependencySpec{
		{Name: "requests", Constraint: ">=2.31", Ecosystem: deps.Poetry},
		{Name: "attrs", Ecosystem: deps.Pip},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParsePyproject() =\n%+v\nwant\n%+v", got, want)
	}
}

func TestParsePyproject_Malformed(t *testing.T) {
	for _, in := range []string{
		"",
		"[tool.poetry",
		"[tool.poetry.dependencies]\nrequests = ",
		"[project]\ndependencies = \"requests\"\n",
		"[tool.poetry.dependencies]\nrequests = 3\n",
	} {
		if got := ParsePyproject([]byte(in)); len(got) != 0 {
			t.Errorf("ParsePyproject(%q) = %v, want empty", in, got)
		}
	}
}

func TestPoetryConstraint(t *testing.T) {
	tests := map[string]string{
		"":           "",
		"*":          "",
		"^1.2.3":     ">=1.2.3",
		"~1.2":       ">=1.2",
		"~=1.2":      "~=1.2",
		"1.2.3":      "==1.2.3",
		">= 1.0, <2": ">=1.0,<2",
		"==2.0":      "==2.0",
	}
	for in, want := range tests {
		if got := poetryConstraint(in); got != want {
			t.Errorf("poetryConstraint(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPyproject_Parser(t *testing.T) {
	p := &Pyproject{Logger: log.New(&bytes.Buffer{})}
	if p.Type() != "pyproject" || !p.Supports("pyproject.toml") || p.Supports("setup.py") {
		t.Fatal("unexpected parser identity")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "pyproject.toml")
	if err := os.WriteFile(path, []byte(poetryProject), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := p.Parse(path)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if res.Count(deps.Poetry) != 9 {
		t.Errorf("Count(poetry) = %d, want 9", res.Count(deps.Poetry))
	}

	if _, err := p.Parse(filepath.Join(dir, "missing.toml")); !bomerrors.Is(err, bomerrors.ErrCodeFileNotFound) {
		t.Errorf("Parse(missing) error = %v, want FILE_NOT_FOUND", err)
	}
}
