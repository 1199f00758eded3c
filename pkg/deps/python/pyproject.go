package python

import (
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"

	"github.com/matzehuels/superbom/pkg/deps"
	bomerrors "github.com/matzehuels/superbom/pkg/errors"
	"github.com/matzehuels/superbom/pkg/integrations"
)

// Pyproject parses pyproject.toml files: Poetry dependency tables and PEP 621
// project dependencies.
type Pyproject struct {
	Logger *log.Logger
}

func (p *Pyproject) Type() string              { return "pyproject" }
func (p *Pyproject) Supports(name string) bool { return name == "pyproject.toml" }

func (p *Pyproject) Parse(path string) (*deps.ManifestResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, bomerrors.Wrap(bomerrors.ErrCodeFileNotFound, err, "read %s", path)
	}
	specs := ParsePyproject(data)
	if len(specs) == 0 && p.Logger != nil {
		p.Logger.Debug("no dependencies in pyproject", "path", path)
	}
	return &deps.ManifestResult{
		Type:         p.Type(),
		Path:         path,
		Dependencies: specs,
	}, nil
}

// ParsePyproject returns the Poetry dependencies of a pyproject.toml
// followed by PEP 621 dependencies not already declared there. Poetry 2
// projects use both. Malformed TOML yields no dependencies.
func ParsePyproject(data []byte) []deps.DependencySpec {
	doc, md, ok := decodeTOML(data)
	if !ok {
		return nil
	}
	specs := poetryDeps(doc, md)
	seen := make(map[string]bool, len(specs))
	for _, s := range specs {
		seen[integrations.NormalizePkgName(s.Name)] = true
	}
	for _, s := range pep621Deps(doc, md) {
		if key := integrations.NormalizePkgName(s.Name); !seen[key] {
			seen[key] = true
			specs = append(specs, s)
		}
	}
	return specs
}

// ParsePoetry returns the entries of [tool.poetry.dependencies],
// [tool.poetry.dev-dependencies] and every
// [tool.poetry.group.<name>.dependencies] table in document order. The
// implicit python entry is skipped.
func ParsePoetry(data []byte) []deps.DependencySpec {
	doc, md, ok := decodeTOML(data)
	if !ok {
		return nil
	}
	return poetryDeps(doc, md)
}

// ParsePEP621 returns project.dependencies followed by every list under
// project.optional-dependencies, in document order.
func ParsePEP621(data []byte) []deps.DependencySpec {
	doc, md, ok := decodeTOML(data)
	if !ok {
		return nil
	}
	return pep621Deps(doc, md)
}

func decodeTOML(data []byte) (doc map[string]any, md toml.MetaData, ok bool) {
	defer func() {
		if recover() != nil {
			doc, ok = nil, false
		}
	}()
	md, err := toml.Decode(string(data), &doc)
	if err != nil {
		return nil, md, false
	}
	return doc, md, true
}

func poetryDeps(doc map[string]any, md toml.MetaData) []deps.DependencySpec {
	var out []deps.DependencySpec
	seen := make(map[string]bool)
	for _, key := range md.Keys() {
		if !isPoetryDepKey(key) {
			continue
		}
		name := key[len(key)-1]
		norm := integrations.NormalizePkgName(name)
		if norm == "python" || seen[norm] {
			continue
		}
		spec, ok := poetrySpec(name, lookup(doc, key))
		if !ok {
			continue
		}
		seen[norm] = true
		out = append(out, spec)
	}
	return out
}

// isPoetryDepKey matches tool.poetry.{dependencies,dev-dependencies}.NAME
// and tool.poetry.group.G.dependencies.NAME.
func isPoetryDepKey(k toml.Key) bool {
	if len(k) < 4 || k[0] != "tool" || k[1] != "poetry" {
		return false
	}
	switch len(k) {
	case 4:
		return k[2] == "dependencies" || k[2] == "dev-dependencies"
	case 6:
		return k[2] == "group" && k[4] == "dependencies"
	}
	return false
}

func lookup(doc map[string]any, key toml.Key) any {
	var cur any = doc
	for _, part := range key {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[part]
	}
	return cur
}

// poetrySpec converts one Poetry dependency value: a constraint string, a
// table, or an array of tables (multiple constraints; the first is used).
func poetrySpec(name string, v any) (deps.DependencySpec, bool) {
	spec := deps.DependencySpec{Name: strings.TrimSpace(name), Ecosystem: deps.Poetry}
	if spec.Name == "" {
		return spec, false
	}
	if arr, ok := v.([]map[string]any); ok {
		if len(arr) == 0 {
			return spec, true
		}
		v = arr[0]
	}
	if arr, ok := v.([]any); ok {
		if len(arr) == 0 {
			return spec, true
		}
		v = arr[0]
	}

	switch val := v.(type) {
	case string:
		spec.Constraint = poetryConstraint(val)
	case map[string]any:
		if s, ok := val["version"].(string); ok {
			spec.Constraint = poetryConstraint(s)
		}
		if extras, ok := val["extras"].([]any); ok {
			for _, e := range extras {
				if s, ok := e.(string); ok && s != "" {
					spec.Extras = append(spec.Extras, strings.ToLower(s))
				}
			}
			slices.Sort(spec.Extras)
			spec.Extras = slices.Compact(spec.Extras)
		}
		if s, ok := val["markers"].(string); ok {
			if m, ok := ParseMarker(s); ok {
				spec.Marker = m
			}
		}
		for _, k := range []string{"git", "url", "path"} {
			if s, ok := val[k].(string); ok && s != "" {
				spec.URL = s
				break
			}
		}
	default:
		return spec, false
	}
	return spec, true
}

// poetryConstraint translates Poetry constraint syntax to PEP 440: caret
// and tilde requirements become lower bounds, "*" means any version and a
// bare version means exactly that version.
func poetryConstraint(c string) string {
	c = strings.TrimSpace(c)
	switch {
	case c == "" || c == "*":
		return ""
	case strings.HasPrefix(c, "^"):
		return ">=" + strings.TrimSpace(c[1:])
	case strings.HasPrefix(c, "~") && !strings.HasPrefix(c, "~="):
		return ">=" + strings.TrimSpace(c[1:])
	case c[0] >= '0' && c[0] <= '9':
		return "==" + c
	}
	return strings.Join(strings.Fields(c), "")
}

func pep621Deps(doc map[string]any, md toml.MetaData) []deps.DependencySpec {
	project, ok := doc["project"].(map[string]any)
	if !ok {
		return nil
	}

	var lists [][]any
	if d, ok := project["dependencies"].([]any); ok {
		lists = append(lists, d)
	}
	optional, _ := project["optional-dependencies"].(map[string]any)
	var groups []string
	for _, key := range md.Keys() {
		if len(key) == 3 && key[0] == "project" && key[1] == "optional-dependencies" && !slices.Contains(groups, key[2]) {
			groups = append(groups, key[2])
		}
	}
	// Inline tables may not report their keys; take the rest sorted.
	rest := slices.Sorted(maps.Keys(optional))
	for _, g := range rest {
		if !slices.Contains(groups, g) {
			groups = append(groups, g)
		}
	}
	for _, g := range groups {
		if d, ok := optional[g].([]any); ok {
			lists = append(lists, d)
		}
	}

	var out []deps.DependencySpec
	seen := make(map[string]bool)
	for _, list := range lists {
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				continue
			}
			req, ok := ParseRequirement(s)
			if !ok {
				continue
			}
			key := integrations.NormalizePkgName(req.Name)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, req.Spec(deps.Pip))
		}
	}
	return out
}
