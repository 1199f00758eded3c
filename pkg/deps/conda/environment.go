package conda

import (
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"github.com/matzehuels/superbom/pkg/deps"
	"github.com/matzehuels/superbom/pkg/deps/python"
	bomerrors "github.com/matzehuels/superbom/pkg/errors"
	"github.com/matzehuels/superbom/pkg/index"
)

// Environment is the dependency view of a conda environment file.
type Environment struct {
	Name            string
	Channels        []string
	Dependencies    []deps.DependencySpec // conda packages
	PipDependencies []deps.DependencySpec // entries of the nested pip list
}

type environmentDoc struct {
	Name         string `yaml:"name"`
	Channels     []any  `yaml:"channels"`
	Dependencies []any  `yaml:"dependencies"`
}

// ParseEnvironment parses an environment.yml document. A document without
// a channels key searches [index.DefaultChannel]. The {pip: [...]} entry of
// the dependency list is split off into PipDependencies.
//
// ParseEnvironment never fails: an empty or malformed document yields an
// empty Environment, and entries that do not parse are skipped.
func ParseEnvironment(data []byte) (env Environment) {
	defer func() {
		if recover() != nil {
			env = Environment{}
		}
	}()

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil || raw == nil {
		return Environment{}
	}
	var doc environmentDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Environment{}
	}

	env.Name = strings.TrimSpace(doc.Name)
	if _, ok := raw["channels"]; ok {
		env.Channels = []string{}
		for _, c := range doc.Channels {
			if s, ok := c.(string); ok && strings.TrimSpace(s) != "" {
				env.Channels = append(env.Channels, strings.TrimSpace(s))
			}
		}
	} else {
		env.Channels = []string{index.DefaultChannel}
	}

	pipSeen := false
	for _, item := range doc.Dependencies {
		switch v := item.(type) {
		case string:
			if ms, ok := ParseMatchSpec(v); ok {
				env.Dependencies = append(env.Dependencies, ms.Spec())
			}
		case map[string]any:
			list, ok := v["pip"].([]any)
			if !ok || pipSeen {
				continue
			}
			pipSeen = true
			env.PipDependencies = pipDependencies(list)
		}
	}
	return env
}

func pipDependencies(list []any) []deps.DependencySpec {
	var lines []string
	for _, item := range list {
		if s, ok := item.(string); ok {
			lines = append(lines, s)
		}
	}
	return python.ParseRequirementsData([]byte(strings.Join(lines, "\n")))
}

// EnvironmentParser reads conda environment files.
type EnvironmentParser struct {
	Logger *log.Logger
}

func (p *EnvironmentParser) Type() string { return "conda" }

func (p *EnvironmentParser) Supports(name string) bool {
	return name == "environment.yml" || name == "environment.yaml"
}

// Parse returns the conda dependencies followed by the pip ones. The
// environment's channels are reported in ManifestResult.Channels.
func (p *EnvironmentParser) Parse(path string) (*deps.ManifestResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, bomerrors.Wrap(bomerrors.ErrCodeFileNotFound, err, "read %s", path)
	}
	env := ParseEnvironment(data)
	if len(env.Dependencies)+len(env.PipDependencies) == 0 && p.Logger != nil {
		p.Logger.Debug("no dependencies in environment", "path", path)
	}
	return env.Result(p.Type(), path), nil
}

// Result converts e to a manifest result: conda dependencies first, then
// the pip section.
func (e Environment) Result(typ, path string) *deps.ManifestResult {
	all := make([]deps.DependencySpec, 0, len(e.Dependencies)+len(e.PipDependencies))
	all = append(all, e.Dependencies...)
	all = append(all, e.PipDependencies...)
	return &deps.ManifestResult{
		Type:         typ,
		Path:         path,
		Channels:     e.Channels,
		Dependencies: all,
	}
}
