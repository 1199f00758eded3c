package python

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/superbom/pkg/deps"
	bomerrors "github.com/matzehuels/superbom/pkg/errors"
	"github.com/matzehuels/superbom/pkg/integrations"
)

// ErrCyclicInclude is returned when a requirements file includes itself,
// directly or through other files. Errors wrapping it carry the code
// CYCLIC_INCLUDE.
var ErrCyclicInclude = errors.New("cyclic requirements include")

// commentPattern matches a pip comment: "#" at line start or after whitespace.
var commentPattern = regexp.MustCompile(`(^|\s+)#.*$`)

// Requirements parses pip requirements files, following -r includes.
type Requirements struct {
	Logger *log.Logger
}

func (r *Requirements) Type() string { return "requirements" }

func (r *Requirements) Supports(name string) bool {
	return name == "requirements.txt" ||
		(strings.HasPrefix(name, "requirements") && strings.HasSuffix(name, ".txt"))
}

func (r *Requirements) Parse(path string) (*deps.ManifestResult, error) {
	specs, err := ParseRequirementsFile(path, r.Logger)
	if err != nil {
		return nil, err
	}
	return &deps.ManifestResult{
		Type:         r.Type(),
		Path:         path,
		Dependencies: specs,
	}, nil
}

// ParseRequirementsFile parses the requirements file at path and every file
// it includes with -r. Includes are relative to the including file. A
// missing include is logged and skipped; a file reached twice without a
// cycle is parsed once. The first declaration of a package wins.
//
// Errors are returned only for an unreadable top-level file
// (FILE_NOT_FOUND) and for cyclic includes ([ErrCyclicInclude]).
func ParseRequirementsFile(path string, logger *log.Logger) ([]deps.DependencySpec, error) {
	if logger == nil {
		logger = log.Default()
	}
	p := newRequirementsParser(logger)
	if err := p.file(path); err != nil {
		if errors.Is(err, ErrCyclicInclude) {
			logger.Error("cyclic requirements include", "file", path, "err", err)
			return nil, err
		}
		return nil, bomerrors.Wrap(bomerrors.ErrCodeFileNotFound, err, "read %s", path)
	}
	return p.out, nil
}

// ParseRequirementsData parses requirements text without following
// includes. It never fails; malformed lines are skipped.
func ParseRequirementsData(data []byte) []deps.DependencySpec {
	p := newRequirementsParser(log.Default())
	for _, line := range logicalLines(data) {
		if _, ok := includeTarget(line); ok {
			continue
		}
		p.line(line)
	}
	return p.out
}

// RequirementsIncludes returns the files path includes with -r, as
// absolute paths. Includes of those files are not followed.
func RequirementsIncludes(path string) ([]string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range logicalLines(data) {
		if target, ok := includeTarget(line); ok {
			out = append(out, includePath(abs, target))
		}
	}
	return out, nil
}

// includePath resolves an include target relative to the including file.
func includePath(from, target string) string {
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(from), target)
	}
	return filepath.Clean(target)
}

type requirementsParser struct {
	logger  *log.Logger
	visited map[string]bool
	stack   []string
	seen    map[string]bool
	out     []deps.DependencySpec
}

func newRequirementsParser(logger *log.Logger) *requirementsParser {
	return &requirementsParser{
		logger:  logger,
		visited: make(map[string]bool),
		seen:    make(map[string]bool),
	}
}

func (p *requirementsParser) file(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if slices.Contains(p.stack, abs) {
		return bomerrors.Wrap(bomerrors.ErrCodeCyclicInclude, ErrCyclicInclude,
			"%s", strings.Join(append(slices.Clone(p.stack), abs), " -> "))
	}
	if p.visited[abs] {
		return nil
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return err
	}

	p.visited[abs] = true
	p.stack = append(p.stack, abs)
	defer func() { p.stack = p.stack[:len(p.stack)-1] }()

	for _, line := range logicalLines(data) {
		target, ok := includeTarget(line)
		if !ok {
			p.line(line)
			continue
		}
		target = includePath(abs, target)
		if err := p.file(target); err != nil {
			if errors.Is(err, ErrCyclicInclude) {
				return err
			}
			p.logger.Warn("skipping requirements include", "file", target, "from", abs, "err", err)
		}
	}
	return nil
}

func (p *requirementsParser) line(line string) {
	switch {
	case line == "":
		return
	case strings.HasPrefix(line, "-"):
		// -e/--editable installs and option lines (-c, -i, --hash, ...)
		return
	case strings.HasPrefix(line, "git+"):
		name, ok := ParseGitRequirement(line)
		if !ok {
			p.logger.Debug("skipping unparseable git requirement", "line", line)
			return
		}
		p.add(deps.DependencySpec{Name: name, URL: strings.Fields(line)[0], Ecosystem: deps.Pip})
		return
	}

	// Per-requirement options such as --hash follow the requirement.
	if i := strings.Index(line, " --"); i > 0 {
		line = strings.TrimSpace(line[:i])
	}
	req, ok := ParseRequirement(line)
	if !ok {
		p.logger.Debug("skipping malformed requirement", "line", line)
		return
	}
	p.add(req.Spec(deps.Pip))
}

func (p *requirementsParser) add(spec deps.DependencySpec) {
	key := integrations.NormalizePkgName(spec.Name)
	if p.seen[key] {
		return
	}
	p.seen[key] = true
	p.out = append(p.out, spec)
}

// Spec converts r to a dependency declared in ecosystem e.
func (r Requirement) Spec(e deps.Ecosystem) deps.DependencySpec {
	return deps.DependencySpec{
		Name:       r.Name,
		Constraint: r.Specifier,
		Extras:     r.Extras,
		Marker:     r.Marker,
		URL:        r.URL,
		Ecosystem:  e,
	}
}

// logicalLines splits data into lines, joins backslash continuations and
// strips comments and surrounding whitespace.
func logicalLines(data []byte) []string {
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	var out []string
	var cur strings.Builder
	for _, raw := range strings.Split(string(data), "\n") {
		if strings.HasSuffix(raw, `\`) {
			cur.WriteString(strings.TrimSuffix(raw, `\`))
			continue
		}
		cur.WriteString(raw)
		line := commentPattern.ReplaceAllString(cur.String(), "")
		out = append(out, strings.TrimSpace(line))
		cur.Reset()
	}
	if cur.Len() > 0 {
		out = append(out, strings.TrimSpace(commentPattern.ReplaceAllString(cur.String(), "")))
	}
	return out
}

// includeTarget recognizes -r FILE, -rFILE, --requirement FILE and
// --requirement=FILE.
func includeTarget(line string) (string, bool) {
	var rest string
	switch {
	case strings.HasPrefix(line, "--requirement"):
		rest = strings.TrimPrefix(line, "--requirement")
		rest = strings.TrimPrefix(rest, "=")
	case strings.HasPrefix(line, "-r"):
		rest = strings.TrimPrefix(line, "-r")
	default:
		return "", false
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return "", false
	}
	return rest, true
}
