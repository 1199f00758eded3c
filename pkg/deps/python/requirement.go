package python

import (
	"regexp"
	"slices"
	"strings"
)

// Requirement is a parsed PEP 508 requirement string.
type Requirement struct {
	Name      string   // as written
	Extras    []string // sorted, deduplicated
	Specifier string   // comma-joined clauses without spaces, e.g. ">=2.0,<3"
	URL       string   // direct reference after "@"
	Marker    string   // normalized environment marker
}

var (
	namePattern   = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?`)
	extraPattern  = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?$`)
	clausePattern = regexp.MustCompile(`^(===|~=|==|!=|<=|>=|<|>)\s*([A-Za-z0-9][A-Za-z0-9.*+!_-]*)$`)
)

// ParseRequirement parses name[extras] specifier ; marker, the name @ url
// form, and the legacy parenthesized form name (>=1.0). It reports false
// for anything that is not a well-formed requirement; it never panics.
func ParseRequirement(s string) (Requirement, bool) {
	s = strings.TrimSpace(s)
	name := namePattern.FindString(s)
	if name == "" {
		return Requirement{}, false
	}
	req := Requirement{Name: name}
	rest := strings.TrimLeft(s[len(name):], " \t")

	if strings.HasPrefix(rest, "[") {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return Requirement{}, false
		}
		extras, ok := parseExtras(rest[1:end])
		if !ok {
			return Requirement{}, false
		}
		req.Extras = extras
		rest = strings.TrimLeft(rest[end+1:], " \t")
	}

	var marker string
	hasMarker := false
	switch {
	case strings.HasPrefix(rest, "@"):
		rest = strings.TrimLeft(rest[1:], " \t")
		url, after, _ := strings.Cut(rest, " ")
		if url == "" || !strings.Contains(url, ":") {
			return Requirement{}, false
		}
		req.URL = url
		after = strings.TrimSpace(after)
		if after != "" {
			if !strings.HasPrefix(after, ";") {
				return Requirement{}, false
			}
			marker, hasMarker = after[1:], true
		}
	default:
		spec := rest
		if i := strings.IndexByte(rest, ';'); i >= 0 {
			spec, marker, hasMarker = rest[:i], rest[i+1:], true
		}
		spec = strings.TrimSpace(spec)
		if strings.HasPrefix(spec, "(") {
			if !strings.HasSuffix(spec, ")") {
				return Requirement{}, false
			}
			spec = spec[1 : len(spec)-1]
		}
		normalized, ok := normalizeSpecifier(spec)
		if !ok {
			return Requirement{}, false
		}
		req.Specifier = normalized
	}

	if hasMarker {
		m, ok := ParseMarker(marker)
		if !ok {
			return Requirement{}, false
		}
		req.Marker = m
	}
	return req, true
}

func parseExtras(s string) ([]string, bool) {
	var extras []string
	for _, e := range strings.Split(s, ",") {
		e = strings.TrimSpace(e)
		if e == "" {
			if strings.TrimSpace(s) == "" {
				return nil, true
			}
			return nil, false
		}
		if !extraPattern.MatchString(e) {
			return nil, false
		}
		extras = append(extras, strings.ToLower(e))
	}
	slices.Sort(extras)
	return slices.Compact(extras), true
}

// normalizeSpecifier validates a comma-separated list of version clauses
// and rejoins it without whitespace.
func normalizeSpecifier(s string) (string, bool) {
	if strings.TrimSpace(s) == "" {
		return "", true
	}
	parts := strings.Split(s, ",")
	for i, p := range parts {
		m := clausePattern.FindStringSubmatch(strings.TrimSpace(p))
		if m == nil {
			return "", false
		}
		if strings.Contains(m[2], "*") && m[1] != "==" && m[1] != "!=" {
			return "", false
		}
		parts[i] = m[1] + m[2]
	}
	return strings.Join(parts, ","), true
}

// exactPin returns the version of a single "==X" clause without wildcards,
// or "" for any other specifier.
func exactPin(spec string) string {
	if !strings.HasPrefix(spec, "==") || strings.HasPrefix(spec, "===") {
		return ""
	}
	v := spec[2:]
	if strings.ContainsAny(v, ",*") {
		return ""
	}
	return v
}
