package python

import (
	"slices"
	"strings"
)

// markerVariables are the environment markers PEP 508 defines.
var markerVariables = []string{
	"python_version", "python_full_version", "os_name", "sys_platform",
	"platform_release", "platform_system", "platform_version",
	"platform_machine", "platform_python_implementation",
	"implementation_name", "implementation_version", "extra",
	// legacy spellings still found in the wild
	"os.name", "sys.platform", "platform.version", "platform.machine",
	"platform.python_implementation", "python_implementation",
}

var markerOps = []string{"===", "==", "!=", "<=", ">=", "~=", "<", ">", "in", "not in"}

// ParseMarker validates a PEP 508 environment marker and returns it in a
// normalized spelling: single spaces around operators, double-quoted
// strings. `python_version<'3.8'` becomes `python_version < "3.8"`.
func ParseMarker(s string) (string, bool) {
	toks, ok := tokenizeMarker(s)
	if !ok || len(toks) == 0 {
		return "", false
	}
	p := &markerParser{toks: toks}
	out, ok := p.or()
	if !ok || p.pos != len(p.toks) {
		return "", false
	}
	return out, true
}

type markerToken struct {
	text   string
	quoted bool
}

func tokenizeMarker(s string) ([]markerToken, bool) {
	var toks []markerToken
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '(' || c == ')':
			toks = append(toks, markerToken{text: string(c)})
			i++
		case c == '"' || c == '\'':
			end := strings.IndexByte(s[i+1:], c)
			if end < 0 {
				return nil, false
			}
			toks = append(toks, markerToken{text: s[i+1 : i+1+end], quoted: true})
			i += end + 2
		case strings.IndexByte("<>=!~", c) >= 0:
			j := i
			for j < len(s) && strings.IndexByte("<>=!~", s[j]) >= 0 {
				j++
			}
			toks = append(toks, markerToken{text: s[i:j]})
			i = j
		default:
			j := i
			for j < len(s) && strings.IndexByte(" \t()\"'<>=!~", s[j]) < 0 {
				j++
			}
			toks = append(toks, markerToken{text: s[i:j]})
			i = j
		}
	}
	return toks, true
}

type markerParser struct {
	toks []markerToken
	pos  int
}

func (p *markerParser) peek() (markerToken, bool) {
	if p.pos >= len(p.toks) {
		return markerToken{}, false
	}
	return p.toks[p.pos], true
}

func (p *markerParser) keyword(word string) bool {
	t, ok := p.peek()
	if ok && !t.quoted && t.text == word {
		p.pos++
		return true
	}
	return false
}

func (p *markerParser) or() (string, bool) {
	left, ok := p.and()
	if !ok {
		return "", false
	}
	for p.keyword("or") {
		right, ok := p.and()
		if !ok {
			return "", false
		}
		left += " or " + right
	}
	return left, true
}

func (p *markerParser) and() (string, bool) {
	left, ok := p.expr()
	if !ok {
		return "", false
	}
	for p.keyword("and") {
		right, ok := p.expr()
		if !ok {
			return "", false
		}
		left += " and " + right
	}
	return left, true
}

func (p *markerParser) expr() (string, bool) {
	if p.keyword("(") {
		inner, ok := p.or()
		if !ok || !p.keyword(")") {
			return "", false
		}
		return "(" + inner + ")", true
	}
	left, ok := p.value()
	if !ok {
		return "", false
	}
	op, ok := p.op()
	if !ok {
		return "", false
	}
	right, ok := p.value()
	if !ok {
		return "", false
	}
	return left + " " + op + " " + right, true
}

func (p *markerParser) value() (string, bool) {
	t, ok := p.peek()
	if !ok {
		return "", false
	}
	if t.quoted {
		if strings.ContainsRune(t.text, '"') {
			return "", false
		}
		p.pos++
		return `"` + t.text + `"`, true
	}
	if slices.Contains(markerVariables, t.text) {
		p.pos++
		return t.text, true
	}
	return "", false
}

func (p *markerParser) op() (string, bool) {
	if p.keyword("not") {
		if p.keyword("in") {
			return "not in", true
		}
		return "", false
	}
	t, ok := p.peek()
	if !ok || t.quoted || !slices.Contains(markerOps, t.text) {
		return "", false
	}
	p.pos++
	return t.text, true
}
