package python

import (
	"strings"
)

// ParseGitRequirement returns the package name of a git+ requirement line.
//
// An explicit #egg=NAME fragment wins. Otherwise the name is the last path
// segment of the URL with any @ref, .git suffix, query and fragment
// removed: git+https://github.com/user/repo.git@v1.0 yields "repo". Lines
// that are not git+ URLs, or yield no valid name, report false.
func ParseGitRequirement(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "git+") {
		return "", false
	}
	if f := strings.Fields(line); len(f) > 0 {
		line = f[0]
	}

	if _, frag, ok := strings.Cut(line, "#"); ok {
		for _, param := range strings.Split(frag, "&") {
			if egg, ok := strings.CutPrefix(param, "egg="); ok {
				if i := strings.IndexAny(egg, "[=<>!~"); i >= 0 {
					egg = egg[:i]
				}
				return validName(egg)
			}
		}
	}

	u := line
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	u = strings.TrimRight(u, "/")
	slash := strings.LastIndexByte(u, '/')
	if slash < 0 || strings.HasSuffix(u[:slash], ":/") || strings.HasSuffix(u[:slash], ":") {
		return "", false
	}
	seg := u[slash+1:]
	if i := strings.IndexByte(seg, '@'); i >= 0 {
		seg = seg[:i]
	}
	return validName(strings.TrimSuffix(seg, ".git"))
}

func validName(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" || namePattern.FindString(s) != s {
		return "", false
	}
	return s, true
}
