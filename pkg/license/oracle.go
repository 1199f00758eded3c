package license

import (
	"strings"

	"github.com/github/go-spdx/v2/spdxexp"
	lru "github.com/hashicorp/golang-lru/v2"

	bomerrors "github.com/matzehuels/superbom/pkg/errors"
)

// Verdict is an oracle's answer for one license string.
type Verdict struct {
	Supported bool   `json:"supported"` // valid SPDX and allowed by policy
	Canonical string `json:"canonical"` // SPDX form when known, else the input trimmed
}

// Oracle decides whether a free-text license string is an acceptable SPDX
// license and returns its canonical spelling.
type Oracle interface {
	Check(text string) Verdict
}

const oracleCacheSize = 4096

// SPDXOracle is an [Oracle] backed by the SPDX license list.
//
// Common free-text spellings ("Apache Software License", "BSD License",
// "GPLv3") are mapped to SPDX identifiers before validation. When an
// allowed list is configured, a valid expression is only supported if it
// satisfies that list (so "MIT OR GPL-3.0-only" passes an allow-list of
// ["MIT"]).
//
// SPDXOracle is safe for concurrent use.
type SPDXOracle struct {
	allowed []string
	cache   *lru.Cache[string, Verdict]
}

// NewSPDXOracle creates an oracle. Every entry of allowed must itself be a
// valid SPDX identifier; an empty list allows every valid expression.
func NewSPDXOracle(allowed []string) (*SPDXOracle, error) {
	var clean []string
	for _, a := range allowed {
		if a = strings.TrimSpace(a); a != "" {
			clean = append(clean, a)
		}
	}
	if len(clean) > 0 {
		if ok, invalid := spdxexp.ValidateLicenses(clean); !ok {
			return nil, bomerrors.New(bomerrors.ErrCodeInvalidConfig, "invalid allowed licenses: %s", strings.Join(invalid, ", "))
		}
	}
	cache, err := lru.New[string, Verdict](oracleCacheSize)
	if err != nil {
		return nil, err
	}
	return &SPDXOracle{allowed: clean, cache: cache}, nil
}

// Allowed returns the configured allow-list.
func (o *SPDXOracle) Allowed() []string { return append([]string(nil), o.allowed...) }

// Check implements [Oracle].
func (o *SPDXOracle) Check(text string) Verdict {
	text = strings.TrimSpace(text)
	if text == "" {
		return Verdict{}
	}
	if v, ok := o.cache.Get(text); ok {
		return v
	}
	v := o.check(text)
	o.cache.Add(text, v)
	return v
}

func (o *SPDXOracle) check(text string) Verdict {
	candidate := text
	if id, ok := lookupAlias(text); ok {
		candidate = id
	}
	if ok, _ := spdxexp.ValidateLicenses([]string{candidate}); !ok {
		return Verdict{Canonical: text}
	}
	candidate = canonicalCase(candidate)

	if len(o.allowed) == 0 {
		return Verdict{Supported: true, Canonical: candidate}
	}
	ok, err := spdxexp.Satisfies(candidate, o.allowed)
	return Verdict{Supported: err == nil && ok, Canonical: candidate}
}

// canonicalCase replaces a single license identifier with the spelling
// the SPDX list uses ("mit" becomes "MIT"). Compound expressions are
// returned unchanged.
func canonicalCase(expr string) string {
	ids, err := spdxexp.ExtractLicenses(expr)
	if err != nil || len(ids) != 1 {
		return expr
	}
	if strings.EqualFold(ids[0], expr) {
		return ids[0]
	}
	return expr
}

// aliases maps normalized free-text spellings found in package metadata
// to SPDX identifiers.
var aliases = map[string]string{
	"mit license":                           "MIT",
	"the mit license":                       "MIT",
	"mit/x11":                               "MIT",
	"expat":                                 "MIT",
	"apache":                                "Apache-2.0",
	"apache 2":                              "Apache-2.0",
	"apache 2.0":                            "Apache-2.0",
	"apache-2":                              "Apache-2.0",
	"apache license 2.0":                    "Apache-2.0",
	"apache license, version 2.0":           "Apache-2.0",
	"apache license version 2.0":            "Apache-2.0",
	"apache software license":               "Apache-2.0",
	"apache software license 2.0":           "Apache-2.0",
	"apache 2.0 license":                    "Apache-2.0",
	"bsd":                                   "BSD-3-Clause",
	"bsd license":                           "BSD-3-Clause",
	"new bsd":                               "BSD-3-Clause",
	"new bsd license":                       "BSD-3-Clause",
	"modified bsd":                          "BSD-3-Clause",
	"bsd 3-clause":                          "BSD-3-Clause",
	"bsd-3":                                 "BSD-3-Clause",
	"3-clause bsd":                          "BSD-3-Clause",
	"bsd 3-clause license":                  "BSD-3-Clause",
	"bsd 2-clause":                          "BSD-2-Clause",
	"bsd-2":                                 "BSD-2-Clause",
	"simplified bsd":                        "BSD-2-Clause",
	"gplv2":                                 "GPL-2.0-only",
	"gpl-2":                                 "GPL-2.0-only",
	"gnu general public license v2 (gplv2)": "GPL-2.0-only",
	"gplv2+":                                "GPL-2.0-or-later",
	"gnu general public license v2 or later (gplv2+)": "GPL-2.0-or-later",
	"gplv3":                                 "GPL-3.0-only",
	"gpl-3":                                 "GPL-3.0-only",
	"gnu general public license v3 (gplv3)": "GPL-3.0-only",
	"gplv3+":                                "GPL-3.0-or-later",
	"gnu general public license v3 or later (gplv3+)": "GPL-3.0-or-later",
	"lgplv2": "LGPL-2.1-only",
	"gnu lesser general public license v2 (lgplv2)": "LGPL-2.1-only",
	"lgplv3": "LGPL-3.0-only",
	"gnu lesser general public license v3 (lgplv3)": "LGPL-3.0-only",
	"lgplv3+": "LGPL-3.0-or-later",
	"gnu lesser general public license v3 or later (lgplv3+)": "LGPL-3.0-or-later",
	"mpl 2.0":                              "MPL-2.0",
	"mozilla public license 2.0 (mpl 2.0)": "MPL-2.0",
	"isc license":                          "ISC",
	"isc license (iscl)":                   "ISC",
	"psf":                                  "PSF-2.0",
	"psf license":                          "PSF-2.0",
	"python software foundation license":   "PSF-2.0",
	"unlicense":                            "Unlicense",
	"the unlicense (unlicense)":            "Unlicense",
	"zlib/libpng license":                  "Zlib",
	"historical permission notice and disclaimer (hpnd)":   "HPND",
	"eclipse public license 2.0 (epl-2.0)":                 "EPL-2.0",
	"boost software license 1.0 (bsl-1.0)":                 "BSL-1.0",
	"cc0 1.0 universal (cc0 1.0) public domain dedication": "CC0-1.0",
}

// lookupAlias normalizes text (case, whitespace, a trailing period) and
// looks it up in the alias table.
func lookupAlias(text string) (string, bool) {
	key := strings.ToLower(strings.Join(strings.Fields(text), " "))
	key = strings.TrimSuffix(key, ".")
	id, ok := aliases[key]
	return id, ok
}
