package license

import (
	"github.com/google/licensecheck"
)

// minCoverage is the share of a text that must be covered by known license
// text before a match is trusted.
const minCoverage = 75

// IdentifyText returns the SPDX identifier of the license whose text best
// covers text. It is used when a repository host could not classify a
// license file itself.
func IdentifyText(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	cov := licensecheck.Scan([]byte(text))
	if cov.Percent < minCoverage || len(cov.Match) == 0 {
		return "", false
	}
	best := cov.Match[0]
	for _, m := range cov.Match[1:] {
		if m.End-m.Start > best.End-best.Start {
			best = m
		}
	}
	if best.ID == "" {
		return "", false
	}
	return best.ID, true
}
