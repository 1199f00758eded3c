package license

import (
	"strings"

	"github.com/matzehuels/superbom/pkg/index"
	"github.com/matzehuels/superbom/pkg/integrations/pypi"
)

// Origin is the upstream schema a [Metadata] value was built from.
type Origin string

const (
	OriginConda Origin = "conda"
	OriginPyPI  Origin = "pypi"
)

// Metadata is the license-relevant view of one package, independent of the
// registry it came from. Build it with [CondaMetadata] or [PyPIMetadata].
type Metadata struct {
	Name        string
	Origin      Origin
	Declared    string            // declared license field, "" when absent
	Classifiers []string          // trove classifiers (PyPI only)
	ProjectURLs map[string]string // label -> URL (PyPI only)
}

// CondaMetadata maps a repodata record: the license field, or the license
// family when the record only carries that.
func CondaMetadata(rec index.PackageRecord) Metadata {
	declared := rec.License
	if declared == "" {
		declared = rec.LicenseFamily
	}
	return Metadata{
		Name:     rec.Name,
		Origin:   OriginConda,
		Declared: strings.TrimSpace(declared),
	}
}

// PyPIMetadata maps PyPI project info. The PEP 639 license_expression is
// preferred over the free-text license field. A license field holding a
// whole license text is reduced to the identifier it matches, or dropped.
func PyPIMetadata(info *pypi.PackageInfo) Metadata {
	if info == nil {
		return Metadata{Origin: OriginPyPI}
	}
	declared := strings.TrimSpace(info.LicenseExpression)
	if declared == "" {
		declared = strings.TrimSpace(info.License)
		if strings.Contains(declared, "\n") {
			declared, _ = IdentifyText(declared)
		}
	}
	return Metadata{
		Name:        info.Name,
		Origin:      OriginPyPI,
		Declared:    declared,
		Classifiers: info.Classifiers,
		ProjectURLs: info.ProjectURLs,
	}
}
