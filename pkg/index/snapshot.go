package index

import (
	"cmp"
	"encoding/json"
	"slices"
	"strings"

	bomerrors "github.com/matzehuels/superbom/pkg/errors"
)

// PackageRecord is the typed subset of one repodata entry.
//
// Only the fields superbom reads are decoded; everything else in the
// upstream document is ignored here but kept verbatim in the on-disk file.
type PackageRecord struct {
	Key           string   `json:"-"` // entry filename, e.g. "numpy-1.18.0-py_0.tar.bz2"
	Name          string   `json:"name"`
	Version       string   `json:"version"`
	Build         string   `json:"build,omitempty"`
	BuildNumber   int      `json:"build_number,omitempty"`
	License       string   `json:"license,omitempty"`
	LicenseFamily string   `json:"license_family,omitempty"`
	Depends       []string `json:"depends,omitempty"`
	Subdir        string   `json:"subdir,omitempty"`
}

// HasLicense reports whether the record declares any license field.
func (r PackageRecord) HasLicense() bool {
	return r.License != "" || r.LicenseFamily != ""
}

// Snapshot is one parsed repodata document for a (channel, platform) pair.
// The "packages" (.tar.bz2) and "packages.conda" tables are merged into one
// namespace keyed by entry filename; on a key collision the .conda entry wins.
//
// A Snapshot is immutable after [ParseSnapshot] returns and safe for
// concurrent reads.
type Snapshot struct {
	Channel  string
	Platform string
	Packages map[string]PackageRecord
}

type repodata struct {
	Packages      map[string]json.RawMessage `json:"packages"`
	PackagesConda map[string]json.RawMessage `json:"packages.conda"`
}

// ParseSnapshot decodes a repodata document. The document itself must be
// valid JSON; individual entries that do not decode are skipped.
func ParseSnapshot(channel, platform string, data []byte) (*Snapshot, error) {
	var doc repodata
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, bomerrors.Wrap(bomerrors.ErrCodeInvalidFormat, err, "repodata %s/%s", channel, platform)
	}

	s := &Snapshot{
		Channel:  channel,
		Platform: platform,
		Packages: make(map[string]PackageRecord, len(doc.Packages)+len(doc.PackagesConda)),
	}
	for _, table := range []map[string]json.RawMessage{doc.Packages, doc.PackagesConda} {
		for key, raw := range table {
			var rec PackageRecord
			if err := json.Unmarshal(raw, &rec); err != nil || rec.Name == "" {
				continue
			}
			rec.Key = key
			s.Packages[key] = rec
		}
	}
	return s, nil
}

// Len returns the number of records in the snapshot.
func (s *Snapshot) Len() int { return len(s.Packages) }

// Lookup selects the best record named name.
//
// Records whose version contains version as a substring are preferred; when
// none qualifies (or version is empty) every record with that name is a
// candidate. Candidates are ordered by version descending using plain string
// comparison, so "1.9.0" sorts above "1.18.0". Equal versions fall back to
// the entry key, ascending.
func (s *Snapshot) Lookup(name, version string) (PackageRecord, bool) {
	if s == nil || name == "" {
		return PackageRecord{}, false
	}

	var byName, byVersion []PackageRecord
	for _, rec := range s.Packages {
		if rec.Name != name {
			continue
		}
		byName = append(byName, rec)
		if version != "" && strings.Contains(rec.Version, version) {
			byVersion = append(byVersion, rec)
		}
	}

	candidates := byVersion
	if len(candidates) == 0 {
		candidates = byName
	}
	if len(candidates) == 0 {
		return PackageRecord{}, false
	}

	slices.SortFunc(candidates, func(a, b PackageRecord) int {
		if c := strings.Compare(b.Version, a.Version); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})
	return candidates[0], true
}
