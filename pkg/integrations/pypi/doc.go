// Package pypi provides an HTTP client for the Python Package Index JSON API.
//
// # Usage
//
//	client := pypi.NewClient(backend, 24*time.Hour)
//	info, err := client.FetchPackage(ctx, "requests", "2.31.0", false)
//	if errors.Is(err, integrations.ErrNotFound) {
//	    // not on PyPI
//	}
//	fmt.Println(info.License, info.Classifiers)
//
// # PackageInfo
//
// [PackageInfo] keeps only what license resolution reads: the free-text
// license field, the PEP 639 license_expression, the trove classifiers and
// the project URLs. Null project URLs are dropped.
//
// # Caching
//
// Responses are cached per name and per name@version through the shared
// [integrations.Client]. Pass refresh=true to bypass the cache.
package pypi
