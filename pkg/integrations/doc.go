// Package integrations provides HTTP clients for the remote services superbom
// consults while resolving a BOM.
//
// Each service has its own subpackage:
//
//   - [conda]: package index snapshots (repodata) from a conda channel host
//   - [pypi]: project metadata from the Python Package Index
//   - [github]: repository search and declared licenses
//
// # Shared Infrastructure
//
// [Client] provides what the JSON API clients share: default headers
// (including a User-Agent), retry with backoff for transient failures, and
// response caching through a [cache.Cache] backend:
//
//	c := integrations.NewClient(backend, "pypi:", 24*time.Hour, nil)
//	err := c.Cached(ctx, "requests", false, &info, func() error {
//	    return c.Get(ctx, url, &info)
//	})
//
// # Errors
//
// Clients report [ErrNotFound] for 404 responses and [ErrNetwork] for
// everything else that went wrong on the wire. Network errors and 5xx
// responses are wrapped in [httputil.RetryableError].
//
// [conda]: github.com/matzehuels/superbom/pkg/integrations/conda
// [pypi]: github.com/matzehuels/superbom/pkg/integrations/pypi
// [github]: github.com/matzehuels/superbom/pkg/integrations/github
package integrations
