// Package github provides an HTTP client for the GitHub REST API.
//
// superbom uses GitHub as the last resort for license information: when a
// package's registry metadata does not carry a usable license, the package's
// source repository usually does.
//
// # Usage
//
//	client := github.NewClient(backend, os.Getenv("GITHUB_TOKEN"), 24*time.Hour)
//
//	owner, repo, ok := github.ParseRepoURL("https://github.com/psf/requests")
//	if !ok {
//	    owner, repo, ok, err = client.SearchRepo(ctx, "requests", false)
//	}
//	lic, err := client.RepoLicense(ctx, owner, repo, false)
//	fmt.Println(lic.SPDXID) // "Apache-2.0"
//
// # Authentication
//
// A token is optional but recommended. Without one the API allows 60
// requests/hour, and search is limited further. Exhausted quotas surface as
// [errors.RateLimitedError].
//
// # Unclassified licenses
//
// GitHub reports spdx_id "NOASSERTION" for license files it cannot match.
// [License.Content] then still carries the decoded file so callers can run
// their own text classification.
//
// [errors.RateLimitedError]: github.com/matzehuels/superbom/pkg/errors.RateLimitedError
package github
