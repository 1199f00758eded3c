package github

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/matzehuels/superbom/pkg/cache"
	"github.com/matzehuels/superbom/pkg/integrations"
)

// DefaultBaseURL is the GitHub REST API root.
const DefaultBaseURL = "https://api.github.com"

var repoURLPattern = regexp.MustCompile(`^https?://(?:www\.)?github\.com/([^/]+)/([^/?#]+?)(?:\.git)?(?:[/?#]|$)`)

// Client provides access to the GitHub API for repository search and
// license lookups. It handles caching, retries, and optional authentication.
type Client struct {
	*integrations.Client
	baseURL string
}

// NewClient creates a GitHub API client.
// Pass an empty token for unauthenticated requests (60 requests/hour).
func NewClient(backend cache.Cache, token string, cacheTTL time.Duration) *Client {
	headers := map[string]string{
		"Accept":               "application/vnd.github+json",
		"X-GitHub-Api-Version": "2022-11-28",
	}
	if token != "" {
		headers["Authorization"] = "Bearer " + token
	}
	return &Client{
		Client:  integrations.NewClient(backend, "github:", cacheTTL, headers),
		baseURL: DefaultBaseURL,
	}
}

// WithBaseURL points the client at a different API root (GitHub Enterprise or a test server).
func (c *Client) WithBaseURL(u string) *Client {
	c.baseURL = strings.TrimSuffix(u, "/")
	return c
}

// SearchRepo finds the repository whose name equals name (case-insensitive)
// among the results of a name search. The name "python" is never searched:
// it matches the CPython mirror, which is not what a dependency named python
// refers to.
func (c *Client) SearchRepo(ctx context.Context, name string, refresh bool) (owner, repo string, ok bool, err error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "python") {
		return "", "", false, nil
	}

	var result searchResult
	err = c.Cached(ctx, "search:"+strings.ToLower(name), refresh, &result, func() error {
		return c.search(ctx, name, &result)
	})
	if err != nil {
		return "", "", false, err
	}
	return result.Owner, result.Repo, result.Found, nil
}

func (c *Client) search(ctx context.Context, name string, result *searchResult) error {
	url := fmt.Sprintf("%s/search/repositories?q=%s+in:name", c.baseURL, integrations.URLEncode(name))

	var data searchResponse
	if err := c.Get(ctx, url, &data); err != nil {
		return err
	}
	*result = searchResult{}
	for _, item := range data.Items {
		if strings.EqualFold(item.Name, name) {
			*result = searchResult{Owner: item.Owner.Login, Repo: item.Name, Found: true}
			return nil
		}
	}
	return nil
}

// RepoLicense returns the license GitHub detected for owner/repo.
// Content holds the decoded license file text when GitHub included it.
// Returns [integrations.ErrNotFound] when the repository has no license
// file or does not exist.
func (c *Client) RepoLicense(ctx context.Context, owner, repo string, refresh bool) (*License, error) {
	if err := ValidateRepoRef(owner, repo); err != nil {
		return nil, err
	}

	var lic License
	err := c.Cached(ctx, "license:"+owner+"/"+repo, refresh, &lic, func() error {
		return c.fetchLicense(ctx, owner, repo, &lic)
	})
	if err != nil {
		return nil, err
	}
	return &lic, nil
}

func (c *Client) fetchLicense(ctx context.Context, owner, repo string, lic *License) error {
	url := fmt.Sprintf("%s/repos/%s/%s/license", c.baseURL, owner, repo)

	var data licenseResponse
	if err := c.Get(ctx, url, &data); err != nil {
		if errors.Is(err, integrations.ErrNotFound) {
			return fmt.Errorf("%w: github license %s/%s", err, owner, repo)
		}
		return err
	}

	*lic = License{
		SPDXID: data.License.SPDXID,
		Name:   data.License.Name,
	}
	if data.Encoding == "base64" && data.Content != "" {
		// GitHub wraps base64 content at 60 columns.
		text, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(data.Content, "\n", ""))
		if err == nil {
			lic.Content = string(text)
		}
	}
	return nil
}

// ParseRepoURL extracts owner and repo from a GitHub repository URL in any
// of the usual spellings (https, git@, git+https, .git suffix, deep links).
func ParseRepoURL(raw string) (owner, repo string, ok bool) {
	m := repoURLPattern.FindStringSubmatch(integrations.NormalizeRepoURL(raw))
	if len(m) < 3 {
		return "", "", false
	}
	if ValidateRepoRef(m[1], m[2]) != nil {
		return "", "", false
	}
	return m[1], m[2], true
}
