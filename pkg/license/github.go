package license

import (
	"context"
	"errors"
	"net/url"
	"path"
	"strings"

	"github.com/matzehuels/superbom/pkg/integrations"
	"github.com/matzehuels/superbom/pkg/integrations/github"
)

// GitHubHost is the [RepoHost] backed by the GitHub API.
type GitHubHost struct {
	client  *github.Client
	refresh bool
}

// NewGitHubHost wraps client. When refresh is true cached API responses
// are bypassed.
func NewGitHubHost(client *github.Client, refresh bool) *GitHubHost {
	return &GitHubHost{client: client, refresh: refresh}
}

// LicenseForURL implements [RepoHost].
func (h *GitHubHost) LicenseForURL(ctx context.Context, rawURL string) (string, error) {
	if owner, repo, ok := github.ParseRepoURL(rawURL); ok {
		return h.repoLicense(ctx, owner, repo)
	}
	name := lastSegment(rawURL)
	if name == "" {
		return "", nil
	}
	return h.LicenseForName(ctx, name)
}

// LicenseForName implements [RepoHost].
func (h *GitHubHost) LicenseForName(ctx context.Context, name string) (string, error) {
	owner, repo, ok, err := h.client.SearchRepo(ctx, name, h.refresh)
	if err != nil || !ok {
		return "", err
	}
	return h.repoLicense(ctx, owner, repo)
}

// repoLicense prefers GitHub's own classification and falls back to
// identifying the license file text when GitHub reports NOASSERTION.
func (h *GitHubHost) repoLicense(ctx context.Context, owner, repo string) (string, error) {
	lic, err := h.client.RepoLicense(ctx, owner, repo, h.refresh)
	if errors.Is(err, integrations.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if lic.SPDXID != "" && lic.SPDXID != github.NoAssertion {
		return lic.SPDXID, nil
	}
	if id, ok := IdentifyText(lic.Content); ok {
		return id, nil
	}
	return lic.SPDXID, nil
}

// lastSegment returns the final path element of a URL, without a .git
// suffix: "https://gitlab.com/group/project.git" yields "project".
func lastSegment(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(integrations.NormalizeRepoURL(rawURL)); err == nil && u.Host != "" {
		p = u.Path
	}
	name := path.Base(strings.Trim(p, "/"))
	name = strings.TrimSuffix(name, ".git")
	if name == "." || name == "/" {
		return ""
	}
	return name
}
