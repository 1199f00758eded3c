package pypi

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/matzehuels/superbom/pkg/cache"
	bomerrors "github.com/matzehuels/superbom/pkg/errors"
	"github.com/matzehuels/superbom/pkg/integrations"
)

// DefaultBaseURL is the PyPI JSON API root.
const DefaultBaseURL = "https://pypi.org/pypi"

// PackageInfo holds the license-relevant subset of a PyPI project's metadata.
//
// Name is the project name as PyPI reports it; Version is the release the
// metadata belongs to (the latest release unless a version was requested).
// All other fields may be empty.
type PackageInfo struct {
	Name              string            `json:"name"`
	Version           string            `json:"version"`
	Summary           string            `json:"summary,omitempty"`
	License           string            `json:"license,omitempty"`            // free-text license field
	LicenseExpression string            `json:"license_expression,omitempty"` // PEP 639 SPDX expression
	Classifiers       []string          `json:"classifiers,omitempty"`
	ProjectURLs       map[string]string `json:"project_urls,omitempty"`
	HomePage          string            `json:"home_page,omitempty"`
}

// Client provides access to the PyPI JSON API.
// It handles HTTP requests with caching and automatic retries.
//
// All methods are safe for concurrent use by multiple goroutines.
type Client struct {
	*integrations.Client
	baseURL string
}

// NewClient creates a PyPI client with the given cache backend.
// Responses are cached for cacheTTL; pass a [cache.NullCache] to disable.
func NewClient(backend cache.Cache, cacheTTL time.Duration) *Client {
	return &Client{
		Client:  integrations.NewClient(backend, "pypi:", cacheTTL, nil),
		baseURL: DefaultBaseURL,
	}
}

// WithBaseURL points the client at a different index (a mirror or a test server).
func (c *Client) WithBaseURL(u string) *Client {
	c.baseURL = u
	return c
}

// FetchPackage retrieves metadata for a PyPI project.
//
// When version is non-empty the release-specific document is requested
// (/pypi/<name>/<version>/json); if PyPI does not know that release the
// latest metadata is returned instead. If refresh is true, the cache is
// bypassed.
//
// Returns [integrations.ErrNotFound] if the project doesn't exist and
// [integrations.ErrNetwork] for transport failures.
func (c *Client) FetchPackage(ctx context.Context, name, version string, refresh bool) (*PackageInfo, error) {
	if err := bomerrors.ValidatePythonPackageName(name); err != nil {
		return nil, err
	}
	name = integrations.NormalizePkgName(name)

	if version != "" {
		info, err := c.fetchCached(ctx, name, version, refresh)
		if err == nil || !errors.Is(err, integrations.ErrNotFound) {
			return info, err
		}
	}
	return c.fetchCached(ctx, name, "", refresh)
}

func (c *Client) fetchCached(ctx context.Context, name, version string, refresh bool) (*PackageInfo, error) {
	key := name
	if version != "" {
		key = name + "@" + version
	}

	var info PackageInfo
	err := c.Cached(ctx, key, refresh, &info, func() error {
		return c.fetch(ctx, name, version, &info)
	})
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) fetch(ctx context.Context, name, version string, info *PackageInfo) error {
	u := fmt.Sprintf("%s/%s/json", c.baseURL, url.PathEscape(name))
	if version != "" {
		u = fmt.Sprintf("%s/%s/%s/json", c.baseURL, url.PathEscape(name), url.PathEscape(version))
	}

	var data apiResponse
	if err := c.Get(ctx, u, &data); err != nil {
		if errors.Is(err, integrations.ErrNotFound) {
			return fmt.Errorf("%w: pypi package %s", err, name)
		}
		return err
	}

	urls := make(map[string]string, len(data.Info.ProjectURLs))
	for k, v := range data.Info.ProjectURLs {
		if s, ok := v.(string); ok && s != "" {
			urls[k] = s
		}
	}

	*info = PackageInfo{
		Name:              data.Info.Name,
		Version:           data.Info.Version,
		Summary:           data.Info.Summary,
		License:           data.Info.License,
		LicenseExpression: data.Info.LicenseExpression,
		Classifiers:       data.Info.Classifiers,
		ProjectURLs:       urls,
		HomePage:          data.Info.HomePage,
	}
	return nil
}

type apiResponse struct {
	Info apiInfo `json:"info"`
}

// apiInfo mirrors the "info" object. project_urls values are decoded as any
// because some projects publish null entries.
type apiInfo struct {
	Name              string         `json:"name"`
	Version           string         `json:"version"`
	Summary           string         `json:"summary"`
	License           string         `json:"license"`
	LicenseExpression string         `json:"license_expression"`
	Classifiers       []string       `json:"classifiers"`
	ProjectURLs       map[string]any `json:"project_urls"`
	HomePage          string         `json:"home_page"`
}
