// Package conda downloads package index snapshots (repodata) from a conda
// channel host such as https://conda.anaconda.org.
//
// A snapshot is addressed by channel and platform subdirectory:
//
//	GET {baseURL}/{channel}/{platform}/{file}
//
// The default file is repodata.json.bz2. Files ending in .bz2 are decoded
// with bzip2, .zst with zstd, anything else is passed through as JSON. The
// body is streamed, never buffered compressed in memory.
package conda

import (
	"compress/bzip2"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/matzehuels/superbom/pkg/buildinfo"
	bomerrors "github.com/matzehuels/superbom/pkg/errors"
	"github.com/matzehuels/superbom/pkg/httputil"
	"github.com/matzehuels/superbom/pkg/integrations"
	"github.com/matzehuels/superbom/pkg/observability"
)

const (
	// DefaultBaseURL is the anaconda.org channel host.
	DefaultBaseURL = "https://conda.anaconda.org"

	// DefaultFile is the snapshot file requested per channel/platform.
	DefaultFile = "repodata.json.bz2"
)

// Files lists the snapshot file names a channel host serves.
var Files = []string{"repodata.json", "repodata.json.bz2", "repodata.json.zst"}

// Stats describes one finished download.
type Stats struct {
	URL           string
	ContentLength int64 // declared by the server, -1 when absent
	Received      int64 // compressed bytes actually read
	Decoded       int64 // bytes written after decompression
	Duration      time.Duration
}

// LengthMismatch reports whether the server declared a length that differs
// from what was received.
func (s Stats) LengthMismatch() bool {
	return s.ContentLength >= 0 && s.ContentLength != s.Received
}

// Client fetches repodata snapshots.
type Client struct {
	http     *http.Client
	baseURL  string
	file     string
	progress func(url string, received int64)
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets the channel host.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithFile sets the snapshot file name (e.g. "repodata.json.zst").
func WithFile(name string) Option {
	return func(c *Client) { c.file = name }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithProgress registers a callback invoked as compressed bytes arrive.
func WithProgress(fn func(url string, received int64)) Option {
	return func(c *Client) { c.progress = fn }
}

// NewClient creates a repodata client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http:    integrations.NewHTTPClient(integrations.DownloadTimeout),
		baseURL: DefaultBaseURL,
		file:    DefaultFile,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// URL returns the snapshot URL for channel and platform.
func (c *Client) URL(channel, platform string) string {
	return fmt.Sprintf("%s/%s/%s/%s", c.baseURL, channel, platform, c.file)
}

// Fetch downloads the snapshot for channel/platform, decompresses it, and
// writes the decoded JSON to w.
//
// A 404 yields [integrations.ErrNotFound]. Transport failures and 5xx
// responses yield [integrations.ErrNetwork] and are retried up to three
// times; a retry only happens before any byte reached w. A corrupt
// compressed stream yields an error with code DECOMPRESS.
func (c *Client) Fetch(ctx context.Context, channel, platform string, w io.Writer) (Stats, error) {
	var stats Stats
	err := httputil.RetryWithBackoff(ctx, func() error {
		var err error
		stats, err = c.fetchOnce(ctx, channel, platform, w)
		return err
	})
	return stats, err
}

func (c *Client) fetchOnce(ctx context.Context, channel, platform string, w io.Writer) (Stats, error) {
	url := c.URL(channel, platform)
	stats := Stats{URL: url, ContentLength: -1}
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return stats, err
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent())

	hooks := observability.HTTP()
	hooks.OnRequest(ctx, req.Method, req.URL.Host, req.URL.Path)

	resp, err := c.http.Do(req)
	if err != nil {
		hooks.OnError(ctx, req.Method, req.URL.Host, req.URL.Path, err)
		return stats, httputil.Retryable(fmt.Errorf("%w: %v", integrations.ErrNetwork, err))
	}
	defer resp.Body.Close()
	hooks.OnResponse(ctx, req.Method, req.URL.Host, req.URL.Path, resp.StatusCode, time.Since(start))

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return stats, fmt.Errorf("%w: %s", integrations.ErrNotFound, url)
	case resp.StatusCode >= 500:
		return stats, httputil.Retryable(fmt.Errorf("%w: status %d", integrations.ErrNetwork, resp.StatusCode))
	default:
		return stats, fmt.Errorf("%w: status %d", integrations.ErrNetwork, resp.StatusCode)
	}
	stats.ContentLength = resp.ContentLength

	counter := &httputil.CountingReader{R: resp.Body}
	if c.progress != nil {
		counter.Progress = func(n int64) { c.progress(url, n) }
	}

	body, closeBody, err := decoder(c.file, counter)
	if err != nil {
		return stats, bomerrors.Wrap(bomerrors.ErrCodeDecompress, err, "open %s", url)
	}
	defer closeBody()

	n, err := io.Copy(w, body)
	stats.Decoded = n
	stats.Received = counter.N
	stats.Duration = time.Since(start)
	if err != nil {
		if counter.Err != nil || ctx.Err() != nil {
			return stats, fmt.Errorf("%w: %v", integrations.ErrNetwork, err)
		}
		return stats, bomerrors.Wrap(bomerrors.ErrCodeDecompress, err, "decode %s", url)
	}
	return stats, nil
}

// decoder wraps r with the decompressor matching the file suffix.
func decoder(file string, r io.Reader) (io.Reader, func(), error) {
	switch {
	case strings.HasSuffix(file, ".bz2"):
		return bzip2.NewReader(r), func() {}, nil
	case strings.HasSuffix(file, ".zst"):
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, zr.Close, nil
	default:
		return r, func() {}, nil
	}
}
