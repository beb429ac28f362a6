// Package fetch downloads provider archives into the download cache with
// retry/back-off and the same redirect/SSRF hardening the version resolver
// applies (spec §4.5, §4.11). Every download lands via a temp-file-then-
// rename so a half-written file is never mistaken for a cached one.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/vx-dev/vx/internal/vxpath"
)

const userAgent = "vx-version-manager"

// Client downloads URLs into a cache directory, reusing a file already
// cached for the same URL (found by its content-addressed filename).
// Concurrent requests for one URL are not coordinated; each downloads.
type Client struct {
	http      *retryablehttp.Client
	cacheDir  string
	userAgent string
}

// Options configures a Client.
type Options struct {
	CacheDir   string
	RetryMax   int
	Timeout    time.Duration
	UserAgent  string
}

// New builds a Client. Zero-value Options fields take the same defaults as
// the version resolver's hardened transport (vxpath.GetAPITimeout, 3 retries).
func New(opts Options) *Client {
	if opts.RetryMax == 0 {
		opts.RetryMax = 3
	}
	if opts.Timeout == 0 {
		opts.Timeout = vxpath.GetAPITimeout()
	}
	if opts.UserAgent == "" {
		opts.UserAgent = userAgent
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.RetryMax
	retryClient.Logger = nil
	retryClient.HTTPClient = newHardenedHTTPClient(opts.Timeout)

	return &Client{http: retryClient, cacheDir: opts.CacheDir, userAgent: opts.UserAgent}
}

// newHardenedHTTPClient mirrors the provider registry's GitHub client
// hardening: redirects are restricted to HTTPS, bounded in count, and
// blocked from resolving to private/loopback/link-local addresses.
func newHardenedHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if req.URL.Scheme != "https" {
				return fmt.Errorf("refusing redirect to non-HTTPS URL: %s", req.URL)
			}
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects")
			}
			host := req.URL.Hostname()
			if ip := net.ParseIP(host); ip != nil {
				return validateIP(ip, host)
			}
			ips, err := net.LookupIP(host)
			if err != nil {
				return fmt.Errorf("resolve redirect host %s: %w", host, err)
			}
			for _, ip := range ips {
				if err := validateIP(ip, host); err != nil {
					return fmt.Errorf("refusing redirect: %s resolves to blocked IP %s", host, ip)
				}
			}
			return nil
		},
	}
}

func validateIP(ip net.IP, host string) error {
	if ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return fmt.Errorf("refusing redirect to non-public IP: %s (%s)", host, ip)
	}
	return nil
}

// CacheKey derives the download cache filename for a URL: a content hash of
// the URL itself plus its original basename, so cached files stay
// human-recognisable while remaining collision-resistant across providers
// that might otherwise share a basename (e.g. two "archive.tar.gz" URLs).
func CacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:8]) + "-" + filepath.Base(url)
}

// Download fetches url into the client's cache directory and returns the
// local path. A pre-existing cached file for the same URL is reused without
// a network round-trip.
func (c *Client) Download(ctx context.Context, url string) (string, error) {
	dest := filepath.Join(c.cacheDir, CacheKey(url))
	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		return dest, nil
	}

	if err := os.MkdirAll(c.cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("create download cache dir: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("download %s: unexpected status %d", url, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(c.cacheDir, ".download-*")
	if err != nil {
		return "", fmt.Errorf("create temp download file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("write download %s: %w", url, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("close download %s: %w", url, err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("finalize download %s: %w", url, err)
	}
	return dest, nil
}
