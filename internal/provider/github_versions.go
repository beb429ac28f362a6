package provider

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/vx-dev/vx/internal/vxpath"
)

// newHardenedHTTPClient builds an http.Client with the SSRF/redirect
// hardening the teacher applies to all outbound version-resolution
// traffic (internal/version/resolver.go's newHTTPClient/validateIP),
// adapted here for the GitHub release/tag lookups the native providers use.
func newHardenedHTTPClient() *http.Client {
	return &http.Client{
		Timeout: vxpath.GetAPITimeout(),
		Transport: &http.Transport{
			DisableCompression: true,
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

// NewGitHubClient builds a go-github client over the hardened transport,
// authenticated with the given token when non-empty (VX_GITHUB_TOKEN).
func NewGitHubClient(token string) *github.Client {
	httpClient := newHardenedHTTPClient()
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient.Transport = &oauth2.Transport{Source: ts, Base: httpClient.Transport}
	}
	return github.NewClient(httpClient)
}

// GitHubVersionSource lists versions from a GitHub repo's releases/tags,
// optionally stripping a leading tag prefix (e.g. "go" for golang/go's
// "go1.22.0" tags, "v" being handled implicitly by semver normalization).
type GitHubVersionSource struct {
	Client    *github.Client
	Repo      string // "owner/repo"
	TagPrefix string
}

var prereleaseRe = regexp.MustCompile(`(?i)(alpha|beta|rc|preview|dev|nightly)`)

// ListVersions returns every release tag, newest-first by semver comparison.
func (s *GitHubVersionSource) ListVersions(ctx context.Context) ([]VersionInfo, error) {
	parts := strings.SplitN(s.Repo, "/", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid github repo %q, want owner/repo", s.Repo)
	}
	opt := &github.ListOptions{PerPage: 100}
	var out []VersionInfo
	for {
		releases, resp, err := s.Client.Repositories.ListReleases(ctx, parts[0], parts[1], opt)
		if err != nil {
			return nil, fmt.Errorf("list releases for %s: %w", s.Repo, err)
		}
		for _, rel := range releases {
			tag := rel.GetTagName()
			v := strings.TrimPrefix(tag, s.TagPrefix)
			out = append(out, VersionInfo{
				Version:    NormalizeVersion(v),
				Prerelease: rel.GetPrerelease() || prereleaseRe.MatchString(v),
				Stable:     !rel.GetPrerelease() && !prereleaseRe.MatchString(v),
				Date:       rel.GetPublishedAt().Format(time.RFC3339),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}
	SortVersionsDescending(out)
	return out, nil
}

// NormalizeVersion strips a leading "v" so comparisons are purely numeric.
func NormalizeVersion(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "v")
}

// SortVersionsDescending sorts VersionInfo newest-first using semver where
// possible, falling back to lexical comparison for non-semver tags.
func SortVersionsDescending(versions []VersionInfo) {
	sort.SliceStable(versions, func(i, j int) bool {
		vi, erri := semver.NewVersion(versions[i].Version)
		vj, errj := semver.NewVersion(versions[j].Version)
		if erri == nil && errj == nil {
			return vi.GreaterThan(vj)
		}
		return versions[i].Version > versions[j].Version
	})
}
