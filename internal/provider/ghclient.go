package provider

import "github.com/google/go-github/v57/github"

// ghClient holds the shared *github.Client backing every GithubClientSource
// lookup so native providers don't each open their own HTTP transport.
type ghClient struct {
	c *github.Client
}

func newGhClient(token string) *ghClient {
	return &ghClient{c: NewGitHubClient(token)}
}
