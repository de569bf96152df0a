package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Repository identity grammar of the host. Owners follow the GitHub login
// rules (39 chars, no leading/trailing hyphen); names allow dots,
// underscores, and hyphens. Identities failing these checks are rejected
// before any network call to prevent lookalike spoofing.
var (
	ownerPattern    = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,38}[a-zA-Z0-9])?$`)
	repoNamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
)

// ClientConfig configures the GitHub API client.
type ClientConfig struct {
	BaseURL              string
	APIToken             string
	UserAgent            string
	Timeout              time.Duration
	TrustedOrganizations []string

	// Offline rejects every request with ErrOffline before it reaches
	// the network.
	Offline bool
}

// DefaultClientConfig returns the default API client configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:   "https://api.github.com",
		UserAgent: "aimux/2.0.0",
		Timeout:   30 * time.Second,
		TrustedOrganizations: []string{
			"aimux-org", "aimux", "aimux-plugins", "awesome-aimux",
		},
	}
}

// Client is a GitHub API client scoped to plugin registry operations.
type Client struct {
	config ClientConfig
	http   *http.Client
	log    *logrus.Logger

	mu        sync.Mutex
	offline   bool
	remaining int
	resetAt   time.Time
}

// NewClient creates a new API client.
func NewClient(config ClientConfig, log *logrus.Logger) *Client {
	if log == nil {
		log = logrus.New()
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultClientConfig().BaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Client{
		config:    config,
		http:      &http.Client{Timeout: config.Timeout},
		log:       log,
		offline:   config.Offline,
		remaining: -1,
	}
}

// SetOffline toggles offline mode. While offline every request fails fast
// with ErrOffline instead of reaching the network.
func (c *Client) SetOffline(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offline = enabled
}

// IsOffline reports whether offline mode is enabled.
func (c *Client) IsOffline() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offline
}

// GetRepository fetches repository metadata for owner/name.
func (c *Client) GetRepository(ctx context.Context, owner, name string) (*RepoInfo, error) {
	if err := c.validateIdentity(owner, name); err != nil {
		return nil, err
	}

	var raw struct {
		Name          string    `json:"name"`
		Description   string    `json:"description"`
		DefaultBranch string    `json:"default_branch"`
		Topics        []string  `json:"topics"`
		Stars         int       `json:"stargazers_count"`
		Forks         int       `json:"forks_count"`
		UpdatedAt     time.Time `json:"updated_at"`
		Archived      bool      `json:"archived"`
		License       *struct {
			SPDXID string `json:"spdx_id"`
		} `json:"license"`
		Owner struct {
			Login string `json:"login"`
		} `json:"owner"`
	}

	url := fmt.Sprintf("%s/repos/%s/%s", c.config.BaseURL, owner, name)
	if err := c.apiGet(ctx, url, &raw); err != nil {
		return nil, err
	}

	info := &RepoInfo{
		Owner:         raw.Owner.Login,
		Name:          raw.Name,
		Description:   raw.Description,
		DefaultBranch: raw.DefaultBranch,
		Topics:        raw.Topics,
		Stars:         raw.Stars,
		Forks:         raw.Forks,
		UpdatedAt:     raw.UpdatedAt,
		Archived:      raw.Archived,
	}
	if raw.License != nil {
		info.License = raw.License.SPDXID
	}

	// The host echoes back the canonical owner login. A mismatch with the
	// requested owner means a redirect to a different namespace; treat it
	// as spoofing.
	if info.Owner != "" && info.Owner != owner {
		c.log.Warnf("Repository %s/%s resolved to unexpected owner %s", owner, name, info.Owner)
		return nil, fmt.Errorf("%w: repository owner mismatch", ErrNotFound)
	}
	if info.Owner == "" {
		info.Owner = owner
	}

	return info, nil
}

// GetReleases fetches all releases for owner/name, as returned by the host
// (newest first).
func (c *Client) GetReleases(ctx context.Context, owner, name string) ([]Release, error) {
	if err := c.validateIdentity(owner, name); err != nil {
		return nil, err
	}

	var releases []Release
	url := fmt.Sprintf("%s/repos/%s/%s/releases?per_page=100", c.config.BaseURL, owner, name)
	if err := c.apiGet(ctx, url, &releases); err != nil {
		return nil, err
	}
	return releases, nil
}

// GetReleaseByTag fetches a single release by its tag.
func (c *Client) GetReleaseByTag(ctx context.Context, owner, name, tag string) (*Release, error) {
	if err := c.validateIdentity(owner, name); err != nil {
		return nil, err
	}

	var release Release
	url := fmt.Sprintf("%s/repos/%s/%s/releases/tags/%s", c.config.BaseURL, owner, name, tag)
	if err := c.apiGet(ctx, url, &release); err != nil {
		return nil, err
	}
	return &release, nil
}

// GetLatestRelease fetches the most recent non-draft, non-prerelease
// release of a repository.
func (c *Client) GetLatestRelease(ctx context.Context, owner, name string) (*Release, error) {
	if err := c.validateIdentity(owner, name); err != nil {
		return nil, err
	}

	var release Release
	url := fmt.Sprintf("%s/repos/%s/%s/releases/latest", c.config.BaseURL, owner, name)
	if err := c.apiGet(ctx, url, &release); err != nil {
		return nil, err
	}
	return &release, nil
}

// ListOrgRepositories lists the repositories published by an organization.
func (c *Client) ListOrgRepositories(ctx context.Context, org string) ([]RepoInfo, error) {
	if !ownerPattern.MatchString(org) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPluginID, org)
	}

	var raw []struct {
		Name        string    `json:"name"`
		Description string    `json:"description"`
		UpdatedAt   time.Time `json:"updated_at"`
		Archived    bool      `json:"archived"`
		Stars       int       `json:"stargazers_count"`
		Topics      []string  `json:"topics"`
	}

	url := fmt.Sprintf("%s/orgs/%s/repos?per_page=100", c.config.BaseURL, org)
	if err := c.apiGet(ctx, url, &raw); err != nil {
		return nil, err
	}

	repos := make([]RepoInfo, 0, len(raw))
	for _, r := range raw {
		repos = append(repos, RepoInfo{
			Owner:       org,
			Name:        r.Name,
			Description: r.Description,
			UpdatedAt:   r.UpdatedAt,
			Archived:    r.Archived,
			Stars:       r.Stars,
			Topics:      r.Topics,
		})
	}
	return repos, nil
}

// GetFileContent fetches the raw content of a file at a given ref.
func (c *Client) GetFileContent(ctx context.Context, owner, name, path, ref string) ([]byte, error) {
	if err := c.validateIdentity(owner, name); err != nil {
		return nil, err
	}
	if ref == "" {
		ref = "main"
	}

	if c.IsOffline() {
		return nil, ErrOffline
	}

	url := fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s", c.config.BaseURL, owner, name, path, ref)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github.raw+json")
	c.setCommonHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry request failed: %w", err)
	}
	defer resp.Body.Close()

	c.updateRateLimit(resp.Header)
	if err := c.checkStatus(resp); err != nil {
		return nil, err
	}

	return io.ReadAll(resp.Body)
}

// RemainingRequests returns the rate-limit budget reported by the host on
// the most recent response, or -1 when unknown.
func (c *Client) RemainingRequests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// RateLimited reports whether the client is currently inside a rate-limit
// window.
func (c *Client) RateLimited() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining == 0 && time.Now().Before(c.resetAt)
}

// RateLimitReset returns when the current rate-limit window ends.
func (c *Client) RateLimitReset() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resetAt
}

// IsTrustedOrganization reports whether org is on the allowlist.
func (c *Client) IsTrustedOrganization(org string) bool {
	for _, trusted := range c.config.TrustedOrganizations {
		if trusted == org {
			return true
		}
	}
	return false
}

func (c *Client) validateIdentity(owner, name string) error {
	if !ownerPattern.MatchString(owner) || !repoNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidPluginID, owner+"/"+name)
	}
	return nil
}

func (c *Client) apiGet(ctx context.Context, url string, out interface{}) error {
	if c.IsOffline() {
		return ErrOffline
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	c.setCommonHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("registry request failed: %w", err)
	}
	defer resp.Body.Close()

	c.updateRateLimit(resp.Header)
	if err := c.checkStatus(resp); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode registry response: %w", err)
	}
	return nil
}

func (c *Client) setCommonHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.config.UserAgent)
	if c.config.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIToken)
	}
}

func (c *Client) checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusForbidden && c.rateLimitExhausted(resp.Header):
		return fmt.Errorf("%w (resets at %s)", ErrRateLimited, c.RateLimitReset().Format(time.RFC3339))
	default:
		return fmt.Errorf("registry returned status %d", resp.StatusCode)
	}
}

func (c *Client) rateLimitExhausted(h http.Header) bool {
	return h.Get("X-RateLimit-Remaining") == "0"
}

func (c *Client) updateRateLimit(h http.Header) {
	remaining := h.Get("X-RateLimit-Remaining")
	if remaining == "" {
		return
	}
	n, err := strconv.Atoi(remaining)
	if err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.remaining = n
	if reset := h.Get("X-RateLimit-Reset"); reset != "" {
		if epoch, err := strconv.ParseInt(reset, 10, 64); err == nil {
			c.resetAt = time.Unix(epoch, 0)
		}
	}
}
