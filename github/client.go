// Package github is a thin, rate-limit-aware client for the GitHub REST
// API. Responses are validated and converted to internal models at this
// boundary; nothing downstream sees raw API shapes.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/BrainStation-23/learnathon-leaderboard-sub000/logger"
	"github.com/BrainStation-23/learnathon-leaderboard-sub000/models"
)

const (
	perPage = 100

	// lowWaterMark is the remaining-quota level below which requests
	// are throttled with an increasing delay.
	lowWaterMark = 100

	// resetBuffer is added to the reported reset timestamp before the
	// next attempt, guarding against clock skew.
	resetBuffer = 5 * time.Second

	// minStartQuota is the remaining quota below which a new sync run
	// is refused up front.
	minStartQuota = 50

	// throttleStep scales the per-request delay as the remaining quota
	// shrinks under the low-water mark.
	throttleStep = 50 * time.Millisecond
)

// RateLimit represents GitHub's rate limit information
type RateLimit struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// ErrQuotaExhausted is returned by CheckQuota when the remaining quota
// is too low to start a run.
var ErrQuotaExhausted = fmt.Errorf("github API quota too low to start a run")

// Client represents a GitHub API client
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    *url.URL

	// sleep and now are injected for testability.
	sleep func(time.Duration)
	now   func() time.Time
}

type repoResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	FullName    string    `json:"full_name"`
	Description string    `json:"description"`
	HTMLURL     string    `json:"html_url"`
	Language    string    `json:"language"`
	UpdatedAt   time.Time `json:"updated_at"`
	License     *struct {
		Name string `json:"name"`
	} `json:"license"`
}

type contributorResponse struct {
	Login         string `json:"login"`
	AvatarURL     string `json:"avatar_url"`
	Contributions int    `json:"contributions"`
}

type commitResponse struct {
	SHA    string `json:"sha"`
	Commit struct {
		Committer struct {
			Date time.Time `json:"date"`
		} `json:"committer"`
	} `json:"commit"`
}

type dependabotAlertResponse struct {
	State            string `json:"state"`
	HTMLURL          string `json:"html_url"`
	SecurityAdvisory struct {
		Summary     string     `json:"summary"`
		Severity    string     `json:"severity"`
		PublishedAt *time.Time `json:"published_at"`
	} `json:"security_advisory"`
}

type codeScanningAlertResponse struct {
	State     string     `json:"state"`
	HTMLURL   string     `json:"html_url"`
	CreatedAt *time.Time `json:"created_at"`
	Rule      struct {
		Description      string `json:"description"`
		Severity         string `json:"severity"`
		SecuritySeverity string `json:"security_severity_level"`
	} `json:"rule"`
}

// CommitActivity summarizes a repository's commit history without
// holding individual commits.
type CommitActivity struct {
	CommitsCount   int
	LastCommitDate *time.Time
}

func NewClient(token string) *Client {
	baseURL, _ := url.Parse("https://api.github.com")
	logger.Info("Initializing GitHub client", zap.String("base_url", baseURL.String()))
	return &Client{
		token: token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: baseURL,
		sleep:   time.Sleep,
		now:     time.Now,
	}
}

// doGet issues a single authenticated GET request, honoring GitHub's
// rate-limit headers. When the quota is exhausted it sleeps until the
// reported reset time plus a safety buffer and retries the same
// request; when the quota runs low it throttles with an increasing
// delay. The caller owns the response body.
func (c *Client) doGet(ctx context.Context, reqURL string) (*http.Response, error) {
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", fmt.Sprintf("token %s", c.token))
		req.Header.Set("Accept", "application/vnd.github+json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}

		rl := parseRateLimit(resp)
		if exhausted(resp, rl) {
			resp.Body.Close()
			wait := rl.Reset.Sub(c.now()) + resetBuffer
			if wait < 0 {
				wait = resetBuffer
			}
			logger.Warn("Rate limit exhausted, waiting for reset",
				zap.Time("reset_time", rl.Reset),
				zap.Duration("wait_time", wait),
				zap.String("url", reqURL))
			c.sleep(wait)
			continue
		}

		if rl.Remaining > 0 && rl.Remaining < lowWaterMark {
			delay := time.Duration(lowWaterMark-rl.Remaining) * throttleStep
			logger.Debug("Rate limit running low, throttling",
				zap.Int("remaining", rl.Remaining),
				zap.Duration("delay", delay))
			c.sleep(delay)
		}

		return resp, nil
	}
}

func exhausted(resp *http.Response, rl RateLimit) bool {
	return resp.StatusCode == http.StatusForbidden &&
		resp.Header.Get("X-RateLimit-Remaining") == "0"
}

// CheckQuota verifies that enough API quota remains to start a sync
// run. It returns ErrQuotaExhausted when the remaining budget is
// critically low.
func (c *Client) CheckQuota(ctx context.Context) (int, error) {
	reqURL := c.baseURL.ResolveReference(&url.URL{Path: "/rate_limit"})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("token %s", c.token))
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to check rate limit: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("failed to check rate limit: status code %d", resp.StatusCode)
	}

	var payload struct {
		Resources struct {
			Core struct {
				Remaining int `json:"remaining"`
			} `json:"core"`
		} `json:"resources"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("failed to decode rate limit response: %w", err)
	}

	remaining := payload.Resources.Core.Remaining
	if remaining < minStartQuota {
		return remaining, fmt.Errorf("%w: %d remaining", ErrQuotaExhausted, remaining)
	}
	return remaining, nil
}

// FetchOrgRepos lists all repositories of an organization, following
// pagination until a short page is returned.
func (c *Client) FetchOrgRepos(ctx context.Context, org string) ([]models.Repository, error) {
	var repos []models.Repository
	page := 1

	for {
		reqURL := c.baseURL.ResolveReference(&url.URL{Path: fmt.Sprintf("/orgs/%s/repos", org)})
		q := reqURL.Query()
		q.Set("per_page", strconv.Itoa(perPage))
		q.Set("page", strconv.Itoa(page))
		q.Set("type", "all")
		reqURL.RawQuery = q.Encode()

		logger.Info("Fetching organization repositories page",
			zap.String("org", org),
			zap.Int("page", page))

		resp, err := c.doGet(ctx, reqURL.String())
		if err != nil {
			return nil, fmt.Errorf("failed to fetch repositories for %s: %w", org, err)
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("failed to fetch repositories for %s: status code %d", org, resp.StatusCode)
		}

		var pageRepos []repoResponse
		if err := json.NewDecoder(resp.Body).Decode(&pageRepos); err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("failed to decode repositories response: %w", err)
		}
		linkHeader := resp.Header.Get("Link")
		resp.Body.Close()

		for _, r := range pageRepos {
			repos = append(repos, toRepository(r))
		}

		if len(pageRepos) < perPage && !hasNextPage(linkHeader) {
			break
		}
		page++
	}

	logger.Info("Fetched organization repositories",
		zap.String("org", org),
		zap.Int("count", len(repos)))

	return repos, nil
}

// FetchRepo fetches a single repository by name.
func (c *Client) FetchRepo(ctx context.Context, org, name string) (*models.Repository, error) {
	reqURL := c.baseURL.ResolveReference(&url.URL{Path: fmt.Sprintf("/repos/%s/%s", org, name)})

	resp, err := c.doGet(ctx, reqURL.String())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch repository %s/%s: %w", org, name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch repository %s/%s: status code %d", org, name, resp.StatusCode)
	}

	var r repoResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("failed to decode repository response: %w", err)
	}

	repo := toRepository(r)
	return &repo, nil
}

// FetchContributors lists all contributors of a repository, following
// pagination until a short page is returned. An empty repository (204)
// yields an empty list.
func (c *Client) FetchContributors(ctx context.Context, org, name string) ([]models.Contributor, error) {
	var contributors []models.Contributor
	page := 1

	for {
		reqURL := c.baseURL.ResolveReference(&url.URL{Path: fmt.Sprintf("/repos/%s/%s/contributors", org, name)})
		q := reqURL.Query()
		q.Set("per_page", strconv.Itoa(perPage))
		q.Set("page", strconv.Itoa(page))
		reqURL.RawQuery = q.Encode()

		resp, err := c.doGet(ctx, reqURL.String())
		if err != nil {
			return nil, fmt.Errorf("failed to fetch contributors for %s/%s: %w", org, name, err)
		}

		if resp.StatusCode == http.StatusNoContent {
			resp.Body.Close()
			break
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("failed to fetch contributors for %s/%s: status code %d", org, name, resp.StatusCode)
		}

		var pageContributors []contributorResponse
		if err := json.NewDecoder(resp.Body).Decode(&pageContributors); err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("failed to decode contributors response: %w", err)
		}
		linkHeader := resp.Header.Get("Link")
		resp.Body.Close()

		for _, contrib := range pageContributors {
			contributors = append(contributors, models.Contributor{
				Login:         contrib.Login,
				AvatarURL:     contrib.AvatarURL,
				Contributions: contrib.Contributions,
			})
		}

		if len(pageContributors) < perPage && !hasNextPage(linkHeader) {
			break
		}
		page++
	}

	return contributors, nil
}

// FetchCommitActivity determines the total commit count and the most
// recent commit date without paging through the full history: a
// one-item page's Link rel="last" page number is the count.
func (c *Client) FetchCommitActivity(ctx context.Context, org, name string) (CommitActivity, error) {
	reqURL := c.baseURL.ResolveReference(&url.URL{Path: fmt.Sprintf("/repos/%s/%s/commits", org, name)})
	q := reqURL.Query()
	q.Set("per_page", "1")
	reqURL.RawQuery = q.Encode()

	resp, err := c.doGet(ctx, reqURL.String())
	if err != nil {
		return CommitActivity{}, fmt.Errorf("failed to fetch commits for %s/%s: %w", org, name, err)
	}
	defer resp.Body.Close()

	// 409 means the repository has no commits yet.
	if resp.StatusCode == http.StatusConflict {
		return CommitActivity{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return CommitActivity{}, fmt.Errorf("failed to fetch commits for %s/%s: status code %d", org, name, resp.StatusCode)
	}

	var commits []commitResponse
	if err := json.NewDecoder(resp.Body).Decode(&commits); err != nil {
		return CommitActivity{}, fmt.Errorf("failed to decode commits response: %w", err)
	}

	activity := CommitActivity{CommitsCount: len(commits)}
	if len(commits) > 0 {
		date := commits[0].Commit.Committer.Date
		activity.LastCommitDate = &date
	}

	if last := lastPageNumber(resp.Header.Get("Link")); last > 0 {
		activity.CommitsCount = last
	}

	return activity, nil
}

// FetchSecurityIssues returns security alerts for a repository. The
// primary source is the dependabot alerts endpoint; on any failure the
// code-scanning alerts endpoint is tried; if both fail an empty list is
// returned. Errors never propagate past this boundary.
func (c *Client) FetchSecurityIssues(ctx context.Context, org, name string) []models.SecurityIssue {
	issues, err := c.fetchDependabotAlerts(ctx, org, name)
	if err == nil {
		return issues
	}
	logger.Warn("Dependabot alerts unavailable, falling back to code scanning",
		zap.String("org", org),
		zap.String("repo", name),
		zap.Error(err))

	issues, err = c.fetchCodeScanningAlerts(ctx, org, name)
	if err != nil {
		logger.Warn("Code scanning alerts unavailable, returning no security issues",
			zap.String("org", org),
			zap.String("repo", name),
			zap.Error(err))
		return []models.SecurityIssue{}
	}
	return issues
}

func (c *Client) fetchDependabotAlerts(ctx context.Context, org, name string) ([]models.SecurityIssue, error) {
	reqURL := c.baseURL.ResolveReference(&url.URL{Path: fmt.Sprintf("/repos/%s/%s/dependabot/alerts", org, name)})
	q := reqURL.Query()
	q.Set("per_page", strconv.Itoa(perPage))
	reqURL.RawQuery = q.Encode()

	resp, err := c.doGet(ctx, reqURL.String())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dependabot alerts: status code %d", resp.StatusCode)
	}

	var alerts []dependabotAlertResponse
	if err := json.NewDecoder(resp.Body).Decode(&alerts); err != nil {
		return nil, fmt.Errorf("failed to decode dependabot alerts: %w", err)
	}

	issues := make([]models.SecurityIssue, 0, len(alerts))
	for _, a := range alerts {
		issues = append(issues, models.SecurityIssue{
			Title:       a.SecurityAdvisory.Summary,
			Severity:    models.NormalizeSeverity(a.SecurityAdvisory.Severity),
			State:       a.State,
			PublishedAt: a.SecurityAdvisory.PublishedAt,
			HTMLURL:     a.HTMLURL,
		})
	}
	return issues, nil
}

func (c *Client) fetchCodeScanningAlerts(ctx context.Context, org, name string) ([]models.SecurityIssue, error) {
	reqURL := c.baseURL.ResolveReference(&url.URL{Path: fmt.Sprintf("/repos/%s/%s/code-scanning/alerts", org, name)})
	q := reqURL.Query()
	q.Set("per_page", strconv.Itoa(perPage))
	reqURL.RawQuery = q.Encode()

	resp, err := c.doGet(ctx, reqURL.String())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("code scanning alerts: status code %d", resp.StatusCode)
	}

	var alerts []codeScanningAlertResponse
	if err := json.NewDecoder(resp.Body).Decode(&alerts); err != nil {
		return nil, fmt.Errorf("failed to decode code scanning alerts: %w", err)
	}

	issues := make([]models.SecurityIssue, 0, len(alerts))
	for _, a := range alerts {
		severity := a.Rule.SecuritySeverity
		if severity == "" {
			severity = a.Rule.Severity
		}
		issues = append(issues, models.SecurityIssue{
			Title:       a.Rule.Description,
			Severity:    models.NormalizeSeverity(severity),
			State:       a.State,
			PublishedAt: a.CreatedAt,
			HTMLURL:     a.HTMLURL,
		})
	}
	return issues, nil
}

func toRepository(r repoResponse) models.Repository {
	repo := models.Repository{
		ExternalID:  r.ID,
		Name:        r.Name,
		FullName:    r.FullName,
		Description: r.Description,
		HTMLURL:     r.HTMLURL,
		Language:    r.Language,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.License != nil {
		repo.License = r.License.Name
	}
	return repo
}

// parseRateLimit parses rate limit information from response headers
func parseRateLimit(resp *http.Response) RateLimit {
	limit, _ := strconv.Atoi(resp.Header.Get("X-RateLimit-Limit"))
	remaining, _ := strconv.Atoi(resp.Header.Get("X-RateLimit-Remaining"))
	reset, _ := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64)

	return RateLimit{
		Limit:     limit,
		Remaining: remaining,
		Reset:     time.Unix(reset, 0),
	}
}

var (
	nextLinkPattern = regexp.MustCompile(`<[^>]+>;\s*rel="next"`)
	lastLinkPattern = regexp.MustCompile(`[?&]page=(\d+)[^>]*>;\s*rel="last"`)
)

// hasNextPage checks if the Link header contains a next page
func hasNextPage(linkHeader string) bool {
	return nextLinkPattern.MatchString(linkHeader)
}

// lastPageNumber extracts the page number of the rel="last" link, or 0.
func lastPageNumber(linkHeader string) int {
	m := lastLinkPattern.FindStringSubmatch(linkHeader)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}
