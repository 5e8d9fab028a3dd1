// Package sonar is a client for the SonarCloud measures API, plus the
// heuristic resolver that maps repository names to SonarCloud project
// keys across historical naming conventions.
package sonar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/BrainStation-23/learnathon-leaderboard-sub000/logger"
	"github.com/BrainStation-23/learnathon-leaderboard-sub000/models"
	"github.com/BrainStation-23/learnathon-leaderboard-sub000/score"
)

// metricKeys is the fixed set of measures requested for every project.
const metricKeys = "ncloc,coverage,bugs,vulnerabilities,code_smells,sqale_index,cognitive_complexity"

// ErrProjectNotFound indicates the project key does not resolve to an
// analyzed SonarCloud project.
var ErrProjectNotFound = fmt.Errorf("sonar project not found")

// Client represents a SonarCloud API client
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    *url.URL
}

type measuresResponse struct {
	Component struct {
		Key      string `json:"key"`
		Measures []struct {
			Metric string `json:"metric"`
			Value  string `json:"value"`
		} `json:"measures"`
	} `json:"component"`
}

func NewClient(token string) *Client {
	baseURL, _ := url.Parse("https://sonarcloud.io")
	logger.Info("Initializing SonarCloud client", zap.String("base_url", baseURL.String()))
	return &Client{
		token: token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: baseURL,
	}
}

// FetchMeasures retrieves the quality measures for a project key. It
// returns ErrProjectNotFound when the key does not resolve or resolves
// to a project with no measures.
func (c *Client) FetchMeasures(ctx context.Context, projectKey string) (*models.QualityMetrics, error) {
	reqURL := c.baseURL.ResolveReference(&url.URL{Path: "/api/measures/component"})
	q := reqURL.Query()
	q.Set("component", projectKey)
	q.Set("metricKeys", metricKeys)
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.token != "" {
		req.SetBasicAuth(c.token, "")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch measures for %s: %w", projectKey, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, projectKey)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch measures for %s: status code %d", projectKey, resp.StatusCode)
	}

	var payload measuresResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode measures response: %w", err)
	}

	if len(payload.Component.Measures) == 0 {
		return nil, fmt.Errorf("%w: %s has no measures", ErrProjectNotFound, projectKey)
	}

	metrics := &models.QualityMetrics{ProjectKey: projectKey}
	for _, m := range payload.Component.Measures {
		switch m.Metric {
		case "ncloc":
			metrics.LinesOfCode = parseIntMeasure(m.Value)
		case "coverage":
			metrics.Coverage = parseFloatMeasure(m.Value)
		case "bugs":
			metrics.Bugs = parseIntMeasure(m.Value)
		case "vulnerabilities":
			metrics.Vulnerabilities = parseIntMeasure(m.Value)
		case "code_smells":
			metrics.CodeSmells = parseIntMeasure(m.Value)
		case "sqale_index":
			if minutes := parseIntMeasure(m.Value); minutes != nil {
				debt := score.FormatDebtMinutes(*minutes)
				metrics.TechnicalDebt = &debt
			}
		case "cognitive_complexity":
			metrics.Complexity = parseIntMeasure(m.Value)
		}
	}

	return metrics, nil
}

func parseIntMeasure(value string) *int {
	n, err := strconv.Atoi(value)
	if err != nil {
		return nil
	}
	return &n
}

func parseFloatMeasure(value string) *float64 {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil
	}
	return &f
}
