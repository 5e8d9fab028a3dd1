package sonar

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/BrainStation-23/learnathon-leaderboard-sub000/logger"
	"github.com/BrainStation-23/learnathon-leaderboard-sub000/models"
)

// MeasuresFetcher is the slice of the sonar client the resolver needs.
type MeasuresFetcher interface {
	FetchMeasures(ctx context.Context, projectKey string) (*models.QualityMetrics, error)
}

// Resolver finds the SonarCloud project key for a repository by probing
// the naming conventions seen across cohorts. Successful resolutions
// are cached for the remainder of the sync run.
type Resolver struct {
	client MeasuresFetcher

	mu    sync.Mutex
	cache map[string]string
}

var invalidKeyChars = regexp.MustCompile(`[^A-Za-z0-9-_]`)

// NewResolver creates a resolver backed by the given measures client.
func NewResolver(client MeasuresFetcher) *Resolver {
	return &Resolver{
		client: client,
		cache:  make(map[string]string),
	}
}

// Resolve probes candidate project keys in order and returns the first
// key with a successful, non-empty measures payload along with its
// measures. A repository with no resolvable key returns ("", nil, nil):
// "not analyzed" is not an error.
func (r *Resolver) Resolve(ctx context.Context, orgSlug, repoName string) (string, *models.QualityMetrics, error) {
	r.mu.Lock()
	cached, ok := r.cache[repoName]
	r.mu.Unlock()

	if ok {
		metrics, err := r.client.FetchMeasures(ctx, cached)
		if err == nil {
			return cached, metrics, nil
		}
		if !errors.Is(err, ErrProjectNotFound) {
			return "", nil, err
		}
		// The cached key stopped resolving; fall through to a full probe.
	}

	for _, candidate := range CandidateKeys(orgSlug, repoName) {
		if ctx.Err() != nil {
			return "", nil, ctx.Err()
		}

		metrics, err := r.client.FetchMeasures(ctx, candidate)
		if errors.Is(err, ErrProjectNotFound) {
			continue
		}
		if err != nil {
			return "", nil, err
		}

		logger.Debug("Resolved sonar project key",
			zap.String("repo", repoName),
			zap.String("project_key", candidate))

		r.mu.Lock()
		r.cache[repoName] = candidate
		r.mu.Unlock()

		return candidate, metrics, nil
	}

	logger.Info("No sonar project key resolved, repository is not analyzed",
		zap.String("repo", repoName))
	return "", nil, nil
}

// CandidateKeys builds the ordered list of project-key candidates for a
// repository, covering the raw, concatenated and PascalCase naming
// conventions. Duplicates are removed preserving order.
func CandidateKeys(orgSlug, repoName string) []string {
	name := SanitizeName(repoName)
	pascalOrg := pascalCase(orgSlug)
	pascalName := pascalCase(name)

	candidates := []string{
		orgSlug + "_" + name,
		orgSlug + "-" + name,
		name,
		orgSlug,
		pascalOrg + "_" + name,
		orgSlug + "_" + pascalName,
		pascalOrg + "_" + pascalName,
		pascalName,
	}

	seen := make(map[string]struct{}, len(candidates))
	out := candidates[:0]
	for _, c := range candidates {
		if c == "" || c == "_" || c == "-" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// SanitizeName strips characters outside [A-Za-z0-9-_] from a
// repository name.
func SanitizeName(name string) string {
	return invalidKeyChars.ReplaceAllString(name, "")
}

// pascalCase capitalizes each hyphen/underscore-separated token:
// "team-alpha_board" -> "TeamAlphaBoard".
func pascalCase(s string) string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '-' || r == '_' || r == ' '
	})

	var b strings.Builder
	for _, p := range parts {
		b.WriteString(strings.ToUpper(p[:1]))
		if len(p) > 1 {
			b.WriteString(p[1:])
		}
	}
	return b.String()
}
