// Package leaderboard assembles ranked leaderboard entries and
// dashboard aggregates from persisted repository, metrics and
// contributor rows.
package leaderboard

import (
	"sort"
	"time"

	"github.com/BrainStation-23/learnathon-leaderboard-sub000/models"
	"github.com/BrainStation-23/learnathon-leaderboard-sub000/score"
)

// activeWindow is how far back a repository's last commit may be for
// its contributors to count as active.
const activeWindow = 30 * 24 * time.Hour

// Build produces one leaderboard entry per analyzed repository, sorted
// by total score descending. Repositories without quality metrics are
// excluded entirely rather than shown with a zero score, as are
// repositories on the exclusion list. Contributor filtering is an
// exact, case-sensitive login match; the entry's commit count is
// recomputed from the surviving contributors and may be lower than the
// repository-level count.
func Build(repos []models.RepositoryWithMetrics, contributorsByRepo map[int][]models.Contributor, filter models.FilterConfig) []models.LeaderboardEntry {
	entries := make([]models.LeaderboardEntry, 0, len(repos))

	for _, repo := range repos {
		if repo.Metrics == nil {
			continue
		}
		if filter.IsRepoExcluded(repo.Name) {
			continue
		}

		contributors := filterContributors(contributorsByRepo[repo.ID], filter)

		commits := 0
		for _, c := range contributors {
			commits += c.Contributions
		}

		breakdown := score.Breakdown(*repo.Metrics)

		entries = append(entries, models.LeaderboardEntry{
			Repository:   repo.Repository,
			Metrics:      *repo.Metrics,
			Scores:       breakdown,
			TotalScore:   breakdown.Total,
			Contributors: contributors,
			CommitsCount: commits,
		})
	}

	// Stable: equal scores keep their relative order across calls.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].TotalScore > entries[j].TotalScore
	})

	return entries
}

// Summary holds the dashboard aggregate cards derived from persisted
// rows.
type Summary struct {
	TotalRepositories    int            `json:"total_repositories"`
	AnalyzedRepositories int            `json:"analyzed_repositories"`
	ActiveBuckets        map[string]int `json:"active_buckets"`
	StackDistribution    map[string]int `json:"stack_distribution"`
}

// Summarize buckets repositories by active-contributor cardinality
// ("1", "2", "3+") and tallies the language distribution. A contributor
// is active when it survives filtering and its repository's last commit
// falls within the last 30 days of now.
func Summarize(repos []models.RepositoryWithMetrics, contributorsByRepo map[int][]models.Contributor, filter models.FilterConfig, now time.Time) Summary {
	summary := Summary{
		ActiveBuckets:     map[string]int{"1": 0, "2": 0, "3+": 0},
		StackDistribution: make(map[string]int),
	}

	cutoff := now.Add(-activeWindow)

	for _, repo := range repos {
		if filter.IsRepoExcluded(repo.Name) {
			continue
		}

		summary.TotalRepositories++
		if repo.Metrics != nil {
			summary.AnalyzedRepositories++
		}
		if repo.Language != "" {
			summary.StackDistribution[repo.Language]++
		}

		if repo.LastCommitDate == nil || repo.LastCommitDate.Before(cutoff) {
			continue
		}

		active := len(filterContributors(contributorsByRepo[repo.ID], filter))
		switch {
		case active >= 3:
			summary.ActiveBuckets["3+"]++
		case active == 2:
			summary.ActiveBuckets["2"]++
		case active == 1:
			summary.ActiveBuckets["1"]++
		}
	}

	return summary
}

func filterContributors(contributors []models.Contributor, filter models.FilterConfig) []models.Contributor {
	out := make([]models.Contributor, 0, len(contributors))
	for _, c := range contributors {
		if filter.IsLoginExcluded(c.Login) {
			continue
		}
		out = append(out, c)
	}
	return out
}
