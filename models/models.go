// Package models defines the core data structures used throughout the application.
package models

import (
	"strings"
	"time"
)

// Repository represents a GitHub repository tracked by the leaderboard.
// ExternalID is the GitHub repository ID and is the stable upsert key.
type Repository struct {
	ID             int        `db:"id" json:"id"`
	ExternalID     int64      `db:"external_id" json:"external_id"`
	Name           string     `db:"name" json:"name"`
	FullName       string     `db:"full_name" json:"full_name"`
	Description    string     `db:"description" json:"description"`
	HTMLURL        string     `db:"html_url" json:"html_url"`
	Language       string     `db:"language" json:"language"`
	License        string     `db:"license" json:"license"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
	LastCommitDate *time.Time `db:"last_commit_date" json:"last_commit_date,omitempty"`
}

// RepoMetrics is a point-in-time measurement of repository activity.
// Each sync overwrites the previous snapshot; there is exactly one row
// per repository.
type RepoMetrics struct {
	RepositoryID      int        `db:"repository_id" json:"repository_id"`
	ContributorsCount int        `db:"contributors_count" json:"contributors_count"`
	CommitsCount      int        `db:"commits_count" json:"commits_count"`
	LastCommitDate    *time.Time `db:"last_commit_date" json:"last_commit_date,omitempty"`
	CollectedAt       time.Time  `db:"collected_at" json:"collected_at"`
}

// Contributor identity is the pair (RepositoryID, Login).
type Contributor struct {
	RepositoryID  int    `db:"repository_id" json:"repository_id"`
	Login         string `db:"login" json:"login"`
	AvatarURL     string `db:"avatar_url" json:"avatar_url"`
	Contributions int    `db:"contributions" json:"contributions"`
}

// QualityMetrics holds static-analysis measurements for a repository,
// keyed by the resolved SonarCloud project key. Nullable fields are
// pointers so that "metric unavailable" is distinguishable from zero.
// Absence of the whole record means the repository was not analyzed.
type QualityMetrics struct {
	RepositoryID    int      `db:"repository_id" json:"repository_id"`
	ProjectKey      string   `db:"project_key" json:"project_key"`
	LinesOfCode     *int     `db:"lines_of_code" json:"lines_of_code,omitempty"`
	Coverage        *float64 `db:"coverage" json:"coverage,omitempty"`
	Bugs            *int     `db:"bugs" json:"bugs,omitempty"`
	Vulnerabilities *int     `db:"vulnerabilities" json:"vulnerabilities,omitempty"`
	CodeSmells      *int     `db:"code_smells" json:"code_smells,omitempty"`
	TechnicalDebt   *string  `db:"technical_debt" json:"technical_debt,omitempty"`
	Complexity      *int     `db:"complexity" json:"complexity,omitempty"`
}

// SecurityIssue is a security alert reported for a repository. Rows are
// fully replaced on every sync; no identity is preserved across syncs.
type SecurityIssue struct {
	RepositoryID int        `db:"repository_id" json:"repository_id"`
	Title        string     `db:"title" json:"title"`
	Severity     string     `db:"severity" json:"severity"`
	State        string     `db:"state" json:"state"`
	PublishedAt  *time.Time `db:"published_at" json:"published_at,omitempty"`
	HTMLURL      string     `db:"html_url" json:"html_url"`
}

// Severity levels for security issues.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

// NormalizeSeverity maps an upstream severity label to one of the four
// canonical levels. Matching is case-insensitive and "moderate" is
// treated as medium. Unknown labels fall back to low.
func NormalizeSeverity(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "critical":
		return SeverityCritical
	case "high", "error":
		return SeverityHigh
	case "medium", "moderate", "warning":
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// ExcludedRepo is a repository removed from leaderboard aggregates by
// configuration, with a reason label (dropped-out|no-contact|got-job|other).
type ExcludedRepo struct {
	Name   string `db:"repo_name" json:"repo_name"`
	Reason string `db:"reason" json:"reason"`
}

// FilterConfig is the per-deployment exclusion list consumed by the
// scoring and ranking path. It is read, never written, by the sync core.
type FilterConfig struct {
	ExcludedLogins []string       `json:"excluded_logins"`
	ExcludedRepos  []ExcludedRepo `json:"excluded_repos"`
}

// IsLoginExcluded reports whether the login appears in the exclusion
// list. Matching is exact, case-sensitive.
func (f FilterConfig) IsLoginExcluded(login string) bool {
	for _, l := range f.ExcludedLogins {
		if l == login {
			return true
		}
	}
	return false
}

// IsRepoExcluded reports whether the repository name appears in the
// exclusion list.
func (f FilterConfig) IsRepoExcluded(name string) bool {
	for _, r := range f.ExcludedRepos {
		if r.Name == name {
			return true
		}
	}
	return false
}

// ScoreBreakdown holds the six bounded sub-scores and their total.
type ScoreBreakdown struct {
	Coverage        float64 `json:"coverage"`
	Bugs            float64 `json:"bugs"`
	Vulnerabilities float64 `json:"vulnerabilities"`
	CodeSmells      float64 `json:"code_smells"`
	TechnicalDebt   float64 `json:"technical_debt"`
	Complexity      float64 `json:"complexity"`
	Total           float64 `json:"total"`
}

// LeaderboardEntry is the derived, ranked view of one analyzed
// repository. CommitsCount is recomputed from the filtered contributor
// set and may be lower than the repository-level commit count.
type LeaderboardEntry struct {
	Repository   Repository     `json:"repository"`
	Metrics      QualityMetrics `json:"metrics"`
	Scores       ScoreBreakdown `json:"scores"`
	TotalScore   float64        `json:"total_score"`
	Contributors []Contributor  `json:"contributors"`
	CommitsCount int            `json:"commits_count"`
}

// RepositoryWithMetrics is the aggregate row returned by the
// repositories-with-latest-metrics query: a repository joined with its
// quality metrics and latest activity snapshot, either of which may be
// absent.
type RepositoryWithMetrics struct {
	Repository
	Metrics  *QualityMetrics `json:"metrics,omitempty"`
	Snapshot *RepoMetrics    `json:"snapshot,omitempty"`
}

// Sync trigger sources, recorded for audit purposes.
const (
	SyncSourceManual    = "manual"
	SyncSourceAutomated = "automated"
)

// Sync run outcomes.
const (
	SyncStatusRunning      = "running"
	SyncStatusCompleted    = "completed"
	SyncStatusWithWarnings = "completed_with_warnings"
	SyncStatusFailed       = "failed"
)

// SyncRun is the audit record for one end-to-end sync execution.
type SyncRun struct {
	ID         int        `db:"id" json:"id"`
	Source     string     `db:"source" json:"source"`
	RepoName   string     `db:"repo_name" json:"repo_name,omitempty"`
	Status     string     `db:"status" json:"status"`
	ErrorCount int        `db:"error_count" json:"error_count"`
	StartedAt  time.Time  `db:"started_at" json:"started_at"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}
