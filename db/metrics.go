package db

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BrainStation-23/learnathon-leaderboard-sub000/models"
)

// UpsertRepoMetrics overwrites the activity snapshot for a repository.
// The snapshot table has no unique constraint beyond the owning
// repository, so this is a check-then-branch rather than a native
// upsert; the one-row-per-repository invariant is enforced here.
func (db *DB) UpsertRepoMetrics(ctx context.Context, metrics models.RepoMetrics) error {
	if metrics.RepositoryID == 0 {
		return fmt.Errorf("%w: repository id cannot be zero", ErrInvalidInput)
	}

	var exists bool
	checkQuery := `SELECT EXISTS (SELECT 1 FROM repo_metrics WHERE repository_id = $1)`
	if err := db.conn.GetContext(ctx, &exists, checkQuery, metrics.RepositoryID); err != nil {
		return fmt.Errorf("failed to check repo metrics for repository %d: %w", metrics.RepositoryID, err)
	}

	if exists {
		updateQuery := `
			UPDATE repo_metrics SET
				contributors_count = $2,
				commits_count = $3,
				last_commit_date = $4,
				collected_at = $5
			WHERE repository_id = $1
		`
		if _, err := db.conn.ExecContext(ctx, updateQuery,
			metrics.RepositoryID, metrics.ContributorsCount, metrics.CommitsCount,
			metrics.LastCommitDate, metrics.CollectedAt,
		); err != nil {
			return fmt.Errorf("failed to update repo metrics for repository %d: %w", metrics.RepositoryID, err)
		}
		return nil
	}

	insertQuery := `
		INSERT INTO repo_metrics (
			repository_id, contributors_count, commits_count, last_commit_date, collected_at
		)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := db.conn.ExecContext(ctx, insertQuery,
		metrics.RepositoryID, metrics.ContributorsCount, metrics.CommitsCount,
		metrics.LastCommitDate, metrics.CollectedAt,
	); err != nil {
		return fmt.Errorf("failed to insert repo metrics for repository %d: %w", metrics.RepositoryID, err)
	}

	return nil
}

// UpsertQualityMetrics creates or updates the quality metrics record
// owned 1:1 by a repository. Absence of this record means the
// repository has not been analyzed.
func (db *DB) UpsertQualityMetrics(ctx context.Context, metrics models.QualityMetrics) error {
	if metrics.RepositoryID == 0 || metrics.ProjectKey == "" {
		return fmt.Errorf("%w: repository id and project key cannot be empty", ErrInvalidInput)
	}

	safeLogInfo("Upserting quality metrics",
		zap.Int("repository_id", metrics.RepositoryID),
		zap.String("project_key", metrics.ProjectKey))

	query := `
		INSERT INTO quality_metrics (
			repository_id, project_key, lines_of_code, coverage, bugs,
			vulnerabilities, code_smells, technical_debt, complexity
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (repository_id) DO UPDATE SET
			project_key = EXCLUDED.project_key,
			lines_of_code = EXCLUDED.lines_of_code,
			coverage = EXCLUDED.coverage,
			bugs = EXCLUDED.bugs,
			vulnerabilities = EXCLUDED.vulnerabilities,
			code_smells = EXCLUDED.code_smells,
			technical_debt = EXCLUDED.technical_debt,
			complexity = EXCLUDED.complexity
	`

	if _, err := db.conn.ExecContext(ctx, query,
		metrics.RepositoryID, metrics.ProjectKey, metrics.LinesOfCode, metrics.Coverage,
		metrics.Bugs, metrics.Vulnerabilities, metrics.CodeSmells,
		metrics.TechnicalDebt, metrics.Complexity,
	); err != nil {
		return fmt.Errorf("failed to upsert quality metrics for repository %d: %w", metrics.RepositoryID, err)
	}

	return nil
}
