package db

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/BrainStation-23/learnathon-leaderboard-sub000/models"
)

// UpsertRepository creates or updates a repository keyed by its
// external (GitHub) ID and returns the internal row ID. Re-running a
// sync never duplicates rows; the pipeline never deletes them.
func (db *DB) UpsertRepository(ctx context.Context, repo models.Repository) (int, error) {
	if repo.ExternalID == 0 || repo.Name == "" {
		return 0, fmt.Errorf("%w: repository external id and name cannot be empty", ErrInvalidInput)
	}

	safeLogInfo("Upserting repository", zap.Int64("external_id", repo.ExternalID), zap.String("name", repo.Name))
	query := `
		INSERT INTO repositories (
			external_id, name, full_name, description, html_url,
			language, license, updated_at, last_commit_date
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (external_id) DO UPDATE SET
			name = EXCLUDED.name,
			full_name = EXCLUDED.full_name,
			description = EXCLUDED.description,
			html_url = EXCLUDED.html_url,
			language = EXCLUDED.language,
			license = EXCLUDED.license,
			updated_at = EXCLUDED.updated_at,
			last_commit_date = EXCLUDED.last_commit_date
		RETURNING id
	`

	var id int
	err := db.conn.GetContext(ctx, &id, query,
		repo.ExternalID, repo.Name, repo.FullName, repo.Description, repo.HTMLURL,
		repo.Language, repo.License, repo.UpdatedAt, repo.LastCommitDate,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert repository %s: %w", repo.Name, err)
	}

	return id, nil
}

// GetRepositoryByName retrieves a repository by its short name.
func (db *DB) GetRepositoryByName(ctx context.Context, name string) (*models.Repository, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: repository name cannot be empty", ErrInvalidInput)
	}

	var repo models.Repository
	query := `
		SELECT id, external_id, name, full_name, description, html_url,
			language, license, updated_at, last_commit_date
		FROM repositories
		WHERE name = $1
	`

	if err := db.conn.GetContext(ctx, &repo, query, name); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: repository %s not found", ErrRepositoryNotFound, name)
		}
		return nil, fmt.Errorf("failed to get repository %s: %w", name, err)
	}

	return &repo, nil
}

// repositoryWithMetricsRow is the scan target for the aggregate join;
// the metric columns are nullable because a repository may not have
// been analyzed or snapshotted yet.
type repositoryWithMetricsRow struct {
	models.Repository

	ProjectKey      sql.NullString  `db:"project_key"`
	LinesOfCode     sql.NullInt64   `db:"lines_of_code"`
	Coverage        sql.NullFloat64 `db:"coverage"`
	Bugs            sql.NullInt64   `db:"bugs"`
	Vulnerabilities sql.NullInt64   `db:"vulnerabilities"`
	CodeSmells      sql.NullInt64   `db:"code_smells"`
	TechnicalDebt   sql.NullString  `db:"technical_debt"`
	Complexity      sql.NullInt64   `db:"complexity"`

	ContributorsCount  sql.NullInt64 `db:"contributors_count"`
	CommitsCount       sql.NullInt64 `db:"commits_count"`
	SnapshotLastCommit sql.NullTime  `db:"snapshot_last_commit"`
	CollectedAt        sql.NullTime  `db:"collected_at"`
}

// ListRepositoriesWithMetrics returns every repository joined with its
// quality metrics and latest activity snapshot in a single query.
// Repositories without quality metrics come back with Metrics == nil,
// which downstream reads as "not analyzed".
func (db *DB) ListRepositoriesWithMetrics(ctx context.Context) ([]models.RepositoryWithMetrics, error) {
	query := `
		SELECT r.id, r.external_id, r.name, r.full_name, r.description, r.html_url,
			r.language, r.license, r.updated_at, r.last_commit_date,
			q.project_key, q.lines_of_code, q.coverage, q.bugs,
			q.vulnerabilities, q.code_smells, q.technical_debt, q.complexity,
			m.contributors_count, m.commits_count,
			m.last_commit_date AS snapshot_last_commit, m.collected_at
		FROM repositories r
		LEFT JOIN quality_metrics q ON q.repository_id = r.id
		LEFT JOIN repo_metrics m ON m.repository_id = r.id
		ORDER BY r.name
	`

	stmt, err := db.getStmt(ctx, query)
	if err != nil {
		return nil, err
	}

	var rows []repositoryWithMetricsRow
	if err := stmt.SelectContext(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to list repositories with metrics: %w", err)
	}

	out := make([]models.RepositoryWithMetrics, 0, len(rows))
	for _, row := range rows {
		item := models.RepositoryWithMetrics{Repository: row.Repository}

		if row.ProjectKey.Valid {
			item.Metrics = &models.QualityMetrics{
				RepositoryID:    row.ID,
				ProjectKey:      row.ProjectKey.String,
				LinesOfCode:     nullableInt(row.LinesOfCode),
				Coverage:        nullableFloat(row.Coverage),
				Bugs:            nullableInt(row.Bugs),
				Vulnerabilities: nullableInt(row.Vulnerabilities),
				CodeSmells:      nullableInt(row.CodeSmells),
				TechnicalDebt:   nullableString(row.TechnicalDebt),
				Complexity:      nullableInt(row.Complexity),
			}
		}

		if row.CollectedAt.Valid {
			item.Snapshot = &models.RepoMetrics{
				RepositoryID:      row.ID,
				ContributorsCount: int(row.ContributorsCount.Int64),
				CommitsCount:      int(row.CommitsCount.Int64),
				CollectedAt:       row.CollectedAt.Time,
			}
			if row.SnapshotLastCommit.Valid {
				d := row.SnapshotLastCommit.Time
				item.Snapshot.LastCommitDate = &d
			}
		}

		out = append(out, item)
	}

	return out, nil
}

func nullableInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullableString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
