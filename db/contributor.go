package db

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BrainStation-23/learnathon-leaderboard-sub000/models"
)

// contributorBatchSize bounds the number of rows per multi-value insert.
const contributorBatchSize = 100

// UpsertContributors creates or updates contributors for a repository,
// keyed by (repository_id, login). Contributors that no longer appear
// upstream are deliberately left in place.
func (db *DB) UpsertContributors(ctx context.Context, repositoryID int, contributors []models.Contributor) error {
	if repositoryID == 0 {
		return fmt.Errorf("%w: repository id cannot be zero", ErrInvalidInput)
	}
	if len(contributors) == 0 {
		return nil
	}

	safeLogInfo("Upserting contributors",
		zap.Int("repository_id", repositoryID),
		zap.Int("count", len(contributors)))

	for start := 0; start < len(contributors); start += contributorBatchSize {
		end := start + contributorBatchSize
		if end > len(contributors) {
			end = len(contributors)
		}

		if err := db.upsertContributorBatch(ctx, repositoryID, contributors[start:end]); err != nil {
			return err
		}
	}

	return nil
}

func (db *DB) upsertContributorBatch(ctx context.Context, repositoryID int, batch []models.Contributor) error {
	query := `
		INSERT INTO contributors (repository_id, login, avatar_url, contributions)
		VALUES (:repository_id, :login, :avatar_url, :contributions)
		ON CONFLICT (repository_id, login) DO UPDATE SET
			avatar_url = EXCLUDED.avatar_url,
			contributions = EXCLUDED.contributions
	`

	rows := make([]models.Contributor, len(batch))
	for i, c := range batch {
		c.RepositoryID = repositoryID
		rows[i] = c
	}

	if _, err := db.conn.NamedExecContext(ctx, query, rows); err != nil {
		return fmt.Errorf("failed to upsert contributors for repository %d: %w", repositoryID, err)
	}
	return nil
}

// ListContributorsByRepo returns all stored contributors grouped by
// repository ID.
func (db *DB) ListContributorsByRepo(ctx context.Context) (map[int][]models.Contributor, error) {
	var contributors []models.Contributor
	query := `
		SELECT repository_id, login, avatar_url, contributions
		FROM contributors
		ORDER BY repository_id, contributions DESC
	`

	stmt, err := db.getStmt(ctx, query)
	if err != nil {
		return nil, err
	}
	if err := stmt.SelectContext(ctx, &contributors); err != nil {
		return nil, fmt.Errorf("failed to list contributors: %w", err)
	}

	grouped := make(map[int][]models.Contributor)
	for _, c := range contributors {
		grouped[c.RepositoryID] = append(grouped[c.RepositoryID], c)
	}
	return grouped, nil
}
