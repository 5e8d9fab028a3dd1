package db

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BrainStation-23/learnathon-leaderboard-sub000/models"
)

// ReplaceSecurityIssues replaces all security issues for a repository
// with the given set. The upstream alert APIs do not guarantee stable
// issue identifiers across alert types, so rows are fully replaced
// instead of diffed; no issue history is kept.
func (db *DB) ReplaceSecurityIssues(ctx context.Context, repositoryID int, issues []models.SecurityIssue) error {
	if repositoryID == 0 {
		return fmt.Errorf("%w: repository id cannot be zero", ErrInvalidInput)
	}

	safeLogInfo("Replacing security issues",
		zap.Int("repository_id", repositoryID),
		zap.Int("count", len(issues)))

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransactionFailed, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM security_issues WHERE repository_id = $1`, repositoryID,
	); err != nil {
		return fmt.Errorf("failed to delete security issues for repository %d: %w", repositoryID, err)
	}

	if len(issues) > 0 {
		query := `
			INSERT INTO security_issues (repository_id, title, severity, state, published_at, html_url)
			VALUES (:repository_id, :title, :severity, :state, :published_at, :html_url)
		`

		rows := make([]models.SecurityIssue, len(issues))
		for i, issue := range issues {
			issue.RepositoryID = repositoryID
			rows[i] = issue
		}

		if _, err := tx.NamedExecContext(ctx, query, rows); err != nil {
			return fmt.Errorf("failed to insert security issues for repository %d: %w", repositoryID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit transaction: %v", ErrTransactionFailed, err)
	}

	return nil
}

// ListSecurityIssues returns the current security issues for a repository.
func (db *DB) ListSecurityIssues(ctx context.Context, repositoryID int) ([]models.SecurityIssue, error) {
	var issues []models.SecurityIssue
	query := `
		SELECT repository_id, title, severity, state, published_at, html_url
		FROM security_issues
		WHERE repository_id = $1
		ORDER BY published_at DESC NULLS LAST
	`

	if err := db.conn.SelectContext(ctx, &issues, query, repositoryID); err != nil {
		return nil, fmt.Errorf("failed to list security issues for repository %d: %w", repositoryID, err)
	}
	return issues, nil
}
