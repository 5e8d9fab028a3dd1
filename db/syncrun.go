package db

import (
	"context"
	"fmt"
	"time"

	"github.com/BrainStation-23/learnathon-leaderboard-sub000/models"
)

// InsertSyncRun records the start of a sync run for audit purposes and
// returns the run ID. Source is "manual" or "automated".
func (db *DB) InsertSyncRun(ctx context.Context, source, repoName string) (int, error) {
	if source != models.SyncSourceManual && source != models.SyncSourceAutomated {
		return 0, fmt.Errorf("%w: unknown sync source %q", ErrInvalidInput, source)
	}

	var id int
	query := `
		INSERT INTO sync_runs (source, repo_name, status, error_count, started_at)
		VALUES ($1, $2, $3, 0, $4)
		RETURNING id
	`
	if err := db.conn.GetContext(ctx, &id, query,
		source, repoName, models.SyncStatusRunning, time.Now().UTC(),
	); err != nil {
		return 0, fmt.Errorf("failed to insert sync run: %w", err)
	}
	return id, nil
}

// FinishSyncRun closes out a sync run audit record.
func (db *DB) FinishSyncRun(ctx context.Context, id int, status string, errorCount int) error {
	query := `
		UPDATE sync_runs SET status = $2, error_count = $3, finished_at = $4
		WHERE id = $1
	`
	if _, err := db.conn.ExecContext(ctx, query, id, status, errorCount, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to finish sync run %d: %w", id, err)
	}
	return nil
}

// ListSyncRuns returns the most recent sync runs, newest first.
func (db *DB) ListSyncRuns(ctx context.Context, limit int) ([]models.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}

	var runs []models.SyncRun
	query := `
		SELECT id, source, repo_name, status, error_count, started_at, finished_at
		FROM sync_runs
		ORDER BY started_at DESC
		LIMIT $1
	`
	if err := db.conn.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	return runs, nil
}
