package db

import (
	"context"
	"fmt"

	"github.com/BrainStation-23/learnathon-leaderboard-sub000/models"
)

// GetFilterConfig loads the per-deployment exclusion lists. The sync
// core only ever reads this configuration; it is maintained elsewhere.
func (db *DB) GetFilterConfig(ctx context.Context) (models.FilterConfig, error) {
	var cfg models.FilterConfig

	if err := db.conn.SelectContext(ctx, &cfg.ExcludedLogins,
		`SELECT login FROM excluded_contributors ORDER BY login`,
	); err != nil {
		return models.FilterConfig{}, fmt.Errorf("failed to load excluded contributors: %w", err)
	}

	if err := db.conn.SelectContext(ctx, &cfg.ExcludedRepos,
		`SELECT repo_name, reason FROM excluded_repositories ORDER BY repo_name`,
	); err != nil {
		return models.FilterConfig{}, fmt.Errorf("failed to load excluded repositories: %w", err)
	}

	return cfg, nil
}
