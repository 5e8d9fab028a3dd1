// Package service wires the configuration, storage, API clients,
// sync pipeline, scheduler and HTTP server into a running application.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/BrainStation-23/learnathon-leaderboard-sub000/api"
	"github.com/BrainStation-23/learnathon-leaderboard-sub000/config"
	"github.com/BrainStation-23/learnathon-leaderboard-sub000/db"
	"github.com/BrainStation-23/learnathon-leaderboard-sub000/github"
	"github.com/BrainStation-23/learnathon-leaderboard-sub000/leaderboard"
	"github.com/BrainStation-23/learnathon-leaderboard-sub000/logger"
	"github.com/BrainStation-23/learnathon-leaderboard-sub000/models"
	"github.com/BrainStation-23/learnathon-leaderboard-sub000/score"
	"github.com/BrainStation-23/learnathon-leaderboard-sub000/sonar"
	"github.com/BrainStation-23/learnathon-leaderboard-sub000/syncer"
)

// ErrSyncInProgress is returned when a sync trigger arrives while a
// run is already executing.
var ErrSyncInProgress = errors.New("a sync is already running")

// syncRunTimeout bounds a single background run end to end.
const syncRunTimeout = 30 * time.Minute

// store is the slice of the persistence layer the service reads from
// and audits into.
type store interface {
	ListRepositoriesWithMetrics(ctx context.Context) ([]models.RepositoryWithMetrics, error)
	ListContributorsByRepo(ctx context.Context) (map[int][]models.Contributor, error)
	ListSecurityIssues(ctx context.Context, repositoryID int) ([]models.SecurityIssue, error)
	GetFilterConfig(ctx context.Context) (models.FilterConfig, error)
	InsertSyncRun(ctx context.Context, source, repoName string) (int, error)
	FinishSyncRun(ctx context.Context, id int, status string, errorCount int) error
	Close() error
}

// pipeline runs sync jobs.
type pipeline interface {
	Run(ctx context.Context, cfg syncer.Config, onProgress syncer.ProgressFunc) (syncer.Report, error)
	RunRepo(ctx context.Context, cfg syncer.Config, repoName string, onProgress syncer.ProgressFunc) (syncer.Report, error)
}

// Service is the application composition root.
type Service struct {
	cfg      *config.Config
	database store
	syncer   pipeline
	server   *http.Server
	cron     *cron.Cron

	syncing atomic.Bool
}

// New builds the full application from configuration.
func New(cfg *config.Config) (*Service, error) {
	database, err := db.New(db.Config{
		Host:     cfg.PostgresHost,
		Port:     cfg.PostgresPort,
		User:     cfg.PostgresUser,
		Password: cfg.PostgresPassword,
		Name:     cfg.PostgresDB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	ghClient := github.NewClient(cfg.GitHubToken)
	sonarClient := sonar.NewClient(cfg.SonarToken)
	resolver := sonar.NewResolver(sonarClient)

	s := &Service{
		cfg:      cfg,
		database: database,
		syncer:   syncer.New(ghClient, resolver, database, cfg.DetailBatchSize, cfg.BatchDelay),
	}

	handler := api.NewHandler(s, s)
	s.server = &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	if cfg.SyncSchedule != "" {
		s.cron = cron.New()
		_, err := s.cron.AddFunc(cfg.SyncSchedule, func() {
			if err := s.TriggerSync(models.SyncSourceAutomated); err != nil {
				logger.Warn("Skipping scheduled sync", zap.Error(err))
			}
		})
		if err != nil {
			database.Close()
			return nil, fmt.Errorf("invalid sync schedule %q: %w", cfg.SyncSchedule, err)
		}
	}

	return s, nil
}

// Start runs the HTTP server and the scheduler until ctx is cancelled,
// then shuts both down gracefully.
func (s *Service) Start(ctx context.Context) error {
	if s.cron != nil {
		s.cron.Start()
		logger.Info("Scheduled sync enabled", zap.String("schedule", s.cfg.SyncSchedule))
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", s.cfg.HTTPAddr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	return s.database.Close()
}

// TriggerSync starts a full-organization sync in the background. Only
// one run executes at a time.
func (s *Service) TriggerSync(source string) error {
	return s.trigger(source, "")
}

// TriggerRepoSync starts a single-repository sync in the background.
func (s *Service) TriggerRepoSync(source, repoName string) error {
	if repoName == "" {
		return fmt.Errorf("repository name is required")
	}
	return s.trigger(source, repoName)
}

func (s *Service) trigger(source, repoName string) error {
	if !s.syncing.CompareAndSwap(false, true) {
		return ErrSyncInProgress
	}

	go func() {
		defer s.syncing.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), syncRunTimeout)
		defer cancel()
		s.runSync(ctx, source, repoName)
	}()
	return nil
}

// runSync executes one sync run and records it in the audit table.
func (s *Service) runSync(ctx context.Context, source, repoName string) {
	runID, err := s.database.InsertSyncRun(ctx, source, repoName)
	if err != nil {
		logger.Error("Failed to record sync run", zap.Error(err))
	}

	onProgress := func(stage syncer.Stage, percent float64, message string) {
		logger.Info("Sync progress",
			zap.String("stage", string(stage)),
			zap.Float64("percent", percent),
			zap.String("message", message))
	}

	runCfg := syncer.Config{GitHubOrg: s.cfg.GitHubOrg, SonarOrg: s.cfg.SonarOrg}

	var report syncer.Report
	var runErr error
	if repoName == "" {
		report, runErr = s.syncer.Run(ctx, runCfg, onProgress)
	} else {
		report, runErr = s.syncer.RunRepo(ctx, runCfg, repoName, onProgress)
	}

	status := models.SyncStatusCompleted
	switch {
	case runErr != nil:
		status = models.SyncStatusFailed
		logger.Error("Sync run failed", zap.Error(runErr))
	case len(report.Errors) > 0:
		status = models.SyncStatusWithWarnings
	}

	if runID != 0 {
		if err := s.database.FinishSyncRun(ctx, runID, status, len(report.Errors)); err != nil {
			logger.Error("Failed to close sync run record", zap.Error(err))
		}
	}
}

// Leaderboard assembles the ranked leaderboard from persisted data.
func (s *Service) Leaderboard(ctx context.Context) ([]models.LeaderboardEntry, error) {
	repos, contributors, filter, err := s.loadViewData(ctx)
	if err != nil {
		return nil, err
	}
	return leaderboard.Build(repos, contributors, filter), nil
}

// DashboardSummary assembles the dashboard aggregates.
func (s *Service) DashboardSummary(ctx context.Context) (leaderboard.Summary, error) {
	repos, contributors, filter, err := s.loadViewData(ctx)
	if err != nil {
		return leaderboard.Summary{}, err
	}
	return leaderboard.Summarize(repos, contributors, filter, time.Now().UTC()), nil
}

// RepositoryDetail returns the full per-repository view, or nil when
// the repository is unknown.
func (s *Service) RepositoryDetail(ctx context.Context, name string) (*api.RepositoryDetail, error) {
	repos, err := s.database.ListRepositoriesWithMetrics(ctx)
	if err != nil {
		return nil, err
	}

	var found *models.RepositoryWithMetrics
	for i := range repos {
		if repos[i].Name == name {
			found = &repos[i]
			break
		}
	}
	if found == nil {
		return nil, nil
	}

	contributors, err := s.database.ListContributorsByRepo(ctx)
	if err != nil {
		return nil, err
	}
	issues, err := s.database.ListSecurityIssues(ctx, found.ID)
	if err != nil {
		return nil, err
	}

	detail := &api.RepositoryDetail{
		RepositoryWithMetrics: *found,
		Contributors:          contributors[found.ID],
		SecurityIssues:        issues,
	}
	if found.Metrics != nil {
		breakdown := score.Breakdown(*found.Metrics)
		detail.Scores = &breakdown
	}
	return detail, nil
}

func (s *Service) loadViewData(ctx context.Context) ([]models.RepositoryWithMetrics, map[int][]models.Contributor, models.FilterConfig, error) {
	repos, err := s.database.ListRepositoriesWithMetrics(ctx)
	if err != nil {
		return nil, nil, models.FilterConfig{}, err
	}
	contributors, err := s.database.ListContributorsByRepo(ctx)
	if err != nil {
		return nil, nil, models.FilterConfig{}, err
	}
	filter, err := s.database.GetFilterConfig(ctx)
	if err != nil {
		return nil, nil, models.FilterConfig{}, err
	}
	return repos, contributors, filter, nil
}
