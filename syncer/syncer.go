// Package syncer drives the multi-stage data-synchronization pipeline:
// fetch repositories and their details from GitHub, persist them,
// resolve and fetch SonarCloud quality metrics, persist those, and
// report progress and accumulated warnings along the way.
package syncer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BrainStation-23/learnathon-leaderboard-sub000/github"
	"github.com/BrainStation-23/learnathon-leaderboard-sub000/logger"
	"github.com/BrainStation-23/learnathon-leaderboard-sub000/models"
)

// Stage identifies where the pipeline currently is. Per-item failures
// never move the machine to StageFailed; only configuration-level
// problems do.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageGitHub     Stage = "github"
	StageSonar      Stage = "sonar"
	StagePersisting Stage = "persisting"
	StageComplete   Stage = "complete"
	StageFailed     Stage = "failed"
)

// Progress boundaries: GitHub work occupies the first ~60% of the
// scale, SonarCloud the next ~30%, final persistence and completion
// the last ~10%.
const (
	progressRepoListDone  = 10.0
	progressDetailsDone   = 50.0
	progressGitHubDone    = 60.0
	progressSonarDone     = 90.0
	progressPersistedDone = 95.0
	progressComplete      = 100.0
)

// ProgressFunc receives ordered progress events. Percent is
// monotonically non-decreasing within a run.
type ProgressFunc func(stage Stage, percent float64, message string)

// Report is the outcome of a sync run. A run with a non-empty Errors
// list still completed; callers surface it as "completed with
// warnings".
type Report struct {
	Errors []string
}

// Config identifies the organizations a run syncs. It is passed
// explicitly per run; the syncer holds no ambient org state.
type Config struct {
	GitHubOrg string
	SonarOrg  string
}

// GitHubClient is the slice of the GitHub client the pipeline uses.
type GitHubClient interface {
	CheckQuota(ctx context.Context) (int, error)
	FetchOrgRepos(ctx context.Context, org string) ([]models.Repository, error)
	FetchRepo(ctx context.Context, org, name string) (*models.Repository, error)
	FetchContributors(ctx context.Context, org, name string) ([]models.Contributor, error)
	FetchCommitActivity(ctx context.Context, org, name string) (github.CommitActivity, error)
	FetchSecurityIssues(ctx context.Context, org, name string) []models.SecurityIssue
}

// ProjectResolver resolves a repository to its SonarCloud project key
// and measures. A miss is ("", nil, nil), not an error.
type ProjectResolver interface {
	Resolve(ctx context.Context, orgSlug, repoName string) (string, *models.QualityMetrics, error)
}

// Store is the slice of the persistence layer the pipeline uses.
type Store interface {
	UpsertRepository(ctx context.Context, repo models.Repository) (int, error)
	UpsertRepoMetrics(ctx context.Context, metrics models.RepoMetrics) error
	UpsertContributors(ctx context.Context, repositoryID int, contributors []models.Contributor) error
	ReplaceSecurityIssues(ctx context.Context, repositoryID int, issues []models.SecurityIssue) error
	UpsertQualityMetrics(ctx context.Context, metrics models.QualityMetrics) error
}

// Syncer orchestrates sync runs. It does not serialize runs itself;
// every write is an idempotent upsert, so re-running the pipeline is
// the supported recovery mechanism for partial failures.
type Syncer struct {
	gh       GitHubClient
	resolver ProjectResolver
	store    Store

	batchSize  int
	batchDelay time.Duration

	// sleep is injected for testability.
	sleep func(time.Duration)
}

// New creates a Syncer. batchSize bounds the number of repositories
// enriched concurrently; batchDelay is the pause between batches, kept
// to respect third-party rate limits.
func New(gh GitHubClient, resolver ProjectResolver, store Store, batchSize int, batchDelay time.Duration) *Syncer {
	if batchSize <= 0 {
		batchSize = 5
	}
	return &Syncer{
		gh:         gh,
		resolver:   resolver,
		store:      store,
		batchSize:  batchSize,
		batchDelay: batchDelay,
		sleep:      time.Sleep,
	}
}

// repoDetail carries one repository through the pipeline.
type repoDetail struct {
	repo         models.Repository
	id           int
	contributors []models.Contributor
	activity     github.CommitActivity
	issues       []models.SecurityIssue
	persisted    bool
}

// run is the shared pipeline body for full-organization and
// single-repository syncs.
type run struct {
	cfg        Config
	onProgress ProgressFunc
	report     Report
}

func (r *run) progress(stage Stage, percent float64, message string) {
	if r.onProgress != nil {
		r.onProgress(stage, percent, message)
	}
}

func (r *run) warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	logger.Warn("Sync warning", zap.String("warning", msg))
	r.report.Errors = append(r.report.Errors, msg)
}

// Run executes a full-organization sync. The returned error is non-nil
// only for configuration-level failures (missing org, exhausted quota
// at start); everything else degrades into Report.Errors and the run
// completes.
func (s *Syncer) Run(ctx context.Context, cfg Config, onProgress ProgressFunc) (Report, error) {
	r := &run{cfg: cfg, onProgress: onProgress}

	if err := s.preflight(ctx, cfg, r); err != nil {
		return r.report, err
	}

	r.progress(StageGitHub, 0, fmt.Sprintf("fetching repositories for %s", cfg.GitHubOrg))

	repos, err := s.gh.FetchOrgRepos(ctx, cfg.GitHubOrg)
	if err != nil {
		r.warnf("fetch repositories for %s: %v", cfg.GitHubOrg, err)
		r.progress(StageComplete, progressComplete, "sync complete")
		return r.report, nil
	}
	r.progress(StageGitHub, progressRepoListDone, fmt.Sprintf("fetched %d repositories", len(repos)))

	s.pipeline(ctx, r, repos)
	return r.report, nil
}

// RunRepo executes the same pipeline restricted to a single repository,
// with identical stage, progress and error semantics. It never requires
// a full-organization sync.
func (s *Syncer) RunRepo(ctx context.Context, cfg Config, repoName string, onProgress ProgressFunc) (Report, error) {
	r := &run{cfg: cfg, onProgress: onProgress}

	if repoName == "" {
		r.progress(StageFailed, 0, "repository name is required")
		return r.report, fmt.Errorf("repository name is required")
	}
	if err := s.preflight(ctx, cfg, r); err != nil {
		return r.report, err
	}

	r.progress(StageGitHub, 0, fmt.Sprintf("fetching repository %s/%s", cfg.GitHubOrg, repoName))

	repo, err := s.gh.FetchRepo(ctx, cfg.GitHubOrg, repoName)
	if err != nil {
		r.warnf("fetch repository %s/%s: %v", cfg.GitHubOrg, repoName, err)
		r.progress(StageComplete, progressComplete, "sync complete")
		return r.report, nil
	}
	r.progress(StageGitHub, progressRepoListDone, fmt.Sprintf("fetched repository %s", repo.FullName))

	s.pipeline(ctx, r, []models.Repository{*repo})
	return r.report, nil
}

// preflight validates configuration and the rate-limit budget. Failing
// preflight is the only way a run terminates in StageFailed.
func (s *Syncer) preflight(ctx context.Context, cfg Config, r *run) error {
	if cfg.GitHubOrg == "" {
		r.progress(StageFailed, 0, "github organization is not configured")
		return fmt.Errorf("github organization is not configured")
	}
	if cfg.SonarOrg == "" {
		r.progress(StageFailed, 0, "sonar organization is not configured")
		return fmt.Errorf("sonar organization is not configured")
	}

	remaining, err := s.gh.CheckQuota(ctx)
	if err != nil {
		r.progress(StageFailed, 0, fmt.Sprintf("refusing to start: %v", err))
		return err
	}
	logger.Info("Starting sync run",
		zap.String("github_org", cfg.GitHubOrg),
		zap.String("sonar_org", cfg.SonarOrg),
		zap.Int("quota_remaining", remaining))
	return nil
}

// pipeline runs detail enrichment, GitHub persistence, metrics
// resolution and metrics persistence for the given repositories.
func (s *Syncer) pipeline(ctx context.Context, r *run, repos []models.Repository) {
	details := s.enrichDetails(ctx, r, repos)
	s.persistGitHub(ctx, r, details)
	r.progress(StageGitHub, progressGitHubDone, "github data persisted")

	metrics := s.fetchQualityMetrics(ctx, r, details)
	r.progress(StageSonar, progressSonarDone, fmt.Sprintf("quality metrics resolved for %d repositories", len(metrics)))

	s.persistQualityMetrics(ctx, r, metrics)
	r.progress(StagePersisting, progressPersistedDone, "quality metrics persisted")

	status := "completed"
	if len(r.report.Errors) > 0 {
		status = fmt.Sprintf("completed with %d warnings", len(r.report.Errors))
	}
	logger.Info("Sync run finished",
		zap.String("github_org", r.cfg.GitHubOrg),
		zap.Int("repositories", len(repos)),
		zap.Int("warnings", len(r.report.Errors)))
	r.progress(StageComplete, progressComplete, fmt.Sprintf("sync %s", status))
}

// enrichDetails fetches contributors, commit activity and security
// issues for every repository, in fixed-size batches with a pause
// between batches. A failure on one repository degrades that record
// and is recorded; the batch proceeds.
func (s *Syncer) enrichDetails(ctx context.Context, r *run, repos []models.Repository) []*repoDetail {
	details := make([]*repoDetail, len(repos))
	warnings := make([][]string, len(repos))

	for start := 0; start < len(repos); start += s.batchSize {
		end := start + s.batchSize
		if end > len(repos) {
			end = len(repos)
		}

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				details[i], warnings[i] = s.enrichOne(gctx, r.cfg.GitHubOrg, repos[i])
				return nil
			})
		}
		_ = g.Wait()

		percent := progressRepoListDone +
			(progressDetailsDone-progressRepoListDone)*float64(end)/float64(len(repos))
		r.progress(StageGitHub, percent, fmt.Sprintf("fetched details for %d/%d repositories", end, len(repos)))

		if end < len(repos) && s.batchDelay > 0 {
			s.sleep(s.batchDelay)
		}
	}

	for _, w := range warnings {
		r.report.Errors = append(r.report.Errors, w...)
	}
	return details
}

// enrichOne gathers the detail records for a single repository,
// degrading on per-call failures rather than aborting.
func (s *Syncer) enrichOne(ctx context.Context, org string, repo models.Repository) (*repoDetail, []string) {
	d := &repoDetail{repo: repo}
	var warnings []string

	contributors, err := s.gh.FetchContributors(ctx, org, repo.Name)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("fetch contributors for %s: %v", repo.FullName, err))
	} else {
		d.contributors = contributors
	}

	activity, err := s.gh.FetchCommitActivity(ctx, org, repo.Name)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("fetch commit activity for %s: %v", repo.FullName, err))
	} else {
		d.activity = activity
		d.repo.LastCommitDate = activity.LastCommitDate
	}

	// Never errors: falls back across alert sources and degrades to empty.
	d.issues = s.gh.FetchSecurityIssues(ctx, org, repo.Name)

	return d, warnings
}

// persistGitHub writes repositories, activity snapshots, contributors
// and security issues. Each repository is fault-isolated: one
// repository's persistence failure is recorded and skipped.
func (s *Syncer) persistGitHub(ctx context.Context, r *run, details []*repoDetail) {
	for _, d := range details {
		id, err := s.store.UpsertRepository(ctx, d.repo)
		if err != nil {
			r.warnf("save repository %s: %v", d.repo.FullName, err)
			continue
		}
		d.id = id
		d.persisted = true

		snapshot := models.RepoMetrics{
			RepositoryID:      id,
			ContributorsCount: len(d.contributors),
			CommitsCount:      d.activity.CommitsCount,
			LastCommitDate:    d.activity.LastCommitDate,
			CollectedAt:       time.Now().UTC(),
		}
		if err := s.store.UpsertRepoMetrics(ctx, snapshot); err != nil {
			r.warnf("save metrics snapshot for %s: %v", d.repo.FullName, err)
		}

		if err := s.store.UpsertContributors(ctx, id, d.contributors); err != nil {
			r.warnf("save contributors for %s: %v", d.repo.FullName, err)
		}

		if err := s.store.ReplaceSecurityIssues(ctx, id, d.issues); err != nil {
			r.warnf("save security issues for %s: %v", d.repo.FullName, err)
		}
	}
}

// fetchQualityMetrics resolves project keys and fetches measures for
// every persisted repository, again in bounded batches. A repository
// with no resolvable project key is "not analyzed" and produces no
// record and no error.
func (s *Syncer) fetchQualityMetrics(ctx context.Context, r *run, details []*repoDetail) []models.QualityMetrics {
	persisted := make([]*repoDetail, 0, len(details))
	for _, d := range details {
		if d.persisted {
			persisted = append(persisted, d)
		}
	}

	results := make([]*models.QualityMetrics, len(persisted))
	warnings := make([][]string, len(persisted))

	r.progress(StageSonar, progressGitHubDone, fmt.Sprintf("resolving quality metrics for %d repositories", len(persisted)))

	for start := 0; start < len(persisted); start += s.batchSize {
		end := start + s.batchSize
		if end > len(persisted) {
			end = len(persisted)
		}

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				d := persisted[i]
				key, metrics, err := s.resolver.Resolve(gctx, r.cfg.SonarOrg, d.repo.Name)
				if err != nil {
					warnings[i] = []string{fmt.Sprintf("fetch quality metrics for %s: %v", d.repo.FullName, err)}
					return nil
				}
				if key == "" {
					// Not analyzed; deliberately not an error.
					logger.Info("Repository has no sonar analysis", zap.String("repo", d.repo.FullName))
					return nil
				}
				metrics.RepositoryID = d.id
				results[i] = metrics
				return nil
			})
		}
		_ = g.Wait()

		percent := progressGitHubDone +
			(progressSonarDone-progressGitHubDone)*float64(end)/float64(len(persisted))
		r.progress(StageSonar, percent, fmt.Sprintf("resolved metrics for %d/%d repositories", end, len(persisted)))

		if end < len(persisted) && s.batchDelay > 0 {
			s.sleep(s.batchDelay)
		}
	}

	for _, w := range warnings {
		r.report.Errors = append(r.report.Errors, w...)
	}

	out := make([]models.QualityMetrics, 0, len(results))
	for _, m := range results {
		if m != nil {
			out = append(out, *m)
		}
	}
	return out
}

// persistQualityMetrics writes the resolved metrics, fault-isolated per
// repository.
func (s *Syncer) persistQualityMetrics(ctx context.Context, r *run, metrics []models.QualityMetrics) {
	for _, m := range metrics {
		if err := s.store.UpsertQualityMetrics(ctx, m); err != nil {
			r.warnf("save quality metrics for %s: %v", m.ProjectKey, err)
		}
	}
}
