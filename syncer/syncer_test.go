package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrainStation-23/learnathon-leaderboard-sub000/github"
	"github.com/BrainStation-23/learnathon-leaderboard-sub000/models"
)

type fakeGitHub struct {
	repos            []models.Repository
	reposErr         error
	repoErr          error
	contributors     map[string][]models.Contributor
	contributorsErr  map[string]error
	activity         map[string]github.CommitActivity
	activityErr      map[string]error
	issues           map[string][]models.SecurityIssue
	quotaRemaining   int
	quotaErr         error
	mu               sync.Mutex
	contributorCalls []string
}

func (f *fakeGitHub) CheckQuota(ctx context.Context) (int, error) {
	return f.quotaRemaining, f.quotaErr
}

func (f *fakeGitHub) FetchOrgRepos(ctx context.Context, org string) ([]models.Repository, error) {
	return f.repos, f.reposErr
}

func (f *fakeGitHub) FetchRepo(ctx context.Context, org, name string) (*models.Repository, error) {
	if f.repoErr != nil {
		return nil, f.repoErr
	}
	for _, r := range f.repos {
		if r.Name == name {
			repo := r
			return &repo, nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeGitHub) FetchContributors(ctx context.Context, org, name string) ([]models.Contributor, error) {
	f.mu.Lock()
	f.contributorCalls = append(f.contributorCalls, name)
	f.mu.Unlock()
	if err := f.contributorsErr[name]; err != nil {
		return nil, err
	}
	return f.contributors[name], nil
}

func (f *fakeGitHub) FetchCommitActivity(ctx context.Context, org, name string) (github.CommitActivity, error) {
	if err := f.activityErr[name]; err != nil {
		return github.CommitActivity{}, err
	}
	return f.activity[name], nil
}

func (f *fakeGitHub) FetchSecurityIssues(ctx context.Context, org, name string) []models.SecurityIssue {
	return f.issues[name]
}

type fakeResolver struct {
	metrics map[string]*models.QualityMetrics
	keys    map[string]string
	errs    map[string]error
}

func (f *fakeResolver) Resolve(ctx context.Context, orgSlug, repoName string) (string, *models.QualityMetrics, error) {
	if err := f.errs[repoName]; err != nil {
		return "", nil, err
	}
	key := f.keys[repoName]
	if key == "" {
		return "", nil, nil
	}
	m := *f.metrics[repoName]
	return key, &m, nil
}

type fakeStore struct {
	mu             sync.Mutex
	nextID         int
	repoErr        error
	repos          []models.Repository
	snapshots      []models.RepoMetrics
	contributors   map[int][]models.Contributor
	issues         map[int][]models.SecurityIssue
	qualityMetrics []models.QualityMetrics
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		contributors: make(map[int][]models.Contributor),
		issues:       make(map[int][]models.SecurityIssue),
	}
}

func (f *fakeStore) UpsertRepository(ctx context.Context, repo models.Repository) (int, error) {
	if f.repoErr != nil {
		return 0, f.repoErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.repos = append(f.repos, repo)
	return f.nextID, nil
}

func (f *fakeStore) UpsertRepoMetrics(ctx context.Context, metrics models.RepoMetrics) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, metrics)
	return nil
}

func (f *fakeStore) UpsertContributors(ctx context.Context, repositoryID int, contributors []models.Contributor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contributors[repositoryID] = contributors
	return nil
}

func (f *fakeStore) ReplaceSecurityIssues(ctx context.Context, repositoryID int, issues []models.SecurityIssue) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issues[repositoryID] = issues
	return nil
}

func (f *fakeStore) UpsertQualityMetrics(ctx context.Context, metrics models.QualityMetrics) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.qualityMetrics = append(f.qualityMetrics, metrics)
	return nil
}

type progressEvent struct {
	stage   Stage
	percent float64
	message string
}

type progressRecorder struct {
	mu     sync.Mutex
	events []progressEvent
}

func (p *progressRecorder) record(stage Stage, percent float64, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, progressEvent{stage, percent, message})
}

func testRepos(names ...string) []models.Repository {
	repos := make([]models.Repository, 0, len(names))
	for i, name := range names {
		repos = append(repos, models.Repository{
			ExternalID: int64(1000 + i),
			Name:       name,
			FullName:   "acme/" + name,
			Language:   "Go",
		})
	}
	return repos
}

func newTestSyncer(gh *fakeGitHub, resolver *fakeResolver, store *fakeStore) *Syncer {
	s := New(gh, resolver, store, 2, 0)
	s.sleep = func(time.Duration) {}
	return s
}

func floatPtr(f float64) *float64 { return &f }

func TestRunSyncsAnalyzedAndUnanalyzedRepos(t *testing.T) {
	gh := &fakeGitHub{
		repos:          testRepos("alpha", "beta"),
		quotaRemaining: 5000,
		contributors: map[string][]models.Contributor{
			"alpha": {{Login: "alice", Contributions: 12}},
			"beta":  {{Login: "bob", Contributions: 3}},
		},
		activity: map[string]github.CommitActivity{
			"alpha": {CommitsCount: 42},
			"beta":  {CommitsCount: 7},
		},
		issues: map[string][]models.SecurityIssue{
			"alpha": {{Severity: models.SeverityHigh, Title: "CVE-2026-0001"}},
		},
	}
	resolver := &fakeResolver{
		keys: map[string]string{"alpha": "acme_alpha"},
		metrics: map[string]*models.QualityMetrics{
			"alpha": {ProjectKey: "acme_alpha", Coverage: floatPtr(81.5)},
		},
	}
	store := newFakeStore()
	s := newTestSyncer(gh, resolver, store)

	report, err := s.Run(context.Background(), Config{GitHubOrg: "acme", SonarOrg: "acme-sonar"}, nil)
	require.NoError(t, err)

	// beta has no sonar project; that is not a warning.
	assert.Empty(t, report.Errors)

	assert.Len(t, store.repos, 2)
	assert.Len(t, store.snapshots, 2)

	require.Len(t, store.qualityMetrics, 1)
	assert.Equal(t, "acme_alpha", store.qualityMetrics[0].ProjectKey)
	assert.NotZero(t, store.qualityMetrics[0].RepositoryID)

	var alphaIssues []models.SecurityIssue
	for _, issues := range store.issues {
		if len(issues) > 0 {
			alphaIssues = issues
		}
	}
	require.Len(t, alphaIssues, 1)
	assert.Equal(t, models.SeverityHigh, alphaIssues[0].Severity)
}

func TestRunProgressIsMonotonicAndStagesOrdered(t *testing.T) {
	gh := &fakeGitHub{
		repos:          testRepos("a", "b", "c", "d", "e"),
		quotaRemaining: 5000,
		contributors:   map[string][]models.Contributor{},
		activity:       map[string]github.CommitActivity{},
		issues:         map[string][]models.SecurityIssue{},
	}
	resolver := &fakeResolver{keys: map[string]string{}}
	store := newFakeStore()
	s := newTestSyncer(gh, resolver, store)

	rec := &progressRecorder{}
	_, err := s.Run(context.Background(), Config{GitHubOrg: "acme", SonarOrg: "acme-sonar"}, rec.record)
	require.NoError(t, err)
	require.NotEmpty(t, rec.events)

	last := -1.0
	for _, ev := range rec.events {
		assert.GreaterOrEqual(t, ev.percent, last, "progress went backwards at %q", ev.message)
		last = ev.percent
	}

	stageOrder := map[Stage]int{StageGitHub: 0, StageSonar: 1, StagePersisting: 2, StageComplete: 3}
	lastStage := -1
	for _, ev := range rec.events {
		rank, ok := stageOrder[ev.stage]
		require.True(t, ok, "unexpected stage %q", ev.stage)
		assert.GreaterOrEqual(t, rank, lastStage)
		lastStage = rank
	}

	final := rec.events[len(rec.events)-1]
	assert.Equal(t, StageComplete, final.stage)
	assert.Equal(t, 100.0, final.percent)
}

func TestRunAccumulatesPartialFailures(t *testing.T) {
	gh := &fakeGitHub{
		repos:           testRepos("good", "flaky"),
		quotaRemaining:  5000,
		contributors:    map[string][]models.Contributor{"good": {{Login: "alice"}}},
		contributorsErr: map[string]error{"flaky": errors.New("boom")},
		activity:        map[string]github.CommitActivity{},
		activityErr:     map[string]error{"flaky": errors.New("boom")},
		issues:          map[string][]models.SecurityIssue{},
	}
	resolver := &fakeResolver{
		keys: map[string]string{"good": "acme_good"},
		metrics: map[string]*models.QualityMetrics{
			"good": {ProjectKey: "acme_good"},
		},
		errs: map[string]error{"flaky": errors.New("sonar down")},
	}
	store := newFakeStore()
	s := newTestSyncer(gh, resolver, store)

	report, err := s.Run(context.Background(), Config{GitHubOrg: "acme", SonarOrg: "acme-sonar"}, nil)
	require.NoError(t, err, "partial failures must not fail the run")

	assert.Len(t, report.Errors, 3)
	joined := strings.Join(report.Errors, "\n")
	assert.Contains(t, joined, "contributors for acme/flaky")
	assert.Contains(t, joined, "commit activity for acme/flaky")
	assert.Contains(t, joined, "quality metrics for acme/flaky")

	// Both repos were still persisted despite the flaky one's failures.
	assert.Len(t, store.repos, 2)
	require.Len(t, store.qualityMetrics, 1)
	assert.Equal(t, "acme_good", store.qualityMetrics[0].ProjectKey)
}

func TestRunFailsOnMissingConfig(t *testing.T) {
	s := newTestSyncer(&fakeGitHub{quotaRemaining: 5000}, &fakeResolver{}, newFakeStore())

	rec := &progressRecorder{}
	_, err := s.Run(context.Background(), Config{SonarOrg: "acme-sonar"}, rec.record)
	require.Error(t, err)
	require.NotEmpty(t, rec.events)
	assert.Equal(t, StageFailed, rec.events[len(rec.events)-1].stage)

	_, err = s.Run(context.Background(), Config{GitHubOrg: "acme"}, nil)
	require.Error(t, err)
}

func TestRunRefusesOnExhaustedQuota(t *testing.T) {
	gh := &fakeGitHub{quotaErr: fmt.Errorf("%w: 12 requests remaining", github.ErrQuotaExhausted)}
	s := newTestSyncer(gh, &fakeResolver{}, newFakeStore())

	_, err := s.Run(context.Background(), Config{GitHubOrg: "acme", SonarOrg: "acme-sonar"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, github.ErrQuotaExhausted)
}

func TestRunCompletesWhenRepoListFetchFails(t *testing.T) {
	gh := &fakeGitHub{quotaRemaining: 5000, reposErr: errors.New("api unreachable")}
	s := newTestSyncer(gh, &fakeResolver{}, newFakeStore())

	rec := &progressRecorder{}
	report, err := s.Run(context.Background(), Config{GitHubOrg: "acme", SonarOrg: "acme-sonar"}, rec.record)
	require.NoError(t, err)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "api unreachable")
	assert.Equal(t, StageComplete, rec.events[len(rec.events)-1].stage)
}

func TestRunRepoSyncsSingleRepository(t *testing.T) {
	gh := &fakeGitHub{
		repos:          testRepos("alpha", "beta"),
		quotaRemaining: 5000,
		contributors: map[string][]models.Contributor{
			"beta": {{Login: "bob", Contributions: 3}},
		},
		activity: map[string]github.CommitActivity{
			"beta": {CommitsCount: 7},
		},
		issues: map[string][]models.SecurityIssue{},
	}
	resolver := &fakeResolver{
		keys: map[string]string{"beta": "acme_beta"},
		metrics: map[string]*models.QualityMetrics{
			"beta": {ProjectKey: "acme_beta"},
		},
	}
	store := newFakeStore()
	s := newTestSyncer(gh, resolver, store)

	report, err := s.RunRepo(context.Background(), Config{GitHubOrg: "acme", SonarOrg: "acme-sonar"}, "beta", nil)
	require.NoError(t, err)
	assert.Empty(t, report.Errors)

	// Only beta was touched.
	require.Len(t, store.repos, 1)
	assert.Equal(t, "beta", store.repos[0].Name)
	assert.Equal(t, []string{"beta"}, gh.contributorCalls)

	require.Len(t, store.qualityMetrics, 1)
	assert.Equal(t, "acme_beta", store.qualityMetrics[0].ProjectKey)
}

func TestRunRepoRequiresName(t *testing.T) {
	s := newTestSyncer(&fakeGitHub{quotaRemaining: 5000}, &fakeResolver{}, newFakeStore())

	_, err := s.RunRepo(context.Background(), Config{GitHubOrg: "acme", SonarOrg: "acme-sonar"}, "", nil)
	require.Error(t, err)
}

func TestRunBatchesDetailFetches(t *testing.T) {
	gh := &fakeGitHub{
		repos:          testRepos("a", "b", "c", "d", "e"),
		quotaRemaining: 5000,
		contributors:   map[string][]models.Contributor{},
		activity:       map[string]github.CommitActivity{},
		issues:         map[string][]models.SecurityIssue{},
	}
	store := newFakeStore()
	s := New(gh, &fakeResolver{keys: map[string]string{}}, store, 2, 2*time.Second)

	var sleeps []time.Duration
	s.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }

	_, err := s.Run(context.Background(), Config{GitHubOrg: "acme", SonarOrg: "acme-sonar"}, nil)
	require.NoError(t, err)

	// 5 repos in batches of 2 pause twice between github detail batches
	// and twice between sonar batches.
	assert.Len(t, sleeps, 4)
	for _, d := range sleeps {
		assert.Equal(t, 2*time.Second, d)
	}
	assert.Len(t, gh.contributorCalls, 5)
}
