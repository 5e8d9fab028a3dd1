// Package api exposes the read endpoints for the leaderboard and
// dashboard, plus the sync triggers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/BrainStation-23/learnathon-leaderboard-sub000/leaderboard"
	"github.com/BrainStation-23/learnathon-leaderboard-sub000/logger"
	"github.com/BrainStation-23/learnathon-leaderboard-sub000/models"
)

// LeaderboardService assembles leaderboard and dashboard views from
// persisted data.
type LeaderboardService interface {
	Leaderboard(ctx context.Context) ([]models.LeaderboardEntry, error)
	DashboardSummary(ctx context.Context) (leaderboard.Summary, error)
	RepositoryDetail(ctx context.Context, name string) (*RepositoryDetail, error)
}

// SyncTrigger starts sync runs. Runs execute in the background; the
// trigger returns once the run is accepted.
type SyncTrigger interface {
	TriggerSync(source string) error
	TriggerRepoSync(source, repoName string) error
}

// RepositoryDetail is the single-repository view: the repository with
// its metrics plus the per-repo records the list views summarize away.
type RepositoryDetail struct {
	models.RepositoryWithMetrics
	Contributors   []models.Contributor   `json:"contributors"`
	SecurityIssues []models.SecurityIssue `json:"security_issues"`
	Scores         *models.ScoreBreakdown `json:"scores,omitempty"`
}

// Handler serves the HTTP API.
type Handler struct {
	svc    LeaderboardService
	syncer SyncTrigger
}

func NewHandler(svc LeaderboardService, syncer SyncTrigger) *Handler {
	return &Handler{svc: svc, syncer: syncer}
}

// Router builds the chi router with all routes mounted.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", h.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/leaderboard", h.handleLeaderboard)
		r.Get("/dashboard/summary", h.handleDashboardSummary)
		r.Get("/repos/{name}", h.handleRepositoryDetail)
		r.Post("/sync", h.handleSync)
		r.Post("/sync/{name}", h.handleRepoSync)
	})
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.Leaderboard(r.Context())
	if err != nil {
		logger.Error("Failed to build leaderboard", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "failed to build leaderboard")
		return
	}
	respondWithJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleDashboardSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.DashboardSummary(r.Context())
	if err != nil {
		logger.Error("Failed to build dashboard summary", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "failed to build dashboard summary")
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleRepositoryDetail(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	detail, err := h.svc.RepositoryDetail(r.Context(), name)
	if err != nil {
		logger.Error("Failed to load repository", zap.String("name", name), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "failed to load repository")
		return
	}
	if detail == nil {
		respondWithError(w, http.StatusNotFound, "repository not found")
		return
	}
	respondWithJSON(w, http.StatusOK, detail)
}

func (h *Handler) handleSync(w http.ResponseWriter, r *http.Request) {
	if err := h.syncer.TriggerSync(models.SyncSourceManual); err != nil {
		respondWithError(w, http.StatusConflict, err.Error())
		return
	}
	respondWithJSON(w, http.StatusAccepted, map[string]string{"status": "sync started"})
}

func (h *Handler) handleRepoSync(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.syncer.TriggerRepoSync(models.SyncSourceManual, name); err != nil {
		respondWithError(w, http.StatusConflict, err.Error())
		return
	}
	respondWithJSON(w, http.StatusAccepted, map[string]string{
		"status":     "sync started",
		"repository": name,
	})
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		logger.Error("Failed to marshal response", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
