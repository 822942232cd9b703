// internal/api/handler.go
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"delivery-insights/internal/database"
)

// Handler is the container for API dependencies.
type Handler struct {
	db       database.Querier
	scope    database.Scope
	location *time.Location
	logger   *slog.Logger
	now      func() time.Time
}

// NewRouter creates and configures a new chi router with all API routes.
// db is expected to carry scope already; scope is used again to reject per-repository requests.
func NewRouter(db database.Querier, scope database.Scope, location *time.Location, logger *slog.Logger) http.Handler {
	if location == nil {
		location = time.UTC
	}
	h := &Handler{
		db:       db,
		scope:    scope,
		location: location,
		logger:   logger,
		now:      time.Now,
	}
	return h.routes()
}

func (h *Handler) routes() http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger) // Chi's default logger
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// API Routes
	r.Get("/health", h.healthCheck)
	r.Route("/v1", func(r chi.Router) {
		r.Route("/repos/{owner}/{name}", func(r chi.Router) {
			r.Get("/commits", h.getCommits)
			r.Get("/branches", h.getBranches)
			r.Get("/pulls", h.getPullRequests)
			r.Get("/stats/top-committers", h.getTopCommitters)
			r.Get("/report", h.getReport)
		})
		r.Get("/stats/reviewers", h.getReviewerLeaderboard)
		r.Get("/tickets/{key}/summaries", h.getTicketSummaries)
		r.Get("/tickets/{key}/summaries/{owner}/{name}", h.getTicketSummaryChain)
		r.Put("/sprints/{id}", h.putSprint)
		r.Get("/sprints/{id}/burndown", h.getBurndown)
	})

	return r
}

// healthCheck is a simple health endpoint.
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// repoParam resolves the {owner}/{name} path. Repositories outside the scope do not exist for the API.
func (h *Handler) repoParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	repo := chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "name")
	if h.scope.Excludes(repo) {
		respondWithError(w, http.StatusNotFound, "Repository not found")
		return "", false
	}
	return repo, true
}

// getCommits handles the request to retrieve commits for a repository.
// GET /v1/repos/{owner}/{name}/commits?limit=N
func (h *Handler) getCommits(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.repoParam(w, r)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit", 100, 1000)
	if !ok {
		return
	}

	commits, err := h.db.GetCommitsByRepo(r.Context(), database.GetCommitsByRepoParams{Repo: repo, Limit: int32(limit)})
	if err != nil {
		h.internalError(w, "Failed to get commits", err)
		return
	}
	respondWithJSON(w, http.StatusOK, commits)
}

// getTopCommitters handles the request for top commit authors.
// GET /v1/repos/{owner}/{name}/stats/top-committers?limit=N
func (h *Handler) getTopCommitters(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.repoParam(w, r)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit", 10, 100)
	if !ok {
		return
	}

	authors, err := h.db.GetTopNCommitAuthors(r.Context(), database.GetTopNCommitAuthorsParams{
		Repo:  repo,
		Limit: int32(limit),
	})
	if err != nil {
		h.internalError(w, "Failed to get top commit authors", err)
		return
	}

	respondWithJSON(w, http.StatusOK, authors)
}

type branchResponse struct {
	database.Branch
	PullRequest json.RawMessage `json:"pull_request,omitempty"`
}

// getBranches lists the stored branches, gone ones included unless active=true.
// GET /v1/repos/{owner}/{name}/branches?active=true
func (h *Handler) getBranches(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.repoParam(w, r)
	if !ok {
		return
	}
	onlyActive := r.URL.Query().Get("active") == "true"

	branches, err := h.db.GetBranchesByRepo(r.Context(), repo)
	if err != nil {
		h.internalError(w, "Failed to get branches", err)
		return
	}

	out := make([]branchResponse, 0, len(branches))
	for _, b := range branches {
		if onlyActive && !b.IsActive {
			continue
		}
		resp := branchResponse{Branch: b}
		if json.Valid(b.PullRequest) {
			resp.PullRequest = b.PullRequest
		}
		out = append(out, resp)
	}
	respondWithJSON(w, http.StatusOK, out)
}

// getPullRequests lists pull requests with their cached review metrics.
// GET /v1/repos/{owner}/{name}/pulls
func (h *Handler) getPullRequests(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.repoParam(w, r)
	if !ok {
		return
	}

	prs, err := h.db.GetPullRequestsByRepo(r.Context(), repo)
	if err != nil {
		h.internalError(w, "Failed to get pull requests", err)
		return
	}
	respondWithJSON(w, http.StatusOK, prs)
}

// getReviewerLeaderboard ranks reviewers over the last N days, across every in-scope repository
// unless repo is given.
// GET /v1/stats/reviewers?repo=owner/name&days=N&limit=N
func (h *Handler) getReviewerLeaderboard(w http.ResponseWriter, r *http.Request) {
	repo := r.URL.Query().Get("repo")
	if repo != "" && h.scope.Excludes(repo) {
		respondWithError(w, http.StatusNotFound, "Repository not found")
		return
	}
	days, ok := queryInt(w, r, "days", 30, 365)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit", 10, 100)
	if !ok {
		return
	}

	rows, err := h.db.GetReviewerLeaderboard(r.Context(), database.GetReviewerLeaderboardParams{
		Repo:  repo,
		Since: h.now().AddDate(0, 0, -days),
		Limit: int32(limit),
	})
	if err != nil {
		h.internalError(w, "Failed to get reviewer leaderboard", err)
		return
	}
	respondWithJSON(w, http.StatusOK, rows)
}

func (h *Handler) internalError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, "error", err)
	respondWithError(w, http.StatusInternalServerError, "Internal server error")
}

// queryInt reads an optional positive integer query parameter bounded by max.
func queryInt(w http.ResponseWriter, r *http.Request, name string, def, max int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > max {
		respondWithError(w, http.StatusBadRequest,
			"Invalid '"+name+"' parameter. Must be an integer between 1 and "+strconv.Itoa(max)+".")
		return 0, false
	}
	return n, true
}
