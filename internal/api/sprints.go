// internal/api/sprints.go
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"delivery-insights/internal/burndown"
	"delivery-insights/internal/database"
	"delivery-insights/internal/model"
)

type sprintRequest struct {
	Name       string   `json:"name"`
	StartDate  string   `json:"start_date"`
	EndDate    string   `json:"end_date"`
	TicketKeys []string `json:"ticket_keys"`
}

type burndownResponse struct {
	Sprint   database.Sprint `json:"sprint"`
	Timezone string          `json:"timezone"`
	Days     []burndown.Day  `json:"days"`
}

// putSprint creates or replaces a sprint definition.
// PUT /v1/sprints/{id}
func (h *Handler) putSprint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req sprintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	start, err := time.Parse(time.DateOnly, req.StartDate)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "start_date must be YYYY-MM-DD")
		return
	}
	end, err := time.Parse(time.DateOnly, req.EndDate)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "end_date must be YYYY-MM-DD")
		return
	}
	if end.Before(start) {
		respondWithError(w, http.StatusBadRequest, "end_date must not be before start_date")
		return
	}

	keys := make([]string, 0, len(req.TicketKeys))
	for _, k := range req.TicketKeys {
		if k = strings.ToUpper(strings.TrimSpace(k)); k != "" {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	keys = slices.Compact(keys)

	sprint, err := h.db.UpsertSprint(r.Context(), database.UpsertSprintParams{
		ID:         id,
		Name:       req.Name,
		StartDate:  start,
		EndDate:    end,
		TicketKeys: keys,
	})
	if err != nil {
		h.internalError(w, "Failed to store sprint", err)
		return
	}
	respondWithJSON(w, http.StatusOK, sprint)
}

// getBurndown reconstructs the sprint's daily status distribution from the stored status history.
// GET /v1/sprints/{id}/burndown
func (h *Handler) getBurndown(w http.ResponseWriter, r *http.Request) {
	row, err := h.db.GetSprint(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondWithError(w, http.StatusNotFound, "Sprint not found")
			return
		}
		h.internalError(w, "Failed to get sprint", err)
		return
	}
	sprint := model.Sprint{
		ID:         row.ID,
		Name:       row.Name,
		StartDate:  row.StartDate,
		EndDate:    row.EndDate,
		TicketKeys: row.TicketKeys,
	}

	var changes []model.StatusChange
	var commitTimes []time.Time
	if len(sprint.TicketKeys) > 0 {
		stored, err := h.db.GetStatusChangesByTicketKeys(r.Context(), sprint.TicketKeys)
		if err != nil {
			h.internalError(w, "Failed to get status changes", err)
			return
		}
		changes = make([]model.StatusChange, len(stored))
		for i, c := range stored {
			changes[i] = model.StatusChange{
				TicketKey:  c.JiraKey,
				ChangedAt:  c.ChangedAt,
				FromStatus: c.FromStatus,
				ToStatus:   c.ToStatus,
				Actor:      c.Actor,
			}
		}

		from, to := burndown.Window(sprint, h.location)
		commitTimes, err = h.db.GetCommitTimesForTicketBranches(r.Context(), database.GetCommitTimesForTicketBranchesParams{
			TicketKeys: sprint.TicketKeys,
			From:       from,
			To:         to,
		})
		if err != nil {
			h.internalError(w, "Failed to get commit activity", err)
			return
		}
	}

	respondWithJSON(w, http.StatusOK, burndownResponse{
		Sprint:   row,
		Timezone: h.location.String(),
		Days:     burndown.Reconstruct(sprint, changes, commitTimes, h.location),
	})
}
