// internal/api/tickets.go
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"delivery-insights/internal/database"
	"delivery-insights/internal/summary"
)

type summaryResponse struct {
	ID         int64     `json:"id"`
	TicketKey  string    `json:"ticket_key"`
	Repo       string    `json:"repo"`
	Text       string    `json:"text"`
	CommitSHAs []string  `json:"commit_shas"`
	PreviousID *int64    `json:"previous_id"`
	Generation string    `json:"generation"`
	RunID      string    `json:"run_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func toSummaryResponse(s database.TicketSummary) summaryResponse {
	resp := summaryResponse{
		ID:         s.ID,
		TicketKey:  s.JiraKey,
		Repo:       s.Repo,
		Text:       s.SummaryText,
		CommitSHAs: summary.DecodeSHAs(s.CommitShas),
		Generation: s.Generation,
		CreatedAt:  s.CreatedAt,
	}
	if s.PreviousID.Valid {
		id := s.PreviousID.Int64
		resp.PreviousID = &id
	}
	if s.RunID.Valid {
		resp.RunID = uuid.UUID(s.RunID.Bytes).String()
	}
	return resp
}

// getTicketSummaries returns the current summary of a ticket in every repository it was worked on.
// GET /v1/tickets/{key}/summaries
func (h *Handler) getTicketSummaries(w http.ResponseWriter, r *http.Request) {
	key := strings.ToUpper(chi.URLParam(r, "key"))

	heads, err := h.db.GetTicketSummaryHeads(r.Context(), key)
	if err != nil {
		h.internalError(w, "Failed to get ticket summaries", err)
		return
	}
	if len(heads) == 0 {
		respondWithError(w, http.StatusNotFound, "No summaries for ticket")
		return
	}

	out := make([]summaryResponse, len(heads))
	for i, s := range heads {
		out[i] = toSummaryResponse(s)
	}
	respondWithJSON(w, http.StatusOK, out)
}

// getTicketSummaryChain returns the summary history of a ticket in one repository, newest first.
// GET /v1/tickets/{key}/summaries/{owner}/{name}?limit=N
func (h *Handler) getTicketSummaryChain(w http.ResponseWriter, r *http.Request) {
	key := strings.ToUpper(chi.URLParam(r, "key"))
	repo, ok := h.repoParam(w, r)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit", 20, 200)
	if !ok {
		return
	}

	chain, err := h.db.GetTicketSummaryChain(r.Context(), database.GetTicketSummaryChainParams{
		JiraKey: key,
		Repo:    repo,
		Limit:   int32(limit),
	})
	if err != nil {
		h.internalError(w, "Failed to get ticket summary chain", err)
		return
	}
	if len(chain) == 0 {
		respondWithError(w, http.StatusNotFound, "No summaries for ticket")
		return
	}

	out := make([]summaryResponse, len(chain))
	for i, s := range chain {
		out[i] = toSummaryResponse(s)
	}
	respondWithJSON(w, http.StatusOK, out)
}
