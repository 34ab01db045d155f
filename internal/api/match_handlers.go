package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/onnwee/reclaim/internal/geo"
	"github.com/onnwee/reclaim/internal/item"
	"github.com/onnwee/reclaim/internal/match"
	"github.com/onnwee/reclaim/internal/matching"
	"github.com/onnwee/reclaim/internal/middleware"
)

// SearchRequest carries optional per-request overrides for a synchronous
// matching run. Zero values fall back to the configured defaults.
type SearchRequest struct {
	Limit    int     `json:"limit"`
	MinScore float64 `json:"min_score"`
}

// areaPrecision is the geohash length disclosed to the counterpart, one
// character coarser than the stored cells.
const areaPrecision = 5

// ApproxLocation is the counterpart item's displaced position. Stored
// coordinates are already jittered at intake; responses displace them again
// so the stored point is never revealed to the other party.
type ApproxLocation struct {
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Area string  `json:"area,omitempty"`
}

// MatchView is a match record augmented with the counterpart item's
// approximate location, relative to the item the list was requested for.
type MatchView struct {
	*match.Match
	ApproxLocation *ApproxLocation `json:"approx_location,omitempty"`
}

// MatchListResponse wraps a list of match records.
type MatchListResponse struct {
	Matches []MatchView `json:"matches"`
}

// TriggerResponse reports whether an asynchronous matching job was queued
// or debounced.
type TriggerResponse struct {
	Queued bool `json:"queued"`
}

// StatusRequest carries the requested match status transition.
type StatusRequest struct {
	Status string `json:"status"`
}

// CleanupRequest carries the retention override for an admin cleanup run.
// A zero DaysOld uses the configured retention.
type CleanupRequest struct {
	DaysOld int `json:"days_old"`
}

// CleanupResponse reports how many match records the cleanup removed.
type CleanupResponse struct {
	Deleted int64 `json:"deleted"`
}

// MatchHandlers holds dependencies for matching HTTP handlers.
type MatchHandlers struct {
	orchestrator *matching.Orchestrator
	items        item.Repository
	matches      match.Repository
	builder      matching.ExplanationBuilder

	// fuzzRadiusM bounds the display-time displacement of counterpart
	// coordinates. Zero disables it and discloses the stored point.
	fuzzRadiusM float64
}

// NewMatchHandlers creates a new MatchHandlers instance.
func NewMatchHandlers(orchestrator *matching.Orchestrator, items item.Repository, matches match.Repository, fuzzRadiusM float64) *MatchHandlers {
	return &MatchHandlers{
		orchestrator: orchestrator,
		items:        items,
		matches:      matches,
		fuzzRadiusM:  fuzzRadiusM,
	}
}

// HandleItemMatches dispatches requests under /items/{id}/matches:
//
//	GET  /items/{id}/matches          - stored matches for the item
//	POST /items/{id}/matches/search   - synchronous matching run
//	POST /items/{id}/matches/trigger  - enqueue an asynchronous run
func (h *MatchHandlers) HandleItemMatches(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/items/"), "/")
	if len(pathParts) < 2 || pathParts[0] == "" || pathParts[1] != "matches" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
		return
	}
	itemID := pathParts[0]

	switch {
	case len(pathParts) == 2 && r.Method == http.MethodGet:
		h.listMatches(w, r, itemID)
	case len(pathParts) == 3 && pathParts[2] == "search" && r.Method == http.MethodPost:
		h.searchMatches(w, r, itemID)
	case len(pathParts) == 3 && pathParts[2] == "trigger" && r.Method == http.MethodPost:
		h.triggerMatching(w, r, itemID)
	default:
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
	}
}

// listMatches handles GET /items/{id}/matches. Dismissed matches are hidden
// unless include_dismissed=true is passed.
func (h *MatchHandlers) listMatches(w http.ResponseWriter, r *http.Request, itemID string) {
	includeDismissed := r.URL.Query().Get("include_dismissed") == "true"

	matches, err := h.matches.ListForItem(r.Context(), itemID, includeDismissed)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list matches", "error", err, "item_id", itemID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to list matches")
		return
	}
	writeJSON(w, r, http.StatusOK, MatchListResponse{Matches: h.viewMatches(r.Context(), itemID, matches)})
}

// viewMatches attaches the counterpart's approximate location to each match,
// relative to the item the listing was requested for. A counterpart that
// cannot be loaded or has no coordinates is returned without one.
func (h *MatchHandlers) viewMatches(ctx context.Context, itemID string, matches []*match.Match) []MatchView {
	views := make([]MatchView, 0, len(matches))
	for _, m := range matches {
		view := MatchView{Match: m}

		counterpartID := m.FoundItemID
		if itemID == m.FoundItemID {
			counterpartID = m.LostItemID
		}

		counterpart, err := h.items.GetByID(ctx, counterpartID)
		if err != nil {
			slog.WarnContext(ctx, "failed to load match counterpart",
				"match_id", m.ID, "item_id", counterpartID, "error", err)
			views = append(views, view)
			continue
		}
		if counterpart.HasCoordinates() {
			lat, lng := geo.Jitter(*counterpart.Lat, *counterpart.Lng, h.fuzzRadiusM)
			view.ApproxLocation = &ApproxLocation{
				Lat:  lat,
				Lng:  lng,
				Area: geo.RoundGeohash(counterpart.Geohash, areaPrecision),
			}
		}
		views = append(views, view)
	}
	return views
}

// searchMatches handles POST /items/{id}/matches/search. The body is
// optional; when present it may override limit and min_score.
func (h *MatchHandlers) searchMatches(w http.ResponseWriter, r *http.Request, itemID string) {
	var req SearchRequest
	// An empty body means "use the configured defaults".
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON body")
		return
	}
	if req.Limit < 0 || req.MinScore < 0 || req.MinScore > 1 {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "limit must be >= 0 and min_score within [0, 1]")
		return
	}

	matches, err := h.orchestrator.Search(r.Context(), itemID, req.Limit, req.MinScore)
	if err != nil {
		if errors.Is(err, item.ErrItemNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Item not found")
			return
		}
		slog.ErrorContext(r.Context(), "matching run failed", "error", err, "item_id", itemID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Matching run failed")
		return
	}

	writeJSON(w, r, http.StatusOK, MatchListResponse{Matches: h.viewMatches(r.Context(), itemID, matches)})
}

// triggerMatching handles POST /items/{id}/matches/trigger. Returns 202
// with queued=false when the item was debounced.
func (h *MatchHandlers) triggerMatching(w http.ResponseWriter, r *http.Request, itemID string) {
	queued, err := h.orchestrator.TriggerMatching(r.Context(), itemID)
	if err != nil {
		if errors.Is(err, item.ErrItemNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Item not found")
			return
		}
		if errors.Is(err, matching.ErrNoQueue) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeQueueUnavailable)
			WriteError(w, ctx, http.StatusServiceUnavailable, ErrCodeQueueUnavailable, "Asynchronous matching is not available")
			return
		}
		slog.ErrorContext(r.Context(), "failed to enqueue matching job", "error", err, "item_id", itemID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to enqueue matching job")
		return
	}

	writeJSON(w, r, http.StatusAccepted, TriggerResponse{Queued: queued})
}

// HandleMatches dispatches requests under /matches/{id}:
//
//	POST /matches/{id}/status       - forward-only status transition
//	GET  /matches/{id}/explanation  - human-readable match rationale
func (h *MatchHandlers) HandleMatches(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/matches/"), "/")
	if len(pathParts) != 2 || pathParts[0] == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
		return
	}
	matchID := pathParts[0]

	switch {
	case pathParts[1] == "status" && r.Method == http.MethodPost:
		h.updateStatus(w, r, matchID)
	case pathParts[1] == "explanation" && r.Method == http.MethodGet:
		h.explainMatch(w, r, matchID)
	default:
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
	}
}

// updateStatus handles POST /matches/{id}/status. Claiming routes through
// the transactional claim-approval hook so both items flip to claimed with
// the match.
func (h *MatchHandlers) updateStatus(w http.ResponseWriter, r *http.Request, matchID string) {
	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON body")
		return
	}

	next := match.Status(req.Status)
	if !next.Valid() {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "status must be one of pending, viewed, dismissed, claimed")
		return
	}

	var updated *match.Match
	var err error
	if next == match.StatusClaimed {
		if err = h.matches.ApproveClaim(r.Context(), matchID); err == nil {
			updated, err = h.matches.GetByID(r.Context(), matchID)
		}
	} else {
		updated, err = h.matches.UpdateStatus(r.Context(), matchID, next)
	}
	if err != nil {
		switch {
		case errors.Is(err, match.ErrMatchNotFound):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Match not found")
		case errors.Is(err, match.ErrInvalidTransition):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidTransition)
			WriteError(w, ctx, http.StatusConflict, ErrCodeInvalidTransition, err.Error())
		default:
			slog.ErrorContext(r.Context(), "failed to update match status", "error", err, "match_id", matchID)
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to update match status")
		}
		return
	}

	writeJSON(w, r, http.StatusOK, updated)
}

// explainMatch handles GET /matches/{id}/explanation.
func (h *MatchHandlers) explainMatch(w http.ResponseWriter, r *http.Request, matchID string) {
	m, err := h.matches.GetByID(r.Context(), matchID)
	if err != nil {
		if errors.Is(err, match.ErrMatchNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Match not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to load match", "error", err, "match_id", matchID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to load match")
		return
	}

	writeJSON(w, r, http.StatusOK, h.builder.Build(m))
}

// HandleReprocess handles POST /admin/matching/reprocess: reruns matching
// for every active item and reports per-item stats.
func (h *MatchHandlers) HandleReprocess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
		return
	}

	stats, err := h.orchestrator.ReprocessAll(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "reprocess run failed", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Reprocess run failed")
		return
	}

	writeJSON(w, r, http.StatusOK, stats)
}

// HandleCleanup handles POST /admin/matching/cleanup: deletes stale
// non-claimed matches older than days_old (configured retention when zero).
func (h *MatchHandlers) HandleCleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
		return
	}

	var req CleanupRequest
	// An empty body means "use the configured retention".
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON body")
		return
	}
	if req.DaysOld < 0 {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "days_old must be >= 0")
		return
	}

	deleted, err := h.orchestrator.CleanupOldMatches(r.Context(), time.Duration(req.DaysOld)*24*time.Hour)
	if err != nil {
		slog.ErrorContext(r.Context(), "cleanup run failed", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Cleanup run failed")
		return
	}

	writeJSON(w, r, http.StatusOK, CleanupResponse{Deleted: deleted})
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}
