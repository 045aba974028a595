package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"passgate.org/internal/access"
	"passgate.org/internal/auth"
)

type passageCounts struct {
	Passage int64 `json:"passage_id"`
	access.Counts
}

type badgeStatsResponse struct {
	Badge             int64           `json:"badge_id"`
	Start             time.Time       `json:"start"`
	End               time.Time       `json:"end"`
	Passages          []passageCounts `json:"passages"`
	TotalUnauthorized int             `json:"total_unauthorized"`
}

type suspendedBadge struct {
	Badge          int64      `json:"badge_id"`
	Email          string     `json:"email"`
	SuspendedSince time.Time  `json:"suspended_since"`
	SuspendedAt    *time.Time `json:"suspended_at,omitempty"`
}

type reactivateRequest struct {
	Badges []int64 `json:"badges"`
}

type grantRequest struct {
	BadgeID   int64 `json:"badge_id"`
	PassageID int64 `json:"passage_id"`
}

func (a *API) handleBadgeStats(w http.ResponseWriter, r *http.Request) {
	badge, err := pathID(r, "badge")
	if err != nil {
		writeError(w, r, err)
		return
	}
	actor, _ := auth.IdentityFromContext(r.Context())
	if !actor.IsAdmin() && actor.Badge != badge {
		writeError(w, r, access.ErrForbidden)
		return
	}
	start, end, err := parseRange(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	stats, err := a.engine.ComputeStats(r.Context(), access.StatsQuery{
		Badge:   badge,
		Start:   start,
		End:     end,
		GroupBy: access.GroupByPassage,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := badgeStatsResponse{
		Badge:             badge,
		Start:             start,
		End:               end,
		Passages:          make([]passageCounts, 0, len(stats)),
		TotalUnauthorized: stats.TotalUnauthorized(),
	}
	for _, id := range stats.Keys() {
		resp.Passages = append(resp.Passages, passageCounts{Passage: id, Counts: stats[id]})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleSuspended(w http.ResponseWriter, r *http.Request) {
	users, err := a.engine.SuspendedBadges(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	clock := a.engine.SuspensionClock()
	items := make([]suspendedBadge, 0, len(users))
	for _, u := range users {
		since := u.UpdatedAt
		if clock == access.ClockSuspendedAt && u.SuspendedAt != nil {
			since = *u.SuspendedAt
		}
		items = append(items, suspendedBadge{
			Badge:          u.Badge,
			Email:          u.Email,
			SuspendedSince: since,
			SuspendedAt:    u.SuspendedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (a *API) handleReactivate(w http.ResponseWriter, r *http.Request) {
	var req reactivateRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	for _, b := range req.Badges {
		if b <= 0 {
			writeError(w, r, invalid("badges must be positive integers"))
			return
		}
	}
	users, err := a.engine.ReactivateBadges(r.Context(), req.Badges...)
	if err != nil {
		writeError(w, r, err)
		return
	}
	badges := make([]int64, 0, len(users))
	for _, u := range users {
		badges = append(badges, u.Badge)
	}
	writeJSON(w, http.StatusOK, map[string]any{"reactivated": badges, "count": len(badges)})
}

func (a *API) handleGrant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	grant, err := a.engine.Grant(r.Context(), req.BadgeID, req.PassageID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/authorizations/"+strconv.FormatInt(grant.Badge, 10)+"/"+strconv.FormatInt(grant.Passage, 10))
	writeJSON(w, http.StatusCreated, grant)
}

func (a *API) handleRevoke(w http.ResponseWriter, r *http.Request) {
	badge, err := pathID(r, "badge")
	if err != nil {
		writeError(w, r, err)
		return
	}
	passage, err := pathID(r, "passage")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.engine.Revoke(r.Context(), badge, passage); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
