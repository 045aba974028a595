package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"passgate.org/internal/access"
	"passgate.org/internal/auth"
)

type recordTransitRequest struct {
	PassageID    int64 `json:"passage_id"`
	BadgeID      int64 `json:"badge_id"`
	ViolationDPI bool  `json:"violation_dpi"`
}

type correctTransitRequest struct {
	TransitDate  *time.Time `json:"transit_date"`
	ViolationDPI *bool      `json:"violation_dpi"`
}

type listTransitsResponse struct {
	Items []access.Transit `json:"items"`
	Count int              `json:"count"`
	AsOf  time.Time        `json:"as_of"`
}

func (a *API) handleRecordTransit(w http.ResponseWriter, r *http.Request) {
	var req recordTransitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	actor, _ := auth.IdentityFromContext(r.Context())

	t, err := a.engine.RecordTransit(r.Context(), access.TransitRequest{
		Passage:      req.PassageID,
		Badge:        req.BadgeID,
		ViolationDPI: req.ViolationDPI,
	}, actor)
	if err != nil {
		if !errors.Is(err, &access.Error{Kind: access.KindSuspensionBookkeeping}) {
			writeError(w, r, err)
			return
		}
		// the transit is stored; surface the lagging bookkeeping without failing the call
		w.Header().Set("Warning", `199 passgate "`+access.KindSuspensionBookkeeping.Message()+`"`)
	}

	w.Header().Set("Location", "/v1/transits/"+strconv.FormatInt(t.ID, 10))
	writeJSON(w, http.StatusCreated, t)
}

func (a *API) handleListTransits(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		f   access.TransitFilter
		err error
	)
	if f.Badge, err = queryID(r, "badge"); err != nil {
		writeError(w, r, err)
		return
	}
	if f.Passage, err = queryID(r, "passage"); err != nil {
		writeError(w, r, err)
		return
	}
	if f.From, err = parseTime(q.Get("from"), "from"); err != nil {
		writeError(w, r, err)
		return
	}
	if f.To, err = parseTime(q.Get("to"), "to"); err != nil {
		writeError(w, r, err)
		return
	}
	if f.Limit, err = parseLimit(q.Get("limit"), 100, 1, 1000); err != nil {
		writeError(w, r, err)
		return
	}

	items, err := a.engine.ListTransits(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []access.Transit{}
	}
	writeJSON(w, http.StatusOK, listTransitsResponse{
		Items: items,
		Count: len(items),
		AsOf:  time.Now().UTC(),
	})
}

func (a *API) handleGetTransit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	t, err := a.engine.GetTransit(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) handleCorrectTransit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req correctTransitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	t, err := a.engine.CorrectTransit(r.Context(), id, access.TransitPatch{
		TransitDate:  req.TransitDate,
		ViolationDPI: req.ViolationDPI,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) handleDeleteTransit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.engine.DeleteTransit(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
