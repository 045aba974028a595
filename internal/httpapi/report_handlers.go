package httpapi

import (
	"encoding/csv"
	"net/http"
	"strconv"
	"strings"

	"passgate.org/internal/access"
	"passgate.org/internal/auth"
)

const (
	formatJSON = "json"
	formatCSV  = "csv"
)

func reportFormat(r *http.Request) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))); f {
	case "", formatJSON:
		return formatJSON, nil
	case formatCSV:
		return formatCSV, nil
	default:
		return "", access.ErrInvalidFormat
	}
}

func (a *API) handlePassageReport(w http.ResponseWriter, r *http.Request) {
	format, err := reportFormat(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	start, end, err := parseRange(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rows, err := a.engine.PassageReport(r.Context(), start, end)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if format == formatJSON {
		writeJSON(w, http.StatusOK, map[string]any{"start": start, "end": end, "items": rows})
		return
	}
	records := [][]string{{"passage_id", "authorized", "unauthorized", "violations"}}
	for _, row := range rows {
		records = append(records, append([]string{strconv.FormatInt(row.Passage, 10)}, countCells(row.Counts)...))
	}
	writeCSV(w, "passages-report.csv", records)
}

func (a *API) handleUserReport(w http.ResponseWriter, r *http.Request) {
	format, err := reportFormat(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	start, end, err := parseRange(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	actor, _ := auth.IdentityFromContext(r.Context())
	rows, err := a.engine.UserReport(r.Context(), actor, start, end)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if format == formatJSON {
		writeJSON(w, http.StatusOK, map[string]any{"start": start, "end": end, "items": rows})
		return
	}
	records := [][]string{{"badge_id", "status", "authorized", "unauthorized", "violations"}}
	for _, row := range rows {
		records = append(records, append([]string{strconv.FormatInt(row.Badge, 10), row.Status}, countCells(row.Counts)...))
	}
	writeCSV(w, "users-report.csv", records)
}

func countCells(c access.Counts) []string {
	return []string{strconv.Itoa(c.Authorized), strconv.Itoa(c.Unauthorized), strconv.Itoa(c.Violations)}
}

func writeCSV(w http.ResponseWriter, filename string, records [][]string) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	cw := csv.NewWriter(w)
	_ = cw.WriteAll(records)
}
