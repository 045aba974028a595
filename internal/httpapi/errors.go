package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"passgate.org/internal/access"
	"passgate.org/internal/obs"
)

// writeError renders err through the access error catalog. Causes behind
// 5xx responses are logged and never sent to the client; validation
// causes are echoed as "detail".
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := access.KindOf(err)
	if kind.Status() >= http.StatusInternalServerError {
		obs.Error("request failed", map[string]any{
			"request_id": RequestIDFromContext(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"kind":       kind.String(),
			"error":      err,
		})
	}
	payload := map[string]any{
		"error": kind.Message(),
		"kind":  kind.String(),
	}
	var ae *access.Error
	if kind == access.KindValidation && errors.As(err, &ae) && ae.Err != nil {
		payload["detail"] = ae.Err.Error()
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, kind.Status(), payload)
}

func writeProblem(w http.ResponseWriter, r *http.Request, code int, kind, msg string) {
	payload := map[string]any{
		"error": msg,
		"kind":  kind,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func invalid(msg string) error {
	return &access.Error{Kind: access.KindValidation, Err: errors.New(msg)}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return invalid("request body is required")
		}
		return invalid(err.Error())
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return invalid("unexpected data after JSON body")
	}
	return nil
}

// decodeOptionalJSON accepts an empty body and leaves dst untouched.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.ContentLength == 0 {
		return nil
	}
	return decodeJSON(w, r, dst)
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, invalid(name + " must be a positive integer")
	}
	return id, nil
}

func queryID(r *http.Request, name string) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, invalid(name + " must be a positive integer")
	}
	return id, nil
}

func parseLimit(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalid("limit must be an integer")
	}
	if val < min || val > max {
		return 0, invalid("limit must be between " + strconv.Itoa(min) + " and " + strconv.Itoa(max))
	}
	return val, nil
}

// parseTime accepts RFC 3339 timestamps or bare dates (midnight UTC).
// An empty value yields the zero time.
func parseTime(raw, name string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, invalid(name + " must be an RFC 3339 timestamp or YYYY-MM-DD date")
}

// parseRange reads the start/end query parameters. A bare end date covers
// the whole day, capped at the current time.
func parseRange(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	start, err := parseTime(q.Get("start"), "start")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseTime(q.Get("end"), "end")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if raw := strings.TrimSpace(q.Get("end")); len(raw) == len(time.DateOnly) && !end.IsZero() {
		now := time.Now().UTC()
		eod := end.Add(24*time.Hour - time.Nanosecond)
		switch {
		case end.After(now):
			// future day: left for range validation
		case eod.After(now):
			end = now
		default:
			end = eod
		}
	}
	return start, end, nil
}
