package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"passgate.org/internal/access"
)

const streamKeepAlive = 25 * time.Second

// Stream serves recorded transits as Server-Sent Events. Optional badge and
// passage query parameters narrow the feed.
func (a *API) Stream(w http.ResponseWriter, r *http.Request) {
	if a.stream == nil {
		writeProblem(w, r, http.StatusServiceUnavailable, "StreamUnavailable", "streaming disabled")
		return
	}
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

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, r, http.StatusInternalServerError, "Internal", "streaming unsupported")
		return
	}

	// the server-wide write timeout would cut long-lived streams
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch := a.stream.Subscribe(ctx, f)

	// Send an initial comment to establish the stream
	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case event, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			_, _ = w.Write([]byte("id: " + strconv.FormatInt(event.Transit.ID, 10) + "\n"))
			_, _ = w.Write([]byte("event: " + event.Type + "\n"))
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-keepAlive.C:
			_, _ = w.Write([]byte(": keep-alive\n\n"))
			flusher.Flush()
		}
	}
}
