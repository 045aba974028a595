package obs

import (
	"bytes"
	"encoding/json"
	"errors"
	"runtime"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                           "/",
		"/metrics":                   "/metrics",
		"/v1/transits":               "/v1/transits",
		"/v1/transits/17":            "/v1/transits/:id",
		"/v1/transits/stream":        "/v1/transits/stream",
		"/v1/transits/17?x=1":        "/v1/transits/:id",
		"/v1/badges/5/stats":         "/v1/badges/:badge/stats",
		"/v1/badges/suspended":       "/v1/badges/suspended",
		"/v1/badges/5/other":         "/v1/badges/5/other",
		"/v1/authorizations/3/9":     "/v1/authorizations/:badge/:passage",
		"/v1/reports/passages?a=b":   "/v1/reports/passages",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestLevelledLogging(t *testing.T) {
	logger := Logger()
	orig := logger.Writer()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(orig)
	defer SetLevel("info")

	SetLevel("warn")
	Info("dropped", nil)
	Error("kept", map[string]any{"err": errors.New("boom"), "badge": 7})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log is not valid JSON: %v", err)
	}
	if entry["level"] != "error" || entry["msg"] != "kept" || entry["err"] != "boom" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

// buildInfoSeries gathers build_info through a private registry and returns
// the label sets of the series whose value is 1.
func buildInfoSeries(t *testing.T) []map[string]string {
	t.Helper()
	reg := prometheus.NewRegistry()
	if err := reg.Register(buildInfo); err != nil {
		t.Fatalf("register: %v", err)
	}
	defer reg.Unregister(buildInfo)
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var out []map[string]string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if m.GetGauge().GetValue() != 1 {
				continue
			}
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			out = append(out, labels)
		}
	}
	return out
}

func TestInitBuildInfoKeepsOneSeries(t *testing.T) {
	InitBuildInfo("0.1.0", "abc123")
	InitBuildInfo("0.2.0", "def456")

	series := buildInfoSeries(t)
	if len(series) != 1 {
		t.Fatalf("expected a single build_info series, got %v", series)
	}
	got := series[0]
	if got["version"] != "0.2.0" || got["commit"] != "def456" || got["go_version"] != runtime.Version() {
		t.Fatalf("unexpected labels %v", got)
	}
}

func TestInitBuildInfoFillsDevCommit(t *testing.T) {
	InitBuildInfo("0.1.0", "")

	series := buildInfoSeries(t)
	if len(series) != 1 {
		t.Fatalf("expected a single build_info series, got %v", series)
	}
	if commit := series[0]["commit"]; commit == "" || commit != vcsRevision() {
		t.Fatalf("commit=%q, want %q", commit, vcsRevision())
	}
}
