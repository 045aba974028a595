package obs

import (
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const devCommit = "dev"

var (
	buildInfoOnce sync.Once

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "passgate_build_info",
			Help: "Build of the running passgate binary; always 1.",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// InitBuildInfo publishes passgate_build_info for this process. A missing or
// "dev" commit is taken from the VCS stamp go build embeds, when present.
// Calling it again replaces the previous series.
func InitBuildInfo(version, commit string) {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	if commit == "" || commit == devCommit {
		commit = vcsRevision()
	}
	buildInfo.Reset()
	buildInfo.WithLabelValues(version, commit, runtime.Version()).Set(1)
}

func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return devCommit
	}
	for _, s := range info.Settings {
		if s.Key != "vcs.revision" || s.Value == "" {
			continue
		}
		if len(s.Value) > 12 {
			return s.Value[:12]
		}
		return s.Value
	}
	return devCommit
}
