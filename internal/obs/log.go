package obs

import (
	"encoding/json"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/atomic"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger

	minLevel atomic.Int32
)

const (
	levelDebug int32 = iota
	levelInfo
	levelWarn
	levelError
)

// Logger returns the shared structured logger used across the service.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
		minLevel.Store(levelInfo)
	})
	return logger
}

// SetLevel sets the minimum level emitted by Debug/Info/Warn/Error.
// Unknown names fall back to info.
func SetLevel(name string) {
	Logger()
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		minLevel.Store(levelDebug)
	case "warn", "warning":
		minLevel.Store(levelWarn)
	case "error":
		minLevel.Store(levelError)
	default:
		minLevel.Store(levelInfo)
	}
}

// LogRequest emits a structured JSON log line with common HTTP fields.
func LogRequest(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"ts":"error","level":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}

func Debug(msg string, fields map[string]any) { emit(levelDebug, "debug", msg, fields) }
func Info(msg string, fields map[string]any)  { emit(levelInfo, "info", msg, fields) }
func Warn(msg string, fields map[string]any)  { emit(levelWarn, "warn", msg, fields) }
func Error(msg string, fields map[string]any) { emit(levelError, "error", msg, fields) }

func emit(level int32, name, msg string, fields map[string]any) {
	Logger()
	if level < minLevel.Load() {
		return
	}
	entry := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		if err, ok := v.(error); ok && err != nil {
			v = err.Error()
		}
		entry[k] = v
	}
	entry["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["level"] = name
	entry["msg"] = msg
	LogRequest(entry)
}
