package bridge

import (
	"net/http"
	goruntime "runtime"
	"strconv"

	"github.com/normanking/audioface/internal/logging"
)

// LogBridge exposes recent log history for troubleshooting
type LogBridge struct {
	logger *logging.Logger
}

func NewLogBridge(logger *logging.Logger) *LogBridge {
	return &LogBridge{logger: logger}
}

// GetLogHistory returns recent log entries
func (b *LogBridge) GetLogHistory(limit int) []logging.LogEntry {
	return b.logger.GetHistory(limit)
}

// GetSystemInfo returns system information for troubleshooting
func (b *LogBridge) GetSystemInfo() map[string]interface{} {
	info := make(map[string]interface{})

	info["os"] = goruntime.GOOS
	info["arch"] = goruntime.GOARCH
	info["goVersion"] = goruntime.Version()
	info["numCPU"] = goruntime.NumCPU()
	info["numGoroutine"] = goruntime.NumGoroutine()

	var m goruntime.MemStats
	goruntime.ReadMemStats(&m)
	info["memAlloc"] = m.Alloc / 1024 / 1024 // MB
	info["memSys"] = m.Sys / 1024 / 1024
	info["numGC"] = m.NumGC

	info["logPath"] = b.logger.GetLogPath()
	return info
}

func (b *LogBridge) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, b.GetLogHistory(limit))
}

func (b *LogBridge) handleSystem(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, b.GetSystemInfo())
}
