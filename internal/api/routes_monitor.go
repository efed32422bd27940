package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/energizer-project/realmlink/internal/util"
)

// handleGetStatus reports the realm session and the host it runs on.
func (s *Server) handleGetStatus(c *gin.Context) {
	realm := s.cfg.GetRealm()
	resp := gin.H{
		"connected":   s.deps.Connected(),
		"realm":       realm.Address,
		"player":      realm.PlayerGUID,
		"version":     s.deps.Version,
		"uptime_sec":  int64(time.Since(s.started).Seconds()),
		"system":      util.GetSystemInfo(),
		"subsystems":  s.deps.Set.SubsystemNames(),
		"latency_ms":  s.deps.Set.Pinger.Latency().Milliseconds(),
		"target":      s.deps.Set.Targeting.Target(),
		"names_cache": s.deps.Set.Names.Cached(),
	}
	if proc, err := util.GetProcessStats(); err == nil {
		resp["process"] = proc
	}
	if mem, err := util.GetMemoryUsage(); err == nil {
		resp["memory"] = mem
	}
	if pct, err := util.GetCPUUsage(); err == nil {
		resp["cpu_percent"] = pct
	}
	if s.deps.Health != nil {
		resp["health"] = s.deps.Health.Status()
	}
	c.JSON(http.StatusOK, resp)
}

type subsystemInfo struct {
	Name    string `json:"name"`
	Version uint64 `json:"version"`
	Mirror  any    `json:"mirror"`
}

func (s *Server) handleGetSubsystems(c *gin.Context) {
	names := s.deps.Set.SubsystemNames()
	out := make([]subsystemInfo, 0, len(names))
	for _, name := range names {
		snap, version, _ := s.deps.Set.Subsystem(name)
		out = append(out, subsystemInfo{Name: name, Version: version, Mirror: snap})
	}
	c.JSON(http.StatusOK, gin.H{
		"subsystems": out,
		"total":      len(out),
	})
}

func (s *Server) handleGetSubsystem(c *gin.Context) {
	name := c.Param("name")
	snap, version, ok := s.deps.Set.Subsystem(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown subsystem", "name": name})
		return
	}
	c.JSON(http.StatusOK, subsystemInfo{Name: name, Version: version, Mirror: snap})
}

func (s *Server) handleGetCaptures(c *gin.Context) {
	if s.deps.Captures == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "capture store disabled"})
		return
	}
	sessions, err := s.deps.Captures.Sessions()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

// handleGetLogEntries returns recent log entries.
func (s *Server) handleGetLogEntries(c *gin.Context) {
	count, err := strconv.Atoi(c.DefaultQuery("count", "100"))
	if err != nil || count < 1 {
		count = 100
	}
	if count > 1000 {
		count = 1000
	}

	entries, err := readRecentLogEntries(s.cfg.GetLogging().Directory, count)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

// logEntry is a parsed log line.
type logEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// readRecentLogEntries parses the last count lines of the newest log file.
// Lines that are not zerolog JSON come back as plain messages.
func readRecentLogEntries(logDir string, count int) ([]logEntry, error) {
	dirEntries, err := os.ReadDir(logDir)
	if err != nil {
		return nil, err
	}

	var logs []string
	for _, e := range dirEntries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".log" {
			logs = append(logs, e.Name())
		}
	}
	if len(logs) == 0 {
		return []logEntry{}, nil
	}
	// realmlink_<date>.log sorts by date.
	sort.Strings(logs)
	latestFile := filepath.Join(logDir, logs[len(logs)-1])

	data, err := os.ReadFile(latestFile)
	if err != nil {
		return nil, err
	}

	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if start := len(lines) - count; start > 0 {
		lines = lines[start:]
	}

	knownKeys := map[string]bool{
		"level": true, "time": true, "message": true,
		"caller": true, "app": true,
	}

	result := make([]logEntry, 0, len(lines))
	for _, line := range lines {
		var raw map[string]interface{}
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			result = append(result, logEntry{Message: line})
			continue
		}

		entry := logEntry{
			Timestamp: stringFromMap(raw, "time"),
			Level:     stringFromMap(raw, "level"),
			Message:   stringFromMap(raw, "message"),
		}

		extra := make(map[string]interface{})
		for k, v := range raw {
			if !knownKeys[k] {
				extra[k] = v
			}
		}
		if len(extra) > 0 {
			entry.Fields = extra
		}

		result = append(result, entry)
	}

	return result, nil
}

// stringFromMap extracts a string value from a map, returning "" if missing.
func stringFromMap(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		return fmt.Sprintf("%v", v)
	}
	return ""
}
