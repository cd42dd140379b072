package handler

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-runner/internal/config"
	"github.com/stemsi/exstem-runner/internal/response"
)

// LiveCounter reports how many exam sessions this process is driving.
type LiveCounter interface {
	LiveCount() int
}

// SystemHandler serves health and runtime status for the load balancer
// and operators.
type SystemHandler struct {
	rdb       *redis.Client
	live      LiveCounter
	startTime time.Time
}

func NewSystemHandler(rdb *redis.Client, live LiveCounter) *SystemHandler {
	return &SystemHandler{rdb: rdb, live: live, startTime: time.Now()}
}

type systemStatus struct {
	Status       string `json:"status"`
	Uptime       string `json:"uptime"`
	LiveSessions int    `json:"live_sessions"`

	// Go Application
	Goroutines  int    `json:"goroutines"`
	HeapAlloc   uint64 `json:"heap_alloc"`
	NumGC       uint32 `json:"num_gc"`
	AppRSSBytes uint64 `json:"app_rss_bytes,omitempty"`
	GoVersion   string `json:"go_version"`

	// Worker Queues
	QueueAnswers int64 `json:"queue_answers"`
	QueueScores  int64 `json:"queue_scores"`
}

// Health godoc
// GET /health
// Returns 503 when Redis is unreachable, since no session can progress
// without it.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.rdb.Ping(ctx).Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"status":        "ok",
		"live_sessions": h.live.LiveCount(),
	})
}

// Status godoc
// GET /api/v1/system/status
func (h *SystemHandler) Status(c *gin.Context) {
	response.Success(c, http.StatusOK, h.collect(c.Request.Context()))
}

func (h *SystemHandler) collect(ctx context.Context) systemStatus {
	s := systemStatus{
		Status:       "ok",
		Uptime:       formatDuration(time.Since(h.startTime)),
		LiveSessions: h.live.LiveCount(),
		Goroutines:   runtime.NumGoroutine(),
		GoVersion:    runtime.Version(),
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	s.HeapAlloc = ms.HeapAlloc
	s.NumGC = ms.NumGC
	s.AppRSSBytes, _ = readProcessRSS()

	// ── Worker Queues (pipelined LLEN) ──
	pipe := h.rdb.Pipeline()
	answersCmd := pipe.LLen(ctx, config.WorkerKey.PersistAnswersQueue)
	scoresCmd := pipe.LLen(ctx, config.WorkerKey.PersistScoresQueue)
	if _, err := pipe.Exec(ctx); err != nil {
		s.Status = "degraded"
		return s
	}
	s.QueueAnswers, _ = answersCmd.Result()
	s.QueueScores, _ = scoresCmd.Result()
	return s
}

// readProcessRSS reads VmRSS from /proc/self/status.
func readProcessRSS() (uint64, error) {
	f, err := os.Open("/proc/self/status")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "VmRSS:") {
			continue
		}
		// Format: "VmRSS:     16384 kB"
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		return kb * 1024, err
	}
	return 0, fmt.Errorf("VmRSS not found")
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
