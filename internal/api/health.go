package api

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheckResponse represents a comprehensive health check response
type HealthCheckResponse struct {
	Status        HealthStatus           `json:"status"`
	Timestamp     string                 `json:"timestamp"`
	EngineVersion string                 `json:"engine_version"`
	GitCommit     string                 `json:"git_commit,omitempty"`
	BuildTime     string                 `json:"build_time,omitempty"`
	Uptime        string                 `json:"uptime"`
	Checks        map[string]HealthCheck `json:"checks"`
	System        SystemInfo             `json:"system"`
	RequestID     string                 `json:"request_id,omitempty"`
}

// HealthCheck represents an individual health check
type HealthCheck struct {
	Status      HealthStatus `json:"status"`
	Message     string       `json:"message,omitempty"`
	LastChecked string       `json:"last_checked"`
	Duration    string       `json:"duration,omitempty"`
}

// SystemInfo contains system information
type SystemInfo struct {
	GoVersion     string `json:"go_version"`
	NumGoroutines int    `json:"num_goroutines"`
	NumCPU        int    `json:"num_cpu"`
	MemoryAlloc   uint64 `json:"memory_alloc_bytes"`
	GCCycles      uint32 `json:"gc_cycles"`
}

// handleHealthCheck reports version, uptime and per-component checks. Only
// an unhealthy component turns the response into a 503.
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	checks := map[string]HealthCheck{
		"games":    s.checkGamesHealth(),
		"database": s.checkDatabaseHealth(r.Context()),
		"rounds":   s.checkRoundsHealth(),
		"rng":      s.checkRNGHealth(),
	}

	overall := HealthStatusHealthy
	for _, c := range checks {
		switch c.Status {
		case HealthStatusUnhealthy:
			overall = HealthStatusUnhealthy
		case HealthStatusDegraded:
			if overall == HealthStatusHealthy {
				overall = HealthStatusDegraded
			}
		}
	}

	status := http.StatusOK
	if overall == HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}

	s.writeJSON(w, status, HealthCheckResponse{
		Status:        overall,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		EngineVersion: EngineVersion,
		GitCommit:     GitCommit,
		BuildTime:     BuildTime,
		Uptime:        time.Since(s.startTime).String(),
		Checks:        checks,
		System:        getSystemInfo(),
		RequestID:     middleware.GetReqID(r.Context()),
	})
}

// handleLiveness provides liveness probe endpoint
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"alive":          true,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"engine_version": EngineVersion,
		"uptime":         time.Since(s.startTime).String(),
		"request_id":     middleware.GetReqID(r.Context()),
	})
}

func timedCheck(fn func() (HealthStatus, string)) HealthCheck {
	start := time.Now()
	status, message := fn()
	return HealthCheck{
		Status:      status,
		Message:     message,
		LastChecked: time.Now().UTC().Format(time.RFC3339),
		Duration:    time.Since(start).String(),
	}
}

func (s *Server) checkGamesHealth() HealthCheck {
	return timedCheck(func() (HealthStatus, string) {
		n := len(s.deps.Rounds.Games())
		if n == 0 {
			return HealthStatusUnhealthy, "No games available"
		}
		return HealthStatusHealthy, fmt.Sprintf("%d games available", n)
	})
}

// checkDatabaseHealth pings history storage. Running without it is degraded,
// not down: the ledger and rounds still work in memory.
func (s *Server) checkDatabaseHealth(ctx context.Context) HealthCheck {
	return timedCheck(func() (HealthStatus, string) {
		if s.deps.History == nil {
			return HealthStatusDegraded, "History storage not configured"
		}
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.deps.History.Ping(ctx); err != nil {
			return HealthStatusDegraded, fmt.Sprintf("Database ping failed: %v", err)
		}
		return HealthStatusHealthy, "Database connection healthy"
	})
}

func (s *Server) checkRoundsHealth() HealthCheck {
	return timedCheck(func() (HealthStatus, string) {
		return HealthStatusHealthy, fmt.Sprintf("%d active rounds", len(s.deps.Rounds.Active()))
	})
}

// checkRNGHealth reports the replay position of a seeded stream, so a
// session can be resumed from the same seeds.
func (s *Server) checkRNGHealth() HealthCheck {
	return timedCheck(func() (HealthStatus, string) {
		switch src := s.deps.Source.(type) {
		case nil:
			return HealthStatusHealthy, "Default random source"
		case interface{ Cursor() uint64 }:
			return HealthStatusHealthy, fmt.Sprintf("Seeded stream at byte %d", src.Cursor())
		default:
			return HealthStatusHealthy, "Unseeded random source"
		}
	})
}

func getSystemInfo() SystemInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return SystemInfo{
		GoVersion:     runtime.Version(),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		MemoryAlloc:   m.Alloc,
		GCCycles:      m.NumGC,
	}
}
