package api

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/coin-reward-engine/internal/games"
)

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

const dbPingTimeout = 2 * time.Second

// HealthCheckResponse represents a comprehensive health check response
type HealthCheckResponse struct {
	Status        HealthStatus           `json:"status"`
	Timestamp     string                 `json:"timestamp"`
	EngineVersion string                 `json:"engine_version"`
	GitCommit     string                 `json:"git_commit,omitempty"`
	BuildTime     string                 `json:"build_time,omitempty"`
	Uptime        string                 `json:"uptime"`
	LiveSessions  int                    `json:"live_sessions"`
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
	GOMAXPROCS    int    `json:"gomaxprocs"`
	MemoryAlloc   uint64 `json:"memory_alloc_bytes"`
	MemorySys     uint64 `json:"memory_sys_bytes"`
	GCCycles      uint32 `json:"gc_cycles"`
}

// handleHealthCheck runs every component check and reports the worst.
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())
	start := time.Now()

	checks := map[string]HealthCheck{
		"games":     s.checkGamesHealth(),
		"database":  s.checkDatabaseHealth(r.Context()),
		"seedvault": s.checkComponent(s.vault != nil, "Seed vault ready", "Seed vault not initialized"),
		"simulator": s.checkComponent(s.sim != nil, "Simulator ready", "Simulator not initialized"),
	}

	overallStatus := HealthStatusHealthy
	for _, c := range checks {
		switch c.Status {
		case HealthStatusUnhealthy:
			overallStatus = HealthStatusUnhealthy
		case HealthStatusDegraded:
			if overallStatus == HealthStatusHealthy {
				overallStatus = HealthStatusDegraded
			}
		}
	}

	response := HealthCheckResponse{
		Status:        overallStatus,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		EngineVersion: EngineVersion,
		GitCommit:     GitCommit,
		BuildTime:     BuildTime,
		Uptime:        time.Since(s.startTime).String(),
		LiveSessions:  s.live.count(),
		Checks:        checks,
		System:        getSystemInfo(),
		RequestID:     requestID,
	}

	// Degraded still answers 200.
	statusCode := http.StatusOK
	if overallStatus == HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	s.logger.Debug().
		Str("request_id", requestID).
		Str("status", string(overallStatus)).
		Dur("duration", time.Since(start)).
		Int("status_code", statusCode).
		Msg("health_check")

	s.writeJSON(w, statusCode, response)
}

// handleReadiness provides readiness probe endpoint
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())

	ready := true
	message := "Ready"

	gameSpecs := games.ListGames()
	switch {
	case len(gameSpecs) == 0:
		ready, message = false, "No games available"
	case s.checkDatabaseHealth(r.Context()).Status != HealthStatusHealthy:
		ready, message = false, "Database unavailable"
	case s.vault == nil:
		ready, message = false, "Seed vault not initialized"
	}

	response := map[string]interface{}{
		"ready":          ready,
		"message":        message,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"engine_version": EngineVersion,
		"request_id":     requestID,
	}

	statusCode := http.StatusOK
	if !ready {
		statusCode = http.StatusServiceUnavailable
		s.logger.Warn().Str("request_id", requestID).Str("message", message).Msg("readiness_check_failed")
	}

	s.writeJSON(w, statusCode, response)
}

// handleLiveness answers as long as the process can serve requests.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "alive",
		EngineVersion: EngineVersion,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})
}

// checkGamesHealth checks if games are properly loaded and functional
func (s *Server) checkGamesHealth() HealthCheck {
	start := time.Now()

	gameSpecs := games.ListGames()
	status := HealthStatusHealthy
	message := fmt.Sprintf("%d games available", len(gameSpecs))
	if len(gameSpecs) == 0 {
		status = HealthStatusUnhealthy
		message = "No games available"
	}

	return HealthCheck{
		Status:      status,
		Message:     message,
		LastChecked: time.Now().UTC().Format(time.RFC3339),
		Duration:    time.Since(start).String(),
	}
}

// checkDatabaseHealth pings the store.
func (s *Server) checkDatabaseHealth(ctx context.Context) HealthCheck {
	start := time.Now()

	status := HealthStatusHealthy
	message := "Database connection healthy"

	if s.db == nil {
		status = HealthStatusUnhealthy
		message = "Database not initialized"
	} else {
		ctx, cancel := context.WithTimeout(ctx, dbPingTimeout)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			status = HealthStatusUnhealthy
			message = "Database ping failed: " + err.Error()
		}
	}

	return HealthCheck{
		Status:      status,
		Message:     message,
		LastChecked: time.Now().UTC().Format(time.RFC3339),
		Duration:    time.Since(start).String(),
	}
}

func (s *Server) checkComponent(ok bool, healthy, unhealthy string) HealthCheck {
	c := HealthCheck{
		Status:      HealthStatusHealthy,
		Message:     healthy,
		LastChecked: time.Now().UTC().Format(time.RFC3339),
	}
	if !ok {
		c.Status = HealthStatusUnhealthy
		c.Message = unhealthy
	}
	return c
}

// getSystemInfo collects system information
func getSystemInfo() SystemInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return SystemInfo{
		GoVersion:     runtime.Version(),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		GOMAXPROCS:    runtime.GOMAXPROCS(0),
		MemoryAlloc:   m.Alloc,
		MemorySys:     m.Sys,
		GCCycles:      m.NumGC,
	}
}
