package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mescon/motion/internal/animation"
	"github.com/mescon/motion/internal/config"
	"github.com/mescon/motion/internal/easing"
)

// formatUptime returns a human-readable uptime string
func formatUptime(uptime time.Duration) string {
	days := int(uptime.Hours()) / 24
	hours := int(uptime.Hours()) % 24
	minutes := int(uptime.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// checkDatabaseHealth checks database connectivity and returns status
func (s *RESTServer) checkDatabaseHealth(ctx context.Context) (gin.H, bool) {
	if s.repo == nil {
		return gin.H{"status": "disabled"}, true
	}

	dbHealth := gin.H{"status": "connected"}
	if err := s.repo.DB.PingContext(ctx); err != nil {
		dbHealth["status"] = "error"
		dbHealth["error"] = err.Error()
		return dbHealth, false
	}

	if stats, err := s.repo.GetDatabaseStats(); err == nil {
		for k, v := range stats {
			dbHealth[k] = v
		}
	}
	return dbHealth, true
}

// handleHealth returns server health status for container orchestration.
// This endpoint must return quickly (within 5 seconds) for Docker healthchecks.
func (s *RESTServer) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, dbHealthy := s.checkDatabaseHealth(ctx)

	status := "healthy"
	if !dbHealthy {
		status = "degraded"
	}

	running := 0
	motions := s.registry.List()
	for _, m := range motions {
		if m.State == animation.Running {
			running++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":            status,
		"version":           config.Version,
		"uptime":            formatUptime(time.Since(s.startTime)),
		"database":          dbHealth,
		"motions":           len(motions),
		"running_motions":   running,
		"time_source":       s.cfg.TimeSource,
		"restart_policy":    s.cfg.RestartPolicy,
		"websocket_clients": s.hub.ClientCount(),
	})
}

// handleEasings lists the easing names accepted by POST /api/motions.
func (s *RESTServer) handleEasings(c *gin.Context) {
	c.JSON(http.StatusOK, easing.Names())
}
