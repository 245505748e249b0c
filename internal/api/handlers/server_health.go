package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetHealth handles GET /healthz.
func (s *Server) GetHealth(c *gin.Context) {
	checks := make(map[string]string)
	healthy := true

	if s.pinger != nil {
		if err := s.pinger.Ping(c.Request.Context()); err != nil {
			checks["database"] = "error"
			healthy = false
		} else {
			checks["database"] = "ok"
		}
	}

	status := "ok"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status": status,
		"checks": checks,
	})
}
