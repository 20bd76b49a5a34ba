package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetLiveness handles GET /health/live.
func (s *Server) GetLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetReadiness handles GET /health/ready.
func (s *Server) GetReadiness(c *gin.Context) {
	checks := map[string]string{}
	status, httpStatus := "ok", http.StatusOK

	if s.db != nil {
		if err := s.db.Ping(c.Request.Context()); err != nil {
			checks["database"] = "error"
			status, httpStatus = "degraded", http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	}

	body := gin.H{
		"status": status,
		"checks": checks,
	}
	if s.workers != nil {
		body["workers"] = s.workers.Metrics()
	}
	c.JSON(httpStatus, body)
}
