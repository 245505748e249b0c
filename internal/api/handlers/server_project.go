package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"sitepulse.io/sitepulse/internal/audit"
	"sitepulse.io/sitepulse/internal/cascade"
	"sitepulse.io/sitepulse/internal/domain"
	apperrors "sitepulse.io/sitepulse/internal/pkg/errors"
)

const defaultNotificationPageSize = 50

// GetProject handles GET /api/v1/projects/:id.
func (s *Server) GetProject(c *gin.Context) {
	project, err := s.store.GetProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, cascade.ErrProjectNotFound) {
			_ = c.Error(apperrors.ErrProjectNotFoundf(c.Param("id")))
			return
		}
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"project": project,
		"health": gin.H{
			"score": project.HealthScore,
			"color": project.StatusColor,
		},
	})
}

// GetProjectLedger handles GET /api/v1/projects/:id/ledger.
//
// Optional query params: from, to (RFC 3339) and limit.
func (s *Server) GetProjectLedger(c *gin.Context) {
	q := audit.Query{ProjectID: c.Param("id")}

	var err error
	if q.From, err = parseTimeParam(c.Query("from")); err != nil {
		_ = c.Error(apperrors.BadRequest(apperrors.CodeValidationFailed, "from must be RFC 3339"))
		return
	}
	if q.To, err = parseTimeParam(c.Query("to")); err != nil {
		_ = c.Error(apperrors.BadRequest(apperrors.CodeValidationFailed, "to must be RFC 3339"))
		return
	}
	if q.Limit, err = parseLimitParam(c.Query("limit"), 0); err != nil {
		_ = c.Error(apperrors.BadRequest(apperrors.CodeValidationFailed, "limit must be a positive integer"))
		return
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		_ = c.Error(apperrors.BadRequest(apperrors.CodeValidationFailed, "from must not be after to"))
		return
	}

	entries, err := s.ledger.ProjectHistory(c.Request.Context(), q)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if entries == nil {
		entries = []domain.LedgerEntry{}
	}

	c.JSON(http.StatusOK, gin.H{
		"project_id": q.ProjectID,
		"entries":    entries,
	})
}

// GetProjectNotifications handles GET /api/v1/projects/:id/notifications.
func (s *Server) GetProjectNotifications(c *gin.Context) {
	limit, err := parseLimitParam(c.Query("limit"), defaultNotificationPageSize)
	if err != nil {
		_ = c.Error(apperrors.BadRequest(apperrors.CodeValidationFailed, "limit must be a positive integer"))
		return
	}

	notifications, err := s.store.ListProjectNotifications(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if notifications == nil {
		notifications = []domain.Notification{}
	}

	c.JSON(http.StatusOK, gin.H{
		"project_id":    c.Param("id"),
		"notifications": notifications,
	})
}

func parseTimeParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func parseLimitParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, errors.New("invalid limit")
	}
	return limit, nil
}
