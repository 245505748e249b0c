package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sitepulse.io/sitepulse/internal/cascade"
	"sitepulse.io/sitepulse/internal/pkg/logger"

	apperrors "sitepulse.io/sitepulse/internal/pkg/errors"
)

// PostChange handles POST /api/v1/changes, the ingestion endpoint for the
// storage layer's committed-change feed. Each record is passed through the
// recognizer; recognized changes are appended to the outbox, everything else
// is acknowledged and dropped. The endpoint always answers 202 for valid
// records so the feed never stalls on uninteresting writes.
func (s *Server) PostChange(c *gin.Context) {
	var change cascade.ChangeRecord
	if err := c.ShouldBindJSON(&change); err != nil {
		_ = c.Error(apperrors.BadRequest(apperrors.CodeEventMalformed, "change record is not valid JSON"))
		return
	}
	if change.Entity == "" || change.Op == "" {
		_ = c.Error(apperrors.BadRequest(apperrors.CodeEventMalformed, "change record needs entity and op"))
		return
	}

	event, err := s.adapter.Recognize(change)
	if err != nil {
		_ = c.Error(apperrors.Wrap(err, apperrors.CodeEventMalformed,
			"change record could not be normalized", http.StatusUnprocessableEntity))
		return
	}
	if event == nil {
		c.JSON(http.StatusAccepted, gin.H{"recognized": false})
		return
	}

	if err := s.events.AppendEvent(c.Request.Context(), event); err != nil {
		_ = c.Error(err)
		return
	}

	logger.Debug("Change recognized",
		zap.String("event_id", event.EventID),
		zap.String("event_type", string(event.Type)),
		zap.String("project_id", event.ProjectID),
	)
	c.JSON(http.StatusAccepted, gin.H{
		"recognized": true,
		"event_id":   event.EventID,
		"event_type": event.Type,
	})
}
