package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/workhub/escrow-backend/internal/http/response"
	"github.com/workhub/escrow-backend/internal/pkg/logger"
	"github.com/workhub/escrow-backend/internal/services"
)

type ReputationHandler struct {
	log        *logger.Logger
	reputation services.ReputationService
}

func NewReputationHandler(log *logger.Logger, reputation services.ReputationService) *ReputationHandler {
	return &ReputationHandler{log: log.With("handler", "ReputationHandler"), reputation: reputation}
}

// GET /api/users/:id/reputation
func (h *ReputationHandler) GetScore(c *gin.Context) {
	subjectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_user_id", err)
		return
	}
	score, err := h.reputation.GetScore(c.Request.Context(), subjectID)
	if err != nil {
		h.log.Error("load reputation failed", "error", err, "subject_id", subjectID.String())
		response.RespondError(c, http.StatusInternalServerError, "load_reputation_failed", err)
		return
	}
	response.RespondOK(c, score)
}

// GET /api/jobs/:id/reputation-events
func (h *ReputationHandler) ListEventsByJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	events, err := h.reputation.ListEventsByJob(c.Request.Context(), jobID)
	if err != nil {
		h.log.Error("load reputation events failed", "error", err, "job_id", jobID.String())
		response.RespondError(c, http.StatusInternalServerError, "load_reputation_events_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"events": events})
}
