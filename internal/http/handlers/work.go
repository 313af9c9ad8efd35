package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/workhub/escrow-backend/internal/http/response"
	"github.com/workhub/escrow-backend/internal/pkg/ctxutil"
	"github.com/workhub/escrow-backend/internal/pkg/logger"
	"github.com/workhub/escrow-backend/internal/services"
)

type WorkHandler struct {
	log  *logger.Logger
	work services.WorkService
}

func NewWorkHandler(log *logger.Logger, work services.WorkService) *WorkHandler {
	return &WorkHandler{log: log.With("handler", "WorkHandler"), work: work}
}

// POST /api/jobs/:id/submissions
func (h *WorkHandler) Submit(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	var req struct {
		URL  string `json:"url"`
		Note string `json:"note"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.work.Submit(c.Request.Context(), jobID, rd.UserID, req.URL, req.Note)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondCreated(c, res)
}

// GET /api/jobs/:id/submissions
func (h *WorkHandler) List(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	rows, err := h.work.ListSubmissions(c.Request.Context(), jobID)
	if err != nil {
		h.log.Error("list submissions failed", "error", err, "job_id", jobID.String())
		response.RespondError(c, http.StatusInternalServerError, "list_submissions_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"submissions": rows})
}

// POST /api/jobs/:id/approve
func (h *WorkHandler) Approve(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	res, err := h.work.Approve(c.Request.Context(), jobID, rd.UserID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, res)
}

// POST /api/jobs/:id/request-revision
func (h *WorkHandler) RequestRevision(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	var req struct {
		Note string `json:"note"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.work.RequestRevision(c.Request.Context(), jobID, rd.UserID, req.Note)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, res)
}
