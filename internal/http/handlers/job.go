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

type JobHandler struct {
	log    *logger.Logger
	escrow services.EscrowService
}

func NewJobHandler(log *logger.Logger, escrow services.EscrowService) *JobHandler {
	return &JobHandler{log: log.With("handler", "JobHandler"), escrow: escrow}
}

// POST /api/jobs
func (h *JobHandler) Create(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	var req services.CreateJobInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	job, err := h.escrow.CreateJob(c.Request.Context(), rd.UserID, req)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "create_job_failed", err)
		return
	}
	response.RespondCreated(c, job)
}

// GET /api/jobs/:id
func (h *JobHandler) Get(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	detail, err := h.escrow.GetJob(c.Request.Context(), jobID)
	if err != nil {
		response.RespondError(c, http.StatusNotFound, "job_not_found", err)
		return
	}
	response.RespondOK(c, detail)
}

// GET /api/jobs
func (h *JobHandler) ListMine(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	jobs, err := h.escrow.ListByEmployer(c.Request.Context(), rd.UserID, 100)
	if err != nil {
		h.log.Error("list jobs failed", "error", err, "user_id", rd.UserID.String())
		response.RespondError(c, http.StatusInternalServerError, "list_jobs_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"jobs": jobs})
}

// POST /api/jobs/:id/applications
func (h *JobHandler) Apply(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	var req struct {
		CoverLetter string `json:"cover_letter"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	app, err := h.escrow.Apply(c.Request.Context(), jobID, rd.UserID, req.CoverLetter)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "apply_failed", err)
		return
	}
	response.RespondCreated(c, app)
}

// POST /api/jobs/:id/fund
func (h *JobHandler) Fund(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	res, err := h.escrow.Fund(c.Request.Context(), jobID, rd.UserID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, res)
}

// POST /api/jobs/:id/select
func (h *JobHandler) SelectApplicant(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	var req struct {
		ApplicationID string `json:"application_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	applicationID, err := uuid.Parse(req.ApplicationID)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_application_id", err)
		return
	}
	res, err := h.escrow.SelectApplicant(c.Request.Context(), jobID, applicationID, rd.UserID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, res)
}

// POST /api/jobs/:id/sign
func (h *JobHandler) Sign(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	var req struct {
		ContractHash string `json:"contract_hash"`
		SignTxRef    string `json:"sign_tx_ref"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.escrow.SignContract(c.Request.Context(), jobID, rd.UserID, req.ContractHash, req.SignTxRef)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, res)
}

// POST /api/jobs/:id/reject-contract
func (h *JobHandler) RejectContract(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.escrow.RejectContract(c.Request.Context(), jobID, rd.UserID, req.Reason)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, res)
}

// POST /api/jobs/:id/cancel
func (h *JobHandler) Cancel(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.escrow.Cancel(c.Request.Context(), jobID, rd.UserID, req.Reason)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, res)
}

// POST /api/jobs/:id/withdraw
func (h *JobHandler) Withdraw(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	res, err := h.escrow.Withdraw(c.Request.Context(), jobID, rd.UserID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, res)
}
