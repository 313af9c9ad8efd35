package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/workhub/escrow-backend/internal/http/response"
	"github.com/workhub/escrow-backend/internal/pkg/ctxutil"
	"github.com/workhub/escrow-backend/internal/pkg/logger"
	"github.com/workhub/escrow-backend/internal/services"
)

type DisputeHandler struct {
	log      *logger.Logger
	disputes services.DisputeService
}

func NewDisputeHandler(log *logger.Logger, disputes services.DisputeService) *DisputeHandler {
	return &DisputeHandler{log: log.With("handler", "DisputeHandler"), disputes: disputes}
}

// POST /api/jobs/:id/disputes
func (h *DisputeHandler) Open(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	var req struct {
		Evidence string `json:"evidence"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.disputes.Open(c.Request.Context(), jobID, rd.UserID, req.Evidence)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondCreated(c, res)
}

// GET /api/jobs/:id/dispute
func (h *DisputeHandler) GetByJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	detail, err := h.disputes.GetByJob(c.Request.Context(), jobID)
	if err != nil {
		response.RespondError(c, http.StatusNotFound, "dispute_not_found", err)
		return
	}
	response.RespondOK(c, detail)
}

// GET /api/disputes/:id
func (h *DisputeHandler) Get(c *gin.Context) {
	disputeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_dispute_id", err)
		return
	}
	detail, err := h.disputes.GetDispute(c.Request.Context(), disputeID)
	if err != nil {
		response.RespondError(c, http.StatusNotFound, "dispute_not_found", err)
		return
	}
	response.RespondOK(c, detail)
}

// POST /api/disputes/:id/rebuttal
func (h *DisputeHandler) SubmitRebuttal(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	disputeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_dispute_id", err)
		return
	}
	var req struct {
		Evidence string `json:"evidence"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.disputes.SubmitRebuttal(c.Request.Context(), disputeID, rd.UserID, req.Evidence)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, res)
}

// POST /api/disputes/:id/rounds/:roundID/votes
func (h *DisputeHandler) CastVote(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	disputeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_dispute_id", err)
		return
	}
	roundID, err := uuid.Parse(c.Param("roundID"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_round_id", err)
		return
	}
	var req struct {
		EmployerWins *bool  `json:"employer_wins"`
		TxRef        string `json:"tx_ref"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if req.EmployerWins == nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", errMissingField("employer_wins"))
		return
	}
	res, err := h.disputes.CastVote(c.Request.Context(), disputeID, roundID, rd.UserID, *req.EmployerWins, req.TxRef)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, res)
}

func errMissingField(name string) error {
	return errors.New(name + " is required")
}

// POST /api/disputes/:id/settle
func (h *DisputeHandler) Settle(c *gin.Context) {
	disputeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_dispute_id", err)
		return
	}
	res, err := h.disputes.Settle(c.Request.Context(), disputeID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, res)
}
