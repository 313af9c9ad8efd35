package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	ledgerrepo "github.com/workhub/escrow-backend/internal/data/repos/ledger"
	"github.com/workhub/escrow-backend/internal/http/response"
	"github.com/workhub/escrow-backend/internal/pkg/dbctx"
	"github.com/workhub/escrow-backend/internal/pkg/logger"
	"github.com/workhub/escrow-backend/internal/services"
)

// OpsHandler exposes the operator surface: open incidents, the intent
// trail behind a job's money movements, and a forced deadline sweep.
type OpsHandler struct {
	log       *logger.Logger
	incidents ledgerrepo.IncidentRepo
	intents   ledgerrepo.IntentRepo
	scheduler *services.DeadlineScheduler
}

func NewOpsHandler(log *logger.Logger, incidents ledgerrepo.IncidentRepo, intents ledgerrepo.IntentRepo, scheduler *services.DeadlineScheduler) *OpsHandler {
	return &OpsHandler{
		log:       log.With("handler", "OpsHandler"),
		incidents: incidents,
		intents:   intents,
		scheduler: scheduler,
	}
}

// GET /api/ops/incidents
func (h *OpsHandler) ListOpenIncidents(c *gin.Context) {
	rows, err := h.incidents.ListOpen(dbctx.Context{Ctx: c.Request.Context()}, 100)
	if err != nil {
		h.log.Error("list incidents failed", "error", err)
		response.RespondError(c, http.StatusInternalServerError, "list_incidents_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"incidents": rows})
}

// GET /api/jobs/:id/intents
func (h *OpsHandler) ListJobIntents(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	rows, err := h.intents.ListByJob(dbctx.Context{Ctx: c.Request.Context()}, jobID)
	if err != nil {
		h.log.Error("list intents failed", "error", err, "job_id", jobID.String())
		response.RespondError(c, http.StatusInternalServerError, "list_intents_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"intents": rows})
}

// POST /api/ops/sweep
func (h *OpsHandler) ForceSweep(c *gin.Context) {
	if h.scheduler == nil {
		response.RespondError(c, http.StatusServiceUnavailable, "sweep_unavailable", nil)
		return
	}
	h.scheduler.Sweep(c.Request.Context())
	response.RespondOK(c, gin.H{"ok": true})
}
