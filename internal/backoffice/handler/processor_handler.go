package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hashcard/treasury/internal/service"
)

// ProcessorHandler serves /admin/processor: manual queue runs for operators
// who do not want to wait for the next cron tick.
type ProcessorHandler struct {
	processor *service.ProcessorService
}

// NewProcessorHandler creates a ProcessorHandler.
func NewProcessorHandler(processor *service.ProcessorService) *ProcessorHandler {
	return &ProcessorHandler{processor: processor}
}

// Run godoc
// POST /admin/processor/run
// Triggers one settlement queue pass.  Returns 409 if a run (cron or manual)
// is already in flight.
func (h *ProcessorHandler) Run(c *gin.Context) {
	report, err := h.processor.Run(c.Request.Context())
	if err != nil {
		if errors.Is(err, service.ErrRunInProgress) {
			respondError(c, http.StatusConflict, "ERR_RUN_IN_PROGRESS", err.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondSuccess(c, http.StatusOK, report)
}
