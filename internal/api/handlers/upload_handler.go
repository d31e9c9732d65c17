package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/hvalfangst/csvstats/internal/service"
)

type UploadHandler struct {
	gate *service.IngressGate
}

func NewUploadHandler(gate *service.IngressGate) *UploadHandler {
	return &UploadHandler{gate: gate}
}

// UploadCSV stores the raw request body as the input dataset
func (h *UploadHandler) UploadCSV(c *gin.Context) {
	// one byte past the limit lets the gate tell "at limit" from "over limit"
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, h.gate.MaxBytes()+1))
	if err != nil {
		log.Error().Err(err).Msg("failed to read request body")
		c.String(http.StatusBadRequest, "Error: %s", err.Error())
		return
	}

	res := h.gate.Upload(c.Request.Context(), c.GetHeader("Authorization"), body)
	c.String(res.Status, "%s", res.Message)
}
