package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthResponse is the liveness probe body.
type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}

// Root godoc
// @ID          root
// @Summary     Root probe
// @Tags        System
// @Produce     plain
// @Success     200  {string}  string  "Root!"
// @Router      / [get]
func (h *Handlers) Root(c *gin.Context) {
	c.String(http.StatusOK, "Root!")
}

// Health godoc
// @ID          health
// @Summary     Liveness probe
// @Tags        System
// @Produce     json
// @Success     200  {object}  handlers.HealthResponse
// @Router      /health [get]
func (h *Handlers) Health(c *gin.Context) {
	ok(c, http.StatusOK, HealthResponse{Status: "ok"})
}

// QueueStats godoc
// @ID          queueStats
// @Summary     Delivery queue depth
// @Description Deferred entries are queued entries waiting for a retry; they are included in the queued count.
// @Tags        System
// @Produce     json
// @Success     200  {object}  repo.QueueCounts
// @Failure     503  {object}  handlers.ErrorResponse "Storage busy, retry"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /queue/stats [get]
func (h *Handlers) QueueStats(c *gin.Context) {
	counts, err := h.queueSvc.Stats(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, counts)
}
