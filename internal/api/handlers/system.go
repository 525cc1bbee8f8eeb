package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/embarque/internal/eventbus"
	"github.com/your-org/embarque/internal/photostore"
	"github.com/your-org/embarque/internal/recordstore"
)

type SystemHandler struct {
	store    recordstore.Store
	photos   *photostore.Store
	notifier *eventbus.Notifier
}

// NewSystemHandler creates the health endpoints. photos and notifier
// may be nil when those optional backends are not configured.
func NewSystemHandler(store recordstore.Store, photos *photostore.Store, notifier *eventbus.Notifier) *SystemHandler {
	return &SystemHandler{store: store, photos: photos, notifier: notifier}
}

// Healthz reports process liveness.
func (h *SystemHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz reports whether the backing services answer.
func (h *SystemHandler) Readyz(c *gin.Context) {
	ctx := c.Request.Context()
	checks := gin.H{}
	healthy := true

	if err := h.store.Ping(ctx); err != nil {
		checks["database"] = err.Error()
		healthy = false
	} else {
		checks["database"] = "ok"
	}

	if h.photos != nil {
		if err := h.photos.Ping(ctx); err != nil {
			checks["object_storage"] = err.Error()
			healthy = false
		} else {
			checks["object_storage"] = "ok"
		}
	}

	if h.notifier != nil {
		if err := h.notifier.Ping(); err != nil {
			checks["nats"] = err.Error()
			healthy = false
		} else {
			checks["nats"] = "ok"
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"checks": checks})
}
