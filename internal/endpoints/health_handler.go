package endpoints

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Health struct {
	Response APIResponse
	store    Pinger
	logger   *zap.Logger
}

func (h *Health) Init(store Pinger, logger *zap.Logger) {
	h.store = store
	h.logger = logger
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
}

func (h *Health) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		h.Response.WriteErrorResponse(w, err)
		return
	}
	h.Response.WriteResultResponse(w, "ok")
}
