package api

import (
	"context"
	"net/http"
	"time"

	"github.com/phrazzld/tasks-api/internal/api/shared"
	"github.com/phrazzld/tasks-api/internal/broker"
	"github.com/phrazzld/tasks-api/internal/platform/logger"
	"github.com/phrazzld/tasks-api/internal/redact"
)

const healthReconnectTimeout = 2 * time.Second

// BrokerStatus reports the broker connection state.
type BrokerStatus interface {
	State() broker.State
}

// Reconnecter restores a lost broker connection. *broker.Manager implements it.
type Reconnecter interface {
	Reconnect(ctx context.Context) error
}

// BreakerStatus reports the dispatch circuit breaker state.
type BreakerStatus interface {
	BreakerState() string
}

// HealthHandler serves GET /health.
type HealthHandler struct {
	broker  BrokerStatus
	breaker BreakerStatus
}

// NewHealthHandler creates a HealthHandler. breaker may be nil.
func NewHealthHandler(broker BrokerStatus, breaker BreakerStatus) *HealthHandler {
	return &HealthHandler{broker: broker, breaker: breaker}
}

// Health reports 200 while the broker is connected and 503 otherwise. When
// the broker is not connected and supports Reconnecter, one recovery attempt
// is made before the state is reported.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	state := h.broker.State()
	if state != broker.StateConnected {
		state = h.reconnect(r.Context())
	}
	resp := HealthResponse{Status: "success", Broker: state.String()}
	if h.breaker != nil {
		resp.Breaker = h.breaker.BreakerState()
	}

	status := http.StatusOK
	if state != broker.StateConnected {
		resp.Status = "unavailable"
		status = http.StatusServiceUnavailable
	}

	shared.RespondWithJSON(w, r, status, resp)
}

func (h *HealthHandler) reconnect(ctx context.Context) broker.State {
	rc, ok := h.broker.(Reconnecter)
	if !ok {
		return h.broker.State()
	}

	ctx, cancel := context.WithTimeout(ctx, healthReconnectTimeout)
	defer cancel()
	if err := rc.Reconnect(ctx); err != nil {
		logger.FromContext(ctx).Warn("broker reconnect from health check failed",
			"error", redact.Error(err))
	}
	return h.broker.State()
}
