package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/nrbnayon/silver-gym/utils"
	"go.uber.org/zap"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Storage   string            `json:"storage"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	db      *sql.DB
	storage string
	timeout time.Duration
	logger  *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. db is nil with in-memory storage.
func NewHealthHandler(db *sql.DB, storage string, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:      db,
		storage: storage,
		timeout: 3 * time.Second,
		logger:  logger,
	}
}

// HandleHealth handles GET /healthz. It answers as long as the process runs.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, HealthResponse{
		Status:    "healthy",
		Storage:   h.storage,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleReadiness handles GET /readyz: 503 until storage answers.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"database": "healthy"}
	status, code := "healthy", http.StatusOK

	if h.db == nil {
		checks["database"] = "not_configured"
	} else if err := h.checkDatabase(ctx); err != nil {
		h.logger.Warn("database health check failed", zap.Error(err))
		checks["database"] = "unhealthy"
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	if err := utils.WriteJSON(w, code, utils.SuccessResponse{Data: HealthResponse{
		Status:    status,
		Storage:   h.storage,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

func (h *HealthHandler) checkDatabase(ctx context.Context) error {
	if err := h.db.PingContext(ctx); err != nil {
		return err
	}
	var one int
	return h.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}
