package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"api-tracking/internal/domain/entity"
	"api-tracking/internal/domain/repository"
)

type HealthHandler struct {
	logRepo repository.RequestLogRepository
	logger  *zap.Logger
}

func NewHealthHandler(logRepo repository.RequestLogRepository, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{logRepo: logRepo, logger: logger}
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Store     string    `json:"store"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// Health godoc
// @Summary Health check
// @Description Check if the service and its request log store are reachable
// @Tags health
// @Produce json
// @Success 200 {object} entity.APIResponse
// @Failure 503 {object} entity.APIResponse
// @Router /health [get]
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:    "healthy",
		Store:     "up",
		Timestamp: time.Now(),
		Version:   "1.0.0",
	}

	if err := h.logRepo.Ping(ctx); err != nil {
		h.logger.Warn("Request log store unreachable", zap.Error(err))
		resp.Status = "degraded"
		resp.Store = "down"
		return c.Status(fiber.StatusServiceUnavailable).JSON(&entity.APIResponse{
			Success: false,
			Message: "Request log store unreachable",
			Data:    resp,
		})
	}

	return c.JSON(entity.NewSuccessResponse(resp, "Service is healthy"))
}
