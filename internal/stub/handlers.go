package stub

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"yqhp/loadgen/internal/payload"
)

const defaultCorrelationLimit = 50

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
}

// IngestResponse 日志摄取结果
type IngestResponse struct {
	Status   string         `json:"status"`
	Accepted int            `json:"accepted"`
	Levels   map[string]int `json:"levels"`
}

// CorrelationsResponse 关联查询结果
type CorrelationsResponse struct {
	Correlations []Correlation `json:"correlations"`
	Count        int           `json:"count"`
}

// UpdateReviewRequest 评审记录更新请求
type UpdateReviewRequest struct {
	Summary *string `json:"summary"`
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:    "healthy",
		Service:   s.config.ServiceName,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) root(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": s.config.ServiceName,
		"version": "1.0.0",
		"status":  "running",
		"endpoints": fiber.Map{
			"health":       "/health",
			"metrics":      "/metrics",
			"logs":         "/api/logs",
			"correlations": "/api/correlations",
			"reviews":      "/api/seca-reviews",
		},
	})
}

// ingestLogs 接收一批日志。注入的失败在解析请求体之前判定，
// 因此失败比例只与请求次数有关。
func (s *Server) ingestLogs(c *fiber.Ctx) error {
	if s.shouldFail() {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "ingestion_failed",
			Message: "injected failure",
		})
	}

	var batch payload.Batch
	if err := c.BodyParser(&batch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "bad_request",
			Message: err.Error(),
		})
	}
	if len(batch.Logs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "bad_request",
			Message: "logs must not be empty",
		})
	}

	levels := s.store.ingest(batch)
	for level, n := range levels {
		s.metrics.LogsReceived.WithLabelValues(level).Add(float64(n))
	}
	s.metrics.Correlations.Set(float64(s.store.correlationCount()))

	return c.JSON(IngestResponse{
		Status:   "accepted",
		Accepted: batch.Len(),
		Levels:   levels,
	})
}

func (s *Server) listCorrelations(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultCorrelationLimit)
	if limit <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "limit must be positive")
	}
	list := s.store.correlations(limit)
	return c.JSON(CorrelationsResponse{Correlations: list, Count: len(list)})
}

func (s *Server) listReviews(c *fiber.Ctx) error {
	return c.JSON(s.store.listReviews())
}

func (s *Server) updateReview(c *fiber.Ctx) error {
	var req UpdateReviewRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if req.Summary == nil {
		return fiber.NewError(fiber.StatusBadRequest, "summary is required")
	}

	review, ok := s.store.updateReview(c.Params("id"), *req.Summary, time.Now())
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "review not found")
	}
	return c.JSON(review)
}
