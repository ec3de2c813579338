// Package api exposes batch screening over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/banking/kyc-risk-service/internal/config"
	"github.com/banking/kyc-risk-service/internal/domain"
	"github.com/banking/kyc-risk-service/internal/pkg/logger"
	"github.com/banking/kyc-risk-service/internal/repository"
)

// BatchAssessor scores a batch of customer records
type BatchAssessor interface {
	AssessBatch(ctx context.Context, records []domain.CustomerRecord) (*domain.BatchResult, error)
	SanctionsCount() int
	GetBatchCount() int64
	GetAverageLatency() float64
}

// BatchAnnotator attaches narratives to a finished batch
type BatchAnnotator interface {
	Annotate(ctx context.Context, result *domain.BatchResult) error
}

// BatchPublisher emits audit and alert events for a finished batch
type BatchPublisher interface {
	Publish(ctx context.Context, result *domain.BatchResult) ([]*domain.RiskAlert, error)
}

// Deps are the collaborators of the HTTP layer. Repository, Annotator and
// Publisher are optional.
type Deps struct {
	Engine     BatchAssessor
	Repository repository.Repository
	Annotator  BatchAnnotator
	Publisher  BatchPublisher
	Gatherer   prometheus.Gatherer
	Config     *config.Config
	Logger     *logger.Logger
}

// BatchRequest is the body of POST /v1/batches
type BatchRequest struct {
	Records []domain.CustomerRecord `json:"records"`
}

// BatchResponse wraps a result with the alerts raised for it
type BatchResponse struct {
	*domain.BatchResult
	Alerts []*domain.AlertSummary `json:"alerts,omitempty"`
}

// ErrorResponse is returned for rejected batches
type ErrorResponse struct {
	Error        string   `json:"error"`
	DuplicateIDs []string `json:"duplicate_ids,omitempty"`
	MissingRows  []int    `json:"missing_rows,omitempty"`
}

// Handler serves the screening API
type Handler struct {
	deps Deps
	log  *logger.Logger
}

// NewServer builds the echo instance with middleware and routes registered.
func NewServer(deps Deps) *echo.Echo {
	h := &Handler{deps: deps, log: deps.Logger.Named("api")}
	cfg := deps.Config

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(RequestContext())
	e.Use(middleware.Secure())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.Security.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
	}))
	if cfg.Server.MaxRequestSize != "" {
		e.Use(middleware.BodyLimit(cfg.Server.MaxRequestSize))
	}

	e.GET("/health", h.Health)
	if deps.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := e.Group("/v1")
	if cfg.Security.JWTSecret != "" {
		v1.Use(JWTAuth([]byte(cfg.Security.JWTSecret)))
	}
	v1.POST("/batches", h.CreateBatch)
	v1.GET("/batches", h.ListBatches)
	v1.GET("/batches/:id", h.GetBatch)

	return e
}

// Health reports liveness with a few engine gauges.
func (h *Handler) Health(c echo.Context) error {
	status := map[string]any{
		"status":            "ok",
		"service":           h.log.ServiceName(),
		"sanctions_entries": h.deps.Engine.SanctionsCount(),
		"batches":           h.deps.Engine.GetBatchCount(),
		"avg_latency_ms":    h.deps.Engine.GetAverageLatency(),
	}
	if h.deps.Repository != nil {
		if err := h.deps.Repository.Ping(c.Request().Context()); err != nil {
			status["status"] = "degraded"
			status["database"] = err.Error()
			return c.JSON(http.StatusServiceUnavailable, status)
		}
	}
	return c.JSON(http.StatusOK, status)
}

// CreateBatch scores the posted records. With ?explain=true every scored
// entry also gets a narrative.
func (h *Handler) CreateBatch(c echo.Context) error {
	ctx := c.Request().Context()
	log := h.log.WithContext(ctx)

	var req BatchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if limit := h.deps.Config.Screening.MaxBatchSize; limit > 0 && len(req.Records) > limit {
		return c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
			Error: "batch has " + strconv.Itoa(len(req.Records)) + " records, limit is " + strconv.Itoa(limit),
		})
	}

	result, err := h.deps.Engine.AssessBatch(ctx, req.Records)
	if err != nil {
		var verr *domain.ValidationError
		switch {
		case errors.As(err, &verr):
			return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
				Error:        verr.Error(),
				DuplicateIDs: verr.DuplicateIDs,
				MissingRows:  verr.MissingRows,
			})
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return echo.NewHTTPError(http.StatusServiceUnavailable, "batch aborted")
		default:
			log.Error("batch failed", logger.ErrorField(err))
			return echo.NewHTTPError(http.StatusInternalServerError, "batch failed")
		}
	}

	if explain, _ := strconv.ParseBool(c.QueryParam("explain")); explain && h.deps.Annotator != nil {
		if err := h.deps.Annotator.Annotate(ctx, result); err != nil {
			log.Warn("narratives incomplete", zap.String("batch_id", result.BatchID.String()), logger.ErrorField(err))
		}
	}

	resp := BatchResponse{BatchResult: result}
	if h.deps.Publisher != nil {
		alerts, err := h.deps.Publisher.Publish(ctx, result)
		if err != nil {
			log.Error("failed to publish batch events", zap.String("batch_id", result.BatchID.String()), logger.ErrorField(err))
		}
		for _, a := range alerts {
			resp.Alerts = append(resp.Alerts, a.ToSummary())
		}
	}
	if h.deps.Repository != nil {
		if err := h.deps.Repository.SaveBatch(ctx, result); err != nil {
			log.Error("failed to store batch", zap.String("batch_id", result.BatchID.String()), logger.ErrorField(err))
		}
	}

	return c.JSON(http.StatusOK, resp)
}

// GetBatch returns a stored batch.
func (h *Handler) GetBatch(c echo.Context) error {
	if h.deps.Repository == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "result store is disabled")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid batch id")
	}

	result, err := h.deps.Repository.GetBatch(c.Request().Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "batch not found")
	}
	if err != nil {
		h.log.WithContext(c.Request().Context()).Error("failed to load batch", logger.ErrorField(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load batch")
	}
	return c.JSON(http.StatusOK, result)
}

// ListBatches returns the most recent batch headers.
func (h *Handler) ListBatches(c echo.Context) error {
	if h.deps.Repository == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "result store is disabled")
	}
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = n
	}

	records, err := h.deps.Repository.ListBatches(c.Request().Context(), limit)
	if err != nil {
		h.log.WithContext(c.Request().Context()).Error("failed to list batches", logger.ErrorField(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list batches")
	}
	return c.JSON(http.StatusOK, records)
}
