package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/huangang/copilot-metrics/internal/services"
	"github.com/huangang/copilot-metrics/internal/services/usage"
	"github.com/huangang/copilot-metrics/pkg/logger"
	"github.com/huangang/copilot-metrics/pkg/response"
)

// MetricsFetcher is the part of the metrics proxy the handler needs.
type MetricsFetcher interface {
	FetchRaw(ctx context.Context, opts services.FetchOptions) (json.RawMessage, error)
}

type CopilotMetricsHandler struct {
	fetcher MetricsFetcher
	store   *services.CredentialStore
	stats   *services.FetchStats
	logs    *services.SystemLogService
}

func NewCopilotMetricsHandler(fetcher MetricsFetcher, store *services.CredentialStore, stats *services.FetchStats, logs *services.SystemLogService) *CopilotMetricsHandler {
	return &CopilotMetricsHandler{
		fetcher: fetcher,
		store:   store,
		stats:   stats,
		logs:    logs,
	}
}

// GetMetrics forwards the upstream feed verbatim.
func (h *CopilotMetricsHandler) GetMetrics(c *gin.Context) {
	raw, ok := h.fetch(c, "fetch")
	if !ok {
		return
	}
	response.RawJSON(c, raw)
}

// GetSummary returns the chart-ready series computed from the feed.
func (h *CopilotMetricsHandler) GetSummary(c *gin.Context) {
	raw, ok := h.fetch(c, "fetch_summary")
	if !ok {
		return
	}
	response.JSON(c, usage.Summarize(usage.ParseFeed(raw)))
}

// fetch runs one proxy call and writes the error response when it fails.
// Every call produces exactly one response.
func (h *CopilotMetricsHandler) fetch(c *gin.Context, action string) (json.RawMessage, bool) {
	var opts services.FetchOptions
	if err := c.ShouldBindQuery(&opts); err != nil {
		response.BadRequest(c, err.Error())
		return nil, false
	}

	start := time.Now()
	raw, err := h.fetcher.FetchRaw(c.Request.Context(), opts)
	h.record(c, action, start, err)
	if err != nil {
		response.Error(c, toAppError(err))
		return nil, false
	}
	return raw, true
}

func (h *CopilotMetricsHandler) record(c *gin.Context, action string, start time.Time, err error) {
	outcome := services.Outcome(err)
	h.stats.Observe(outcome)

	entry := services.LogEntry{
		Module:    services.ModuleMetricsProxy,
		Action:    action,
		Message:   outcome,
		Org:       h.store.Status().Org,
		Duration:  time.Since(start),
		RequestID: c.GetString(logger.RequestIDKey),
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}

	var upstreamErr *services.UpstreamError
	switch {
	case err == nil:
		entry.StatusCode = 200
		h.logs.Info(entry)
	case errors.As(err, &upstreamErr):
		entry.StatusCode = upstreamErr.StatusCode
		h.logs.Warning(entry)
	case outcome == services.OutcomeNotConfigured || outcome == services.OutcomeInvalidQuery:
		h.logs.Warning(entry)
	default:
		entry.Extra = map[string]string{"error": err.Error()}
		h.logs.Error(entry)
	}
}

func toAppError(err error) *response.AppError {
	var upstreamErr *services.UpstreamError
	var netErr *services.NetworkError
	switch {
	case errors.Is(err, services.ErrNotConfigured):
		return response.NewUnauthorized(err.Error())
	case errors.Is(err, services.ErrInvalidFetchOptions):
		return response.NewBadRequest(err.Error())
	case errors.Is(err, services.ErrUpstreamTimeout):
		return response.NewGatewayTimeout(err.Error())
	case errors.As(err, &upstreamErr):
		return response.NewUpstream(upstreamErr.StatusCode, "Failed to fetch Copilot metrics", upstreamDetails(upstreamErr.Body))
	case errors.As(err, &netErr):
		return response.NewBadGateway("Failed to reach GitHub API", netErr.Err.Error())
	default:
		return response.NewServerError(err.Error())
	}
}

// upstreamDetails returns the upstream body as JSON when it parses, else as
// a string.
func upstreamDetails(body []byte) any {
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	return string(body)
}
