// Package metricshttp exposes the dashboard metrics engine over HTTP. The
// authentication proxy in front of this service resolves the caller and
// forwards role and company assignment as headers; the engine trusts them.
package metricshttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/transitops/transitops/internal/gateway"
	"github.com/transitops/transitops/internal/metrics"
	"github.com/transitops/transitops/internal/metrics/export"
	"github.com/transitops/transitops/internal/platform/httpx"
	"github.com/transitops/transitops/internal/scope"
)

const (
	headerRoles   = "X-User-Roles"
	headerCompany = "X-Company-ID"

	requestTimeout = 10 * time.Second
	defaultWindow  = 7 // days, when the caller sends no range
)

// MetricsService defines the dashboard data contract used by the handler.
type MetricsService interface {
	ComputeMetrics(ctx context.Context, sc scope.Scope, rng metrics.DateRange) (metrics.Snapshot, error)
	CompareGrowth(ctx context.Context, sc scope.Scope, rng metrics.DateRange) (metrics.GrowthComparison, error)
	StatusDistribution(ctx context.Context, sc scope.Scope) ([]metrics.Bucket, error)
	RouteDistribution(ctx context.Context, sc scope.Scope) ([]metrics.Bucket, error)
	RevenueByCompany(ctx context.Context, rng metrics.DateRange) ([]metrics.Bucket, error)
	RevenueSeries(ctx context.Context, sc scope.Scope, rng metrics.DateRange, granularity string) ([]gateway.RevenuePoint, error)
	ExportReport(ctx context.Context, sc scope.Scope, rng metrics.DateRange, format string) ([]byte, string, error)
}

// CacheControl exposes the cache invalidation hook.
type CacheControl interface {
	Bump(ctx context.Context) error
}

// Handler coordinates HTTP requests for the operations dashboard.
type Handler struct {
	logger   *slog.Logger
	service  MetricsService
	cache    CacheControl
	validate *validator.Validate
	csvPool  sync.Pool
	now      func() time.Time
}

// NewHandler constructs the dashboard HTTP handler.
func NewHandler(logger *slog.Logger, service MetricsService, cache CacheControl) *Handler {
	h := &Handler{
		logger:   logger,
		service:  service,
		cache:    cache,
		validate: validator.New(),
		now:      time.Now,
	}
	h.csvPool.New = func() interface{} { return new(bytes.Buffer) }
	return h
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

type dashboardQuery struct {
	Company     string `validate:"omitempty,max=20"`
	From        string `validate:"omitempty,datetime=2006-01-02"`
	To          string `validate:"omitempty,datetime=2006-01-02"`
	Granularity string `validate:"omitempty,oneof=day week month"`
	Format      string `validate:"omitempty,oneof=csv xlsx pdf"`
}

type request struct {
	scope scope.Scope
	rng   metrics.DateRange
	query dashboardQuery
}

func (h *Handler) parseRequest(r *http.Request) (request, error) {
	q := dashboardQuery{
		Company:     strings.TrimSpace(r.URL.Query().Get("company")),
		From:        strings.TrimSpace(r.URL.Query().Get("from")),
		To:          strings.TrimSpace(r.URL.Query().Get("to")),
		Granularity: strings.TrimSpace(r.URL.Query().Get("granularity")),
		Format:      strings.TrimSpace(r.URL.Query().Get("format")),
	}
	if err := h.validate.Struct(q); err != nil {
		return request{}, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}

	roles := scope.ParseRoles(r.Header.Get(headerRoles))
	var assigned *int64
	if raw := strings.TrimSpace(r.Header.Get(headerCompany)); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return request{}, fmt.Errorf("%w: company header %q", httpx.ErrValidation, raw)
		}
		assigned = &id
	}
	sc, err := scope.Resolve(roles, assigned, q.Company)
	if err != nil {
		if errors.Is(err, scope.ErrMisconfiguredAccount) {
			return request{}, err
		}
		return request{}, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}

	rng, err := h.parseRange(q)
	if err != nil {
		return request{}, err
	}
	return request{scope: sc, rng: rng, query: q}, nil
}

// parseRange defaults to the trailing week when the caller sends no bounds.
func (h *Handler) parseRange(q dashboardQuery) (metrics.DateRange, error) {
	if q.From == "" && q.To == "" {
		end := h.now().UTC().Truncate(24 * time.Hour)
		return metrics.DateRange{Start: end.AddDate(0, 0, -(defaultWindow - 1)), End: end}, nil
	}
	if q.From == "" || q.To == "" {
		return metrics.DateRange{}, fmt.Errorf("%w: both from and to are required", metrics.ErrInvalidDateRange)
	}
	return metrics.ParseDateRange(q.From, q.To)
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseRequest(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	snapshot, err := h.service.ComputeMetrics(ctx, req.scope, req.rng)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, snapshot)
}

func (h *Handler) handleGrowth(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseRequest(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	comparison, err := h.service.CompareGrowth(ctx, req.scope, req.rng)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, comparison)
}

func (h *Handler) handleStatusDistribution(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseRequest(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	buckets, err := h.service.StatusDistribution(ctx, req.scope)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, buckets)
}

func (h *Handler) handleRouteDistribution(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseRequest(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	buckets, err := h.service.RouteDistribution(ctx, req.scope)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, buckets)
}

// handleRevenueDistribution is an all-companies view; company-restricted
// callers are turned away rather than silently widened.
func (h *Handler) handleRevenueDistribution(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseRequest(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if req.scope.RestrictedToCompany {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "revenue breakdown is not available for company-restricted accounts")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	buckets, err := h.service.RevenueByCompany(ctx, req.rng)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, buckets)
}

func (h *Handler) handleRevenueSeries(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseRequest(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	points, err := h.service.RevenueSeries(ctx, req.scope, req.rng, req.query.Granularity)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, points)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseRequest(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	format := req.query.Format
	if format == "" {
		format = "csv"
	}
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	payload, contentType, err := h.service.ExportReport(ctx, req.scope, req.rng, format)
	if err != nil {
		h.logError("export report", err)
		httpx.Problem(w, http.StatusBadGateway, "Export Failed", "the report could not be produced")
		return
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	filename := fmt.Sprintf("dashboard-%s-%s.%s", req.scope.Token(), req.rng.Start.Format("2006-01-02"), format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if _, err := w.Write(payload); err != nil {
		h.logError("stream export", err)
	}
}

func (h *Handler) handleSnapshotCSV(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseRequest(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	snapshot, err := h.service.ComputeMetrics(ctx, req.scope, req.rng)
	if err != nil {
		h.respondError(w, err)
		return
	}

	buf := h.csvPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.csvPool.Put(buf)
	}()
	if err := export.WriteSnapshotCSV(buf, snapshot); err != nil {
		h.logError("write snapshot csv", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	filename := fmt.Sprintf("dashboard-%s-%s.csv", req.scope.Token(), req.rng.Start.Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logError("stream csv", err)
	}
}

func (h *Handler) handleCacheBump(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Cache Unavailable", "")
		return
	}
	if err := h.cache.Bump(r.Context()); err != nil {
		h.logError("cache bump", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"status": "invalidated"})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var upstream *gateway.UpstreamError
	switch {
	case errors.Is(err, scope.ErrMisconfiguredAccount):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Misconfigured Account", err.Error())
	case errors.Is(err, metrics.ErrInvalidDateRange):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Date Range", err.Error())
	case errors.Is(err, httpx.ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.As(err, &upstream):
		httpx.Problem(w, http.StatusBadGateway, "Upstream Unavailable", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		httpx.Problem(w, http.StatusGatewayTimeout, "Timeout", "")
	default:
		h.logError("request failed", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func (h *Handler) logError(msg string, err error) {
	if h.logger != nil {
		h.logger.Error(msg, slog.Any("error", err))
	}
}
