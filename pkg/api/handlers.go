package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/Sec-Link/SIEM/pkg/elastic"
	"github.com/Sec-Link/SIEM/pkg/models"
	"github.com/Sec-Link/SIEM/pkg/services"
)

// TenantUnassigned is the sentinel tenant used when a request carries no
// tenant header. Identity is an external collaborator; the pipeline never
// blocks on it.
const TenantUnassigned = "tenant_unassigned"

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// APIHandler handles HTTP API requests
type APIHandler struct {
	alerts     *services.AlertService
	aggregator *services.AggregationEngine
	syncTask   *services.SyncTask
	sources    services.SourceProvider
	fetcher    *elastic.Fetcher
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(alerts *services.AlertService, aggregator *services.AggregationEngine, syncTask *services.SyncTask, sources services.SourceProvider, fetcher *elastic.Fetcher) *APIHandler {
	return &APIHandler{
		alerts:     alerts,
		aggregator: aggregator,
		syncTask:   syncTask,
		sources:    sources,
		fetcher:    fetcher,
	}
}

// GetAlerts returns a paginated page of the tenant's resolved alerts.
//
// Query parameters: page, page_size, and the force flags force_live,
// force_cache_only, force_static. The names force_es, force_db and mock are
// accepted as aliases for compatibility with older dashboard builds.
func (h *APIHandler) GetAlerts(c echo.Context) error {
	tenantID := requestTenant(c)
	opts := models.RetrievalOptions{
		ForceLive:      queryBool(c, "force_live") || queryBool(c, "force_es"),
		ForceCacheOnly: queryBool(c, "force_cache_only") || queryBool(c, "force_db"),
		ForceStatic:    queryBool(c, "force_static") || queryBool(c, "mock"),
	}

	result, err := h.alerts.ListAlerts(c.Request().Context(), tenantID, opts)
	if err != nil {
		logrus.Errorf("Error listing alerts for tenant %s: %v", tenantID, err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Failed to list alerts"})
	}

	page := queryInt(c, "page", 1)
	if page < 1 {
		page = 1
	}
	pageSize := queryInt(c, "page_size", defaultPageSize)
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	total := len(result.Alerts)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"alerts":    result.Alerts[start:end],
		"page":      page,
		"page_size": pageSize,
		"total":     total,
		"source":    result.Provenance,
	})
}

// GetDashboard returns the aggregated dashboard metrics for the tenant.
func (h *APIHandler) GetDashboard(c echo.Context) error {
	tenantID := requestTenant(c)
	ctx := c.Request().Context()

	result, err := h.alerts.ListAlerts(ctx, tenantID, models.RetrievalOptions{})
	if err != nil {
		logrus.Errorf("Error resolving dashboard alerts for tenant %s: %v", tenantID, err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Failed to build dashboard"})
	}
	return c.JSON(http.StatusOK, h.aggregator.Aggregate(ctx, tenantID, result))
}

// SyncAlerts runs an on-demand cache sync for the calling tenant.
func (h *APIHandler) SyncAlerts(c echo.Context) error {
	tenantID := requestTenant(c)
	size := queryInt(c, "size", 0)

	result, err := h.syncTask.Sync(c.Request().Context(), tenantID, size)
	if err != nil {
		logrus.Errorf("Error syncing alerts for tenant %s: %v", tenantID, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to sync alerts"})
	}
	return c.JSON(http.StatusOK, result)
}

// GetSourceDiagnostics probes the tenant's configured source: reachability,
// detected server version, timestamp field resolution and a small sample
// fetch. Meant for operators wiring up a new tenant.
func (h *APIHandler) GetSourceDiagnostics(c echo.Context) error {
	tenantID := requestTenant(c)
	ctx := c.Request().Context()

	cfg, err := h.sources.SourceConfig(tenantID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Failed to load source config"})
	}
	if cfg == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "No source configured for tenant"})
	}

	probeClient := h.fetcher.ProbeClient(cfg)
	serverMajor := elastic.DetectServerMajor(ctx, probeClient, cfg.PrimaryHost())
	clientMajor, _ := elastic.ClientMajor()
	probe := elastic.NewSchemaProbe(probeClient)

	diag := map[string]interface{}{
		"tenant_id":           tenantID,
		"host":                cfg.PrimaryHost(),
		"index":               cfg.Index,
		"enabled":             cfg.Enabled,
		"server_major":        serverMajor,
		"client_major":        clientMajor,
		"transport":           elastic.ChooseTransport(serverMajor, clientMajor),
		"sort_field":          probe.ResolveSortField(ctx, cfg),
		"has_tenant_id_field": probe.IndexHasField(ctx, cfg, "tenant_id"),
	}

	docs, provenance, err := h.fetcher.Search(ctx, cfg, tenantID, 5)
	if err != nil {
		diag["sample_error"] = err.Error()
	} else {
		diag["sample_count"] = len(docs)
		diag["sample_source"] = provenance
	}
	return c.JSON(http.StatusOK, diag)
}

// SetupRoutes sets up the API routes
func (h *APIHandler) SetupRoutes(e *echo.Echo) {
	e.GET("/api/alerts", h.GetAlerts)
	e.POST("/api/alerts/sync", h.SyncAlerts)
	e.GET("/api/dashboard/alerts", h.GetDashboard)
	e.GET("/api/diagnostics/source", h.GetSourceDiagnostics)
}

// requestTenant resolves the calling tenant from the X-Tenant-ID header.
func requestTenant(c echo.Context) string {
	if tid := strings.TrimSpace(c.Request().Header.Get("X-Tenant-ID")); tid != "" {
		return tid
	}
	return TenantUnassigned
}

func queryBool(c echo.Context, name string) bool {
	switch strings.ToLower(c.QueryParam(name)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func queryInt(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
