package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sec-Link/SIEM/pkg/cache"
	"github.com/Sec-Link/SIEM/pkg/models"
)

// recentLimit bounds cache reads in the retrieval chain.
const recentLimit = 100

// Store is the cache surface the services read and warm. *cache.Store
// satisfies it; tests substitute mocks.
type Store interface {
	UpsertAlerts(ctx context.Context, tenantID string, docs []map[string]interface{}) cache.UpsertStats
	RecentAlerts(ctx context.Context, tenantID string, limit int) ([]models.Alert, error)
	TotalCount(ctx context.Context, tenantID string) (int64, error)
	CountSince(ctx context.Context, tenantID string, since time.Time) (int64, error)
	DistinctCount(ctx context.Context, tenantID, column string, since *time.Time) (int64, error)
	GroupCounts(ctx context.Context, tenantID, column string, limit int) ([]models.NameCount, error)
	HourlySeverityCounts(ctx context.Context, tenantID string, since time.Time) ([]cache.HourlySeverityCount, error)
	RecentPayloads(ctx context.Context, tenantID string, limit int) ([]map[string]interface{}, error)
}

// LiveFetcher queries the tenant's live alert source.
type LiveFetcher interface {
	Search(ctx context.Context, cfg *models.SourceConfig, tenantID string, size int) ([]map[string]interface{}, models.Provenance, error)
}

// SourceProvider serves per-tenant source configuration.
type SourceProvider interface {
	SourceConfig(tenantID string) (*models.SourceConfig, error)
	EnabledTenants() ([]string, error)
}

// AlertService resolves a tenant's alerts through the cache, the live source
// and the static catalog, in that order of preference.
type AlertService struct {
	store   Store // nil when the cache is unavailable
	fetcher LiveFetcher
	sources SourceProvider
	static  *StaticCatalog
}

// NewAlertService wires the retrieval chain. A nil store is accepted and
// behaves as an always-empty cache that swallows upserts.
func NewAlertService(store Store, fetcher LiveFetcher, sources SourceProvider, static *StaticCatalog) *AlertService {
	if static == nil {
		static = &StaticCatalog{}
	}
	return &AlertService{store: store, fetcher: fetcher, sources: sources, static: static}
}

// ListAlerts resolves the tenant's alert set. First matching tier wins:
//
//  1. ForceStatic serves the static catalog without touching cache or network.
//  2. ForceCacheOnly serves the cache read, empty or not, and never escalates.
//  3. A non-empty cache wins by default; the cache is authoritative once warm.
//  4. A configured source that is enabled (or forced live) is queried, and a
//     non-empty result is returned after a best-effort cache upsert.
//  5. Everything else falls through to the static catalog.
//
// Connectivity and configuration failures degrade through the chain; the only
// error is a missing tenant id.
func (s *AlertService) ListAlerts(ctx context.Context, tenantID string, opts models.RetrievalOptions) (*models.RetrievalResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant id is required")
	}

	if opts.ForceStatic {
		return &models.RetrievalResult{
			Alerts:     s.static.AlertsForTenant(tenantID),
			Provenance: models.ProvenanceStaticFallback,
		}, nil
	}

	cached := s.readCache(ctx, tenantID)
	if opts.ForceCacheOnly {
		return &models.RetrievalResult{Alerts: cached, Provenance: models.ProvenanceCache}, nil
	}
	if !opts.ForceLive && len(cached) > 0 {
		return &models.RetrievalResult{Alerts: cached, Provenance: models.ProvenanceCache}, nil
	}

	cfg, err := s.sources.SourceConfig(tenantID)
	if err != nil {
		// Configuration failures degrade through the chain like everything
		// else; only a missing tenant id is the caller's problem.
		logrus.Warnf("Source config lookup failed for tenant %s: %v", tenantID, err)
		cfg = nil
	}
	if cfg != nil && (cfg.Enabled || opts.ForceLive) {
		docs, provenance, fetchErr := s.fetcher.Search(ctx, cfg, tenantID, recentLimit)
		if fetchErr != nil {
			logrus.Warnf("Live fetch failed for tenant %s: %v", tenantID, fetchErr)
		} else if len(docs) > 0 {
			s.warmCache(ctx, tenantID, docs)
			return &models.RetrievalResult{Alerts: docs, Provenance: provenance}, nil
		}
	}

	return &models.RetrievalResult{
		Alerts:     s.static.AlertsForTenant(tenantID),
		Provenance: models.ProvenanceStaticFallback,
	}, nil
}

// readCache returns the tenant's most recent cached alerts as documents.
// A nil store or a read failure reads as empty.
func (s *AlertService) readCache(ctx context.Context, tenantID string) []map[string]interface{} {
	if s.store == nil {
		return nil
	}
	alerts, err := s.store.RecentAlerts(ctx, tenantID, recentLimit)
	if err != nil {
		logrus.Warnf("Cache read failed for tenant %s: %v", tenantID, err)
		return nil
	}
	docs := make([]map[string]interface{}, 0, len(alerts))
	for i := range alerts {
		docs = append(docs, alerts[i].ToDocument())
	}
	return docs
}

// warmCache upserts fresh documents into the cache. Returning fresh data to
// the caller outranks cache warmth, so failures are logged and swallowed.
func (s *AlertService) warmCache(ctx context.Context, tenantID string, docs []map[string]interface{}) {
	if s.store == nil {
		return
	}
	stats := s.store.UpsertAlerts(ctx, tenantID, docs)
	if stats.Skipped > 0 {
		logrus.Warnf("Cache warm for tenant %s skipped %d of %d documents", tenantID, stats.Skipped, len(docs))
	}
	logrus.Infof("Cached %d alerts for tenant %s (%d inserted, %d updated)",
		stats.Inserted+stats.Updated, tenantID, stats.Inserted, stats.Updated)
}
