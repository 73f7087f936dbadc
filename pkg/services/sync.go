package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Sec-Link/SIEM/pkg/models"
)

// defaultSyncSize is used when no batch size is configured or requested.
const defaultSyncSize = 100

// SyncTask pulls fresh alerts from the live source into the cache, for one
// tenant or for every enabled tenant. It is driven by the on-demand API
// endpoint, the sync CLI and the optional background ticker.
type SyncTask struct {
	fetcher LiveFetcher
	store   Store // nil when the cache is unavailable
	sources SourceProvider
	size    int
}

// NewSyncTask builds a sync task with the given default batch size.
func NewSyncTask(fetcher LiveFetcher, store Store, sources SourceProvider, size int) *SyncTask {
	if size <= 0 {
		size = defaultSyncSize
	}
	return &SyncTask{fetcher: fetcher, store: store, sources: sources, size: size}
}

// Sync fetches up to size alerts and upserts them into the cache. An empty
// tenant id syncs every enabled tenant sequentially, summing the totals and
// keeping the per-tenant breakdown. Individual tenant failures are recorded
// in the result, never returned: one broken source must not stop the batch.
func (t *SyncTask) Sync(ctx context.Context, tenantID string, size int) (*models.SyncResult, error) {
	if size <= 0 {
		size = t.size
	}
	if tenantID != "" {
		return t.syncTenant(ctx, tenantID, size), nil
	}

	tenants, err := t.sources.EnabledTenants()
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled tenants: %w", err)
	}
	total := &models.SyncResult{
		Source:    "batch",
		Errors:    []string{},
		PerTenant: make(map[string]*models.SyncResult, len(tenants)),
	}
	for _, tid := range tenants {
		res := t.syncTenant(ctx, tid, size)
		total.PerTenant[tid] = res
		total.Merge(res)
	}
	logrus.Infof("Batch sync finished: %d tenants, %d fetched, %d inserted, %d updated, %d skipped",
		len(tenants), total.Fetched, total.Inserted, total.Updated, total.Skipped)
	return total, nil
}

func (t *SyncTask) syncTenant(ctx context.Context, tenantID string, size int) *models.SyncResult {
	res := &models.SyncResult{Errors: []string{}}

	cfg, err := t.sources.SourceConfig(tenantID)
	if err != nil {
		res.AppendError(err.Error())
		return res
	}
	if cfg == nil {
		res.AppendError(fmt.Sprintf("no source configured for tenant %s", tenantID))
		return res
	}

	docs, provenance, err := t.fetcher.Search(ctx, cfg, tenantID, size)
	if err != nil {
		logrus.Warnf("Sync fetch failed for tenant %s: %v", tenantID, err)
		res.AppendError(err.Error())
		return res
	}
	res.Source = string(provenance)
	res.Fetched = len(docs)

	if t.store == nil {
		res.Skipped = len(docs)
		res.AppendError("alert cache unavailable")
		return res
	}
	stats := t.store.UpsertAlerts(ctx, tenantID, docs)
	res.Inserted = stats.Inserted
	res.Updated = stats.Updated
	res.Skipped = stats.Skipped
	for _, msg := range stats.Errors {
		res.AppendError(msg)
	}
	logrus.Infof("Synced tenant %s: %d fetched, %d inserted, %d updated, %d skipped",
		tenantID, res.Fetched, res.Inserted, res.Updated, res.Skipped)
	return res
}
