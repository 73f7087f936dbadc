package services

import (
	"context"
	"time"

	"github.com/Sec-Link/SIEM/pkg/cache"
	"github.com/Sec-Link/SIEM/pkg/models"
)

// stubStore is a canned-value Store for service tests.
type stubStore struct {
	alerts      []models.Alert
	recentErr   error
	upserts     [][]map[string]interface{}
	upsertStats cache.UpsertStats

	total       int64
	countSince  int64
	distinct    map[string]int64
	groups      map[string][]models.NameCount
	hourly      []cache.HourlySeverityCount
	payloads    []map[string]interface{}
	rollupErr   error
}

func (s *stubStore) UpsertAlerts(_ context.Context, _ string, docs []map[string]interface{}) cache.UpsertStats {
	s.upserts = append(s.upserts, docs)
	return s.upsertStats
}

func (s *stubStore) RecentAlerts(_ context.Context, _ string, _ int) ([]models.Alert, error) {
	return s.alerts, s.recentErr
}

func (s *stubStore) TotalCount(_ context.Context, _ string) (int64, error) {
	return s.total, s.rollupErr
}

func (s *stubStore) CountSince(_ context.Context, _ string, _ time.Time) (int64, error) {
	return s.countSince, s.rollupErr
}

func (s *stubStore) DistinctCount(_ context.Context, _, column string, since *time.Time) (int64, error) {
	key := column
	if since != nil {
		key += ":1h"
	}
	return s.distinct[key], s.rollupErr
}

func (s *stubStore) GroupCounts(_ context.Context, _, column string, _ int) ([]models.NameCount, error) {
	return s.groups[column], s.rollupErr
}

func (s *stubStore) HourlySeverityCounts(_ context.Context, _ string, _ time.Time) ([]cache.HourlySeverityCount, error) {
	return s.hourly, s.rollupErr
}

func (s *stubStore) RecentPayloads(_ context.Context, _ string, _ int) ([]map[string]interface{}, error) {
	return s.payloads, s.rollupErr
}

// stubFetcher counts invocations so tests can assert network isolation.
type stubFetcher struct {
	docs       []map[string]interface{}
	provenance models.Provenance
	err        error
	calls      int
}

func (f *stubFetcher) Search(_ context.Context, _ *models.SourceConfig, _ string, _ int) ([]map[string]interface{}, models.Provenance, error) {
	f.calls++
	return f.docs, f.provenance, f.err
}

// stubSources serves a fixed tenant-to-config map.
type stubSources struct {
	configs map[string]*models.SourceConfig
	order   []string
	err     error
}

func (s *stubSources) SourceConfig(tenantID string) (*models.SourceConfig, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.configs[tenantID], nil
}

func (s *stubSources) EnabledTenants() ([]string, error) {
	tenants := make([]string, 0, len(s.order))
	for _, tid := range s.order {
		if cfg := s.configs[tid]; cfg != nil && cfg.Enabled {
			tenants = append(tenants, tid)
		}
	}
	return tenants, nil
}
