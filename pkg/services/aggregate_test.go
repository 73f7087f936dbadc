package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sec-Link/SIEM/pkg/cache"
	"github.com/Sec-Link/SIEM/pkg/config"
	"github.com/Sec-Link/SIEM/pkg/models"
)

func newTestEngine(store Store) *AggregationEngine {
	return NewAggregationEngine(store, NewSeverityClassifier(config.SeverityThresholds{}))
}

func TestAggregateTierHistogram(t *testing.T) {
	alerts := []map[string]interface{}{
		{"severity": 12},
		{"severity": 9},
		{"severity": "critical"},
		{"severity": "info"},
		{"severity": nil},
	}
	engine := newTestEngine(nil)
	m := engine.Aggregate(context.Background(), "t1", &models.RetrievalResult{Alerts: alerts})

	assert.Equal(t, map[string]int64{
		TierCritical: 2,
		TierHigh:     1,
		TierLow:      1,
		TierUnknown:  1,
	}, m.SeverityDistribution)
	assert.Equal(t, int64(5), m.Total)
}

// Bucket totals must reconcile with the input count: unparsable severities and
// timestamps land in unknown buckets instead of vanishing.
func TestAggregateTotalsReconcile(t *testing.T) {
	alerts := []map[string]interface{}{
		{"severity": 14, "timestamp": "2025-11-03T10:15:00Z", "source_index": "fw"},
		{"severity": "garbage", "timestamp": "not a time", "source_index": ""},
		{"severity": nil, "source_index": "fw"},
		{"severity": "error", "timestamp": "2025-11-03T11:59:59Z", "source_index": "ids"},
	}
	engine := newTestEngine(nil)
	m := engine.Aggregate(context.Background(), "t1", &models.RetrievalResult{Alerts: alerts})

	var tierSum, hourSum, daySum, indexSum int64
	for _, n := range m.SeverityDistribution {
		tierSum += n
	}
	for _, n := range m.Timeline {
		hourSum += n
	}
	for _, n := range m.DailyTrend {
		daySum += n
	}
	for _, n := range m.SourceIndex {
		indexSum += n
	}
	assert.Equal(t, m.Total, tierSum)
	assert.Equal(t, m.Total, hourSum)
	assert.Equal(t, m.Total, daySum)
	assert.Equal(t, m.Total, indexSum)
	assert.Equal(t, int64(2), m.Timeline["unknown"])
	assert.Equal(t, int64(1), m.SourceIndex["unknown"])
	assert.Equal(t, int64(1), m.Timeline["2025-11-03 10:00"])
	assert.Equal(t, int64(2), m.DailyTrend["2025-11-03"])
}

// Live pages keep their source's timestamp key. Documents bucketed under
// @timestamp must land in real trend buckets, not the unknown sentinel.
func TestAggregateResolvesTimestampField(t *testing.T) {
	alerts := []map[string]interface{}{
		{"severity": "high", "@timestamp": "2025-11-03T10:15:00Z"},
		{"severity": "low", "@timestamp": "2025-11-03T11:15:00Z"},
	}
	engine := newTestEngine(nil)
	m := engine.Aggregate(context.Background(), "t1", &models.RetrievalResult{Alerts: alerts})

	assert.Equal(t, int64(1), m.Timeline["2025-11-03 10:00"])
	assert.Equal(t, int64(1), m.Timeline["2025-11-03 11:00"])
	assert.Zero(t, m.Timeline["unknown"])
	assert.Equal(t, int64(2), m.DailyTrend["2025-11-03"])
}

func TestAggregateTimestampFieldPriority(t *testing.T) {
	// timestamp outranks @timestamp when both appear in the page
	alerts := []map[string]interface{}{
		{"timestamp": "2025-11-03T10:15:00Z", "@timestamp": "2020-01-01T00:00:00Z"},
	}
	engine := newTestEngine(nil)
	m := engine.Aggregate(context.Background(), "t1", &models.RetrievalResult{Alerts: alerts})

	assert.Equal(t, int64(1), m.Timeline["2025-11-03 10:00"])
	assert.Zero(t, m.Timeline["2020-01-01 00:00"])
}

func TestAggregateRawSeverityHistogramKeepsStrings(t *testing.T) {
	alerts := []map[string]interface{}{
		{"severity": "High"},
		{"severity": "High"},
		{"severity": 7},
	}
	engine := newTestEngine(nil)
	m := engine.Aggregate(context.Background(), "t1", &models.RetrievalResult{Alerts: alerts})

	assert.Equal(t, int64(2), m.Severity["High"])
	assert.Equal(t, int64(1), m.Severity["7"])
}

func TestTopMessagesBoundedAndSorted(t *testing.T) {
	var alerts []map[string]interface{}
	// 25 distinct messages, message-i repeated i times
	for i := 1; i <= 25; i++ {
		for j := 0; j < i; j++ {
			alerts = append(alerts, map[string]interface{}{"message": fmt.Sprintf("message-%d", i)})
		}
	}
	engine := newTestEngine(nil)
	m := engine.Aggregate(context.Background(), "t1", &models.RetrievalResult{Alerts: alerts})

	require.Len(t, m.TopMessages, 20)
	assert.Equal(t, "message-25", m.TopMessages[0].Name)
	assert.Equal(t, int64(25), m.TopMessages[0].Count)
	for i := 1; i < len(m.TopMessages); i++ {
		assert.GreaterOrEqual(t, m.TopMessages[i-1].Count, m.TopMessages[i].Count)
	}
}

func TestTopMessagesTieBreakIsFirstSeen(t *testing.T) {
	alerts := []map[string]interface{}{
		{"message": "beta"},
		{"message": "alpha"},
		{"message": "beta"},
		{"message": "alpha"},
	}
	engine := newTestEngine(nil)
	m := engine.Aggregate(context.Background(), "t1", &models.RetrievalResult{Alerts: alerts})

	require.Len(t, m.TopMessages, 2)
	assert.Equal(t, "beta", m.TopMessages[0].Name)
	assert.Equal(t, "alpha", m.TopMessages[1].Name)
}

func TestAggregateStoreEnrichment(t *testing.T) {
	hour := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)
	store := &stubStore{
		total:      42,
		countSince: 17,
		distinct: map[string]int64{
			"source_index": 4,
			"rule_id":      9,
			"rule_id:1h":   2,
		},
		groups: map[string][]models.NameCount{
			"category":     {{Name: "intrusion", Count: 5}, {Name: "", Count: 3}},
			"severity":     {{Name: "13", Count: 2}, {Name: "info", Count: 6}},
			"source_index": {{Name: "fw", Count: 8}, {Name: "", Count: 1}},
			"rule_id":      {{Name: "R-1", Count: 4}},
		},
		hourly: []cache.HourlySeverityCount{
			{Hour: hour, Severity: "13", Count: 2},
			{Hour: hour, Severity: "info", Count: 3},
		},
		payloads: []map[string]interface{}{
			{"source_ip": "10.0.0.1", "username": "alice"},
			{"src_ip": "10.0.0.1", "user": "bob"},
			{"client_ip": "10.0.0.2"},
			{"note": "no entities here"},
		},
	}
	engine := newTestEngine(store)
	m := engine.Aggregate(context.Background(), "t1", &models.RetrievalResult{Alerts: nil})

	assert.Equal(t, int64(42), m.Total)
	assert.Equal(t, int64(17), m.Recent1hAlerts)
	assert.Equal(t, int64(4), m.DataSourceCount)
	assert.Equal(t, int64(9), m.EnabledRuleCount)
	assert.Equal(t, int64(2), m.RuleDetectedCount1h)

	assert.Equal(t, int64(5), m.CategoryBreakdown["intrusion"])
	assert.Equal(t, int64(3), m.CategoryBreakdown["unknown"])

	// cache-wide tiering: "13" is critical on the 0-15 scale, "info" is low
	assert.Equal(t, map[string]int64{TierCritical: 2, TierLow: 6}, m.SeverityDistribution)

	key := hour.Format("2006-01-02 15:00")
	assert.Equal(t, int64(5), m.AlertTrend[key])
	assert.Equal(t, int64(2*4+3*1), m.AlertScoreTrend[key])
	require.Len(t, m.AlertTrendSeries, 2)
	assert.Equal(t, models.TrendPoint{Time: key, Series: TierCritical, Value: 2}, m.AlertTrendSeries[0])
	require.Len(t, m.AlertScoreTrendSeries, 2)
	assert.Equal(t, int64(8), m.AlertScoreTrendSeries[0].Value)

	assert.Equal(t, []models.NameCount{{Name: "fw", Count: 8}}, m.TopSources)
	assert.Equal(t, []models.NameCount{{Name: "R-1", Count: 4}}, m.TopRules)

	require.Len(t, m.TopSourceIPs, 2)
	assert.Equal(t, models.NameCount{Name: "10.0.0.1", Count: 2}, m.TopSourceIPs[0])
	require.Len(t, m.TopUsers, 2)
	assert.Equal(t, "alice", m.TopUsers[0].Name)
}

// Distinct raw severities that collapse onto the same tier merge into one
// series point, and the series comes out in (hour, tier) order regardless of
// store row order within an hour.
func TestTrendSeriesStableOrder(t *testing.T) {
	hour1 := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)
	hour2 := time.Date(2025, 11, 3, 11, 0, 0, 0, time.UTC)
	store := &stubStore{
		hourly: []cache.HourlySeverityCount{
			{Hour: hour2, Severity: "info", Count: 1},
			{Hour: hour1, Severity: "info", Count: 3},
			{Hour: hour1, Severity: "critical", Count: 1},
			{Hour: hour1, Severity: "13", Count: 2},
		},
	}
	engine := newTestEngine(store)
	m := engine.Aggregate(context.Background(), "t1", &models.RetrievalResult{})

	key1 := hour1.Format("2006-01-02 15:00")
	key2 := hour2.Format("2006-01-02 15:00")
	require.Equal(t, []models.TrendPoint{
		{Time: key1, Series: TierCritical, Value: 3},
		{Time: key1, Series: TierLow, Value: 3},
		{Time: key2, Series: TierLow, Value: 1},
	}, m.AlertTrendSeries)
	require.Equal(t, []models.TrendPoint{
		{Time: key1, Series: TierCritical, Value: 12},
		{Time: key1, Series: TierLow, Value: 3},
		{Time: key2, Series: TierLow, Value: 1},
	}, m.AlertScoreTrendSeries)
	assert.Equal(t, int64(6), m.AlertTrend[key1])
	assert.Equal(t, int64(15), m.AlertScoreTrend[key1])
}

// A failing store degrades to partial metrics, never an error or a panic.
func TestAggregateStoreFailurePartial(t *testing.T) {
	store := &stubStore{rollupErr: assert.AnError}
	engine := newTestEngine(store)
	m := engine.Aggregate(context.Background(), "t1", &models.RetrievalResult{
		Alerts: []map[string]interface{}{{"severity": "critical"}},
	})

	assert.Equal(t, int64(1), m.Total)
	assert.Equal(t, int64(0), m.Recent1hAlerts)
	assert.Equal(t, int64(1), m.SeverityDistribution[TierCritical])
	assert.Empty(t, m.TopSourceIPs)
}

func TestAggregateNilResult(t *testing.T) {
	engine := newTestEngine(nil)
	m := engine.Aggregate(context.Background(), "t1", nil)
	assert.Equal(t, int64(0), m.Total)
	assert.NotNil(t, m.Severity)
}
