package services

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sec-Link/SIEM/pkg/config"
	"github.com/Sec-Link/SIEM/pkg/models"
)

const (
	hourBucketLayout = "2006-01-02 15:00"
	dayBucketLayout  = "2006-01-02"

	// unknownBucket collects alerts whose timestamp or grouping value could
	// not be resolved, so bucket totals always reconcile with the input count.
	unknownBucket = "unknown"

	topMessageLimit = 20
	topEntityLimit  = 10
	trendWindow     = 7 * 24 * time.Hour
	payloadWindow   = 5000
)

// Candidate document keys for the best-effort entity extractions. First
// present key wins per document.
var (
	sourceIPKeys = []string{"source_ip", "src_ip", "source.ip", "client_ip", "remote_addr", "ip"}
	usernameKeys = []string{"username", "user", "user_name", "user.name", "account", "login"}
)

// timestampKeyCandidates mirror the sort-field candidates used against the
// live source, in the same priority order. Live pages keep whatever key their
// source mapping uses, so trend bucketing has to resolve it the same way.
var timestampKeyCandidates = []string{"timestamp", "@timestamp", "time", "event_time"}

// AggregationEngine turns a resolved alert set into the dashboard metrics.
// The in-memory pass works on the page it is given; when a cache store is
// present the engine enriches the result with rollups computed over the whole
// cached tenant data. Store failures degrade to partial metrics.
type AggregationEngine struct {
	store      Store // nil when the cache is unavailable
	classifier *SeverityClassifier
}

// NewAggregationEngine builds an engine over an optional store.
func NewAggregationEngine(store Store, classifier *SeverityClassifier) *AggregationEngine {
	if classifier == nil {
		classifier = NewSeverityClassifier(config.SeverityThresholds{})
	}
	return &AggregationEngine{store: store, classifier: classifier}
}

// Aggregate computes dashboard metrics for a resolved alert set. Counting is
// order-independent except the documented first-seen tie-break in top-N lists.
func (e *AggregationEngine) Aggregate(ctx context.Context, tenantID string, result *models.RetrievalResult) *models.DashboardMetrics {
	m := models.NewDashboardMetrics()
	if result == nil {
		return m
	}
	m.Source = result.Provenance
	m.Total = int64(len(result.Alerts))

	tsField := resolveTimestampField(result.Alerts)
	messages := newOrderedCounter()
	for _, doc := range result.Alerts {
		raw, present := doc["severity"]
		label := unknownBucket
		if present && raw != nil {
			if s := models.DocString(doc, "severity"); s != "" {
				label = s
			}
		}
		m.Severity[label]++
		m.SeverityDistribution[e.classifier.Tier(raw)]++

		if ts := models.ParseEventTime(doc[tsField]); ts != nil {
			m.Timeline[ts.Format(hourBucketLayout)]++
			m.DailyTrend[ts.Format(dayBucketLayout)]++
		} else {
			m.Timeline[unknownBucket]++
			m.DailyTrend[unknownBucket]++
		}

		if idx := models.DocString(doc, "source_index"); idx != "" {
			m.SourceIndex[idx]++
		} else {
			m.SourceIndex[unknownBucket]++
		}

		if msg := models.DocString(doc, "message"); msg != "" {
			messages.Add(msg)
		}
	}
	m.TopMessages = messages.Top(topMessageLimit)

	if e.store != nil {
		e.enrichFromStore(ctx, tenantID, m)
	}
	return m
}

// enrichFromStore fills the cache-wide metric blocks. Every query failure is
// logged and leaves its block zeroed; the dashboard never fails outright
// because one rollup did.
func (e *AggregationEngine) enrichFromStore(ctx context.Context, tenantID string, m *models.DashboardMetrics) {
	now := time.Now().UTC()
	hourAgo := now.Add(-time.Hour)

	// The cache-wide total replaces the page-local one so the headline number
	// covers everything cached for the tenant, not just one page.
	if n, err := e.store.TotalCount(ctx, tenantID); err != nil {
		logrus.Warnf("Dashboard rollup total failed for tenant %s: %v", tenantID, err)
	} else if n > 0 {
		m.Total = n
	}
	if n, err := e.store.CountSince(ctx, tenantID, hourAgo); err != nil {
		logrus.Warnf("Dashboard rollup recent_1h failed for tenant %s: %v", tenantID, err)
	} else {
		m.Recent1hAlerts = n
	}
	if n, err := e.store.DistinctCount(ctx, tenantID, "source_index", nil); err != nil {
		logrus.Warnf("Dashboard rollup data sources failed for tenant %s: %v", tenantID, err)
	} else {
		m.DataSourceCount = n
	}
	if n, err := e.store.DistinctCount(ctx, tenantID, "rule_id", nil); err != nil {
		logrus.Warnf("Dashboard rollup rule count failed for tenant %s: %v", tenantID, err)
	} else {
		m.EnabledRuleCount = n
	}
	if n, err := e.store.DistinctCount(ctx, tenantID, "rule_id", &hourAgo); err != nil {
		logrus.Warnf("Dashboard rollup 1h rule count failed for tenant %s: %v", tenantID, err)
	} else {
		m.RuleDetectedCount1h = n
	}

	if groups, err := e.store.GroupCounts(ctx, tenantID, "category", topEntityLimit); err != nil {
		logrus.Warnf("Dashboard rollup categories failed for tenant %s: %v", tenantID, err)
	} else {
		for _, g := range groups {
			name := g.Name
			if name == "" {
				name = unknownBucket
			}
			m.CategoryBreakdown[name] += g.Count
		}
	}

	// Cache-wide tier distribution replaces the page-local one when available,
	// so the dashboard reflects everything cached for the tenant.
	if groups, err := e.store.GroupCounts(ctx, tenantID, "severity", 100); err != nil {
		logrus.Warnf("Dashboard rollup severities failed for tenant %s: %v", tenantID, err)
	} else if len(groups) > 0 {
		dist := map[string]int64{}
		for _, g := range groups {
			var raw interface{}
			if g.Name != "" {
				raw = g.Name
			}
			dist[e.classifier.Tier(raw)] += g.Count
		}
		m.SeverityDistribution = dist
	}

	if buckets, err := e.store.HourlySeverityCounts(ctx, tenantID, now.Add(-trendWindow)); err != nil {
		logrus.Warnf("Dashboard rollup trend failed for tenant %s: %v", tenantID, err)
	} else {
		// Raw severities collapse onto tiers, so distinct store rows can land
		// on the same (hour, tier) pair. Accumulate first, then emit the
		// series in (hour, tier) order so the output is stable.
		type trendKey struct{ hour, tier string }
		merged := map[trendKey]int64{}
		for _, b := range buckets {
			hour := b.Hour.Format(hourBucketLayout)
			tier := e.classifier.Tier(severityOrNil(b.Severity))
			merged[trendKey{hour, tier}] += b.Count
			m.AlertTrend[hour] += b.Count
			m.AlertScoreTrend[hour] += TierWeight(tier) * b.Count
		}
		keys := make([]trendKey, 0, len(merged))
		for k := range merged {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].hour != keys[j].hour {
				return keys[i].hour < keys[j].hour
			}
			return keys[i].tier < keys[j].tier
		})
		for _, k := range keys {
			count := merged[k]
			m.AlertTrendSeries = append(m.AlertTrendSeries, models.TrendPoint{
				Time: k.hour, Series: k.tier, Value: count,
			})
			m.AlertScoreTrendSeries = append(m.AlertScoreTrendSeries, models.TrendPoint{
				Time: k.hour, Series: k.tier, Value: TierWeight(k.tier) * count,
			})
		}
	}

	if groups, err := e.store.GroupCounts(ctx, tenantID, "source_index", topEntityLimit); err != nil {
		logrus.Warnf("Dashboard rollup top sources failed for tenant %s: %v", tenantID, err)
	} else {
		m.TopSources = nonEmptyGroups(groups)
	}
	if groups, err := e.store.GroupCounts(ctx, tenantID, "rule_id", topEntityLimit); err != nil {
		logrus.Warnf("Dashboard rollup top rules failed for tenant %s: %v", tenantID, err)
	} else {
		m.TopRules = nonEmptyGroups(groups)
	}

	payloads, err := e.store.RecentPayloads(ctx, tenantID, payloadWindow)
	if err != nil {
		logrus.Warnf("Dashboard rollup payload window failed for tenant %s: %v", tenantID, err)
		return
	}
	ips := newOrderedCounter()
	users := newOrderedCounter()
	for _, doc := range payloads {
		if v := firstPresent(doc, sourceIPKeys); v != "" {
			ips.Add(v)
		}
		if v := firstPresent(doc, usernameKeys); v != "" {
			users.Add(v)
		}
	}
	m.TopSourceIPs = ips.Top(topEntityLimit)
	m.TopUsers = users.Top(topEntityLimit)
}

// resolveTimestampField picks the timestamp key the trend buckets read,
// taking the highest-priority candidate present in any document. Falls back
// to the first candidate so absent timestamps still bucket as unknown.
func resolveTimestampField(alerts []map[string]interface{}) string {
	for _, name := range timestampKeyCandidates {
		for _, doc := range alerts {
			if v, ok := doc[name]; ok && v != nil {
				return name
			}
		}
	}
	return timestampKeyCandidates[0]
}

func severityOrNil(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nonEmptyGroups(groups []models.NameCount) []models.NameCount {
	out := make([]models.NameCount, 0, len(groups))
	for _, g := range groups {
		if g.Name != "" {
			out = append(out, g)
		}
	}
	return out
}

// firstPresent returns the first candidate key's string value present in the
// document, "" when none are.
func firstPresent(doc map[string]interface{}, keys []string) string {
	for _, key := range keys {
		if v, ok := doc[key]; ok && v != nil {
			if s := models.DocString(doc, key); s != "" {
				return s
			}
		}
	}
	return ""
}

// orderedCounter counts occurrences while remembering first-seen order, which
// serves as the tie-break for equal counts in top-N rankings.
type orderedCounter struct {
	counts map[string]int64
	order  []string
}

func newOrderedCounter() *orderedCounter {
	return &orderedCounter{counts: map[string]int64{}}
}

func (c *orderedCounter) Add(name string) {
	if _, seen := c.counts[name]; !seen {
		c.order = append(c.order, name)
	}
	c.counts[name]++
}

// Top returns up to n entries by descending count, first-seen order breaking
// ties.
func (c *orderedCounter) Top(n int) []models.NameCount {
	ranked := make([]models.NameCount, 0, len(c.order))
	for _, name := range c.order {
		ranked = append(ranked, models.NameCount{Name: name, Count: c.counts[name]})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Count > ranked[j].Count })
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
