package models

// NameCount is one row of a top-N ranking.
type NameCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// TrendPoint is one bucket of a stacked trend series: a time bucket, the
// severity tier it belongs to, and the count or weighted score for the pair.
type TrendPoint struct {
	Time   string `json:"time"`
	Series string `json:"series"`
	Value  int64  `json:"value"`
}

// DashboardMetrics is the aggregate view consumed by the dashboard frontend.
//
// The first block is computed in memory over the resolved alert page; the
// remaining blocks come from the cache store when one is available and stay
// zeroed otherwise. Counts always reconcile: alerts with unparsable fields
// land in "unknown" buckets instead of vanishing.
type DashboardMetrics struct {
	Severity    map[string]int64 `json:"severity"`
	Timeline    map[string]int64 `json:"timeline"`
	Total       int64            `json:"total"`
	Source      Provenance       `json:"source"`
	SourceIndex map[string]int64 `json:"source_index"`
	DailyTrend  map[string]int64 `json:"daily_trend"`
	TopMessages []NameCount      `json:"top_messages"`

	Recent1hAlerts      int64 `json:"recent_1h_alerts"`
	DataSourceCount     int64 `json:"data_source_count"`
	EnabledRuleCount    int64 `json:"enabled_siem_rule_count"`
	RuleDetectedCount1h int64 `json:"siem_rule_detected_count_1h"`

	CategoryBreakdown     map[string]int64 `json:"category_breakdown"`
	SeverityDistribution  map[string]int64 `json:"severity_distribution"`
	AlertTrend            map[string]int64 `json:"alert_trend"`
	AlertScoreTrend       map[string]int64 `json:"alert_score_trend"`
	AlertTrendSeries      []TrendPoint     `json:"alert_trend_series"`
	AlertScoreTrendSeries []TrendPoint     `json:"alert_score_trend_series"`
	TopSourceIPs          []NameCount      `json:"top_source_ips"`
	TopUsers              []NameCount      `json:"top_users"`
	TopSources            []NameCount      `json:"top_sources"`
	TopRules              []NameCount      `json:"top_rules"`
}

// NewDashboardMetrics returns a metrics object with every map initialized so
// a total failure still serializes as zeroed aggregates, not nulls.
func NewDashboardMetrics() *DashboardMetrics {
	return &DashboardMetrics{
		Severity:              map[string]int64{},
		Timeline:              map[string]int64{},
		SourceIndex:           map[string]int64{},
		DailyTrend:            map[string]int64{},
		TopMessages:           []NameCount{},
		CategoryBreakdown:     map[string]int64{},
		SeverityDistribution:  map[string]int64{},
		AlertTrend:            map[string]int64{},
		AlertScoreTrend:       map[string]int64{},
		AlertTrendSeries:      []TrendPoint{},
		AlertScoreTrendSeries: []TrendPoint{},
		TopSourceIPs:          []NameCount{},
		TopUsers:              []NameCount{},
		TopSources:            []NameCount{},
		TopRules:              []NameCount{},
	}
}
