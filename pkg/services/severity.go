package services

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/Sec-Link/SIEM/pkg/config"
)

// Severity tiers, from most to least urgent. Tiers are derived on every read
// and never stored, so the classification policy can change without touching
// cached data.
const (
	TierCritical = "critical"
	TierHigh     = "high"
	TierMedium   = "medium"
	TierLow      = "low"
	TierUnknown  = "unknown"
)

// tierVocabulary maps known string severities, lowercased, onto tiers.
var tierVocabulary = map[string]string{
	"critical":  TierCritical,
	"crit":      TierCritical,
	"fatal":     TierCritical,
	"emergency": TierCritical,
	"high":      TierHigh,
	"error":     TierHigh,
	"warning":   TierMedium,
	"warn":      TierMedium,
	"medium":    TierMedium,
	"info":      TierLow,
	"low":       TierLow,
	"debug":     TierLow,
}

// SeverityClassifier normalizes heterogeneous raw severities onto the tier
// scale. Numeric values up to 15 are read on the 0-15 scale, larger ones on
// the 0-100 scale; strings go through the vocabulary after a numeric parse
// attempt.
type SeverityClassifier struct {
	thresholds config.SeverityThresholds
}

// NewSeverityClassifier builds a classifier, filling unset thresholds with
// the stock cutoffs so a zero-value config still classifies sensibly.
func NewSeverityClassifier(t config.SeverityThresholds) *SeverityClassifier {
	if t.SmallCritical <= 0 {
		t.SmallCritical = 12
	}
	if t.SmallHigh <= 0 {
		t.SmallHigh = 9
	}
	if t.SmallMedium <= 0 {
		t.SmallMedium = 6
	}
	if t.LargeCritical <= 0 {
		t.LargeCritical = 90
	}
	if t.LargeHigh <= 0 {
		t.LargeHigh = 70
	}
	if t.LargeMedium <= 0 {
		t.LargeMedium = 40
	}
	return &SeverityClassifier{thresholds: t}
}

// Tier classifies a raw severity value as found in a source document.
func (c *SeverityClassifier) Tier(raw interface{}) string {
	switch v := raw.(type) {
	case nil:
		return TierUnknown
	case float64:
		return c.numericTier(v)
	case float32:
		return c.numericTier(float64(v))
	case int:
		return c.numericTier(float64(v))
	case int32:
		return c.numericTier(float64(v))
	case int64:
		return c.numericTier(float64(v))
	case json.Number:
		if n, err := v.Float64(); err == nil {
			return c.numericTier(n)
		}
		return TierUnknown
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		if s == "" {
			return TierUnknown
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return c.numericTier(n)
		}
		if tier, ok := tierVocabulary[s]; ok {
			return tier
		}
		return TierUnknown
	default:
		return TierUnknown
	}
}

func (c *SeverityClassifier) numericTier(n float64) string {
	t := c.thresholds
	if n <= 15 {
		switch {
		case n >= float64(t.SmallCritical):
			return TierCritical
		case n >= float64(t.SmallHigh):
			return TierHigh
		case n >= float64(t.SmallMedium):
			return TierMedium
		default:
			return TierLow
		}
	}
	switch {
	case n >= float64(t.LargeCritical):
		return TierCritical
	case n >= float64(t.LargeHigh):
		return TierHigh
	case n >= float64(t.LargeMedium):
		return TierMedium
	default:
		return TierLow
	}
}

// TierWeight is the scoring weight used by the weighted trend series.
func TierWeight(tier string) int64 {
	switch tier {
	case TierCritical:
		return 4
	case TierHigh:
		return 3
	case TierMedium:
		return 2
	case TierLow:
		return 1
	default:
		return 0
	}
}
