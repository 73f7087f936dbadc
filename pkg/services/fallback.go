package services

import (
	_ "embed"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/Sec-Link/SIEM/pkg/models"
)

//go:embed mock_alerts.json
var staticAlertsJSON []byte

// StaticCatalog is the last tier of the retrieval chain: a fixed set of
// alert-shaped documents served when neither the cache nor the live source
// yields anything. Records are keyed by tenant_id.
type StaticCatalog struct {
	alerts []map[string]interface{}
}

// NewStaticCatalog builds a catalog from explicit records.
func NewStaticCatalog(alerts []map[string]interface{}) *StaticCatalog {
	return &StaticCatalog{alerts: alerts}
}

// LoadStaticCatalog parses the embedded catalog. A broken embed yields an
// empty catalog, never a failure; the fallback tier then serves nothing.
func LoadStaticCatalog() *StaticCatalog {
	var alerts []map[string]interface{}
	if err := json.Unmarshal(staticAlertsJSON, &alerts); err != nil {
		logrus.Errorf("Failed to parse embedded fallback alerts: %v", err)
		return &StaticCatalog{}
	}
	return &StaticCatalog{alerts: alerts}
}

// AlertsForTenant returns the catalog records for the tenant, in catalog
// order. Documents are copied so callers can annotate them freely.
func (c *StaticCatalog) AlertsForTenant(tenantID string) []map[string]interface{} {
	out := make([]map[string]interface{}, 0)
	for _, doc := range c.alerts {
		if models.DocString(doc, "tenant_id") != tenantID {
			continue
		}
		cp := make(map[string]interface{}, len(doc))
		for k, v := range doc {
			cp[k] = v
		}
		out = append(out, cp)
	}
	return out
}
