package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadStaticCatalog(t *testing.T) {
	catalog := LoadStaticCatalog()
	alerts := catalog.AlertsForTenant("tenant_demo")
	require.NotEmpty(t, alerts, "embedded catalog must carry demo records")
	for _, doc := range alerts {
		assert.Equal(t, "tenant_demo", doc["tenant_id"])
	}
	assert.Empty(t, catalog.AlertsForTenant("someone_else"))
}

func TestStaticCatalogCopiesDocuments(t *testing.T) {
	catalog := NewStaticCatalog([]map[string]interface{}{
		{"tenant_id": "t1", "alert_id": "s-1"},
	})
	first := catalog.AlertsForTenant("t1")
	first[0]["alert_id"] = "mutated"

	again := catalog.AlertsForTenant("t1")
	assert.Equal(t, "s-1", again[0]["alert_id"])
}
