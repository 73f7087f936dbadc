package elastic

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sec-Link/SIEM/pkg/models"
)

func mappingServer(t *testing.T, body string) (*httptest.Server, *models.SourceConfig) {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/alerts/_mapping" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts, &models.SourceConfig{
		TenantID: "t1",
		Hosts:    []string{ts.URL},
		Index:    "alerts",
	}
}

func TestResolveSortFieldPrefersDateType(t *testing.T) {
	// timestamp is only keyword-sortable, event_time is a real date: the date
	// field wins even though timestamp ranks higher in the candidate list
	ts, cfg := mappingServer(t, `{
		"alerts": {"mappings": {"properties": {
			"timestamp": {"type": "text", "fields": {"keyword": {"type": "keyword"}}},
			"event_time": {"type": "date"}
		}}}
	}`)
	probe := NewSchemaProbe(ts.Client())
	assert.Equal(t, "event_time", probe.ResolveSortField(context.Background(), cfg))
}

func TestResolveSortFieldKeywordFallback(t *testing.T) {
	ts, cfg := mappingServer(t, `{
		"alerts": {"mappings": {"properties": {
			"timestamp": {"type": "text", "fields": {"keyword": {"type": "keyword"}}}
		}}}
	}`)
	probe := NewSchemaProbe(ts.Client())
	assert.Equal(t, "timestamp.keyword", probe.ResolveSortField(context.Background(), cfg))
}

func TestResolveSortFieldCandidatePriority(t *testing.T) {
	ts, cfg := mappingServer(t, `{
		"alerts": {"mappings": {"properties": {
			"@timestamp": {"type": "date"},
			"timestamp": {"type": "date"}
		}}}
	}`)
	probe := NewSchemaProbe(ts.Client())
	assert.Equal(t, "timestamp", probe.ResolveSortField(context.Background(), cfg))
}

func TestResolveSortFieldNested(t *testing.T) {
	ts, cfg := mappingServer(t, `{
		"alerts": {"mappings": {"properties": {
			"event": {"properties": {"time": {"type": "date_nanos"}}}
		}}}
	}`)
	probe := NewSchemaProbe(ts.Client())
	assert.Equal(t, "event.time", probe.ResolveSortField(context.Background(), cfg))
}

func TestResolveSortFieldNoneFound(t *testing.T) {
	ts, cfg := mappingServer(t, `{
		"alerts": {"mappings": {"properties": {
			"message": {"type": "text"}
		}}}
	}`)
	probe := NewSchemaProbe(ts.Client())
	assert.Equal(t, "", probe.ResolveSortField(context.Background(), cfg))
}

func TestResolveSortFieldMappingUnavailable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such index", http.StatusNotFound)
	}))
	defer ts.Close()
	cfg := &models.SourceConfig{TenantID: "t1", Hosts: []string{ts.URL}, Index: "alerts"}

	probe := NewSchemaProbe(ts.Client())
	assert.Equal(t, "", probe.ResolveSortField(context.Background(), cfg))
}

func TestIndexHasField(t *testing.T) {
	ts, cfg := mappingServer(t, `{
		"alerts": {"mappings": {"properties": {
			"tenant_id": {"type": "keyword"},
			"message": {"type": "text"}
		}}}
	}`)
	probe := NewSchemaProbe(ts.Client())
	assert.True(t, probe.IndexHasField(context.Background(), cfg, "tenant_id"))
	assert.False(t, probe.IndexHasField(context.Background(), cfg, "hostname"))
}
