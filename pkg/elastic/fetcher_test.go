package elastic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sec-Link/SIEM/pkg/config"
	"github.com/Sec-Link/SIEM/pkg/models"
)

const searchHits = `{"hits":{"total":{"value":3},"hits":[
	{"_source":{"alert_id":"a1","tenant_id":"t1","severity":"high"}},
	{"_source":{"alert_id":"a2","tenant_id":"t1","severity":"low"}},
	{"_source":{"alert_id":"a3","tenant_id":"t1"}}
]}}`

// sourceServer fakes the three endpoints a retrieval touches: the root
// version document, the index mapping and _search. When elasticProduct is set
// the responses carry the product header the native client insists on.
func sourceServer(t *testing.T, versionNumber string, elasticProduct bool, searches *int64) (*httptest.Server, *models.SourceConfig) {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if elasticProduct {
			w.Header().Set("X-Elastic-Product", "Elasticsearch")
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/":
			w.Write([]byte(`{"version":{"number":"` + versionNumber + `"}}`))
		case "/alerts/_mapping":
			w.Write([]byte(`{"alerts":{"mappings":{"properties":{"timestamp":{"type":"date"}}}}}`))
		case "/alerts/_search":
			if searches != nil {
				atomic.AddInt64(searches, 1)
			}
			w.Write([]byte(searchHits))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(ts.Close)
	return ts, &models.SourceConfig{
		TenantID: "t1",
		Enabled:  true,
		Hosts:    []string{ts.URL},
		Index:    "alerts",
	}
}

func TestSearchPrefersHTTPWhenClientNewer(t *testing.T) {
	var searches int64
	_, cfg := sourceServer(t, "1.2.3", false, &searches)
	f := NewFetcher(config.FetchConfig{Retries: 0})

	docs, provenance, err := f.Search(context.Background(), cfg, "t1", 0)
	require.NoError(t, err)
	assert.Equal(t, models.ProvenanceLiveHTTP, provenance)
	assert.Len(t, docs, 3)
	assert.Equal(t, int64(1), atomic.LoadInt64(&searches))
	assert.Equal(t, "a1", docs[0]["alert_id"])
}

func TestSearchNativeWhenVersionsMatch(t *testing.T) {
	_, cfg := sourceServer(t, "8.11.0", true, nil)
	f := NewFetcher(config.FetchConfig{Retries: 0})

	docs, provenance, err := f.Search(context.Background(), cfg, "t1", 0)
	require.NoError(t, err)
	assert.Equal(t, models.ProvenanceLiveNative, provenance)
	assert.Len(t, docs, 3)
}

// The native client refuses servers that do not identify as Elasticsearch;
// the fetcher must fall back to the HTTP transport and still return the hits.
func TestSearchNativeFailureFallsBackToHTTP(t *testing.T) {
	_, cfg := sourceServer(t, "8.11.0", false, nil)
	f := NewFetcher(config.FetchConfig{Retries: 0})

	docs, provenance, err := f.Search(context.Background(), cfg, "t1", 0)
	require.NoError(t, err)
	assert.Equal(t, models.ProvenanceLiveHTTP, provenance)
	assert.Len(t, docs, 3)
}

func TestSearchNoHosts(t *testing.T) {
	f := NewFetcher(config.FetchConfig{})
	_, _, err := f.Search(context.Background(), &models.SourceConfig{TenantID: "t1", Index: "alerts"}, "t1", 0)
	assert.Error(t, err)
}

func TestHTTPSearchNoRetryOnProtocolError(t *testing.T) {
	var attempts int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&attempts, 1)
		http.Error(w, `{"error":"search_phase_execution_exception"}`, http.StatusInternalServerError)
	}))
	defer ts.Close()
	cfg := &models.SourceConfig{TenantID: "t1", Hosts: []string{ts.URL}, Index: "alerts"}

	f := NewFetcher(config.FetchConfig{Retries: 2})
	_, err := f.httpSearch(context.Background(), cfg, 8, buildSearchBody("t1", 10, ""))
	require.Error(t, err)

	var pe *ProtocolError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusInternalServerError, pe.StatusCode)
	assert.Equal(t, int64(1), atomic.LoadInt64(&attempts), "protocol errors must not be retried")
}

func TestHTTPSearchRetriesNetworkErrors(t *testing.T) {
	var attempts int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&attempts, 1)
		hj, ok := w.(http.Hijacker)
		if !ok {
			return
		}
		conn, _, err := hj.Hijack()
		if err != nil {
			return
		}
		conn.Close() // abort mid-response to simulate a network failure
	}))
	defer ts.Close()
	cfg := &models.SourceConfig{TenantID: "t1", Hosts: []string{ts.URL}, Index: "alerts"}

	f := NewFetcher(config.FetchConfig{Retries: 1})
	_, err := f.httpSearch(context.Background(), cfg, 8, buildSearchBody("t1", 10, ""))
	require.Error(t, err)
	assert.Equal(t, int64(2), atomic.LoadInt64(&attempts), "network errors retry up to the configured attempts")
}

func TestHTTPSearchSendsContentNegotiation(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/vnd.elasticsearch+json; compatible-with=7", r.Header.Get("Accept"))
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "elastic", user)
		assert.Equal(t, "secret", pass)
		w.Write([]byte(searchHits))
	}))
	defer ts.Close()
	cfg := &models.SourceConfig{
		TenantID: "t1",
		Hosts:    []string{ts.URL},
		Index:    "alerts",
		Username: "elastic",
		Password: "secret",
	}

	f := NewFetcher(config.FetchConfig{})
	docs, err := f.httpSearch(context.Background(), cfg, 7, buildSearchBody("t1", 10, ""))
	require.NoError(t, err)
	assert.Len(t, docs, 3)
}

func TestBuildSearchBody(t *testing.T) {
	body := buildSearchBody("t1", 100, "event_time")
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"event_time":{"order":"desc"}`)
	assert.Contains(t, string(raw), `"tenant_id":"t1"`)

	// no resolvable timestamp field: the sort clause is omitted entirely
	body = buildSearchBody("t1", 100, "")
	_, hasSort := body["sort"]
	assert.False(t, hasSort)
}

func TestCappedLinearDelay(t *testing.T) {
	assert.Equal(t, "500ms", cappedLinearDelay(0, nil, nil).String())
	assert.Equal(t, "1s", cappedLinearDelay(1, nil, nil).String())
	assert.Equal(t, "1.5s", cappedLinearDelay(2, nil, nil).String())
	assert.Equal(t, "2s", cappedLinearDelay(3, nil, nil).String())
	assert.Equal(t, "2s", cappedLinearDelay(10, nil, nil).String())
}
