package elastic

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/sirupsen/logrus"

	"github.com/Sec-Link/SIEM/pkg/config"
	"github.com/Sec-Link/SIEM/pkg/models"
)

// probeReadTimeout bounds the version/mapping probes, which fetch tiny
// payloads and must not delay the search itself.
const probeReadTimeout = 5 * time.Second

// maxErrorBodyBytes limits how much of an error response is kept for logs.
const maxErrorBodyBytes = 2000

// Fetcher executes bounded queries against a tenant's live alert source,
// choosing between the native client and raw HTTP per the version probe and
// falling back to the untried transport when the first fails for any reason.
type Fetcher struct {
	connectTimeout time.Duration
	readTimeout    time.Duration
	retries        int
	pageSize       int
}

// NewFetcher builds a fetcher from the fetch configuration.
func NewFetcher(cfg config.FetchConfig) *Fetcher {
	f := &Fetcher{
		connectTimeout: cfg.ConnectTimeout(),
		readTimeout:    cfg.ReadTimeout(),
		retries:        cfg.Retries,
		pageSize:       cfg.PageSize,
	}
	if f.connectTimeout <= 0 {
		f.connectTimeout = 5 * time.Second
	}
	if f.readTimeout <= 0 {
		f.readTimeout = 30 * time.Second
	}
	if f.retries < 0 {
		f.retries = 0
	}
	if f.pageSize <= 0 {
		f.pageSize = 100
	}
	return f
}

// NewBoundedClient returns an HTTP client with independent connect and read
// timeouts and the tenant's TLS verification policy applied.
func NewBoundedClient(connectTimeout, readTimeout time.Duration, verifyCerts bool) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext:           (&net.Dialer{Timeout: connectTimeout}).DialContext,
			TLSClientConfig:       &tls.Config{InsecureSkipVerify: !verifyCerts},
			ResponseHeaderTimeout: readTimeout,
		},
	}
}

// ProbeClient returns the short-deadline client used for version and mapping
// probes against the tenant's source.
func (f *Fetcher) ProbeClient(cfg *models.SourceConfig) *http.Client {
	return NewBoundedClient(f.connectTimeout, probeReadTimeout, cfg.VerifyCerts)
}

// Search fetches up to size alerts for the tenant (the configured page size
// when size is not positive). The returned provenance records which transport
// produced the documents. Both transports failing yields the last transport's
// error.
func (f *Fetcher) Search(ctx context.Context, cfg *models.SourceConfig, tenantID string, size int) ([]map[string]interface{}, models.Provenance, error) {
	hosts := cfg.NormalizedHosts()
	if len(hosts) == 0 {
		return nil, "", fmt.Errorf("no hosts configured for tenant %s", tenantID)
	}
	if size <= 0 {
		size = f.pageSize
	}

	probeClient := f.ProbeClient(cfg)
	serverMajor := DetectServerMajor(ctx, probeClient, hosts[0])
	clientMajor, _ := ClientMajor()
	transport := ChooseTransport(serverMajor, clientMajor)
	if transport == TransportHTTP {
		logrus.Infof("Source server major=%d, native client major=%d; preferring HTTP transport for tenant %s",
			serverMajor, clientMajor, tenantID)
	}

	sortField := NewSchemaProbe(probeClient).ResolveSortField(ctx, cfg)
	body := buildSearchBody(tenantID, size, sortField)

	if transport == TransportNative {
		docs, err := f.nativeSearch(ctx, cfg, serverMajor, body)
		if err == nil {
			return docs, models.ProvenanceLiveNative, nil
		}
		logrus.Warnf("Native search failed for tenant %s, falling back to HTTP: %v", tenantID, err)
		docs, err = f.httpSearch(ctx, cfg, serverMajor, body)
		if err != nil {
			return nil, "", err
		}
		return docs, models.ProvenanceLiveHTTP, nil
	}

	docs, err := f.httpSearch(ctx, cfg, serverMajor, body)
	if err == nil {
		return docs, models.ProvenanceLiveHTTP, nil
	}
	logrus.Warnf("HTTP search failed for tenant %s, falling back to native client: %v", tenantID, err)
	docs, err = f.nativeSearch(ctx, cfg, serverMajor, body)
	if err != nil {
		return nil, "", err
	}
	return docs, models.ProvenanceLiveNative, nil
}

// buildSearchBody constructs the bounded match query. The sort clause is
// omitted entirely when no sortable timestamp field was resolved; a query
// never fails for lack of one.
func buildSearchBody(tenantID string, size int, sortField string) map[string]interface{} {
	body := map[string]interface{}{
		"size":  size,
		"query": map[string]interface{}{"match": map[string]interface{}{"tenant_id": tenantID}},
	}
	if sortField != "" {
		body["sort"] = []interface{}{
			map[string]interface{}{sortField: map[string]interface{}{"order": "desc"}},
		}
	}
	return body
}

// nativeSearch issues the query through the official client, single attempt;
// any failure escalates to the HTTP transport.
func (f *Fetcher) nativeSearch(ctx context.Context, cfg *models.SourceConfig, serverMajor int, body map[string]interface{}) ([]map[string]interface{}, error) {
	media := CompatibleMediaType(serverMajor)
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.NormalizedHosts(),
		Username:  cfg.Username,
		Password:  cfg.Password,
		Header: http.Header{
			"Accept":       []string{media},
			"Content-Type": []string{media},
		},
		Transport: &http.Transport{
			DialContext:           (&net.Dialer{Timeout: f.connectTimeout}).DialContext,
			TLSClientConfig:       &tls.Config{InsecureSkipVerify: !cfg.VerifyCerts},
			ResponseHeaderTimeout: f.readTimeout,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build native client: %w", err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	res, err := es.Search(
		es.Search.WithContext(ctx),
		es.Search.WithIndex(cfg.Index),
		es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, wrapNetworkError(err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, &ProtocolError{StatusCode: res.StatusCode, Body: limitedBody(res.Body)}
	}
	return decodeHits(res.Body)
}

// httpSearch posts the query body to the _search endpoint with explicit
// content negotiation. Network and timeout errors are retried with capped
// linear backoff; protocol errors (4xx/5xx) fail the transport immediately.
func (f *Fetcher) httpSearch(ctx context.Context, cfg *models.SourceConfig, serverMajor int, body map[string]interface{}) ([]map[string]interface{}, error) {
	host := cfg.PrimaryHost()
	if host == "" {
		return nil, fmt.Errorf("no hosts configured")
	}
	url := fmt.Sprintf("%s/%s/_search", host, cfg.Index)
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	media := CompatibleMediaType(serverMajor)
	client := NewBoundedClient(f.connectTimeout, f.readTimeout, cfg.VerifyCerts)

	var docs []map[string]interface{}
	attempt := 0
	err = retry.Do(
		func() error {
			attempt++
			req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
			if reqErr != nil {
				return retry.Unrecoverable(reqErr)
			}
			req.Header.Set("Accept", media)
			req.Header.Set("Content-Type", media)
			if cfg.Username != "" && cfg.Password != "" {
				req.SetBasicAuth(cfg.Username, cfg.Password)
			}
			resp, doErr := client.Do(req)
			if doErr != nil {
				logrus.Warnf("HTTP _search request error (attempt=%d/%d url=%s): %v", attempt, f.retries+1, url, doErr)
				return wrapNetworkError(doErr)
			}
			defer resp.Body.Close()
			if resp.StatusCode >= 400 {
				pe := &ProtocolError{StatusCode: resp.StatusCode, Body: limitedBody(resp.Body)}
				logrus.Errorf("HTTP _search failed (status=%d url=%s)", resp.StatusCode, url)
				return pe
			}
			docs, doErr = decodeHits(resp.Body)
			if doErr != nil {
				return wrapNetworkError(doErr)
			}
			logrus.Infof("HTTP _search succeeded (attempt=%d url=%s), returned %d hits", attempt, url, len(docs))
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(f.retries+1)),
		retry.RetryIf(retryable),
		retry.DelayType(cappedLinearDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// cappedLinearDelay implements min(0.5s * attempt, 2s) between HTTP retries.
func cappedLinearDelay(n uint, _ error, _ *retry.Config) time.Duration {
	d := time.Duration(n+1) * 500 * time.Millisecond
	if d > 2*time.Second {
		d = 2 * time.Second
	}
	return d
}

func decodeHits(r io.Reader) ([]map[string]interface{}, error) {
	var res struct {
		Hits struct {
			Hits []struct {
				Source map[string]interface{} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(r).Decode(&res); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	docs := make([]map[string]interface{}, 0, len(res.Hits.Hits))
	for _, h := range res.Hits.Hits {
		if h.Source == nil {
			h.Source = map[string]interface{}{}
		}
		docs = append(docs, h.Source)
	}
	return docs, nil
}

func limitedBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBodyBytes))
	return string(b)
}
