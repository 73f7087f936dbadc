package elastic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Sec-Link/SIEM/pkg/models"
)

// timestampFieldCandidates are checked in priority order when resolving a
// sortable timestamp field from the index mapping.
var timestampFieldCandidates = []string{"timestamp", "@timestamp", "time", "event_time"}

// maxMappingDepth bounds the walk over the mapping tree; real mappings nest a
// handful of levels at most, anything deeper is garbage in.
const maxMappingDepth = 8

// FieldDescriptor describes a field found in the source's type mapping.
type FieldDescriptor struct {
	Path       string
	Type       string
	HasKeyword bool
}

// SortPath returns the path to sort on: the field itself when it is
// date-typed, its .keyword subfield otherwise, or "" when the field is not
// usable for sorting.
func (d *FieldDescriptor) SortPath() string {
	if d == nil {
		return ""
	}
	if strings.HasPrefix(d.Type, "date") {
		return d.Path
	}
	if d.HasKeyword {
		return d.Path + ".keyword"
	}
	return ""
}

// SchemaProbe inspects the live source's field mapping.
type SchemaProbe struct {
	client *http.Client
}

// NewSchemaProbe returns a probe using the given bounded HTTP client.
func NewSchemaProbe(client *http.Client) *SchemaProbe {
	return &SchemaProbe{client: client}
}

// ResolveSortField finds a timestamp-like field usable for sorting, preferring
// a date-typed field over a .keyword text subfield across the candidate names
// in priority order. Returns "" when the mapping has no usable field; the
// caller then issues the query without a sort clause.
func (p *SchemaProbe) ResolveSortField(ctx context.Context, cfg *models.SourceConfig) string {
	mapping, err := p.fetchMapping(ctx, cfg)
	if err != nil {
		logrus.Debugf("Failed to fetch mapping for %s/%s: %v", cfg.PrimaryHost(), cfg.Index, err)
		return ""
	}
	found := findCandidates(mapping, timestampFieldCandidates)

	for _, name := range timestampFieldCandidates {
		if d := found[name]; d != nil && strings.HasPrefix(d.Type, "date") {
			return d.Path
		}
	}
	for _, name := range timestampFieldCandidates {
		if d := found[name]; d != nil && d.HasKeyword {
			return d.Path + ".keyword"
		}
	}
	return ""
}

// IndexHasField reports whether the mapping defines a field with the given
// name anywhere in its property tree. Best-effort: false on any failure.
func (p *SchemaProbe) IndexHasField(ctx context.Context, cfg *models.SourceConfig, field string) bool {
	mapping, err := p.fetchMapping(ctx, cfg)
	if err != nil {
		logrus.Debugf("Failed to fetch mapping for %s/%s: %v", cfg.PrimaryHost(), cfg.Index, err)
		return false
	}
	return findCandidates(mapping, []string{field})[field] != nil
}

func (p *SchemaProbe) fetchMapping(ctx context.Context, cfg *models.SourceConfig) (map[string]interface{}, error) {
	host := cfg.PrimaryHost()
	if host == "" {
		return nil, fmt.Errorf("no hosts configured")
	}
	url := fmt.Sprintf("%s/%s/_mapping", host, cfg.Index)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if cfg.Username != "" && cfg.Password != "" {
		req.SetBasicAuth(cfg.Username, cfg.Password)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, wrapNetworkError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, &ProtocolError{StatusCode: resp.StatusCode, Body: resp.Status}
	}
	var mapping map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&mapping); err != nil {
		return nil, err
	}
	return mapping, nil
}

// findCandidates walks every index root in the mapping response and returns
// the first descriptor seen for each candidate name.
func findCandidates(mapping map[string]interface{}, names []string) map[string]*FieldDescriptor {
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}
	found := make(map[string]*FieldDescriptor, len(names))

	// Responses are keyed by index name, with the property tree either under
	// "mappings" or (in older shapes) at the root.
	for _, v := range mapping {
		root, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		if inner, ok := root["mappings"].(map[string]interface{}); ok {
			root = inner
		}
		walkProperties(root, "", 0, wanted, found)
	}
	return found
}

func walkProperties(node map[string]interface{}, prefix string, depth int, wanted map[string]bool, found map[string]*FieldDescriptor) {
	if depth >= maxMappingDepth {
		return
	}
	props, ok := node["properties"].(map[string]interface{})
	if !ok {
		return
	}
	for name, raw := range props {
		meta, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		if wanted[name] && found[name] == nil {
			d := &FieldDescriptor{Path: path}
			if t, ok := meta["type"].(string); ok {
				d.Type = t
			}
			if fields, ok := meta["fields"].(map[string]interface{}); ok {
				_, d.HasKeyword = fields["keyword"]
			}
			found[name] = d
		}
		walkProperties(meta, path, depth+1, wanted, found)
	}
}
