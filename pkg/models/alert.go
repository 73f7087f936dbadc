package models

import (
	"time"
)

// Alert is a cached alert record. All fields except RowID may be empty:
// documents arriving from external sources are stored as-is, with anything
// we could not coerce left at its zero value rather than dropped.
type Alert struct {
	// RowID is the cache primary key. For documents that carry an external
	// alert identifier it equals that identifier, so re-ingesting the same
	// alert replaces the row. Anonymous documents get a generated key and
	// therefore always append.
	RowID string `json:"rowId"`

	AlertID     *string                `json:"alertId"`
	TenantID    string                 `json:"tenantId"`
	Timestamp   *time.Time             `json:"timestamp"`
	Severity    string                 `json:"severity"`
	Message     string                 `json:"message"`
	SourceIndex string                 `json:"sourceIndex"`
	RuleID      string                 `json:"ruleId"`
	Title       string                 `json:"title"`
	Status      *int32                 `json:"status"`
	Description string                 `json:"description"`
	Category    string                 `json:"category"`
	SourceData  map[string]interface{} `json:"sourceData"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ToDocument rebuilds a source-shaped document from a cached row so the API
// returns the same shape regardless of whether alerts came from the cache or
// straight from the live source. Modeled fields win over the raw payload.
func (a *Alert) ToDocument() map[string]interface{} {
	doc := make(map[string]interface{}, len(a.SourceData)+12)
	for k, v := range a.SourceData {
		doc[k] = v
	}

	var alertID interface{}
	if a.AlertID != nil {
		alertID = *a.AlertID
	}
	var ts interface{}
	if a.Timestamp != nil {
		ts = a.Timestamp.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	var status interface{}
	if a.Status != nil {
		status = *a.Status
	}

	doc["alert_id"] = alertID
	doc["tenant_id"] = a.TenantID
	doc["timestamp"] = ts
	doc["severity"] = a.Severity
	doc["message"] = a.Message
	doc["source_index"] = a.SourceIndex
	doc["rule_id"] = a.RuleID
	doc["title"] = a.Title
	doc["status"] = status
	doc["description"] = a.Description
	doc["category"] = a.Category
	return doc
}

// AlertFromDocument maps a raw source document onto the tracked cache fields.
// Unparsable timestamps and statuses become nil, never an error; the original
// payload is retained in SourceData.
func AlertFromDocument(tenantID string, doc map[string]interface{}) Alert {
	a := Alert{
		TenantID:    tenantID,
		Timestamp:   ParseEventTime(doc["timestamp"]),
		Severity:    DocString(doc, "severity"),
		Message:     DocString(doc, "message"),
		SourceIndex: DocString(doc, "source_index"),
		RuleID:      DocString(doc, "rule_id"),
		Title:       DocString(doc, "title"),
		Status:      CoerceInt32(doc["status"]),
		Description: DocString(doc, "description"),
		Category:    DocString(doc, "category"),
		SourceData:  doc,
	}
	if id := DocString(doc, "alert_id"); id != "" {
		a.AlertID = &id
	}
	if a.TenantID == "" {
		a.TenantID = DocString(doc, "tenant_id")
	}
	return a
}
