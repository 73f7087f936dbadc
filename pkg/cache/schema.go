package cache

// AlertCacheStream is the mutable stream holding cached alerts. The primary
// key gives last-write-wins replacement per row_id, which is what makes the
// upsert idempotent for documents carrying an external alert identifier.
const AlertCacheStream = "seclink_alert_cache"

// GetAlertCacheSchema returns the schema for the alert cache stream.
func GetAlertCacheSchema() []Column {
	return []Column{
		{Name: "row_id", Type: "string"},
		{Name: "alert_id", Type: "string", Nullable: true},
		{Name: "tenant_id", Type: "string"},
		{Name: "timestamp", Type: "datetime64", Nullable: true},
		{Name: "severity", Type: "string"},
		{Name: "message", Type: "string"},
		{Name: "source_index", Type: "string"},
		{Name: "rule_id", Type: "string"},
		{Name: "title", Type: "string"},
		{Name: "status", Type: "int32", Nullable: true},
		{Name: "description", Type: "string"},
		{Name: "category", Type: "string"},
		{Name: "source_data", Type: "string"}, // JSON string of the original document
		{Name: "created_at", Type: "datetime64"},
		{Name: "updated_at", Type: "datetime64"},
	}
}
