package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Sec-Link/SIEM/pkg/models"
)

// cacheTimeLayout is the literal format accepted by to_datetime64.
const cacheTimeLayout = "2006-01-02 15:04:05.000"

// allowedGroupColumns whitelists the columns the aggregate readers may group
// or count by. Everything else is rejected before a query is built.
var allowedGroupColumns = map[string]bool{
	"severity":     true,
	"category":     true,
	"source_index": true,
	"rule_id":      true,
	"title":        true,
}

// UpsertStats summarizes one upsert pass over a document batch.
type UpsertStats struct {
	Inserted int
	Updated  int
	Skipped  int
	Errors   []string
}

// HourlySeverityCount is one bucket of the hourly severity rollup.
type HourlySeverityCount struct {
	Hour     time.Time
	Severity string
	Count    int64
}

// Store persists alerts in the mutable cache stream and serves the rollup
// queries the dashboard aggregates are built from.
type Store struct {
	conn Conn
}

// NewStore ensures the cache stream exists and returns a store over it.
func NewStore(ctx context.Context, conn Conn) (*Store, error) {
	s := &Store{conn: conn}
	if err := s.Setup(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Setup creates the alert cache stream if it does not exist yet. The mutable
// stream's primary key is what turns repeated inserts into replacements.
func (s *Store) Setup(ctx context.Context) error {
	exists, err := s.conn.CheckStreamExists(ctx, AlertCacheStream)
	if err != nil {
		return fmt.Errorf("failed to check cache stream: %w", err)
	}
	if exists {
		return nil
	}

	columns := GetAlertCacheSchema()
	defs := make([]string, 0, len(columns))
	for _, col := range columns {
		t := col.Type
		if col.Nullable {
			t = fmt.Sprintf("nullable(%s)", t)
		}
		defs = append(defs, fmt.Sprintf("`%s` %s", col.Name, t))
	}
	ddl := fmt.Sprintf("CREATE MUTABLE STREAM `%s` (%s) PRIMARY KEY (row_id)",
		AlertCacheStream, strings.Join(defs, ", "))

	logrus.Infof("Creating alert cache stream %s", AlertCacheStream)
	if err := s.conn.ExecuteDDL(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create cache stream: %w", err)
	}
	return nil
}

// UpsertAlerts writes a batch of source documents into the cache, one
// statement per document so a bad document never poisons its neighbors.
// Documents carrying an alert_id replace any prior row with the same id;
// anonymous documents get a generated key and always append. Failures are
// counted and logged, never returned: cache writes are best effort.
func (s *Store) UpsertAlerts(ctx context.Context, tenantID string, docs []map[string]interface{}) UpsertStats {
	var stats UpsertStats
	now := time.Now().UTC()

	for _, doc := range docs {
		alert := models.AlertFromDocument(tenantID, doc)
		if alert.AlertID != nil {
			alert.RowID = *alert.AlertID
		} else {
			alert.RowID = uuid.New().String()
		}

		alert.CreatedAt = now
		alert.UpdatedAt = now
		updating := false
		if alert.AlertID != nil {
			createdAt, exists, err := s.existingCreatedAt(ctx, alert.RowID)
			if err != nil {
				stats.Skipped++
				stats.Errors = append(stats.Errors, err.Error())
				logrus.Errorf("Failed to check cached alert %s: %v", alert.RowID, err)
				continue
			}
			if exists {
				updating = true
				alert.CreatedAt = createdAt
			}
		}

		if err := s.insertAlert(ctx, &alert); err != nil {
			stats.Skipped++
			stats.Errors = append(stats.Errors, err.Error())
			logrus.Errorf("Failed to cache alert %s: %v", alert.RowID, err)
			continue
		}
		if updating {
			stats.Updated++
		} else {
			stats.Inserted++
		}
	}
	return stats
}

func (s *Store) existingCreatedAt(ctx context.Context, rowID string) (time.Time, bool, error) {
	query := fmt.Sprintf("SELECT created_at FROM table(`%s`) WHERE row_id = %s LIMIT 1",
		AlertCacheStream, quote(rowID))
	rows, err := s.conn.ExecuteQuery(ctx, query)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to look up cached alert: %w", err)
	}
	if len(rows) == 0 {
		return time.Time{}, false, nil
	}
	if ts := rowTime(rows[0]["created_at"]); ts != nil {
		return *ts, true, nil
	}
	return time.Time{}, true, nil
}

func (s *Store) insertAlert(ctx context.Context, alert *models.Alert) error {
	payload, err := json.Marshal(alert.SourceData)
	if err != nil {
		return fmt.Errorf("failed to encode source payload: %w", err)
	}

	values := []string{
		quote(alert.RowID),
		quoteNullable(alert.AlertID),
		quote(alert.TenantID),
		timeNullable(alert.Timestamp),
		quote(alert.Severity),
		quote(alert.Message),
		quote(alert.SourceIndex),
		quote(alert.RuleID),
		quote(alert.Title),
		int32Nullable(alert.Status),
		quote(alert.Description),
		quote(alert.Category),
		quote(string(payload)),
		timeLiteral(alert.CreatedAt),
		timeLiteral(alert.UpdatedAt),
	}

	columns := GetAlertCacheSchema()
	names := make([]string, 0, len(columns))
	for _, col := range columns {
		names = append(names, "`"+col.Name+"`")
	}

	stmt := fmt.Sprintf("INSERT INTO `%s` (%s) VALUES (%s)",
		AlertCacheStream, strings.Join(names, ", "), strings.Join(values, ", "))
	return s.conn.ExecuteDDL(ctx, stmt)
}

// RecentAlerts returns the tenant's newest cached alerts, most recent first.
func (s *Store) RecentAlerts(ctx context.Context, tenantID string, limit int) ([]models.Alert, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(
		"SELECT * FROM table(`%s`) WHERE tenant_id = %s ORDER BY timestamp DESC LIMIT %d",
		AlertCacheStream, quote(tenantID), limit)
	rows, err := s.conn.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read cached alerts: %w", err)
	}
	alerts := make([]models.Alert, 0, len(rows))
	for _, row := range rows {
		alerts = append(alerts, rowToAlert(row))
	}
	return alerts, nil
}

// TotalCount returns the number of cached alerts for the tenant.
func (s *Store) TotalCount(ctx context.Context, tenantID string) (int64, error) {
	query := fmt.Sprintf("SELECT count() AS total FROM table(`%s`) WHERE tenant_id = %s",
		AlertCacheStream, quote(tenantID))
	return s.scalarCount(ctx, query)
}

// CountSince returns the number of cached alerts with an event time at or
// after the given instant. Alerts without a parsable event time never count.
func (s *Store) CountSince(ctx context.Context, tenantID string, since time.Time) (int64, error) {
	query := fmt.Sprintf(
		"SELECT count() AS total FROM table(`%s`) WHERE tenant_id = %s AND timestamp IS NOT NULL AND timestamp >= %s",
		AlertCacheStream, quote(tenantID), timeLiteral(since.UTC()))
	return s.scalarCount(ctx, query)
}

// DistinctCount counts the distinct non-empty values of a whitelisted column,
// optionally restricted to events at or after since.
func (s *Store) DistinctCount(ctx context.Context, tenantID, column string, since *time.Time) (int64, error) {
	if !allowedGroupColumns[column] {
		return 0, fmt.Errorf("column %q is not countable", column)
	}
	query := fmt.Sprintf(
		"SELECT count(DISTINCT `%s`) AS total FROM table(`%s`) WHERE tenant_id = %s AND `%s` != ''",
		column, AlertCacheStream, quote(tenantID), column)
	if since != nil {
		query += fmt.Sprintf(" AND timestamp IS NOT NULL AND timestamp >= %s", timeLiteral(since.UTC()))
	}
	return s.scalarCount(ctx, query)
}

// GroupCounts returns per-value counts for a whitelisted column, largest
// groups first. Empty values are kept so callers can surface them as unknown.
func (s *Store) GroupCounts(ctx context.Context, tenantID, column string, limit int) ([]models.NameCount, error) {
	if !allowedGroupColumns[column] {
		return nil, fmt.Errorf("column %q is not groupable", column)
	}
	if limit <= 0 {
		limit = 10
	}
	query := fmt.Sprintf(
		"SELECT `%s` AS name, count() AS total FROM table(`%s`) WHERE tenant_id = %s GROUP BY `%s` ORDER BY total DESC LIMIT %d",
		column, AlertCacheStream, quote(tenantID), column, limit)
	rows, err := s.conn.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read group counts: %w", err)
	}
	counts := make([]models.NameCount, 0, len(rows))
	for _, row := range rows {
		counts = append(counts, models.NameCount{
			Name:  rowString(row["name"]),
			Count: rowInt64(row["total"]),
		})
	}
	return counts, nil
}

// HourlySeverityCounts returns per-hour, per-severity buckets for events at or
// after since, oldest hour first.
func (s *Store) HourlySeverityCounts(ctx context.Context, tenantID string, since time.Time) ([]HourlySeverityCount, error) {
	query := fmt.Sprintf(
		"SELECT to_start_of_hour(timestamp) AS hour, severity, count() AS total FROM table(`%s`)"+
			" WHERE tenant_id = %s AND timestamp IS NOT NULL AND timestamp >= %s"+
			" GROUP BY hour, severity ORDER BY hour ASC",
		AlertCacheStream, quote(tenantID), timeLiteral(since.UTC()))
	rows, err := s.conn.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read hourly counts: %w", err)
	}
	buckets := make([]HourlySeverityCount, 0, len(rows))
	for _, row := range rows {
		b := HourlySeverityCount{
			Severity: rowString(row["severity"]),
			Count:    rowInt64(row["total"]),
		}
		if h := rowTime(row["hour"]); h != nil {
			b.Hour = h.UTC()
		}
		buckets = append(buckets, b)
	}
	return buckets, nil
}

// RecentPayloads returns the raw source documents of the tenant's newest
// cached alerts, for rollups that need fields the cache does not model.
func (s *Store) RecentPayloads(ctx context.Context, tenantID string, limit int) ([]map[string]interface{}, error) {
	if limit <= 0 {
		limit = 5000
	}
	query := fmt.Sprintf(
		"SELECT source_data FROM table(`%s`) WHERE tenant_id = %s ORDER BY timestamp DESC LIMIT %d",
		AlertCacheStream, quote(tenantID), limit)
	rows, err := s.conn.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read cached payloads: %w", err)
	}
	docs := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		raw := rowString(row["source_data"])
		if raw == "" {
			continue
		}
		var doc map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			logrus.Warnf("Skipping unparsable cached payload: %v", err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *Store) scalarCount(ctx context.Context, query string) (int64, error) {
	rows, err := s.conn.ExecuteQuery(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to read count: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rowInt64(rows[0]["total"]), nil
}

// quote renders a single-quoted SQL string literal.
func quote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

func quoteNullable(v *string) string {
	if v == nil {
		return "null"
	}
	return quote(*v)
}

func timeLiteral(t time.Time) string {
	return fmt.Sprintf("to_datetime64('%s', 3)", t.UTC().Format(cacheTimeLayout))
}

func timeNullable(t *time.Time) string {
	if t == nil {
		return "null"
	}
	return timeLiteral(*t)
}

func int32Nullable(v *int32) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%d", *v)
}

// rowToAlert maps a scanned cache row back onto the alert model. Driver scan
// types vary (values vs pointers for nullable columns), so every field goes
// through a tolerant accessor.
func rowToAlert(row map[string]interface{}) models.Alert {
	a := models.Alert{
		RowID:       rowString(row["row_id"]),
		TenantID:    rowString(row["tenant_id"]),
		Timestamp:   rowTime(row["timestamp"]),
		Severity:    rowString(row["severity"]),
		Message:     rowString(row["message"]),
		SourceIndex: rowString(row["source_index"]),
		RuleID:      rowString(row["rule_id"]),
		Title:       rowString(row["title"]),
		Status:      rowInt32(row["status"]),
		Description: rowString(row["description"]),
		Category:    rowString(row["category"]),
	}
	if id, ok := row["alert_id"]; ok {
		if s := rowString(id); s != "" {
			a.AlertID = &s
		}
	}
	if raw := rowString(row["source_data"]); raw != "" {
		var doc map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &doc); err == nil {
			a.SourceData = doc
		}
	}
	if ts := rowTime(row["created_at"]); ts != nil {
		a.CreatedAt = *ts
	}
	if ts := rowTime(row["updated_at"]); ts != nil {
		a.UpdatedAt = *ts
	}
	return a
}

func rowString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case *string:
		if s != nil {
			return *s
		}
	case **string:
		if s != nil && *s != nil {
			return **s
		}
	}
	return ""
}

func rowTime(v interface{}) *time.Time {
	switch t := v.(type) {
	case time.Time:
		if !t.IsZero() {
			u := t.UTC()
			return &u
		}
	case *time.Time:
		if t != nil && !t.IsZero() {
			u := t.UTC()
			return &u
		}
	case **time.Time:
		if t != nil && *t != nil && !(*t).IsZero() {
			u := (*t).UTC()
			return &u
		}
	}
	return nil
}

func rowInt32(v interface{}) *int32 {
	switch n := v.(type) {
	case int32:
		return &n
	case *int32:
		if n != nil {
			val := *n
			return &val
		}
	case **int32:
		if n != nil && *n != nil {
			val := **n
			return &val
		}
	case int64:
		val := int32(n)
		return &val
	}
	return nil
}

func rowInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case uint64:
		return int64(n)
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case uint32:
		return int64(n)
	case float64:
		return int64(n)
	case *uint64:
		if n != nil {
			return int64(*n)
		}
	case *int64:
		if n != nil {
			return *n
		}
	}
	return 0
}
