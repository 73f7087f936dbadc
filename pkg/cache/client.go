package cache

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/timeplus-io/proton-go-driver/v2"
	"github.com/timeplus-io/proton-go-driver/v2/lib/driver"

	"github.com/Sec-Link/SIEM/pkg/config"
)

// Column represents a column definition
type Column struct {
	Name     string
	Type     string
	Nullable bool
}

// Conn is the minimal connection surface the store needs. It exists so tests
// can substitute a mock for the Timeplus-backed client.
type Conn interface {
	ExecuteQuery(ctx context.Context, query string) ([]map[string]interface{}, error)
	ExecuteDDL(ctx context.Context, query string) error
	CheckStreamExists(ctx context.Context, name string) (bool, error)
	Close() error
}

// Client wraps a Timeplus Proton connection for the alert cache.
type Client struct {
	conn      driver.Conn
	workspace string
}

var _ Conn = (*Client)(nil)

// NewClient connects to the Timeplus workspace backing the alert cache.
func NewClient(cfg *config.CacheConfig) (*Client, error) {
	address := strings.TrimPrefix(cfg.Address, "http://")
	address = strings.TrimPrefix(address, "https://")
	if !strings.Contains(address, ":") {
		address += ":8464" // default native port
	}

	logrus.Infof("Connecting to alert cache at %s (workspace: %s)", address, cfg.Workspace)

	conn, err := proton.Open(&proton.Options{
		Addr: []string{address},
		Auth: proton.Auth{
			Database: cfg.Workspace,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    20,
		MaxIdleConns:    10,
		ConnMaxLifetime: 2 * time.Hour,
		Compression: &proton.Compression{
			Method: proton.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache connection: %w", err)
	}

	var pingErr error
	for i := 0; i < 3; i++ {
		pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pingErr = conn.Ping(pingCtx)
		cancel()
		if pingErr == nil {
			break
		}
		logrus.Warnf("Failed to ping alert cache (attempt %d/3): %v", i+1, pingErr)
		time.Sleep(2 * time.Second)
	}
	if pingErr != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping alert cache: %w", pingErr)
	}

	return &Client{conn: conn, workspace: cfg.Workspace}, nil
}

// ExecuteQuery runs a query and returns the result rows as generic maps.
func (c *Client) ExecuteQuery(ctx context.Context, query string) ([]map[string]interface{}, error) {
	rows, err := c.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	columnNames := rows.Columns()
	columnTypes := rows.ColumnTypes()

	result := make([]map[string]interface{}, 0)
	for rows.Next() {
		scanArgs := make([]interface{}, len(columnNames))
		for i, ct := range columnTypes {
			scanArgs[i] = reflect.New(ct.ScanType()).Interface()
		}
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		rowMap := make(map[string]interface{}, len(columnNames))
		for i, name := range columnNames {
			rowMap[name] = reflect.ValueOf(scanArgs[i]).Elem().Interface()
		}
		result = append(result, rowMap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return result, nil
}

// ExecuteDDL executes a statement that returns no rows (CREATE/INSERT/DROP).
func (c *Client) ExecuteDDL(ctx context.Context, query string) error {
	if err := c.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to execute statement: %w", err)
	}
	return nil
}

// CheckStreamExists reports whether a stream with the given name exists.
func (c *Client) CheckStreamExists(ctx context.Context, name string) (bool, error) {
	escaped := strings.ReplaceAll(name, "'", "''")
	rows, err := c.conn.Query(ctx, fmt.Sprintf("SHOW STREAMS LIKE '%s'", escaped))
	if err != nil {
		return false, fmt.Errorf("failed to check stream existence: %w", err)
	}
	defer rows.Close()
	return rows.Next(), rows.Err()
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
