package config

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/Sec-Link/SIEM/pkg/models"
)

// Config holds the application configuration
type Config struct {
	Server   ServerConfig          `mapstructure:"server"`
	Cache    CacheConfig           `mapstructure:"cache"`
	Fetch    FetchConfig           `mapstructure:"fetch"`
	Severity SeverityThresholds    `mapstructure:"severity"`
	Sync     SyncConfig            `mapstructure:"sync"`
	Sources  []models.SourceConfig `mapstructure:"sources"`
}

// ServerConfig holds the HTTP server configuration
type ServerConfig struct {
	Port            string `mapstructure:"port"`
	AllowedOrigins  string `mapstructure:"allowedOrigins"`
	ShutdownTimeout int    `mapstructure:"shutdownTimeout"`
}

// CacheConfig holds the Timeplus connection configuration for the alert cache
type CacheConfig struct {
	Address   string `mapstructure:"address"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	Workspace string `mapstructure:"workspace"`
}

// FetchConfig bounds live-source queries: independent connect/read timeouts,
// extra HTTP attempts after the first, and the page size per query.
type FetchConfig struct {
	ConnectTimeoutSeconds int `mapstructure:"connectTimeoutSeconds"`
	ReadTimeoutSeconds    int `mapstructure:"readTimeoutSeconds"`
	Retries               int `mapstructure:"retries"`
	PageSize              int `mapstructure:"pageSize"`
}

// ConnectTimeout returns the connect timeout as a duration.
func (f FetchConfig) ConnectTimeout() time.Duration {
	return time.Duration(f.ConnectTimeoutSeconds) * time.Second
}

// ReadTimeout returns the read timeout as a duration.
func (f FetchConfig) ReadTimeout() time.Duration {
	return time.Duration(f.ReadTimeoutSeconds) * time.Second
}

// SeverityThresholds are the numeric tier cutoffs. The upstream values are
// heuristic, so deployments can tune them instead of treating them as fixed.
// Small* applies to the 0-15 scale, Large* to the 0-100 scale.
type SeverityThresholds struct {
	SmallCritical int `mapstructure:"smallCritical"`
	SmallHigh     int `mapstructure:"smallHigh"`
	SmallMedium   int `mapstructure:"smallMedium"`
	LargeCritical int `mapstructure:"largeCritical"`
	LargeHigh     int `mapstructure:"largeHigh"`
	LargeMedium   int `mapstructure:"largeMedium"`
}

// SyncConfig controls the optional background cache-warming loop.
// IntervalSeconds of 0 disables it.
type SyncConfig struct {
	IntervalSeconds int `mapstructure:"intervalSeconds"`
	BatchSize       int `mapstructure:"batchSize"`
}

// LoadConfig loads the application configuration from file or environment variables
func LoadConfig(configPath string) (*Config, error) {
	var config Config

	// Set default values
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.allowedOrigins", "*")
	viper.SetDefault("server.shutdownTimeout", 10)
	viper.SetDefault("fetch.connectTimeoutSeconds", 5)
	viper.SetDefault("fetch.readTimeoutSeconds", 30)
	viper.SetDefault("fetch.retries", 2)
	viper.SetDefault("fetch.pageSize", 100)
	viper.SetDefault("severity.smallCritical", 12)
	viper.SetDefault("severity.smallHigh", 9)
	viper.SetDefault("severity.smallMedium", 6)
	viper.SetDefault("severity.largeCritical", 90)
	viper.SetDefault("severity.largeHigh", 70)
	viper.SetDefault("severity.largeMedium", 40)
	viper.SetDefault("sync.intervalSeconds", 0)
	viper.SetDefault("sync.batchSize", 100)

	// Allow environment variables to override config file
	viper.SetEnvPrefix("SECLINK")
	viper.AutomaticEnv()

	// If config file is provided, read it
	if configPath != "" {
		viper.SetConfigFile(configPath)
		if err := viper.ReadInConfig(); err != nil {
			logrus.Warnf("Error reading config file: %v", err)
		}
	}

	// Unmarshal config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// SourceCatalog serves per-tenant source configs loaded from the config file.
// It satisfies the provider interface the retrieval pipeline reads through,
// so a database-backed configuration service can replace it without touching
// the pipeline.
type SourceCatalog struct {
	byTenant map[string]*models.SourceConfig
	order    []string
}

// NewSourceCatalog indexes the configured sources by tenant. Duplicate tenant
// entries keep the last definition.
func NewSourceCatalog(sources []models.SourceConfig) *SourceCatalog {
	c := &SourceCatalog{byTenant: make(map[string]*models.SourceConfig, len(sources))}
	for i := range sources {
		src := sources[i]
		if src.TenantID == "" {
			logrus.Warnf("Ignoring source config with empty tenant id (index %q)", src.Index)
			continue
		}
		if _, seen := c.byTenant[src.TenantID]; !seen {
			c.order = append(c.order, src.TenantID)
		}
		c.byTenant[src.TenantID] = &src
	}
	return c
}

// SourceConfig returns the tenant's source config, or nil when the tenant has
// none configured.
func (c *SourceCatalog) SourceConfig(tenantID string) (*models.SourceConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant id is required")
	}
	return c.byTenant[tenantID], nil
}

// EnabledTenants lists tenants with an enabled source, in configuration order.
func (c *SourceCatalog) EnabledTenants() ([]string, error) {
	tenants := make([]string, 0, len(c.order))
	for _, tid := range c.order {
		if cfg := c.byTenant[tid]; cfg != nil && cfg.Enabled {
			tenants = append(tenants, tid)
		}
	}
	return tenants, nil
}
