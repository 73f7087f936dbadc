package models

import (
	"strings"
)

// SourceConfig is the per-tenant live alert source configuration. It is owned
// by configuration management; this subsystem only reads it.
type SourceConfig struct {
	TenantID    string   `json:"tenantId" mapstructure:"tenantId"`
	Enabled     bool     `json:"enabled" mapstructure:"enabled"`
	Hosts       []string `json:"hosts" mapstructure:"hosts"`
	Index       string   `json:"index" mapstructure:"index"`
	Username    string   `json:"username" mapstructure:"username"`
	Password    string   `json:"-" mapstructure:"password"`
	VerifyCerts bool     `json:"verifyCerts" mapstructure:"verifyCerts"`
}

// NormalizedHosts returns the configured hosts in priority order with an
// http:// scheme defaulted and trailing slashes trimmed.
func (c *SourceConfig) NormalizedHosts() []string {
	hosts := make([]string, 0, len(c.Hosts))
	for _, h := range c.Hosts {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if !strings.HasPrefix(h, "http://") && !strings.HasPrefix(h, "https://") {
			h = "http://" + h
		}
		hosts = append(hosts, strings.TrimRight(h, "/"))
	}
	return hosts
}

// PrimaryHost returns the first usable host or "" when none are configured.
func (c *SourceConfig) PrimaryHost() string {
	hosts := c.NormalizedHosts()
	if len(hosts) == 0 {
		return ""
	}
	return hosts[0]
}
