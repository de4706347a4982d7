// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package handler

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/hashicorp/go-multierror"
	"github.com/kelseyhightower/envconfig"
)

// ErrInvalidConfig is returned when the process configuration is incomplete or malformed.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the configuration from the environment. It is read once at startup.
type Config struct {
	// TenantID is the directory tenant the client credentials belong to.
	TenantID string `envconfig:"TENANT_ID"`

	// ClientID is the application (client) id used for the client-credentials grant.
	ClientID string `envconfig:"CLIENT_ID"`

	// ClientSecret is the application secret used for the client-credentials grant.
	ClientSecret string `envconfig:"CLIENT_SECRET"`

	// ClientSecretPath is the path to the client secret in Parameter Store.
	// When set it takes precedence over ClientSecret.
	ClientSecretPath string `envconfig:"CLIENT_SECRET_PATH"`

	// APIKey is the New Relic user API key sent to NerdGraph.
	APIKey string `envconfig:"NEW_RELIC_API_KEY"`

	// APIKeyPath is the path to the New Relic user API key in Parameter Store.
	APIKeyPath string `envconfig:"NEW_RELIC_API_KEY_PATH"`

	// AccountID and InsertKey enable audit events. Both or neither must be set.
	AccountID string `envconfig:"NEW_RELIC_ACCOUNT_ID"`
	InsertKey string `envconfig:"NEW_RELIC_INSERT_KEY"`

	// GroupName restricts processing to membership changes of a single group.
	GroupName string `envconfig:"GROUP_NAME"`

	AuthorityHost string `envconfig:"AUTHORITY_HOST" default:"https://login.microsoftonline.com"`
	GraphBaseURL  string `envconfig:"GRAPH_BASE_URL" default:"https://graph.microsoft.com/v1.0"`
	NerdGraphURL  string `envconfig:"NERDGRAPH_URL" default:"https://api.newrelic.com/graphql"`
	InsightsURL   string `envconfig:"INSIGHTS_URL" default:"https://insights-collector.newrelic.com"`

	// LogLevel is the configured logging level.
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// TraceEnabled turns on per-step timing logs.
	TraceEnabled bool `envconfig:"TRACE_ENABLED" default:"false"`
}

// LoadConfig reads the Config from environment variables. It does not validate it;
// secrets may still need to be resolved from Parameter Store.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// Validate reports every missing or malformed value at once.
func (c Config) Validate() error {
	var resultErr error

	required := []setting{
		{"TENANT_ID", c.TenantID},
		{"CLIENT_ID", c.ClientID},
		{"CLIENT_SECRET", c.ClientSecret},
		{"NEW_RELIC_API_KEY", c.APIKey},
	}
	for _, r := range required {
		if r.value == "" {
			resultErr = multierror.Append(resultErr, fmt.Errorf("%s is required", r.name))
		}
	}

	urls := []setting{
		{"AUTHORITY_HOST", c.AuthorityHost},
		{"GRAPH_BASE_URL", c.GraphBaseURL},
		{"NERDGRAPH_URL", c.NerdGraphURL},
	}
	if c.AuditEnabled() {
		urls = append(urls, setting{"INSIGHTS_URL", c.InsightsURL})
	}
	for _, u := range urls {
		if err := validateURL(u.value); err != nil {
			resultErr = multierror.Append(resultErr, fmt.Errorf("%s: %w", u.name, err))
		}
	}

	if (c.AccountID == "") != (c.InsertKey == "") {
		resultErr = multierror.Append(resultErr,
			errors.New("NEW_RELIC_ACCOUNT_ID and NEW_RELIC_INSERT_KEY must be set together"))
	}

	if resultErr != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, resultErr)
	}
	return nil
}

// AuditEnabled indicates whether deprovisioning attempts are recorded as New Relic events.
func (c Config) AuditEnabled() bool {
	return c.AccountID != "" && c.InsertKey != ""
}

type setting struct {
	name  string
	value string
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("%q is not an absolute http(s) URL", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	return nil
}
