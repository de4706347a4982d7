// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package handler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		TenantID:      "tenant",
		ClientID:      "client-id",
		ClientSecret:  "client-secret",
		APIKey:        "nrak-key",
		AuthorityHost: "https://login.microsoftonline.com",
		GraphBaseURL:  "https://graph.microsoft.com/v1.0",
		NerdGraphURL:  "https://api.newrelic.com/graphql",
		InsightsURL:   "https://insights-collector.newrelic.com",
		LogLevel:      "info",
	}
}

func TestLoadConfig(t *testing.T) {
	envVars := map[string]string{
		"TENANT_ID":          "tenant",
		"CLIENT_ID":          "client-id",
		"CLIENT_SECRET":      "client-secret",
		"NEW_RELIC_API_KEY":  "nrak-key",
		"GROUP_NAME":         "NrSSO",
		"LOG_LEVEL":          "warn",
		"TRACE_ENABLED":      "true",
		"CLIENT_SECRET_PATH": "",
	}
	for k, v := range envVars {
		t.Setenv(k, v)
	}

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, "tenant", cfg.TenantID)
	require.Equal(t, "client-id", cfg.ClientID)
	require.Equal(t, "client-secret", cfg.ClientSecret)
	require.Equal(t, "nrak-key", cfg.APIKey)
	require.Equal(t, "NrSSO", cfg.GroupName)
	require.Equal(t, "warn", cfg.LogLevel)
	require.True(t, cfg.TraceEnabled)
	require.Equal(t, "https://login.microsoftonline.com", cfg.AuthorityHost)
	require.Equal(t, "https://graph.microsoft.com/v1.0", cfg.GraphBaseURL)
	require.Equal(t, "https://api.newrelic.com/graphql", cfg.NerdGraphURL)
	require.False(t, cfg.AuditEnabled())
}

func TestLoadConfig_Malformed(t *testing.T) {
	t.Setenv("TRACE_ENABLED", "sometimes")

	_, err := LoadConfig()
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestConfigValidate(t *testing.T) {
	cases := map[string]struct {
		mutate   func(*Config)
		expected []string
	}{
		"valid": {
			mutate: func(*Config) {},
		},
		"valid with audit": {
			mutate: func(c *Config) {
				c.AccountID = "1234567"
				c.InsertKey = "insert-key"
			},
		},
		"everything missing": {
			mutate: func(c *Config) {
				c.TenantID = ""
				c.ClientID = ""
				c.ClientSecret = ""
				c.APIKey = ""
			},
			expected: []string{"TENANT_ID", "CLIENT_ID", "CLIENT_SECRET", "NEW_RELIC_API_KEY"},
		},
		"relative url": {
			mutate: func(c *Config) {
				c.GraphBaseURL = "graph.microsoft.com/v1.0"
			},
			expected: []string{"GRAPH_BASE_URL"},
		},
		"url without host": {
			mutate: func(c *Config) {
				c.NerdGraphURL = "https:///graphql"
			},
			expected: []string{"NERDGRAPH_URL"},
		},
		"half configured audit": {
			mutate: func(c *Config) {
				c.AccountID = "1234567"
			},
			expected: []string{"NEW_RELIC_ACCOUNT_ID and NEW_RELIC_INSERT_KEY"},
		},
		"bad insights url with audit": {
			mutate: func(c *Config) {
				c.AccountID = "1234567"
				c.InsertKey = "insert-key"
				c.InsightsURL = "ftp://collector"
			},
			expected: []string{"INSIGHTS_URL"},
		},
	}

	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			c.mutate(&cfg)

			err := cfg.Validate()
			if len(c.expected) == 0 {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrInvalidConfig))
			for _, e := range c.expected {
				require.Contains(t, err.Error(), e)
			}
		})
	}
}

type mockParamStore struct {
	mappings map[string]string
	calls    []string
}

func (s *mockParamStore) Get(_ context.Context, k string) (string, error) {
	s.calls = append(s.calls, k)
	v, ok := s.mappings[k]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func TestResolveSecrets(t *testing.T) {
	ctx := context.Background()

	t.Run("Without paths", func(t *testing.T) {
		env := Environment{Config: validConfig()}
		store := &mockParamStore{}
		require.False(t, env.usesParamStore())
		require.NoError(t, env.resolveSecrets(ctx, store))
		require.Empty(t, store.calls)
		require.Equal(t, "client-secret", env.ClientSecret)
	})

	t.Run("With paths in parameter store", func(t *testing.T) {
		cfg := validConfig()
		cfg.ClientSecret = ""
		cfg.APIKey = ""
		cfg.ClientSecretPath = "/nr/client-secret"
		cfg.APIKeyPath = "/nr/api-key"
		env := Environment{Config: cfg}
		store := &mockParamStore{mappings: map[string]string{
			"/nr/client-secret": "from-ssm",
			"/nr/api-key":       "nrak-from-ssm",
		}}

		require.True(t, env.usesParamStore())
		require.NoError(t, env.resolveSecrets(ctx, store))
		require.Equal(t, "from-ssm", env.ClientSecret)
		require.Equal(t, "nrak-from-ssm", env.APIKey)
		require.NoError(t, env.Validate())
	})

	t.Run("With a path that isn't in parameter store", func(t *testing.T) {
		cfg := validConfig()
		cfg.APIKeyPath = "not/real"
		env := Environment{Config: cfg}

		err := env.resolveSecrets(ctx, &mockParamStore{})
		require.Error(t, err)
		require.Contains(t, err.Error(), "not/real")
	})
}
