// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/hashicorp/go-hclog"

	"github.com/nr-user-mgmt/nr-user-deprovisioner/client"
	"github.com/nr-user-mgmt/nr-user-deprovisioner/structs"
	"github.com/nr-user-mgmt/nr-user-deprovisioner/trace"
)

// ParamStore is an interface for reading secrets from a data store.
type ParamStore interface {
	Get(ctx context.Context, k string) (string, error)
}

// TokenSource exchanges the configured client credentials for a bearer token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Directory resolves a user identifier to the user's mail address.
type Directory interface {
	LookupEmail(ctx context.Context, token, userID string) (string, error)
}

// Deprovisioner deletes a remote user account by email.
type Deprovisioner interface {
	DeleteUser(ctx context.Context, email string) (structs.DeprovisionResult, error)
}

// AuditRecorder records the outcome of a deprovisioning attempt.
type AuditRecorder interface {
	Record(ctx context.Context, e client.DeprovisionEvent) error
}

// Environment contains all of the deprovisioner's dependencies.
// It holds no per-invocation state and is safe for concurrent use.
type Environment struct {
	Config

	// Tokens is the identity provider client.
	Tokens TokenSource

	// Directory is the directory API client.
	Directory Directory

	// Deprovisioner is the NerdGraph client.
	Deprovisioner Deprovisioner

	// Audit records deprovisioning attempts. It is nil when auditing is disabled.
	Audit AuditRecorder

	// Logger is used to log messages.
	Logger hclog.Logger
}

// SetupEnvironment constructs the processing Environment from environment variables
// and, when secret paths are configured, Parameter Store.
func SetupEnvironment(ctx context.Context) (Environment, error) {
	var env Environment

	cfg, err := LoadConfig()
	if err != nil {
		return env, err
	}
	env.Config = cfg

	env.Logger = hclog.New(&hclog.LoggerOptions{
		Name:  "nr-user-deprovisioner",
		Level: hclog.LevelFromString(env.LogLevel),
	})
	trace.Enabled(env.TraceEnabled)
	trace.SetLogger(env.Logger.Named("trace"), hclog.Debug)

	if env.usesParamStore() {
		sdkConfig, err := config.LoadDefaultConfig(ctx, config.WithRetryer(func() aws.Retryer {
			// Adaptive mode should retry on hitting rate limits.
			return retry.AddWithMaxBackoffDelay(retry.NewAdaptiveMode(), 3*time.Second)
		}))
		if err != nil {
			return env, fmt.Errorf("failed to create AWS SDK configuration: %w", err)
		}

		if err := env.resolveSecrets(ctx, client.NewSSM(&sdkConfig)); err != nil {
			return env, err
		}
	}

	if err := env.Validate(); err != nil {
		return env, err
	}

	return NewEnvironment(env.Config, env.Logger), nil
}

// NewEnvironment wires the upstream clients for an already validated Config.
func NewEnvironment(cfg Config, logger hclog.Logger) Environment {
	httpClient := client.NewHTTPClient()

	identity := client.NewIdentity(client.IdentityConfig{
		TenantID:      cfg.TenantID,
		ClientID:      cfg.ClientID,
		ClientSecret:  cfg.ClientSecret,
		AuthorityHost: cfg.AuthorityHost,
		GraphBaseURL:  cfg.GraphBaseURL,
	}, httpClient, logger.Named("identity"))

	env := Environment{
		Config:        cfg,
		Tokens:        identity,
		Directory:     identity,
		Deprovisioner: client.NewNerdGraph(cfg.NerdGraphURL, cfg.APIKey, httpClient),
		Logger:        logger,
	}

	if cfg.AuditEnabled() {
		env.Audit = client.NewInsights(cfg.InsightsURL, cfg.AccountID, cfg.InsertKey, httpClient)
	}
	return env
}

func (env Environment) usesParamStore() bool {
	return env.ClientSecretPath != "" || env.APIKeyPath != ""
}

// resolveSecrets replaces literal secrets with their Parameter Store values when a path is configured.
func (env *Environment) resolveSecrets(ctx context.Context, store ParamStore) error {
	secrets := []struct {
		path string
		dst  *string
	}{
		{env.ClientSecretPath, &env.ClientSecret},
		{env.APIKeyPath, &env.APIKey},
	}

	for _, s := range secrets {
		if s.path == "" {
			continue
		}
		v, err := store.Get(ctx, s.path)
		if err != nil {
			return fmt.Errorf("failed to read %s from parameter store: %w", s.path, err)
		}
		*s.dst = v
	}
	return nil
}
