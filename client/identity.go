// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	// GraphScope is the fixed scope requested for the directory API.
	GraphScope = "https://graph.microsoft.com/.default"

	fmtTokenURL = "%s/%s/oauth2/v2.0/token"
)

// IdentityConfig holds what the identity provider and directory clients need.
type IdentityConfig struct {
	TenantID      string
	ClientID      string
	ClientSecret  string
	AuthorityHost string
	GraphBaseURL  string
}

// Identity is a client for the identity provider's token endpoint and the directory API.
type Identity struct {
	credentials  clientcredentials.Config
	httpClient   *http.Client
	logger       hclog.Logger
	graphBaseURL string
}

// NewIdentity returns an Identity client for the given tenant.
func NewIdentity(cfg IdentityConfig, httpClient *http.Client, logger hclog.Logger) *Identity {
	authority := strings.TrimRight(cfg.AuthorityHost, "/")
	return &Identity{
		credentials: clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     fmt.Sprintf(fmtTokenURL, authority, url.PathEscape(cfg.TenantID)),
			Scopes:       []string{GraphScope},
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		httpClient:   httpClient,
		logger:       logger,
		graphBaseURL: strings.TrimRight(cfg.GraphBaseURL, "/"),
	}
}

// Token exchanges the client credentials for a bearer token.
// A new token is requested on every call.
func (c *Identity) Token(ctx context.Context) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	tok, err := c.credentials.Token(ctx)
	if err != nil {
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) && rErr.Response != nil {
			c.logger.Error("token request rejected",
				"status", rErr.Response.StatusCode,
				"error", rErr.ErrorCode,
				"error_description", rErr.ErrorDescription,
			)
		}
		return "", fmt.Errorf("failed to acquire token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("token response did not include an access token")
	}
	return tok.AccessToken, nil
}

type directoryUser struct {
	ID   string `json:"id"`
	Mail string `json:"mail"`
}

// LookupEmail resolves the user identifier to the user's mail address.
func (c *Identity) LookupEmail(ctx context.Context, token, userID string) (string, error) {
	u := c.graphBaseURL + "/users/" + url.PathEscape(userID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Accept", "application/json")

	httpRes, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer httpRes.Body.Close()

	if httpRes.StatusCode != http.StatusOK {
		return "", statusError(httpRes)
	}

	var user directoryUser
	if err := json.NewDecoder(httpRes.Body).Decode(&user); err != nil {
		return "", fmt.Errorf("failed to decode directory response: %w", err)
	}
	if user.Mail == "" {
		return "", fmt.Errorf("directory entry for %s has no mail", userID)
	}
	return user.Mail, nil
}
