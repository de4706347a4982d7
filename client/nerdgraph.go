// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/nr-user-mgmt/nr-user-deprovisioner/structs"
)

const (
	headerAPIKey = "API-Key"

	deleteUserField = "userManagementDeleteUser"

	// DeleteUserMutation deletes the New Relic user with the given email.
	// The email is always sent as a variable.
	DeleteUserMutation = `mutation DeleteUser($email: String!) {
  userManagementDeleteUser(email: $email) {
    success
    error {
      message
    }
  }
}`
)

func init() {
	if _, err := ParseDocument(DeleteUserMutation); err != nil {
		panic(err)
	}
}

// ParseDocument parses a GraphQL executable document and checks that it holds exactly one operation.
func ParseDocument(doc string) (*ast.QueryDocument, error) {
	q, err := parser.ParseQuery(&ast.Source{Name: "nerdgraph", Input: doc})
	if err != nil {
		return nil, fmt.Errorf("invalid graphql document: %w", err)
	}
	if len(q.Operations) != 1 {
		return nil, fmt.Errorf("graphql document must hold one operation, found %d", len(q.Operations))
	}
	return q, nil
}

// NerdGraph is a client for the New Relic GraphQL API.
type NerdGraph struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

// NewNerdGraph returns a NerdGraph client authenticated with the given user API key.
func NewNerdGraph(url, apiKey string, httpClient *http.Client) *NerdGraph {
	return &NerdGraph{url: url, apiKey: apiKey, httpClient: httpClient}
}

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type deleteUserResponse struct {
	Data   map[string]*deleteUserPayload `json:"data"`
	Errors []graphQLError                `json:"errors"`
}

type deleteUserPayload struct {
	Success *bool `json:"success"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// DeleteUser runs the delete mutation for email. A non-nil error means the request itself
// failed; a result with Success false means NerdGraph rejected the mutation.
func (c *NerdGraph) DeleteUser(ctx context.Context, email string) (structs.DeprovisionResult, error) {
	var result structs.DeprovisionResult

	reqBody, err := json.Marshal(graphQLRequest{
		Query:     DeleteUserMutation,
		Variables: map[string]interface{}{"email": email},
	})
	if err != nil {
		return result, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return result, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(headerAPIKey, c.apiKey)

	httpRes, err := c.httpClient.Do(httpReq)
	if err != nil {
		return result, err
	}
	defer httpRes.Body.Close()

	if httpRes.StatusCode < 200 || httpRes.StatusCode > 299 {
		return result, statusError(httpRes)
	}

	var res deleteUserResponse
	if err := json.NewDecoder(httpRes.Body).Decode(&res); err != nil {
		return result, fmt.Errorf("failed to decode graphql response: %w", err)
	}

	return res.result(), nil
}

func (r deleteUserResponse) result() structs.DeprovisionResult {
	// Top-level errors fail the mutation no matter what the payload says.
	if len(r.Errors) > 0 {
		return structs.DeprovisionResult{ErrorMessage: r.Errors[0].Message}
	}

	payload := r.Data[deleteUserField]
	if payload == nil {
		return structs.DeprovisionResult{ErrorMessage: "response has no " + deleteUserField + " result"}
	}

	var result structs.DeprovisionResult
	if payload.Success != nil {
		result.Success = *payload.Success
	}
	if payload.Error != nil {
		result.ErrorMessage = payload.Error.Message
	}
	if result.Success {
		result.ErrorMessage = ""
	}
	return result
}
