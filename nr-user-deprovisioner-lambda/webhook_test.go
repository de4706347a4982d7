// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/nr-user-mgmt/nr-user-deprovisioner/handler"
	"github.com/nr-user-mgmt/nr-user-deprovisioner/structs"
)

const (
	testUserID = "7f1a3c52-9d0e-4b6a-8c1f-2e3d4a5b6c7d"
	testEmail  = "jdoe@example.com"
)

type fakeUpstream struct {
	tokens  int
	deleted []string
	fail    bool
}

func (f *fakeUpstream) Token(context.Context) (string, error) {
	f.tokens++
	return "token-1", nil
}

func (f *fakeUpstream) LookupEmail(_ context.Context, _, userID string) (string, error) {
	if userID != testUserID {
		return "", errors.New("not found")
	}
	return testEmail, nil
}

func (f *fakeUpstream) DeleteUser(_ context.Context, email string) (structs.DeprovisionResult, error) {
	f.deleted = append(f.deleted, email)
	if f.fail {
		return structs.DeprovisionResult{ErrorMessage: "user not found"}, nil
	}
	return structs.DeprovisionResult{Success: true}, nil
}

func testWebhook(up *fakeUpstream) *Webhook {
	return NewWebhook(handler.Environment{
		Tokens:        up,
		Directory:     up,
		Deprovisioner: up,
		Logger:        hclog.NewNullLogger(),
	})
}

func post(body string) events.LambdaFunctionURLRequest {
	req := events.LambdaFunctionURLRequest{Body: body}
	req.RequestContext.HTTP.Method = http.MethodPost
	return req
}

func removal(subject string) map[string]interface{} {
	return map[string]interface{}{
		"id":        "evt-" + subject,
		"subject":   subject,
		"eventType": "Microsoft.Graph.UserRemovedFromGroup",
		"data":      map[string]interface{}{"operationType": "RemoveMember"},
	}
}

func mustJSON(t *testing.T, v interface{}) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestHandleRequest(t *testing.T) {
	valid := removal("/users/" + testUserID)
	invalid := removal("")
	unknown := removal("/users/0b8e0f9e-1111-4a4a-9b9b-222222222222")

	cases := map[string]struct {
		body    func(t *testing.T) string
		base64  bool
		fail    bool
		status  int
		deleted int
	}{
		"single event array": {
			body:    func(t *testing.T) string { return mustJSON(t, []interface{}{valid}) },
			status:  http.StatusOK,
			deleted: 1,
		},
		"single event object": {
			body:    func(t *testing.T) string { return mustJSON(t, valid) },
			status:  http.StatusOK,
			deleted: 1,
		},
		"base64 body": {
			body:    func(t *testing.T) string { return mustJSON(t, []interface{}{valid}) },
			base64:  true,
			status:  http.StatusOK,
			deleted: 1,
		},
		"invalid event": {
			body:   func(t *testing.T) string { return mustJSON(t, []interface{}{invalid}) },
			status: http.StatusBadRequest,
		},
		"worst status wins": {
			body:    func(t *testing.T) string { return mustJSON(t, []interface{}{valid, invalid, unknown}) },
			status:  http.StatusInternalServerError,
			deleted: 1,
		},
		"mutation failure": {
			body:    func(t *testing.T) string { return mustJSON(t, []interface{}{valid}) },
			fail:    true,
			status:  http.StatusInternalServerError,
			deleted: 1,
		},
		"empty array": {
			body:   func(t *testing.T) string { return "[]" },
			status: http.StatusBadRequest,
		},
		"garbage": {
			body:   func(t *testing.T) string { return "not json" },
			status: http.StatusBadRequest,
		},
	}

	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			up := &fakeUpstream{fail: c.fail}
			body := c.body(t)
			req := post(body)
			if c.base64 {
				req.Body = base64.StdEncoding.EncodeToString([]byte(body))
				req.IsBase64Encoded = true
			}

			res, err := testWebhook(up).HandleRequest(context.Background(), req)
			require.NoError(t, err)
			require.Equal(t, c.status, res.StatusCode, res.Body)
			require.Len(t, up.deleted, c.deleted)
			if c.status == http.StatusOK {
				require.Contains(t, res.Body, testEmail)
			}
		})
	}
}

func TestHandleRequest_SubscriptionValidation(t *testing.T) {
	up := &fakeUpstream{}
	body := mustJSON(t, []interface{}{map[string]interface{}{
		"id":        "2d1781af-3a4c-4d7c-bd0c-e34b19da4e66",
		"subject":   "",
		"eventType": structs.SubscriptionValidationEventType,
		"data": map[string]interface{}{
			"validationCode": "512d38b6-c7b8-40c8-89fe-f46f9e9622b6",
		},
	}})

	res, err := testWebhook(up).HandleRequest(context.Background(), post(body))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.JSONEq(t, `{"validationResponse":"512d38b6-c7b8-40c8-89fe-f46f9e9622b6"}`, res.Body)
	require.Zero(t, up.tokens)
	require.Empty(t, up.deleted)
}

func TestHandleRequest_Options(t *testing.T) {
	req := events.LambdaFunctionURLRequest{
		Headers: map[string]string{"WebHook-Request-Origin": "eventgrid.azure.net"},
	}
	req.RequestContext.HTTP.Method = http.MethodOptions

	res, err := testWebhook(&fakeUpstream{}).HandleRequest(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "eventgrid.azure.net", res.Headers[headerWebhookAllowedOrigin])
}
