// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/hashicorp/go-multierror"

	"github.com/nr-user-mgmt/nr-user-deprovisioner/handler"
	"github.com/nr-user-mgmt/nr-user-deprovisioner/structs"
)

const (
	headerWebhookOrigin        = "webhook-request-origin"
	headerWebhookAllowedOrigin = "WebHook-Allowed-Origin"
)

// Webhook receives Event Grid webhook deliveries through a Lambda function URL.
type Webhook struct {
	env handler.Environment
}

// NewWebhook returns a Webhook that hands each delivered event to the handler.
func NewWebhook(env handler.Environment) *Webhook {
	return &Webhook{env: env}
}

// validationResponse answers the Event Grid subscription handshake.
type validationResponse struct {
	ValidationResponse string `json:"validationResponse"`
}

// HandleRequest processes a single webhook delivery.
func (h *Webhook) HandleRequest(ctx context.Context, req events.LambdaFunctionURLRequest) (events.LambdaFunctionURLResponse, error) {
	// CloudEvents abuse protection handshake.
	if req.RequestContext.HTTP.Method == http.MethodOptions {
		return events.LambdaFunctionURLResponse{
			StatusCode: http.StatusOK,
			Headers:    map[string]string{headerWebhookAllowedOrigin: header(req.Headers, headerWebhookOrigin)},
		}, nil
	}

	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return textResponse(http.StatusBadRequest, "invalid base64 body"), nil
		}
		body = decoded
	}

	raws, err := decodeDelivery(body)
	if err != nil {
		h.env.Logger.Warn("Rejecting delivery", "error", err)
		return textResponse(http.StatusBadRequest, err.Error()), nil
	}

	status := http.StatusOK
	var messages []string
	var resultErr error

	for _, raw := range raws {
		event, err := structs.DecodeEvent(raw)
		if err != nil {
			resultErr = multierror.Append(resultErr, err)
			status = maxStatus(status, http.StatusBadRequest)
			messages = append(messages, err.Error())
			continue
		}

		if event.IsSubscriptionValidation() {
			h.env.Logger.Info("Answering subscription validation", "event_id", event.ID)
			return jsonResponse(http.StatusOK, validationResponse{ValidationResponse: event.ValidationCode()}), nil
		}

		res := h.env.HandleEvent(ctx, event)
		if res.Err != nil {
			resultErr = multierror.Append(resultErr, res.Err)
		}
		status = maxStatus(status, res.StatusCode)
		messages = append(messages, res.Message)
	}

	if resultErr != nil {
		h.env.Logger.Warn("Delivery finished with errors", "count", len(raws), "error", resultErr)
	}
	return textResponse(status, strings.Join(messages, "\n")), nil
}

// decodeDelivery accepts the Event Grid array form as well as a single event object.
func decodeDelivery(body []byte) ([]map[string]interface{}, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, structs.ErrInvalidInput
	}

	if strings.HasPrefix(trimmed, "{") {
		var raw map[string]interface{}
		if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
			return nil, fmt.Errorf("%w: %s", structs.ErrInvalidInput, err)
		}
		return []map[string]interface{}{raw}, nil
	}

	var raws []map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &raws); err != nil {
		return nil, fmt.Errorf("%w: %s", structs.ErrInvalidInput, err)
	}
	if len(raws) == 0 {
		return nil, structs.ErrInvalidInput
	}
	return raws, nil
}

func maxStatus(a, b int) int {
	if b > a {
		return b
	}
	return a
}

func header(h map[string]string, k string) string {
	for name, v := range h {
		if strings.EqualFold(name, k) {
			return v
		}
	}
	return ""
}

func textResponse(status int, msg string) events.LambdaFunctionURLResponse {
	return events.LambdaFunctionURLResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "text/plain; charset=utf-8"},
		Body:       msg,
	}
}

func jsonResponse(status int, v interface{}) events.LambdaFunctionURLResponse {
	b, _ := json.Marshal(v)
	return events.LambdaFunctionURLResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(b),
	}
}
