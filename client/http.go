// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package client

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

const (
	defaultTimeout = 30 * time.Second

	// maxErrorBody caps how much of an unexpected response body ends up in an error.
	maxErrorBody = 1024
)

// NewHTTPClient returns the pooled HTTP client shared by the upstream clients.
func NewHTTPClient() *http.Client {
	c := cleanhttp.DefaultPooledClient()
	c.Timeout = defaultTimeout
	return c
}

// statusError reads a bounded chunk of the response body into an error for a non-2xx status.
func statusError(res *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
	if len(body) == 0 {
		return fmt.Errorf("request failed with status %s", res.Status)
	}
	return fmt.Errorf("request failed with status %s: %s", res.Status, body)
}
