package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const (
	headerInsertKey = "X-Insert-Key"

	fmtInsightsEventsURL = "%s/v1/accounts/%s/events"

	// DeprovisionEventType is the custom event type recorded after each deprovisioning attempt.
	DeprovisionEventType = "NrUserDeprovisioned"
)

// DeprovisionEvent is the audit record sent to the New Relic event API.
type DeprovisionEvent struct {
	EventType string `json:"eventType"`
	EventID   string `json:"eventId,omitempty"`
	UserID    string `json:"userId"`
	Email     string `json:"email"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// Insights is a client for the New Relic event collector.
type Insights struct {
	url        string
	insertKey  string
	httpClient *http.Client
}

// NewInsights returns a client that posts custom events to the given account.
func NewInsights(baseURL, accountID, insertKey string, httpClient *http.Client) *Insights {
	return &Insights{
		url:        fmt.Sprintf(fmtInsightsEventsURL, strings.TrimRight(baseURL, "/"), accountID),
		insertKey:  insertKey,
		httpClient: httpClient,
	}
}

// Record posts a single audit event.
func (c *Insights) Record(ctx context.Context, e DeprovisionEvent) error {
	if e.EventType == "" {
		e.EventType = DeprovisionEventType
	}

	reqBody, err := json.Marshal([]DeprovisionEvent{e})
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(headerInsertKey, c.insertKey)

	httpRes, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer httpRes.Body.Close()

	if httpRes.StatusCode != http.StatusOK {
		return statusError(httpRes)
	}
	return nil
}
