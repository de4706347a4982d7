// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package structs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
)

const (
	// SubscriptionValidationEventType is sent by Event Grid when a webhook subscription is created.
	SubscriptionValidationEventType = "Microsoft.EventGrid.SubscriptionValidationEvent"

	OperationAddMember    = "AddMember"
	OperationRemoveMember = "RemoveMember"

	eventTypeUserAdded   = "UserAddedToGroup"
	eventTypeUserRemoved = "UserRemovedFromGroup"
)

// ErrInvalidInput is returned when an event can't be turned into a user identifier.
var ErrInvalidInput = errors.New("invalid input")

// InboundEvent is a single Event Grid event describing a group membership change.
type InboundEvent struct {
	ID          string                 `mapstructure:"id"`
	Subject     string                 `mapstructure:"subject"`
	EventType   string                 `mapstructure:"eventType"`
	EventTime   string                 `mapstructure:"eventTime"`
	DataVersion string                 `mapstructure:"dataVersion"`
	Data        map[string]interface{} `mapstructure:"data"`
}

// DecodeEvent converts a raw event mapping into an InboundEvent.
func DecodeEvent(raw map[string]interface{}) (InboundEvent, error) {
	var e InboundEvent
	if raw == nil {
		return e, fmt.Errorf("%w: empty event", ErrInvalidInput)
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &e,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return e, err
	}
	if err := dec.Decode(raw); err != nil {
		return e, fmt.Errorf("%w: decoding event: %s", ErrInvalidInput, err)
	}
	return e, nil
}

// UserID returns the last segment of the subject path. The segment must be a UUID.
func (e InboundEvent) UserID() (string, error) {
	subject := strings.TrimSpace(e.Subject)
	if subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidInput)
	}

	id := subject[strings.LastIndex(subject, "/")+1:]
	if id == "" {
		return "", fmt.Errorf("%w: subject %q has no user identifier", ErrInvalidInput, subject)
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("%w: subject %q does not end in a user identifier", ErrInvalidInput, subject)
	}
	return id, nil
}

// OperationType returns data.operationType, or an empty string.
func (e InboundEvent) OperationType() string {
	return e.dataString("operationType")
}

// GroupName returns data.groupName, or an empty string.
func (e InboundEvent) GroupName() string {
	return e.dataString("groupName")
}

// ValidationCode returns data.validationCode for subscription validation events.
func (e InboundEvent) ValidationCode() string {
	return e.dataString("validationCode")
}

// IsSubscriptionValidation reports whether this is the Event Grid webhook handshake.
func (e InboundEvent) IsSubscriptionValidation() bool {
	return e.EventType == SubscriptionValidationEventType
}

// IsMemberAdded reports whether the event describes a user joining the group.
func (e InboundEvent) IsMemberAdded() bool {
	return e.OperationType() == OperationAddMember || strings.Contains(e.EventType, eventTypeUserAdded)
}

// IsMemberRemoved reports whether the event explicitly describes a user leaving the group.
func (e InboundEvent) IsMemberRemoved() bool {
	return e.OperationType() == OperationRemoveMember || strings.Contains(e.EventType, eventTypeUserRemoved)
}

func (e InboundEvent) dataString(key string) string {
	if e.Data == nil {
		return ""
	}
	v, ok := e.Data[key].(string)
	if !ok {
		return ""
	}
	return v
}

// DeprovisionResult is the outcome of the remote delete mutation.
type DeprovisionResult struct {
	Success      bool
	ErrorMessage string
}
