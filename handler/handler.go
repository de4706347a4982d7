// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/hashicorp/go-hclog"

	"github.com/nr-user-mgmt/nr-user-deprovisioner/client"
	"github.com/nr-user-mgmt/nr-user-deprovisioner/structs"
	"github.com/nr-user-mgmt/nr-user-deprovisioner/trace"
)

var (
	// ErrInvalidInput is returned for events without a usable subject.
	ErrInvalidInput = structs.ErrInvalidInput

	ErrAuthFailure     = errors.New("token acquisition failed")
	ErrLookupFailure   = errors.New("directory lookup failed")
	ErrMutationFailure = errors.New("deprovisioning mutation failed")
)

// Response is the outcome of handling a single event.
type Response struct {
	StatusCode int
	Message    string

	// Err is the error that stopped the pipeline, if any.
	Err error
}

// Handle decodes a raw event and runs it through the deprovisioning pipeline.
func (env Environment) Handle(ctx context.Context, raw map[string]interface{}) Response {
	event, err := structs.DecodeEvent(raw)
	if err != nil {
		env.Logger.Warn("Rejecting event", "error", err)
		return Response{StatusCode: http.StatusBadRequest, Message: err.Error(), Err: err}
	}
	return env.HandleEvent(ctx, event)
}

// HandleEvent runs the pipeline for a decoded event: token, directory lookup, then the
// delete mutation. Each step runs at most once and the first failure ends the pipeline.
func (env Environment) HandleEvent(ctx context.Context, event structs.InboundEvent) Response {
	defer trace.Step("handle", "event_id", event.ID)()

	userID, err := event.UserID()
	if err != nil {
		env.Logger.Warn("Rejecting event", "event_id", event.ID, "error", err)
		return Response{StatusCode: http.StatusBadRequest, Message: err.Error(), Err: err}
	}

	logger := env.Logger.With("event_id", event.ID, "user_id", userID)

	if reason := env.skipReason(event); reason != "" {
		logger.Info("Ignoring event", "reason", reason, "event_type", event.EventType)
		return Response{StatusCode: http.StatusOK, Message: "Event ignored: " + reason}
	}

	email, err := env.deprovision(ctx, logger, event, userID)
	if err != nil {
		return Response{
			StatusCode: http.StatusInternalServerError,
			Message:    fmt.Sprintf("Failed to deprovision user %s", userID),
			Err:        err,
		}
	}

	logger.Info("User deprovisioned", "email", email)
	return Response{
		StatusCode: http.StatusOK,
		Message:    fmt.Sprintf("User %s deleted from New Relic", email),
	}
}

// skipReason returns a non-empty reason when the event must not trigger deprovisioning.
func (env Environment) skipReason(event structs.InboundEvent) string {
	if env.GroupName != "" {
		if group := event.GroupName(); group != "" && group != env.GroupName {
			return fmt.Sprintf("group %q is not managed", group)
		}
	}
	if event.IsMemberAdded() {
		return "user was added to the group"
	}
	if op := event.OperationType(); op != "" && !event.IsMemberRemoved() {
		return fmt.Sprintf("unhandled operation %q", op)
	}
	return ""
}

func (env Environment) deprovision(ctx context.Context, logger hclog.Logger, event structs.InboundEvent, userID string) (string, error) {
	stop := trace.Step("token")
	token, err := env.Tokens.Token(ctx)
	stop()
	if err != nil {
		logger.Error("Authentication failed", "error", err)
		return "", fmt.Errorf("%w: %w", ErrAuthFailure, err)
	}

	stop = trace.Step("lookup")
	email, err := env.Directory.LookupEmail(ctx, token, userID)
	stop()
	if err != nil {
		logger.Error("Directory lookup failed", "error", err)
		return "", fmt.Errorf("%w: %w", ErrLookupFailure, err)
	}

	stop = trace.Step("mutation")
	result, err := env.Deprovisioner.DeleteUser(ctx, email)
	stop()
	if err == nil && !result.Success {
		err = errors.New(result.ErrorMessage)
		if result.ErrorMessage == "" {
			err = errors.New("mutation did not report success")
		}
	}
	env.audit(ctx, logger, event, userID, email, err)
	if err != nil {
		logger.Error("Deprovisioning mutation failed", "email", email, "error", err)
		return "", fmt.Errorf("%w: %w", ErrMutationFailure, err)
	}

	return email, nil
}

// audit records the mutation outcome. Failures are logged and otherwise ignored.
func (env Environment) audit(ctx context.Context, logger hclog.Logger, event structs.InboundEvent, userID, email string, mutationErr error) {
	if env.Audit == nil {
		return
	}

	e := client.DeprovisionEvent{
		EventID: event.ID,
		UserID:  userID,
		Email:   email,
		Success: mutationErr == nil,
	}
	if mutationErr != nil {
		e.Error = mutationErr.Error()
	}

	if err := env.Audit.Record(ctx, e); err != nil {
		logger.Warn("Failed to record audit event", "error", err)
	}
}
