// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nr-user-mgmt/nr-user-deprovisioner/handler"
)

// InvokeRequest is the payload the Functions host posts to a custom handler.
type InvokeRequest struct {
	Data     map[string]json.RawMessage `json:"Data"`
	Metadata map[string]interface{}     `json:"Metadata"`
}

// InvokeResponse is the custom handler reply read back by the Functions host.
type InvokeResponse struct {
	Outputs     map[string]interface{} `json:"Outputs"`
	Logs        []string               `json:"Logs"`
	ReturnValue interface{}            `json:"ReturnValue"`
}

// HTTPOutput is the value of the "res" output binding.
type HTTPOutput struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// Server adapts Functions host invocations to the event handler.
type Server struct {
	env         handler.Environment
	bindingName string
}

// NewServer returns a Server that reads the event from the named trigger binding.
func NewServer(env handler.Environment, bindingName string) *Server {
	return &Server{env: env, bindingName: bindingName}
}

// Router returns the HTTP routes served to the Functions host.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/{function}", s.invoke)
	return r
}

func (s *Server) invoke(w http.ResponseWriter, r *http.Request) {
	function := chi.URLParam(r, "function")
	logger := s.env.Logger.With("function", function)

	var req InvokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("Rejecting invocation", "error", err)
		writeInvokeResponse(w, handler.Response{
			StatusCode: http.StatusBadRequest,
			Message:    "invalid invocation payload",
		})
		return
	}

	raw, err := decodeBinding(req.Data[s.bindingName])
	if err != nil {
		logger.Warn("Rejecting invocation", "binding", s.bindingName, "error", err)
		writeInvokeResponse(w, handler.Response{
			StatusCode: http.StatusBadRequest,
			Message:    err.Error(),
		})
		return
	}

	res := s.env.Handle(r.Context(), raw)
	writeInvokeResponse(w, res)
}

// decodeBinding accepts the event either as a JSON object or as a JSON string holding one.
func decodeBinding(b json.RawMessage) (map[string]interface{}, error) {
	if len(b) == 0 || string(b) == "null" {
		return nil, fmt.Errorf("%w: missing event binding", handler.ErrInvalidInput)
	}

	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		b = json.RawMessage(s)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("%w: event is not a JSON object: %s", handler.ErrInvalidInput, err)
	}
	return raw, nil
}

func writeInvokeResponse(w http.ResponseWriter, res handler.Response) {
	body := InvokeResponse{
		Outputs: map[string]interface{}{
			"res": HTTPOutput{StatusCode: res.StatusCode, Body: res.Message},
		},
		Logs:        []string{res.Message},
		ReturnValue: res.Message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(res.StatusCode)
	_ = json.NewEncoder(w).Encode(body)
}
