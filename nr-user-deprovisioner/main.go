// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nr-user-mgmt/nr-user-deprovisioner/handler"
)

const (
	defaultPort        = "8080"
	defaultBindingName = "event"
	shutdownTimeout    = 10 * time.Second
)

func main() {
	ctx := context.Background()

	env, err := handler.SetupEnvironment(ctx)
	if err != nil {
		// We can't use the logger because of the error.
		fmt.Println("Error setting up the environment:", err)
		os.Exit(1)
	}

	if err := realMain(ctx, env); err != nil {
		env.Logger.Error("fatal error, exiting", "error", err)
		os.Exit(1)
	}
}

func realMain(ctx context.Context, env handler.Environment) error {
	// The Functions host hands the custom handler its port through the environment.
	addr := net.JoinHostPort("", getEnvOrDefault("FUNCTIONS_CUSTOMHANDLER_PORT", defaultPort))
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewServer(env, getEnvOrDefault("EVENT_BINDING_NAME", defaultBindingName)).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		env.Logger.Info("listening", "addr", addr)
		errChan <- srv.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		env.Logger.Info("Received shutdown signal, exiting")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func getEnvOrDefault(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
