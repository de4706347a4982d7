// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package trace times the steps of a deprovisioning pipeline run.
package trace

import (
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

var (
	// enabled controls whether step timings are emitted. It is off by default so that
	// Step costs a single read when tracing isn't wanted.
	enabled bool

	logger hclog.Logger = hclog.NewNullLogger()
	level               = hclog.Debug

	mu sync.RWMutex
)

// Enabled turns step timing on or off.
func Enabled(e bool) {
	mu.Lock()
	defer mu.Unlock()
	enabled = e
}

// IsEnabled reports whether step timing is on.
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// SetLogger sets the logger timings are written to and the level they are written at.
func SetLogger(l hclog.Logger, lvl hclog.Level) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		l = hclog.NewNullLogger()
	}
	if lvl == hclog.NoLevel {
		lvl = hclog.Debug
	}
	logger = l
	level = lvl
}

// Timer measures a single named step.
type Timer struct {
	Name string
	log  hclog.Logger
	lvl  hclog.Level
	t0   time.Time
	args []interface{}
}

// Step starts timing the named step and returns the func that stops it.
// Extra key/value args are attached to the timing line.
//
//	defer trace.Step("token")()
func Step(name string, args ...interface{}) func() {
	if !IsEnabled() {
		return func() {}
	}
	t := Start(name, args...)
	return func() { t.Stop() }
}

// Start returns a running Timer bound to the current logger.
func Start(name string, args ...interface{}) *Timer {
	mu.RLock()
	defer mu.RUnlock()
	return &Timer{Name: name, log: logger, lvl: level, t0: time.Now(), args: args}
}

// Stop logs the elapsed time for the step and returns it.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.t0)
	kv := append([]interface{}{"step", t.Name, "elapsed", elapsed}, t.args...)
	t.log.Log(t.lvl, "step finished", kv...)
	return elapsed
}
