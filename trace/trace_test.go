// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package trace_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/nr-user-mgmt/nr-user-deprovisioner/trace"
)

func TestStep(t *testing.T) {
	var buf bytes.Buffer
	logger := hclog.New(&hclog.LoggerOptions{Output: &buf, Level: hclog.Trace})

	t.Cleanup(func() {
		trace.Enabled(false)
		trace.SetLogger(nil, hclog.NoLevel)
	})

	trace.SetLogger(logger, hclog.Info)
	trace.Enabled(false)
	require.False(t, trace.IsEnabled())
	trace.Step("lookup")()
	require.Empty(t, buf.String())

	trace.Enabled(true)
	require.True(t, trace.IsEnabled())
	stop := trace.Step("lookup", "user_id", "u-1")
	time.Sleep(time.Millisecond)
	stop()

	out := buf.String()
	require.Contains(t, out, "[INFO]")
	require.Contains(t, out, "step finished")
	require.Contains(t, out, "step=lookup")
	require.Contains(t, out, "user_id=u-1")
}

func TestTimerStop(t *testing.T) {
	timer := trace.Start("mutation")
	time.Sleep(time.Millisecond)
	require.GreaterOrEqual(t, timer.Stop(), time.Millisecond)
}
