// Copyright 2026 The yolofe Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressBar(t *testing.T) {
	maxUpdateFrequency = time.Millisecond
	var buf bytes.Buffer
	pBar := NewProgressBar(&buf, "training", 100)
	for step := 1; step <= 10; step++ {
		pBar.Update(step, Metric{"Loss", "1.5"}, Metric{"Avg loss", "1.7"})
	}
	pBar.Close()
	pBar.Close() // Idempotent.

	out := buf.String()
	assert.Contains(t, out, "Iteration")
	assert.Contains(t, out, "of 100")
	assert.Contains(t, out, "Avg loss")
	assert.Contains(t, out, "training")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "1.23s", FormatDuration(1234567*time.Microsecond))
	assert.Equal(t, "1h2m3s", FormatDuration(time.Hour+2*time.Minute+3*time.Second+400*time.Millisecond))
	assert.Equal(t, "12.35ms", FormatDuration(12345678*time.Nanosecond))
}
