// Copyright 2026 The yolofe Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSettings(t *testing.T) {
	settings, err := ParseSettings(" width=608;height = 608 ;; max_batches=10_000;policy=steps;")
	require.NoError(t, err)
	require.Equal(t, []Setting{
		{"width", "608"},
		{"height", "608"},
		{"max_batches", "10000"},
		{"policy", "steps"},
	}, settings)

	settings, err = ParseSettings("")
	require.NoError(t, err)
	assert.Empty(t, settings)

	settings, err = ParseSettings("scales=.1,.1;name=a_b")
	require.NoError(t, err)
	assert.Equal(t, []Setting{{"scales", ".1,.1"}, {"name", "a_b"}}, settings)

	_, err = ParseSettings("width")
	require.Error(t, err)
	_, err = ParseSettings("=3")
	require.Error(t, err)
	_, err = ParseSettings("width=1;width=2")
	require.Error(t, err)
}
