// Copyright 2026 The yolofe Authors. SPDX-License-Identifier: Apache-2.0

package trainer

import (
	"bytes"
	"context"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yolofe/yolofe/pkg/darknet"
	"github.com/yolofe/yolofe/pkg/settings"
)

const fakeTrainer = `#!/bin/sh
echo "args: $@"
echo " 1: 10.50, 10.50 avg loss, 0.000010 rate, 1.20 seconds, 64 images, 2.00 hours left"
printf ' 2: 9.50, 10.40 avg loss, 0.000020 rate, 1.10 seconds, 128 images, 1.90 hours left\n'
echo "loading weights" >&2
exit ${FAKE_EXIT:-0}
`

// syncBuffer is a bytes.Buffer safe for the concurrent writes of stdout and stderr.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// newFakeTrainer returns a Trainer whose binary is a shell script printing progress lines and
// exiting with $FAKE_EXIT.
func newFakeTrainer(t *testing.T) (*Trainer, *settings.Settings, *syncBuffer) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake trainer requires a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	s := settings.Default(t.TempDir())
	require.NoError(t, s.Resolve())
	require.NoError(t, os.MkdirAll(s.TrainerDir, 0755))
	require.NoError(t, os.WriteFile(s.Binary, []byte(fakeTrainer), 0755))
	tr := New(s)
	out := &syncBuffer{}
	tr.Stdout, tr.Stderr = out, out
	return tr, s, out
}

func fakeFiles(s *settings.Settings) *darknet.Files {
	return &darknet.Files{
		Network: filepath.Join(s.CfgDir, "ds-train.cfg"),
		Data:    filepath.Join(s.DataDir, "obj.data"),
	}
}

func TestInstalled(t *testing.T) {
	s := settings.Default(t.TempDir())
	require.NoError(t, s.Resolve())
	tr := New(s)
	require.ErrorIs(t, tr.Installed(), ErrNotInstalled)
	_, err := tr.Run(context.Background(), nil, nil, "version")
	require.ErrorIs(t, err, ErrNotInstalled)

	require.NoError(t, os.MkdirAll(s.Binary, 0755))
	require.ErrorIs(t, tr.Installed(), ErrNotInstalled)
}

func TestRunExitCode(t *testing.T) {
	tr, _, out := newFakeTrainer(t)
	code, err := tr.Run(context.Background(), tr.Stdout, tr.Stderr, "x", "y")
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "args: x y")

	t.Setenv("FAKE_EXIT", "3")
	code, err = tr.Run(context.Background(), tr.Stdout, tr.Stderr)
	require.NoError(t, err)
	assert.Equal(t, 3, code)
}

func TestParseProgress(t *testing.T) {
	p, ok := ParseProgress(" 1234: 1.234567, 2.345678 avg loss, 0.002610 rate, 3.141500 seconds, 78976 images, 5.120000 hours left")
	require.True(t, ok)
	assert.Equal(t, 1234, p.Iteration)
	assert.InDelta(t, 1.234567, p.Loss, 1e-9)
	assert.InDelta(t, 2.345678, p.AvgLoss, 1e-9)
	assert.InDelta(t, 0.00261, p.LearningRate, 1e-9)
	assert.InDelta(t, 3.1415, p.Seconds, 1e-9)
	assert.Equal(t, 78976, p.Images)
	assert.InDelta(t, 5.12, p.HoursLeft, 1e-9)

	// Older trainers don't print the time left, and losses may diverge.
	p, ok = ParseProgress("7: -nan, nan avg loss, 0.001000 rate, 0.5 seconds, 448 images")
	require.True(t, ok)
	assert.Equal(t, 7, p.Iteration)
	assert.True(t, math.IsNaN(p.Loss))
	assert.True(t, math.IsNaN(p.AvgLoss))
	assert.Equal(t, -1.0, p.HoursLeft)

	for _, line := range []string{"", "Loading weights from yolov4-tiny.conv.29...", "mAP@0.50 = 0.812", " 12: 3.2, 3.1"} {
		_, ok = ParseProgress(line)
		assert.False(t, ok, "line %q", line)
	}
}

func TestLineWriter(t *testing.T) {
	var lines []string
	w := newLineWriter(func(line string) { lines = append(lines, line) })
	_, _ = w.Write([]byte("first\nsec"))
	_, _ = w.Write([]byte("ond\r\nthird\rfourth"))
	assert.Equal(t, []string{"first", "second", "third"}, lines)
	w.Flush()
	assert.Equal(t, []string{"first", "second", "third", "fourth"}, lines)
}

func TestTrain(t *testing.T) {
	tr, s, out := newFakeTrainer(t)
	ctx := context.Background()

	// Missing pre-trained weights.
	_, err := tr.Train(ctx, TrainRequest{Dataset: "ds", Files: fakeFiles(s)})
	require.ErrorIs(t, err, ErrMissingArtifact)

	require.NoError(t, os.WriteFile(s.PretrainedWeights, []byte("w"), 0644))
	var progress []Progress
	result, err := tr.Train(ctx, TrainRequest{
		Dataset:  "ds",
		Files:    fakeFiles(s),
		Progress: func(p Progress) { progress = append(progress, p) },
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	require.Len(t, progress, 2)
	assert.Equal(t, 2, progress[1].Iteration)
	require.NotNil(t, result.Last)
	assert.Equal(t, 128, result.Last.Images)

	// With a progress callback the output only goes to the log.
	assert.Empty(t, out.String())
	assert.Equal(t, s.BackupDir, filepath.Dir(result.LogPath))
	assert.True(t, strings.HasPrefix(filepath.Base(result.LogPath), "ds-"+result.RunID))
	logContents, err := os.ReadFile(result.LogPath)
	require.NoError(t, err)
	assert.Contains(t, string(logContents), "args: detector train "+fakeFiles(s).Data+" "+fakeFiles(s).Network+" "+
		s.PretrainedWeights+" -dont_show")
	assert.Contains(t, string(logContents), "loading weights")

	// Without a callback output is streamed, and the exit code forwarded.
	t.Setenv("FAKE_EXIT", "2")
	result, err = tr.Train(ctx, TrainRequest{Dataset: "ds", Files: fakeFiles(s), Extra: []string{"-map"}})
	require.NoError(t, err)
	assert.Equal(t, 2, result.ExitCode)
	assert.Contains(t, out.String(), "-dont_show -map")
	assert.Contains(t, out.String(), "loading weights")
}

func TestTest(t *testing.T) {
	tr, s, out := newFakeTrainer(t)
	ctx := context.Background()

	_, err := tr.ResolveWeights("ds_final")
	require.ErrorIs(t, err, ErrMissingArtifact)
	_, err = tr.Test(ctx, TestRequest{Files: fakeFiles(s), Weights: filepath.Join(s.BackupDir, "missing.weights")})
	require.ErrorIs(t, err, ErrMissingArtifact)

	require.NoError(t, os.MkdirAll(s.BackupDir, 0755))
	weights := filepath.Join(s.BackupDir, "ds_final.weights")
	require.NoError(t, os.WriteFile(weights, []byte("w"), 0644))
	resolved, err := tr.ResolveWeights("ds_final")
	require.NoError(t, err)
	assert.Equal(t, weights, resolved)
	resolved, err = tr.ResolveWeights(weights)
	require.NoError(t, err)
	assert.Equal(t, weights, resolved)

	code, err := tr.Test(ctx, TestRequest{Files: fakeFiles(s), Weights: resolved})
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "args: detector map "+fakeFiles(s).Data+" "+fakeFiles(s).Network+" "+weights)
}
