// Copyright 2026 The yolofe Authors. SPDX-License-Identifier: Apache-2.0

package trainer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/yolofe/yolofe/pkg/darknet"
	"k8s.io/klog/v2"
)

// TrainRequest describes one training run.
type TrainRequest struct {
	// Dataset name, used to name the log file.
	Dataset string

	// Files generated by darknet.Templater.Prepare.
	Files *darknet.Files

	// Progress, if set, is called for every iteration line of the trainer, and the raw trainer output
	// goes only to the log file. Otherwise the output is also streamed to the Trainer's Stdout/Stderr.
	Progress func(Progress)

	// Extra arguments appended to the trainer command line.
	Extra []string
}

// TrainResult is returned by Train.
type TrainResult struct {
	ExitCode int
	RunID    string
	LogPath  string

	// Last progress parsed, nil if the trainer didn't report any iteration.
	Last *Progress
}

// Train runs the trainer on the files prepared for a dataset, blocking until it finishes.
func (t *Trainer) Train(ctx context.Context, req TrainRequest) (*TrainResult, error) {
	s := t.settings
	if req.Files == nil {
		return nil, errors.New("Train requires the prepared files")
	}
	if err := t.Installed(); err != nil {
		return nil, err
	}
	if err := requireFile("pre-trained weights", s.PretrainedWeights); err != nil {
		return nil, errors.WithMessage(err, "run \"yolofe setup\" to download them")
	}
	if err := os.MkdirAll(s.BackupDir, 0755); err != nil {
		return nil, errors.Wrapf(err, "failed to create %q", s.BackupDir)
	}

	result := &TrainResult{RunID: uuid.NewString()}
	result.LogPath = filepath.Join(s.BackupDir, fmt.Sprintf("%s-%s.log", req.Dataset, result.RunID))
	logFile, err := os.Create(result.LogPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create log file %q", result.LogPath)
	}
	defer func() { _ = logFile.Close() }()
	klog.Infof("Training %q (run %s), trainer output logged to %q", req.Dataset, result.RunID, result.LogPath)

	lines := newLineWriter(func(line string) {
		p, ok := ParseProgress(line)
		if !ok {
			klog.V(2).Info(line)
			return
		}
		result.Last = &p
		if req.Progress != nil {
			req.Progress(p)
		}
	})
	var stdout, stderr io.Writer
	if req.Progress != nil {
		stdout = io.MultiWriter(logFile, lines)
		stderr = logFile
	} else {
		stdout = io.MultiWriter(logFile, lines, t.Stdout)
		stderr = io.MultiWriter(logFile, t.Stderr)
	}

	args := append([]string{"detector", "train", req.Files.Data, req.Files.Network, s.PretrainedWeights, "-dont_show"},
		req.Extra...)
	result.ExitCode, err = t.Run(ctx, stdout, stderr, args...)
	lines.Flush()
	if err != nil {
		return result, err
	}
	if err = logFile.Sync(); err != nil {
		klog.Warningf("Failed to sync log file %q: %v", result.LogPath, err)
	}
	return result, nil
}

// TestRequest describes the evaluation of a trained classifier.
type TestRequest struct {
	Files *darknet.Files

	// Weights of the classifier, see ResolveWeights.
	Weights string

	// Extra arguments appended to the trainer command line.
	Extra []string
}

// Test measures the mean average precision of a trained classifier on the test manifest.
// It returns the trainer exit code.
func (t *Trainer) Test(ctx context.Context, req TestRequest) (int, error) {
	if req.Files == nil {
		return -1, errors.New("Test requires the prepared files")
	}
	if err := requireFile("classifier", req.Weights); err != nil {
		return -1, err
	}
	args := append([]string{"detector", "map", req.Files.Data, req.Files.Network, req.Weights}, req.Extra...)
	return t.Run(ctx, t.Stdout, t.Stderr, args...)
}
