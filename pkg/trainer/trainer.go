// Copyright 2026 The yolofe Authors. SPDX-License-Identifier: Apache-2.0

// Package trainer drives the external Darknet trainer: it downloads and builds it ("setup"), and runs it
// to train a detector or to measure a trained one.
//
// Every invocation of the trainer is a single synchronous call that returns the trainer's exit code.
package trainer

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/yolofe/yolofe/pkg/settings"
	"k8s.io/klog/v2"
)

var (
	// ErrNotInstalled is returned (wrapped) when the trainer binary hasn't been built yet.
	ErrNotInstalled = errors.New("trainer not installed, run \"yolofe setup\" first")

	// ErrMissingArtifact is returned (wrapped) when a required file (pre-trained weights, classifier) is missing.
	ErrMissingArtifact = errors.New("required file missing")
)

// Trainer runs the trainer binary configured in the settings.
type Trainer struct {
	settings *settings.Settings
	fs       afero.Fs

	// Stdout and Stderr receive the trainer output when it is not captured. Default to os.Stdout and os.Stderr.
	Stdout, Stderr io.Writer
}

// New creates a Trainer for the given settings.
func New(s *settings.Settings) *Trainer {
	return &Trainer{settings: s, fs: afero.NewOsFs(), Stdout: os.Stdout, Stderr: os.Stderr}
}

// Installed returns nil if the trainer binary is present, or an error wrapping ErrNotInstalled.
func (t *Trainer) Installed() error {
	info, err := os.Stat(t.settings.Binary)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return errors.Wrapf(ErrNotInstalled, "no trainer binary at %q", t.settings.Binary)
		}
		return errors.Wrapf(err, "failed to check trainer binary %q", t.settings.Binary)
	}
	if info.IsDir() {
		return errors.Wrapf(ErrNotInstalled, "trainer binary %q is a directory", t.settings.Binary)
	}
	return nil
}

// requireFile returns an error wrapping ErrMissingArtifact if path is not a regular file.
func requireFile(what, path string) error {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return errors.Wrapf(ErrMissingArtifact, "%s %q", what, path)
	}
	return nil
}

// Run the trainer binary with args, from the trainer directory, and wait for it to finish.
//
// It returns the exit code of the trainer. The error is only set if the trainer couldn't be run at all, or
// if ctx was cancelled.
func (t *Trainer) Run(ctx context.Context, stdout, stderr io.Writer, args ...string) (exitCode int, err error) {
	if err = t.Installed(); err != nil {
		return -1, err
	}
	cmd := exec.CommandContext(ctx, t.settings.Binary, args...)
	cmd.Dir = t.settings.TrainerDir
	cmd.Stdout, cmd.Stderr = stdout, stderr
	klog.V(1).Infof("Running %q in %q", cmd, cmd.Dir)
	err = cmd.Run()
	if err == nil {
		return 0, nil
	}
	if ctx.Err() != nil {
		return -1, errors.Wrapf(ctx.Err(), "%s interrupted", filepath.Base(t.settings.Binary))
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, errors.Wrapf(err, "failed to run %q", cmd)
}

// ResolveWeights finds a weights file given by the user: either a path to an existing file, or the name of a
// file in the backup directory (where the trainer saves its weights). The ".weights" extension can be omitted.
func (t *Trainer) ResolveWeights(name string) (string, error) {
	candidates := []string{name, name + ".weights"}
	if !filepath.IsAbs(name) {
		candidates = append(candidates,
			filepath.Join(t.settings.BackupDir, name),
			filepath.Join(t.settings.BackupDir, name+".weights"))
	}
	for _, candidate := range candidates {
		if requireFile("classifier", candidate) == nil {
			abs, err := filepath.Abs(candidate)
			if err != nil {
				return "", errors.Wrapf(err, "failed to make %q absolute", candidate)
			}
			return abs, nil
		}
	}
	return "", errors.Wrapf(ErrMissingArtifact, "classifier %q not found (also looked in %q)", name, t.settings.BackupDir)
}
