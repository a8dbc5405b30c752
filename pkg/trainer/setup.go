// Copyright 2026 The yolofe Authors. SPDX-License-Identifier: Apache-2.0

package trainer

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/yolofe/yolofe/pkg/downloader"
	"github.com/yolofe/yolofe/pkg/support/fsutil"
	"k8s.io/klog/v2"
)

// GPUMode selects whether the trainer is built with CUDA support.
type GPUMode string

const (
	GPUAuto GPUMode = "auto"
	GPUOn   GPUMode = "on"
	GPUOff  GPUMode = "off"
)

// ParseGPUMode parses "auto", "on" or "off".
func ParseGPUMode(s string) (GPUMode, error) {
	switch m := GPUMode(strings.ToLower(strings.TrimSpace(s))); m {
	case GPUAuto, GPUOn, GPUOff:
		return m, nil
	}
	return "", errors.Errorf("invalid GPU mode %q, valid values are auto, on or off", s)
}

// lookPath is replaced in tests.
var lookPath = exec.LookPath

// DetectGPU reports whether an NVidia driver seems to be available, by looking for nvidia-smi.
func DetectGPU() bool {
	_, err := lookPath("nvidia-smi")
	return err == nil
}

// Enabled resolves the mode to whether CUDA should be used.
func (m GPUMode) Enabled() bool {
	switch m {
	case GPUOn:
		return true
	case GPUOff:
		return false
	}
	return DetectGPU()
}

// SetupOptions configure Setup.
type SetupOptions struct {
	GPU GPUMode

	// OpenCV builds the trainer with OpenCV (requires the library installed in the system).
	OpenCV bool

	// Force rebuilds the trainer even if the binary already exists.
	Force bool

	// Jobs is the number of parallel make jobs. Defaults to runtime.NumCPU().
	Jobs int
}

// MakeFlag is one of the boolean variables at the top of the trainer's Makefile.
type MakeFlag struct {
	Name    string
	Enabled bool
}

// ConfigureMakefile sets the given boolean flags ("NAME=0" or "NAME=1" lines) in the Makefile contents.
// It fails if any of the flags is not defined in the Makefile.
func ConfigureMakefile(contents []byte, flags []MakeFlag) ([]byte, error) {
	found := make(map[string]bool, len(flags))
	var out bytes.Buffer
	scanner := bufio.NewScanner(bytes.NewReader(contents))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if key, _, ok := strings.Cut(line, "="); ok {
			key = strings.TrimSpace(key)
			for _, flag := range flags {
				if flag.Name != key {
					continue
				}
				value := 0
				if flag.Enabled {
					value = 1
				}
				line = fmt.Sprintf("%s=%d", key, value)
				found[key] = true
				break
			}
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read Makefile")
	}
	for _, flag := range flags {
		if !found[flag.Name] {
			return nil, errors.Errorf("Makefile doesn't define %s", flag.Name)
		}
	}
	return out.Bytes(), nil
}

// Setup downloads the trainer source code, builds it and downloads the pre-trained weights.
// Steps already done are skipped, so it can be called again to resume an interrupted setup.
func (t *Trainer) Setup(ctx context.Context, opts SetupOptions) error {
	s := t.settings
	makefile := filepath.Join(s.TrainerDir, "Makefile")
	hasSource, err := fsutil.FileExists(t.fs, makefile)
	if err != nil {
		return err
	}
	if !hasSource {
		if err = t.fetchSource(ctx); err != nil {
			return err
		}
	}

	gpu := opts.GPU
	if gpu == "" {
		gpu = GPUAuto
	}
	useGPU := gpu.Enabled()
	klog.Infof("Configuring trainer: GPU=%v (mode %s), OpenCV=%v", useGPU, gpu, opts.OpenCV)
	contents, err := os.ReadFile(makefile)
	if err != nil {
		return errors.Wrapf(err, "failed to read %q", makefile)
	}
	contents, err = ConfigureMakefile(contents, []MakeFlag{
		{"GPU", useGPU},
		{"CUDNN", useGPU},
		{"OPENCV", opts.OpenCV},
	})
	if err != nil {
		return errors.WithMessagef(err, "failed to configure %q", makefile)
	}
	if err = os.WriteFile(makefile, contents, 0644); err != nil {
		return errors.Wrapf(err, "failed to write %q", makefile)
	}

	if opts.Force || t.Installed() != nil {
		if opts.Force {
			if err = t.make(ctx, "clean"); err != nil {
				return err
			}
		}
		jobs := opts.Jobs
		if jobs <= 0 {
			jobs = runtime.NumCPU()
		}
		if err = t.make(ctx, fmt.Sprintf("-j%d", jobs)); err != nil {
			return err
		}
		if err = t.Installed(); err != nil {
			return errors.WithMessage(err, "build finished but")
		}
	} else {
		klog.Infof("Trainer already built at %q, use --force to rebuild", s.Binary)
	}

	for _, dir := range []string{s.DataDir, s.CfgDir, s.BackupDir} {
		if err = os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "failed to create %q", dir)
		}
	}
	if err = downloader.New(t.Stdout).DownloadIfMissing(ctx, s.WeightsURL, s.PretrainedWeights, ""); err != nil {
		return errors.WithMessage(err, "failed to fetch pre-trained weights")
	}
	return nil
}

// fetchSource downloads and unpacks the source tarball, and moves its single top-level directory
// contents into the trainer directory.
func (t *Trainer) fetchSource(ctx context.Context) error {
	s := t.settings
	parent := filepath.Dir(s.TrainerDir)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return errors.Wrapf(err, "failed to create %q", parent)
	}
	tarFile := filepath.Join(parent, "trainer-source.tar.gz")
	if err := downloader.New(t.Stdout).DownloadIfMissing(ctx, s.SourceURL, tarFile, ""); err != nil {
		return errors.WithMessage(err, "failed to fetch trainer source")
	}
	tmpDir, err := os.MkdirTemp(parent, ".yolofe-source-")
	if err != nil {
		return errors.Wrapf(err, "failed to create temporary directory under %q", parent)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()
	if err = downloader.Untar(ctx, tmpDir, tarFile); err != nil {
		return err
	}
	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		return errors.Wrapf(err, "failed to read %q", tmpDir)
	}
	if len(entries) != 1 || !entries[0].IsDir() {
		return errors.Errorf("trainer source %q should contain a single top-level directory, got %d entries",
			s.SourceURL, len(entries))
	}
	if err = moveContents(t.fs, filepath.Join(tmpDir, entries[0].Name()), s.TrainerDir); err != nil {
		return err
	}
	if err = os.Remove(tarFile); err != nil {
		klog.Warningf("Failed to remove %q: %v", tarFile, err)
	}
	return nil
}

// moveContents moves every entry of src into dst, keeping entries already in dst (e.g. the data
// directories of a previous run).
func moveContents(fs afero.Fs, src, dst string) error {
	if err := os.MkdirAll(dst, 0755); err != nil {
		return errors.Wrapf(err, "failed to create %q", dst)
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return errors.Wrapf(err, "failed to read %q", src)
	}
	for _, entry := range entries {
		to := filepath.Join(dst, entry.Name())
		exists, err := fsutil.FileExists(fs, to)
		if err != nil {
			return err
		}
		if exists {
			klog.V(1).Infof("Keeping existing %q", to)
			continue
		}
		if err = os.Rename(filepath.Join(src, entry.Name()), to); err != nil {
			return errors.Wrapf(err, "failed to move %q into %q", entry.Name(), dst)
		}
	}
	return nil
}

func (t *Trainer) make(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "make", args...)
	cmd.Dir = t.settings.TrainerDir
	cmd.Stdout, cmd.Stderr = t.Stdout, t.Stderr
	klog.Infof("Building trainer: %q", cmd)
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "failed to run %q in %q", cmd, cmd.Dir)
	}
	return nil
}
