// Copyright 2026 The yolofe Authors. SPDX-License-Identifier: Apache-2.0

// Package settings holds every path and URL used by yolofe, so that operations never depend on the
// current working directory or on package globals.
//
// Settings are resolved in layers: Default values relative to a work directory, then an optional
// YAML file, then environment variables (optionally loaded from a ".env" file).
package settings

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/yolofe/yolofe/pkg/support/fsutil"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

// FileName is the settings file looked up in the work directory when none is given explicitly.
const FileName = "yolofe.yaml"

// Environment variables overriding the settings.
const (
	EnvWorkDir     = "YOLOFE_WORKDIR"
	EnvDatasetsDir = "YOLOFE_DATASETS_DIR"
	EnvTrainerDir  = "YOLOFE_TRAINER_DIR"
)

const (
	// DefaultSourceURL is the Darknet source tarball built by "setup".
	DefaultSourceURL = "https://github.com/AlexeyAB/darknet/archive/refs/heads/master.tar.gz"

	// DefaultWeightsURL holds the pre-trained convolutional weights matching the default network template.
	DefaultWeightsURL = "https://github.com/AlexeyAB/darknet/releases/download/darknet_yolo_v4_pre/yolov4-tiny.conv.29"
)

// Settings with all the locations used by the tool. Relative paths are resolved against WorkDir by Resolve.
type Settings struct {
	// WorkDir is the root of everything else, by default the current directory.
	WorkDir string `yaml:"workdir"`

	// DatasetsDir holds one directory per dataset.
	DatasetsDir string `yaml:"datasets_dir"`

	// TrainerDir is where the trainer sources are unpacked and built ("yolo" by default).
	TrainerDir string `yaml:"trainer_dir"`

	// DataDir receives manifests, obj.data and obj.names.
	DataDir string `yaml:"data_dir"`

	// CfgDir receives the generated network configurations.
	CfgDir string `yaml:"cfg_dir"`

	// BackupDir is where the trainer saves weights, and where training logs are kept.
	BackupDir string `yaml:"backup_dir"`

	// Binary is the trainer executable.
	Binary string `yaml:"binary"`

	// PretrainedWeights used as starting point for "train".
	PretrainedWeights string `yaml:"pretrained_weights"`

	SourceURL  string `yaml:"source_url"`
	WeightsURL string `yaml:"weights_url"`

	// ImageExtensions and AnnotationExtensions are matched case-insensitively, with the leading ".".
	ImageExtensions      []string `yaml:"image_extensions"`
	AnnotationExtensions []string `yaml:"annotation_extensions"`
}

// Default returns the settings rooted at workDir, with every path still relative (see Resolve).
func Default(workDir string) *Settings {
	if workDir == "" {
		workDir = "."
	}
	return &Settings{
		WorkDir:              workDir,
		DatasetsDir:          "datasets",
		TrainerDir:           "yolo",
		DataDir:              filepath.Join("yolo", "data"),
		CfgDir:               filepath.Join("yolo", "cfg"),
		BackupDir:            filepath.Join("yolo", "backup"),
		Binary:               filepath.Join("yolo", "darknet"),
		PretrainedWeights:    filepath.Join("yolo", "yolov4-tiny.conv.29"),
		SourceURL:            DefaultSourceURL,
		WeightsURL:           DefaultWeightsURL,
		ImageExtensions:      []string{".jpg", ".jpeg", ".png", ".bmp"},
		AnnotationExtensions: []string{".txt"},
	}
}

// Load settings: defaults for workDir, overwritten by the YAML file at settingsPath (or FileName in the work
// directory, if it exists), and finally by the environment. The result is resolved to absolute paths.
//
// An empty workDir uses $YOLOFE_WORKDIR or the current directory.
func Load(fs afero.Fs, workDir, settingsPath string) (*Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		klog.Warningf("Failed to load .env file: %v", err)
	}
	if workDir == "" {
		workDir = os.Getenv(EnvWorkDir)
	}
	s := Default(workDir)

	explicit := settingsPath != ""
	if !explicit {
		settingsPath = filepath.Join(s.WorkDir, FileName)
	}
	exists, err := fsutil.FileExists(fs, settingsPath)
	if err != nil {
		return nil, err
	}
	if exists {
		if err = s.readYAML(fs, settingsPath); err != nil {
			return nil, err
		}
		klog.V(1).Infof("Settings read from %q", settingsPath)
	} else if explicit {
		return nil, errors.Errorf("settings file %q not found", settingsPath)
	}

	s.applyEnv()
	if err = s.Resolve(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) readYAML(fs afero.Fs, path string) error {
	contents, err := afero.ReadFile(fs, path)
	if err != nil {
		return errors.Wrapf(err, "failed to read settings file %q", path)
	}
	// Unmarshal on top of the current values: only the keys present in the file are changed.
	if err = yaml.Unmarshal(contents, s); err != nil {
		return errors.Wrapf(err, "failed to parse settings file %q", path)
	}
	return nil
}

func (s *Settings) applyEnv() {
	if v := os.Getenv(EnvDatasetsDir); v != "" {
		s.DatasetsDir = v
	}
	if v := os.Getenv(EnvTrainerDir); v != "" {
		// Everything under the trainer follows it, unless the user moved them explicitly.
		defaults := Default(s.WorkDir)
		for _, p := range []*string{&s.DataDir, &s.CfgDir, &s.BackupDir, &s.Binary, &s.PretrainedWeights} {
			if rel, err := filepath.Rel(defaults.TrainerDir, *p); err == nil && filepath.IsLocal(rel) {
				*p = filepath.Join(v, rel)
			}
		}
		s.TrainerDir = v
	}
}

// Resolve expands "~" and makes every path absolute, relative paths being taken from WorkDir.
func (s *Settings) Resolve() error {
	workDir, err := fsutil.ReplaceTildeInDir(s.WorkDir)
	if err != nil {
		return err
	}
	if workDir, err = filepath.Abs(workDir); err != nil {
		return errors.Wrapf(err, "failed to make work directory %q absolute", s.WorkDir)
	}
	s.WorkDir = workDir
	for _, p := range []*string{&s.DatasetsDir, &s.TrainerDir, &s.DataDir, &s.CfgDir, &s.BackupDir,
		&s.Binary, &s.PretrainedWeights} {
		resolved, err := fsutil.ReplaceTildeInDir(*p)
		if err != nil {
			return err
		}
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(workDir, resolved)
		}
		*p = filepath.Clean(resolved)
	}
	if len(s.ImageExtensions) == 0 {
		return errors.New("settings: no image extensions configured")
	}
	return nil
}

// DatasetDir returns the directory of the named dataset.
func (s *Settings) DatasetDir(name string) string {
	return filepath.Join(s.DatasetsDir, name)
}
