// Copyright 2026 The yolofe Authors. SPDX-License-Identifier: Apache-2.0

// Package darknet generates the configuration files consumed by the Darknet trainer: the network
// configuration (".cfg"), the data description ("obj.data") and the class names ("obj.names").
//
// The network configuration is rendered from an embedded template, parameterized by the number of classes
// and the number of iterations, or it is a user provided file used as is.
package darknet

import (
	"bytes"
	_ "embed"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/yolofe/yolofe/pkg/dataset"
	"github.com/yolofe/yolofe/pkg/settings"
	"github.com/yolofe/yolofe/pkg/support/fsutil"
	"github.com/yolofe/yolofe/ui/commandline"
	"k8s.io/klog/v2"
)

var (
	// ErrNoClasses is returned (wrapped) when the number of classes of a dataset can't be determined.
	ErrNoClasses = errors.New("dataset has no classes")

	// ErrConfigNotFound is returned (wrapped) when a user provided configuration file doesn't exist.
	ErrConfigNotFound = errors.New("configuration file not found")
)

// IterationsPerClass is the default number of training iterations for each class in the dataset.
const IterationsPerClass = 2000

//go:embed templates/yolov4-tiny.cfg.tmpl
var networkTemplateText string

var networkTemplate = template.Must(template.New("network").Option("missingkey=error").Parse(networkTemplateText))

// Mode of the configuration: training or testing. It changes the batch configuration.
type Mode int

const (
	Train Mode = iota
	Test
)

func (m Mode) String() string {
	switch m {
	case Train:
		return "train"
	case Test:
		return "test"
	}
	return "unknown"
}

// DefaultMaxIterations returns the default number of training iterations for the number of classes.
func DefaultMaxIterations(numClasses int) int {
	return IterationsPerClass * numClasses
}

// NetworkParams are the values substituted in the network template.
type NetworkParams struct {
	Classes, Filters         int
	Batch, Subdivisions      int
	MaxBatches, Step1, Step2 int
}

// NewNetworkParams for the number of classes and mode. If maxIterations <= 0 the default for the number of
// classes is used. In Test mode maxIterations is only informative, and it always uses batches of one.
func NewNetworkParams(numClasses int, mode Mode, maxIterations int) NetworkParams {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations(numClasses)
	}
	p := NetworkParams{
		Classes:      numClasses,
		Filters:      (numClasses + 5) * 3,
		Batch:        64,
		Subdivisions: 16,
		MaxBatches:   maxIterations,
		Step1:        maxIterations * 8 / 10,
		Step2:        maxIterations * 9 / 10,
	}
	if mode == Test {
		p.Batch, p.Subdivisions = 1, 1
	}
	return p
}

// RenderNetwork renders the network configuration, and then applies the overrides to the keys of its
// "[net]" section. Overriding a key not present in "[net]" is an error.
func RenderNetwork(params NetworkParams, overrides []commandline.Setting) ([]byte, error) {
	var buf bytes.Buffer
	if err := networkTemplate.Execute(&buf, params); err != nil {
		return nil, errors.Wrap(err, "failed to render network configuration")
	}
	if len(overrides) == 0 {
		return buf.Bytes(), nil
	}
	return overrideNetSection(buf.Bytes(), overrides)
}

// overrideNetSection replaces the value of "key=value" lines inside the "[net]" section.
func overrideNetSection(cfg []byte, overrides []commandline.Setting) ([]byte, error) {
	pending := make(map[string]string, len(overrides))
	for _, o := range overrides {
		pending[o.Key] = o.Value
	}
	lines := strings.Split(string(cfg), "\n")
	inNet := false
	for ii, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[") {
			inNet = trimmed == "[net]"
			continue
		}
		if !inNet || strings.HasPrefix(trimmed, "#") {
			continue
		}
		key, _, found := strings.Cut(trimmed, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		if value, ok := pending[key]; ok {
			lines[ii] = key + "=" + value
			delete(pending, key)
		}
	}
	if len(pending) > 0 {
		for _, o := range overrides {
			if _, ok := pending[o.Key]; ok {
				return nil, errors.Errorf("can't override %q: no such key in the [net] section of the network configuration", o.Key)
			}
		}
	}
	return []byte(strings.Join(lines, "\n")), nil
}

// DataFile is the content of "obj.data": the key = value description of a dataset for the trainer.
type DataFile struct {
	Classes int
	Train   string
	Valid   string
	Names   string
	Backup  string
}

// Bytes renders the data file, one "key = value" line per field.
func (d DataFile) Bytes() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "classes = %d\n", d.Classes)
	fmt.Fprintf(&buf, "train = %s\n", d.Train)
	fmt.Fprintf(&buf, "valid = %s\n", d.Valid)
	fmt.Fprintf(&buf, "names = %s\n", d.Names)
	// The trainer concatenates file names to the backup directory.
	fmt.Fprintf(&buf, "backup = %s\n", strings.TrimSuffix(d.Backup, "/")+"/")
	return buf.Bytes()
}

// Options for Templater.Prepare.
type Options struct {
	Mode Mode

	// ConfigFile, if set, is used as the network configuration without changes.
	ConfigFile string

	// MaxIterations for training. If <= 0, DefaultMaxIterations is used.
	MaxIterations int

	// Overrides for keys in the "[net]" section of the generated network configuration.
	Overrides []commandline.Setting
}

// Files generated (or selected) by Templater.Prepare.
type Files struct {
	// Network configuration file.
	Network string

	// Data is the "obj.data" file and Names the "obj.names" file.
	Data, Names string

	// Train and Test are the manifest paths referenced by Data.
	Train, Test string

	// Generated is false if Network is a user provided file.
	Generated bool

	Classes       int
	MaxIterations int
}

// Templater writes configuration files for datasets, at the locations given by the settings.
type Templater struct {
	fs       afero.Fs
	settings *settings.Settings
}

// NewTemplater returns a Templater writing to fs.
func NewTemplater(fs afero.Fs, s *settings.Settings) *Templater {
	return &Templater{fs: fs, settings: s}
}

// TrainManifest returns the path of the training manifest.
func (t *Templater) TrainManifest() string { return filepath.Join(t.settings.DataDir, "train.txt") }

// TestManifest returns the path of the test manifest.
func (t *Templater) TestManifest() string { return filepath.Join(t.settings.DataDir, "test.txt") }

// Prepare writes "obj.names", "obj.data" and, unless opts.ConfigFile is set, the network configuration
// for the dataset. Output only depends on the inputs, so regenerating is idempotent.
func (t *Templater) Prepare(ds *dataset.Dataset, opts Options) (*Files, error) {
	classes, err := ds.ClassNames()
	if err != nil {
		return nil, errors.Wrapf(ErrNoClasses, "dataset %q: %v", ds.Name, err)
	}
	if len(classes) == 0 {
		return nil, errors.Wrapf(ErrNoClasses, "dataset %q has no class subdirectories", ds.Name)
	}
	files := &Files{
		Data:    filepath.Join(t.settings.DataDir, "obj.data"),
		Names:   filepath.Join(t.settings.DataDir, "obj.names"),
		Train:   t.TrainManifest(),
		Test:    t.TestManifest(),
		Classes: len(classes),
	}
	if opts.Mode == Train {
		files.MaxIterations = opts.MaxIterations
		if files.MaxIterations <= 0 {
			files.MaxIterations = DefaultMaxIterations(len(classes))
		}
	}

	if opts.ConfigFile != "" {
		// The trainer runs from its own directory, so a relative path would be resolved against it.
		configFile, err := filepath.Abs(opts.ConfigFile)
		if err != nil {
			return nil, errors.Wrapf(err, "resolving configuration file %q", opts.ConfigFile)
		}
		exists, err := fsutil.FileExists(t.fs, configFile)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, errors.Wrapf(ErrConfigNotFound, "%q", configFile)
		}
		if len(opts.Overrides) > 0 {
			klog.Warningf("Network overrides ignored: using the configuration file %q unmodified", configFile)
		}
		files.Network = configFile
	} else {
		cfg, err := RenderNetwork(NewNetworkParams(len(classes), opts.Mode, opts.MaxIterations), opts.Overrides)
		if err != nil {
			return nil, err
		}
		files.Network = filepath.Join(t.settings.CfgDir, fmt.Sprintf("%s-%s.cfg", ds.Name, opts.Mode))
		if err = t.write(files.Network, cfg); err != nil {
			return nil, err
		}
		files.Generated = true
	}

	if err = t.write(files.Names, []byte(strings.Join(classes, "\n")+"\n")); err != nil {
		return nil, err
	}
	data := DataFile{
		Classes: len(classes),
		Train:   files.Train,
		Valid:   files.Test,
		Names:   files.Names,
		Backup:  t.settings.BackupDir,
	}
	if err = t.write(files.Data, data.Bytes()); err != nil {
		return nil, err
	}
	klog.V(1).Infof("Configuration for dataset %q (%s): network=%q data=%q", ds.Name, opts.Mode, files.Network, files.Data)
	return files, nil
}

func (t *Templater) write(path string, contents []byte) error {
	if err := t.fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, "failed to create directory for %q", path)
	}
	if err := afero.WriteFile(t.fs, path, contents, 0644); err != nil {
		return errors.Wrapf(err, "failed to write %q", path)
	}
	return nil
}
