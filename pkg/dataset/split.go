// Copyright 2026 The yolofe Authors. SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"bufio"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"k8s.io/klog/v2"
)

// ErrInvalidPercentage is returned (wrapped) when a split percentage is outside [0, 100].
var ErrInvalidPercentage = errors.New("percentage must be between 0 and 100")

// Window selects which end of the sorted class listing a split takes its files from.
type Window int

const (
	// Head takes the first files of each class.
	Head Window = iota

	// Tail takes the last files of each class, so a Tail split of P% doesn't overlap a Head split of (100-P)%.
	Tail
)

func (w Window) String() string {
	switch w {
	case Head:
		return "head"
	case Tail:
		return "tail"
	}
	return "unknown"
}

// SelectCount returns how many of n files a split of the given percentage selects: floor(n * percentage / 100).
// Fractional counts are truncated.
func SelectCount(n, percentage int) int {
	return n * percentage / 100
}

// ClassSelection is the part of a Manifest coming from one class.
type ClassSelection struct {
	Class string

	// Total number of images in the class.
	Total int

	// Paths of the selected images, in listing order.
	Paths []string
}

// Manifest is the ordered list of image paths selected by Split.
type Manifest struct {
	Dataset    string
	Percentage int
	Window     Window
	Classes    []ClassSelection
}

// Paths returns the selected paths of all classes, in class order.
func (m *Manifest) Paths() []string {
	paths := make([]string, 0, m.Len())
	for _, c := range m.Classes {
		paths = append(paths, c.Paths...)
	}
	return paths
}

// Len returns the total number of selected paths.
func (m *Manifest) Len() int {
	var n int
	for _, c := range m.Classes {
		n += len(c.Paths)
	}
	return n
}

// Split selects, for every class of the dataset, SelectCount(n, percentage) of its n images, taken from the
// given end of the lexicographically sorted listing.
func Split(ds *Dataset, percentage int, window Window) (*Manifest, error) {
	if percentage < 0 || percentage > 100 {
		return nil, errors.Wrapf(ErrInvalidPercentage, "got %d%%", percentage)
	}
	classes, err := ds.ClassNames()
	if err != nil {
		return nil, err
	}
	m := &Manifest{Dataset: ds.Name, Percentage: percentage, Window: window}
	for _, class := range classes {
		images, err := ds.ClassImages(class)
		if err != nil {
			return nil, err
		}
		count := SelectCount(len(images), percentage)
		var selected []string
		if window == Tail {
			selected = images[len(images)-count:]
		} else {
			selected = images[:count]
		}
		sel := ClassSelection{Class: class, Total: len(images), Paths: make([]string, 0, count)}
		for _, image := range selected {
			sel.Paths = append(sel.Paths, filepath.Join(ds.Dir, class, image))
		}
		klog.V(1).Infof("Dataset %q, class %q: selected %d of %d images (%s %d%%)",
			ds.Name, class, count, len(images), window, percentage)
		m.Classes = append(m.Classes, sel)
	}
	return m, nil
}

// WriteManifest overwrites the file at path with the manifest paths, one per line.
func WriteManifest(fs afero.Fs, path string, m *Manifest) error {
	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, "failed to create directory for manifest %q", path)
	}
	f, err := fs.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create manifest %q", path)
	}
	w := bufio.NewWriter(f)
	for _, p := range m.Paths() {
		if _, err = w.WriteString(p + "\n"); err != nil {
			_ = f.Close()
			return errors.Wrapf(err, "failed to write manifest %q", path)
		}
	}
	if err = w.Flush(); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "failed to write manifest %q", path)
	}
	if err = f.Close(); err != nil {
		return errors.Wrapf(err, "failed to close manifest %q", path)
	}
	klog.V(1).Infof("Wrote %d paths to %q", m.Len(), path)
	return nil
}
