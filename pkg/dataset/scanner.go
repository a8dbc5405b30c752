// Copyright 2026 The yolofe Authors. SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/yolofe/yolofe/pkg/settings"
	"github.com/yolofe/yolofe/pkg/support/fsutil"
	"k8s.io/klog/v2"
)

// ErrNotFound is returned (wrapped) when a dataset directory doesn't exist.
var ErrNotFound = errors.New("dataset not found")

// extensionSet of lower-cased file extensions, including the leading ".".
type extensionSet map[string]struct{}

func makeExtensionSet(extensions []string) extensionSet {
	s := make(extensionSet, len(extensions))
	for _, ext := range extensions {
		s[strings.ToLower(ext)] = struct{}{}
	}
	return s
}

// Has returns whether the file name has one of the extensions in the set.
func (s extensionSet) Has(fileName string) bool {
	_, found := s[strings.ToLower(filepath.Ext(fileName))]
	return found
}

// Scanner finds datasets under a base directory.
type Scanner struct {
	fs             afero.Fs
	settings       *settings.Settings
	imageExts      extensionSet
	annotationExts extensionSet
}

// NewScanner creates a Scanner for the datasets in s.DatasetsDir, using the configured extensions.
func NewScanner(fs afero.Fs, s *settings.Settings) *Scanner {
	return &Scanner{
		fs:             fs,
		settings:       s,
		imageExts:      makeExtensionSet(s.ImageExtensions),
		annotationExts: makeExtensionSet(s.AnnotationExtensions),
	}
}

// Fs returns the filesystem the scanner reads from.
func (sc *Scanner) Fs() afero.Fs { return sc.fs }

// BaseDir returns the directory holding the datasets.
func (sc *Scanner) BaseDir() string { return sc.settings.DatasetsDir }

// IsImage returns whether fileName has one of the configured image extensions.
func (sc *Scanner) IsImage(fileName string) bool { return sc.imageExts.Has(fileName) }

// IsAnnotation returns whether fileName has one of the configured annotation extensions.
func (sc *Scanner) IsAnnotation(fileName string) bool { return sc.annotationExts.Has(fileName) }

// Open the named dataset. It returns an error wrapping ErrNotFound if there is no such directory.
func (sc *Scanner) Open(name string) (*Dataset, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return nil, errors.Wrapf(ErrNotFound, "invalid dataset name %q", name)
	}
	dir := sc.settings.DatasetDir(name)
	isDir, err := fsutil.IsDir(sc.fs, dir)
	if err != nil {
		return nil, err
	}
	if !isDir {
		return nil, errors.Wrapf(ErrNotFound, "no dataset %q in %q", name, sc.BaseDir())
	}
	return &Dataset{Name: name, Dir: dir, scanner: sc}, nil
}

// Summary of a dataset, used when listing all datasets.
type Summary struct {
	Name                string
	Classes             int
	Images, Annotations int
	Unmatched           int
	Bytes               int64
}

// List all datasets, sorted by name. A missing base directory is not an error: there are simply no datasets.
func (sc *Scanner) List() ([]Summary, error) {
	names, err := subDirs(sc.fs, sc.BaseDir())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	summaries := make([]Summary, 0, len(names))
	for _, name := range names {
		ds, err := sc.Open(name)
		if err != nil {
			return nil, err
		}
		classes, err := ds.Classes()
		if err != nil {
			return nil, err
		}
		summary := Summary{Name: name, Classes: len(classes)}
		for _, c := range classes {
			summary.Images += c.Images
			summary.Annotations += c.Annotations
			summary.Unmatched += c.Unmatched
			summary.Bytes += c.Bytes
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// Dataset is a directory with one subdirectory per class.
type Dataset struct {
	Name string
	Dir  string

	scanner *Scanner
}

// Fs returns the filesystem where the dataset lives.
func (ds *Dataset) Fs() afero.Fs { return ds.scanner.fs }

// ClassStats holds the file counts of one class.
type ClassStats struct {
	Name        string
	Images      int
	Annotations int

	// Unmatched is the number of images without an annotation file of the same base name.
	Unmatched int

	// Bytes is the total size of the image and annotation files.
	Bytes int64
}

// ClassNames returns the names of the class subdirectories in lexicographic order. The position of a class
// in this list is its numeric id.
func (ds *Dataset) ClassNames() ([]string, error) {
	names, err := subDirs(ds.scanner.fs, ds.Dir)
	if err != nil {
		return nil, errors.WithMessagef(err, "dataset %q", ds.Name)
	}
	return names, nil
}

// NumClasses returns the number of class subdirectories.
func (ds *Dataset) NumClasses() (int, error) {
	names, err := ds.ClassNames()
	if err != nil {
		return 0, err
	}
	return len(names), nil
}

// Classes returns the file counts for each class, in class order.
func (ds *Dataset) Classes() ([]ClassStats, error) {
	names, err := ds.ClassNames()
	if err != nil {
		return nil, err
	}
	stats := make([]ClassStats, 0, len(names))
	for _, name := range names {
		entries, err := afero.ReadDir(ds.scanner.fs, filepath.Join(ds.Dir, name))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read class %q of dataset %q", name, ds.Name)
		}
		cs := ClassStats{Name: name}
		annotated := make(map[string]bool)
		var images []string
		for _, entry := range entries {
			fileName := entry.Name()
			if entry.IsDir() || strings.HasPrefix(fileName, ".") {
				continue
			}
			switch {
			case ds.scanner.imageExts.Has(fileName):
				cs.Images++
				cs.Bytes += entry.Size()
				images = append(images, fileName)
			case ds.scanner.annotationExts.Has(fileName):
				cs.Annotations++
				cs.Bytes += entry.Size()
				annotated[baseName(fileName)] = true
			}
		}
		for _, image := range images {
			if !annotated[baseName(image)] {
				cs.Unmatched++
				klog.V(1).Infof("Dataset %q, class %q: image %q has no annotation", ds.Name, name, image)
			}
		}
		if cs.Unmatched > 0 {
			klog.Warningf("Dataset %q, class %q: %d of %d images have no annotation", ds.Name, name, cs.Unmatched, cs.Images)
		}
		stats = append(stats, cs)
	}
	return stats, nil
}

// ClassImages returns the image file names of the class, sorted lexicographically.
func (ds *Dataset) ClassImages(class string) ([]string, error) {
	dir := filepath.Join(ds.Dir, class)
	entries, err := afero.ReadDir(ds.scanner.fs, dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list images of class %q in dataset %q", class, ds.Name)
	}
	var images []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") || !ds.scanner.imageExts.Has(entry.Name()) {
			continue
		}
		images = append(images, entry.Name())
	}
	slices.Sort(images)
	return images, nil
}

// ClassFiles returns all non-hidden regular files of the class (images, annotations and anything else),
// sorted lexicographically.
func (ds *Dataset) ClassFiles(class string) ([]string, error) {
	entries, err := afero.ReadDir(ds.scanner.fs, filepath.Join(ds.Dir, class))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list files of class %q in dataset %q", class, ds.Name)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		files = append(files, entry.Name())
	}
	slices.Sort(files)
	return files, nil
}

func baseName(fileName string) string {
	return strings.TrimSuffix(fileName, filepath.Ext(fileName))
}

// subDirs lists the non-hidden subdirectories of dir, sorted.
func subDirs(fs afero.Fs, dir string) ([]string, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read directory %q", dir)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			names = append(names, entry.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}
