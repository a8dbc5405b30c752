// Copyright 2026 The yolofe Authors. SPDX-License-Identifier: Apache-2.0

// Package features derives new datasets from existing ones by applying a feature extraction to every image.
//
// Supported methods are edge maps: "edw" draws white edges on a black background, and "edb" black edges on a
// white background. Bounding boxes are not affected by the transformation, so annotations are copied as is.
package features

import (
	"image"
	"path/filepath"
	"sync/atomic"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/yolofe/yolofe/internal/workerspool"
	"github.com/yolofe/yolofe/pkg/dataset"
	"k8s.io/klog/v2"
)

// ErrUnknownMethod is returned (wrapped) for feature extraction methods other than the ones listed in Methods.
var ErrUnknownMethod = errors.New("unknown feature extraction method")

// Method of feature extraction.
type Method string

const (
	// EdgesWhite draws white edges on black.
	EdgesWhite Method = "edw"

	// EdgesBlack draws black edges on white.
	EdgesBlack Method = "edb"
)

// Methods lists the valid methods.
var Methods = []Method{EdgesWhite, EdgesBlack}

// ParseMethod returns the Method named s, or an error wrapping ErrUnknownMethod.
func ParseMethod(s string) (Method, error) {
	for _, m := range Methods {
		if string(m) == s {
			return m, nil
		}
	}
	return "", errors.Wrapf(ErrUnknownMethod, "%q (valid methods are %q)", s, Methods)
}

// laplacian kernel: responds to edges in every direction, and is 0 on uniform regions.
var laplacian = [9]float64{
	-1, -1, -1,
	-1, 8, -1,
	-1, -1, -1,
}

// EdgeMap returns the grayscale edge map of img.
func EdgeMap(img image.Image, method Method) *image.NRGBA {
	edges := imaging.Convolve3x3(imaging.Grayscale(img), laplacian, nil)
	if method == EdgesBlack {
		edges = imaging.Invert(edges)
	}
	return edges
}

// OutputName returns the name of the dataset derived from name with method.
func OutputName(name string, method Method) string {
	return name + "_" + string(method)
}

// Result of Apply.
type Result struct {
	// Dataset is the name of the derived dataset, and Dir its directory.
	Dataset, Dir string

	Images, Annotations int
}

// Apply the feature extraction method to every image of the dataset, writing a new dataset named
// OutputName(name, method) next to it. Images keep their names and formats. Files in the derived dataset
// are overwritten.
//
// Images are processed in parallel using pool. If pool is nil, a default one is used.
func Apply(sc *dataset.Scanner, name string, method Method, pool *workerspool.Pool) (*Result, error) {
	if _, err := ParseMethod(string(method)); err != nil {
		return nil, err
	}
	ds, err := sc.Open(name)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		pool = workerspool.New()
	}
	fs := ds.Fs()
	res := &Result{Dataset: OutputName(name, method)}
	res.Dir = filepath.Join(sc.BaseDir(), res.Dataset)

	type job struct {
		class, file string
		isImage     bool
	}
	var jobs []job
	classes, err := ds.ClassNames()
	if err != nil {
		return nil, err
	}
	for _, class := range classes {
		if err = fs.MkdirAll(filepath.Join(res.Dir, class), 0755); err != nil {
			return nil, errors.Wrapf(err, "failed to create class directory %q in %q", class, res.Dir)
		}
		files, err := ds.ClassFiles(class)
		if err != nil {
			return nil, err
		}
		for _, file := range files {
			switch {
			case sc.IsImage(file):
				jobs = append(jobs, job{class: class, file: file, isImage: true})
			case sc.IsAnnotation(file):
				jobs = append(jobs, job{class: class, file: file})
			}
		}
	}

	klog.Infof("Applying %q to %d files of dataset %q (%d workers)", method, len(jobs), name, pool.MaxParallelism())
	var numImages, numAnnotations atomic.Int32
	err = pool.ForEach(len(jobs), func(i int) error {
		j := jobs[i]
		src := filepath.Join(ds.Dir, j.class, j.file)
		dst := filepath.Join(res.Dir, j.class, j.file)
		if !j.isImage {
			numAnnotations.Add(1)
			return copyFile(fs, src, dst)
		}
		numImages.Add(1)
		return transformImage(fs, src, dst, method)
	})
	if err != nil {
		return nil, err
	}
	res.Images, res.Annotations = int(numImages.Load()), int(numAnnotations.Load())
	return res, nil
}

func transformImage(fs afero.Fs, src, dst string, method Method) error {
	format, err := imaging.FormatFromFilename(dst)
	if err != nil {
		return errors.Wrapf(err, "can't write image %q", dst)
	}
	in, err := fs.Open(src)
	if err != nil {
		return errors.Wrapf(err, "failed to open image %q", src)
	}
	img, err := imaging.Decode(in, imaging.AutoOrientation(true))
	_ = in.Close()
	if err != nil {
		return errors.Wrapf(err, "failed to decode image %q", src)
	}
	out, err := fs.Create(dst)
	if err != nil {
		return errors.Wrapf(err, "failed to create %q", dst)
	}
	if err = imaging.Encode(out, EdgeMap(img, method), format); err != nil {
		_ = out.Close()
		return errors.Wrapf(err, "failed to encode %q", dst)
	}
	if err = out.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %q", dst)
	}
	klog.V(2).Infof("%s -> %s", src, dst)
	return nil
}

func copyFile(fs afero.Fs, src, dst string) error {
	contents, err := afero.ReadFile(fs, src)
	if err != nil {
		return errors.Wrapf(err, "failed to read %q", src)
	}
	if err = afero.WriteFile(fs, dst, contents, 0644); err != nil {
		return errors.Wrapf(err, "failed to write %q", dst)
	}
	return nil
}
