// Copyright 2026 The yolofe Authors. SPDX-License-Identifier: Apache-2.0

// Package downloader provides functions for downloading and extracting files.
package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/afero"
	"github.com/yolofe/yolofe/pkg/support/fsutil"
	"k8s.io/klog/v2"
)

// copyBytesBar copies bytes to an io.Writer while displaying a progressbar.
// It requires knowing the contentLength.
type copyBytesBar struct {
	w                             io.Writer
	bar                           *progressbar.ProgressBar
	amountWritten                 int64
	barUnit, numUnits, addedUnits int64
}

// newCopyBytesBar creates a new copyBytesBar, writing the bar itself to barOutput.
func newCopyBytesBar(w, barOutput io.Writer, contentLength int64) *copyBytesBar {
	bar := &copyBytesBar{w: w}
	bar.barUnit = 1
	for contentLength > bar.barUnit*1024*1024 {
		bar.barUnit *= 1024
	}
	bar.numUnits = (contentLength + bar.barUnit - 1) / bar.barUnit
	bar.bar = progressbar.NewOptions64(bar.numUnits,
		progressbar.OptionSetDescription(humanize.IBytes(uint64(contentLength))),
		progressbar.OptionSetWriter(barOutput),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetTheme(progressbar.ThemeUnicode),
	)
	return bar
}

// Write implements io.Writer, while updating the progress bar.
func (bar *copyBytesBar) Write(p []byte) (n int, err error) {
	n, err = bar.w.Write(p)
	bar.amountWritten += int64(n)
	toUnits := bar.amountWritten / bar.barUnit
	if toUnits > bar.addedUnits {
		_ = bar.bar.Add64(toUnits - bar.addedUnits)
		bar.addedUnits = toUnits
	}
	return
}

// Downloader fetches files over HTTP, drawing a progress bar for each download.
type Downloader struct {
	// Progress is where progress bars are drawn. If nil, no progress is displayed.
	Progress io.Writer
}

// New returns a Downloader drawing its progress bars to progress (nil disables them).
func New(progress io.Writer) *Downloader {
	return &Downloader{Progress: progress}
}

// CopyWithProgressBar is similar to io.Copy, but updates a progress bar drawn to barOutput with the
// amount of data copied.
//
// It requires knowing the amount of data to copy up-front: if contentLength <= 0 or barOutput is nil
// it is a plain io.Copy.
func CopyWithProgressBar(dst io.Writer, src io.Reader, contentLength int64, barOutput io.Writer) (n int64, err error) {
	if contentLength <= 0 || barOutput == nil {
		return io.Copy(dst, src)
	}
	bar := newCopyBytesBar(dst, barOutput, contentLength)
	n, err = io.Copy(bar, src)
	if err == nil && bar.addedUnits < bar.numUnits {
		_ = bar.bar.Add64(bar.numUnits - bar.addedUnits)
	}
	_ = bar.bar.Close()
	_, _ = fmt.Fprintln(barOutput)
	return
}

// Download file from url and save it at the given path. It creates the directory if it doesn't yet exist.
//
// The file is first written to filePath+".partial" and renamed when complete, so an interrupted download
// doesn't leave a truncated file behind.
func (d *Downloader) Download(ctx context.Context, url, filePath string) (size int64, err error) {
	if err = os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return 0, errors.Wrapf(err, "failed to create the directory for the path %q", filepath.Dir(filePath))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid url %q", url)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, errors.Wrapf(err, "failed downloading %q", url)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return 0, errors.Errorf("failed downloading %q: %s", url, resp.Status)
	}

	partialPath := filePath + ".partial"
	file, err := os.Create(partialPath)
	if err != nil {
		return 0, errors.Wrapf(err, "failed creating file %q", partialPath)
	}
	size, err = CopyWithProgressBar(file, resp.Body, resp.ContentLength, d.Progress)
	if err != nil {
		_ = file.Close()
		_ = os.Remove(partialPath)
		return 0, errors.Wrapf(err, "downloading %q to %q", url, filePath)
	}
	if err = file.Close(); err != nil {
		return 0, errors.Wrapf(err, "failed closing %q", partialPath)
	}
	if err = os.Rename(partialPath, filePath); err != nil {
		return 0, errors.Wrapf(err, "failed to move %q to %q", partialPath, filePath)
	}
	return size, nil
}

// DownloadIfMissing will check if the path exists already, and if not it will download the file
// from the given URL.
//
// If checksum (hex encoded SHA256) is provided, it checks that the file has it or fails.
func (d *Downloader) DownloadIfMissing(ctx context.Context, url, filePath, checksum string) error {
	exists, err := fsutil.FileExists(afero.NewOsFs(), filePath)
	if err != nil {
		return err
	}
	if !exists {
		klog.Infof("Downloading %s ...", url)
		size, err := d.Download(ctx, url, filePath)
		if err != nil {
			return err
		}
		klog.V(1).Infof("Downloaded %s to %q", humanize.IBytes(uint64(size)), filePath)
	}
	if checksum == "" {
		return nil
	}
	return fsutil.ValidateChecksum(afero.NewOsFs(), filePath, checksum)
}

// Untar file into baseDir, using decompression flags according to suffix: .gz for gzip, bz2 for bzip2.
func Untar(ctx context.Context, baseDir, tarFile string) error {
	compressionFlag := ""
	if strings.HasSuffix(tarFile, ".gz") || strings.HasSuffix(tarFile, ".tgz") {
		compressionFlag = "z"
	} else if strings.HasSuffix(tarFile, ".bz2") {
		compressionFlag = "j"
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return errors.Wrapf(err, "failed to create directory %q", baseDir)
	}
	cmd := exec.CommandContext(ctx, "tar", fmt.Sprintf("x%sf", compressionFlag), tarFile)
	cmd.Dir = baseDir
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "failed to run %q", cmd)
	}
	return nil
}
