// Copyright 2026 The yolofe Authors. SPDX-License-Identifier: Apache-2.0

// yolofe prepares image datasets for the Darknet/YOLO trainer and drives it.
//
// Datasets live in one directory each (under "datasets" in the work directory), with one subdirectory
// per class holding the images and their annotation files. See "yolofe --help" for the commands.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/yolofe/yolofe/pkg/dataset"
	"github.com/yolofe/yolofe/pkg/features"
	"k8s.io/klog/v2"
)

// errInvalidArgs marks errors caused by the command line itself.
var errInvalidArgs = errors.New("invalid arguments")

func invalidArgs(err error) error {
	return errors.Wrap(errInvalidArgs, err.Error())
}

// trainerExitError forwards a non-zero exit code of the trainer.
type trainerExitError struct {
	code    int
	logPath string
}

func (e *trainerExitError) Error() string {
	if e.logPath != "" {
		return fmt.Sprintf("trainer exited with code %d, see %s", e.code, e.logPath)
	}
	return fmt.Sprintf("trainer exited with code %d", e.code)
}

// exitCode for the process given the error returned by a command.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *trainerExitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	if errors.Is(err, errInvalidArgs) || errors.Is(err, features.ErrUnknownMethod) ||
		errors.Is(err, dataset.ErrInvalidPercentage) || strings.HasPrefix(err.Error(), "unknown command") {
		return 2
	}
	return 1
}

// run executes the command line args and returns the exit code.
func run(ctx context.Context, fs afero.Fs, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(&app{fs: fs, stdout: stdout, stderr: stderr})
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	klog.Flush()
	if err != nil {
		klog.Errorf("%v", err)
		klog.Flush()
	}
	return exitCode(err)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, afero.NewOsFs(), os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
