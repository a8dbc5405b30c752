// Copyright 2026 The yolofe Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"runtime"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/yolofe/yolofe/internal/workerspool"
	"github.com/yolofe/yolofe/pkg/features"
)

func newFeatureExtractionCmd(a *app) *cobra.Command {
	var workers int
	cmd := &cobra.Command{
		Use:   "apply-feature-extraction <dataset> <edw|edb>",
		Short: "Create a new dataset with edge maps of the images of a dataset",
		Long: `Create the dataset "<dataset>_<method>" with the edge map of every image, annotations copied as is.

Methods:
  edw: white edges on black background.
  edb: black edges on white background.`,
		Args: exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			method, err := features.ParseMethod(args[1])
			if err != nil {
				return err
			}
			if workers < 1 {
				return invalidArgs(errors.Errorf("--workers must be at least 1, got %d", workers))
			}
			result, err := features.Apply(a.scanner(), args[0], method, workerspool.New().SetMaxParallelism(workers))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(a.stdout, "Dataset %q created in %s: %d images, %d annotations\n",
				result.Dataset, result.Dir, result.Images, result.Annotations)
			return nil
		},
	}
	cmd.Flags().IntVar(&workers, "workers", runtime.NumCPU(), "Number of images processed in parallel.")
	return cmd
}
