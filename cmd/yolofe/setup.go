// Copyright 2026 The yolofe Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/yolofe/yolofe/pkg/trainer"
)

func newSetupCmd(a *app) *cobra.Command {
	var (
		gpu           string
		force, openCV bool
		jobs          int
	)
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Download and build the trainer, and download the pre-trained weights",
		Long: `Download the Darknet sources into the trainer directory, configure CUDA support, build it and
download the pre-trained weights used as the starting point for training.

Steps already done are skipped, so setup can be rerun after an interruption.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := trainer.ParseGPUMode(gpu)
			if err != nil {
				return invalidArgs(err)
			}
			tr := a.trainer()
			err = tr.Setup(cmd.Context(), trainer.SetupOptions{GPU: mode, OpenCV: openCV, Force: force, Jobs: jobs})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(a.stdout, "Trainer ready: %s\n", a.settings.Binary)
			return nil
		},
	}
	cmd.Flags().StringVar(&gpu, "gpu", string(trainer.GPUAuto),
		"Build with CUDA: \"on\", \"off\" or \"auto\" (on if nvidia-smi is found).")
	cmd.Flags().BoolVar(&force, "force", false, "Rebuild the trainer even if it is already built.")
	cmd.Flags().BoolVar(&openCV, "opencv", false, "Build the trainer with OpenCV, which must be installed.")
	cmd.Flags().IntVar(&jobs, "jobs", 0, "Parallel build jobs. Defaults to the number of CPUs.")
	return cmd
}
