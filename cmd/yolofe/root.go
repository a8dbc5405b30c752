// Copyright 2026 The yolofe Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"io"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/yolofe/yolofe/pkg/dataset"
	"github.com/yolofe/yolofe/pkg/settings"
	"github.com/yolofe/yolofe/pkg/trainer"
	"k8s.io/klog/v2"
)

// app holds what is shared by all commands.
type app struct {
	fs             afero.Fs
	stdout, stderr io.Writer

	workDir, settingsPath string
	settings              *settings.Settings
}

func (a *app) scanner() *dataset.Scanner {
	return dataset.NewScanner(a.fs, a.settings)
}

func (a *app) trainer() *trainer.Trainer {
	tr := trainer.New(a.settings)
	tr.Stdout, tr.Stderr = a.stdout, a.stderr
	return tr
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "yolofe",
		Short: "Manage image datasets and train YOLO detectors with Darknet",
		Long: `yolofe downloads and builds the Darknet trainer, lists and inspects datasets, generates the
trainer configuration and train/test manifests for a dataset, and runs training and evaluation.

Datasets are directories under the datasets directory, with one subdirectory per class.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			s, err := settings.Load(a.fs, a.workDir, a.settingsPath)
			if err != nil {
				return err
			}
			a.settings = s
			klog.V(1).Infof("Work directory %q, datasets in %q, trainer in %q", s.WorkDir, s.DatasetsDir, s.TrainerDir)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.workDir, "workdir", "",
		"Work directory holding datasets and the trainer. Defaults to $"+settings.EnvWorkDir+" or the current directory.")
	root.PersistentFlags().StringVar(&a.settingsPath, "settings", "",
		"YAML settings file. Defaults to "+settings.FileName+" in the work directory, if present.")
	klogFlags := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(klogFlags)
	root.PersistentFlags().AddGoFlagSet(klogFlags)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return invalidArgs(err)
	})

	root.AddCommand(
		newSetupCmd(a),
		newDatasetsCmd(a),
		newDatasetCmd(a),
		newTrainCmd(a),
		newTestCmd(a),
		newFeatureExtractionCmd(a),
	)
	return root
}

// exactArgs is cobra.ExactArgs with the error marked as invalid arguments.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return invalidArgs(err)
		}
		return nil
	}
}
