// Copyright 2026 The yolofe Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/yolofe/yolofe/pkg/darknet"
	"github.com/yolofe/yolofe/pkg/dataset"
	"github.com/yolofe/yolofe/pkg/trainer"
	"github.com/yolofe/yolofe/ui/commandline"
)

// configFlags are shared by train and test.
type configFlags struct {
	percentage int
	configFile string
	set        string
}

func (f *configFlags) register(cmd *cobra.Command, percentageFlag string, defaultPercentage int) {
	cmd.Flags().IntVar(&f.percentage, percentageFlag, defaultPercentage,
		"Percentage (0 to 100) of the images of each class to use.")
	cmd.Flags().StringVar(&f.configFile, "config-file", "",
		"Network configuration file to use unmodified, instead of generating one.")
	cmd.Flags().StringVar(&f.set, "set", "",
		"Overrides of the generated network configuration \"[net]\" section, e.g. \"width=608;height=608\".")
}

// prepare selects the images of the dataset, and writes the configuration files and the manifest
// used in the given mode.
func (a *app) prepare(ds *dataset.Dataset, f *configFlags, opts darknet.Options) (*darknet.Files, *dataset.Manifest, error) {
	overrides, err := commandline.ParseSettings(f.set)
	if err != nil {
		return nil, nil, invalidArgs(err)
	}
	window := dataset.Head
	if opts.Mode == darknet.Test {
		window = dataset.Tail
	}
	manifest, err := dataset.Split(ds, f.percentage, window)
	if err != nil {
		return nil, nil, err
	}
	if manifest.Len() == 0 {
		return nil, nil, errors.Errorf("no images selected from dataset %q with %d%%", ds.Name, f.percentage)
	}
	opts.ConfigFile, opts.Overrides = f.configFile, overrides
	tmpl := darknet.NewTemplater(a.fs, a.settings)
	files, err := tmpl.Prepare(ds, opts)
	if err != nil {
		return nil, nil, err
	}
	manifestPath := files.Train
	if opts.Mode == darknet.Test {
		manifestPath = files.Test
	}
	if err = dataset.WriteManifest(a.fs, manifestPath, manifest); err != nil {
		return nil, nil, err
	}
	return files, manifest, nil
}

func formatLoss(v float64) string {
	if math.IsNaN(v) {
		return "nan"
	}
	return fmt.Sprintf("%.4f", v)
}

func newTrainCmd(a *app) *cobra.Command {
	var (
		flags         configFlags
		maxIterations int
		noProgress    bool
	)
	cmd := &cobra.Command{
		Use:   "train <dataset>",
		Short: "Train a detector on the first images of each class of a dataset",
		Long: `Train a detector on a dataset: the first --train-percentage of the images of each class (in name
order) are written to the training manifest, the configuration is generated for the number of classes, and
the trainer is run. Weights are saved in the backup directory, along with the trainer log.

The trainer exit code is forwarded.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := a.scanner().Open(args[0])
			if err != nil {
				return err
			}
			tr := a.trainer()
			if err = tr.Installed(); err != nil {
				return err
			}
			files, manifest, err := a.prepare(ds, &flags, darknet.Options{Mode: darknet.Train, MaxIterations: maxIterations})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(a.stdout, "Training on %s images of %d classes, up to %s iterations\n",
				humanize.Comma(int64(manifest.Len())), files.Classes, humanize.Comma(int64(files.MaxIterations)))

			req := trainer.TrainRequest{Dataset: args[0], Files: files}
			var bar *commandline.ProgressBar
			if !noProgress {
				bar = commandline.NewProgressBar(a.stdout, "Training "+args[0], files.MaxIterations)
				defer bar.Close()
				req.Progress = func(p trainer.Progress) {
					metrics := []commandline.Metric{
						{Name: "Loss", Value: formatLoss(p.Loss)},
						{Name: "Avg loss", Value: formatLoss(p.AvgLoss)},
						{Name: "Learning rate", Value: fmt.Sprintf("%g", p.LearningRate)},
						{Name: "Images", Value: humanize.Comma(int64(p.Images))},
					}
					if p.HoursLeft >= 0 {
						metrics = append(metrics, commandline.Metric{Name: "Hours left", Value: fmt.Sprintf("%.2f", p.HoursLeft)})
					}
					bar.Update(p.Iteration, metrics...)
				}
			}
			result, err := tr.Train(cmd.Context(), req)
			if bar != nil {
				bar.Close()
			}
			if err != nil {
				return err
			}
			if result.ExitCode != 0 {
				return &trainerExitError{code: result.ExitCode, logPath: result.LogPath}
			}
			_, _ = fmt.Fprintf(a.stdout, "Training of %q finished: weights in %s, log in %s\n",
				args[0], a.settings.BackupDir, result.LogPath)
			return nil
		},
	}
	flags.register(cmd, "train-percentage", 80)
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0,
		fmt.Sprintf("Training iterations. Defaults to %d times the number of classes.", darknet.IterationsPerClass))
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Stream the trainer output instead of showing a progress bar.")
	return cmd
}

func newTestCmd(a *app) *cobra.Command {
	var flags configFlags
	cmd := &cobra.Command{
		Use:   "test <classifier> <dataset>",
		Short: "Measure the mean average precision of a trained detector on the last images of each class",
		Long: `Evaluate a trained detector: the last --test-percentage of the images of each class (in name order)
are written to the test manifest and the trainer computes the mean average precision on them.

The classifier is a weights file path, or the name of a file in the backup directory. The trainer exit
code is forwarded.`,
		Args: exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := a.scanner().Open(args[1])
			if err != nil {
				return err
			}
			tr := a.trainer()
			if err = tr.Installed(); err != nil {
				return err
			}
			weights, err := tr.ResolveWeights(args[0])
			if err != nil {
				return err
			}
			files, manifest, err := a.prepare(ds, &flags, darknet.Options{Mode: darknet.Test})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(a.stdout, "Testing %s on %s images of %d classes\n",
				weights, humanize.Comma(int64(manifest.Len())), files.Classes)
			code, err := tr.Test(cmd.Context(), trainer.TestRequest{Files: files, Weights: weights})
			if err != nil {
				return err
			}
			if code != 0 {
				return &trainerExitError{code: code}
			}
			_, _ = fmt.Fprintf(a.stdout, "Test of %q on %q finished\n", args[0], args[1])
			return nil
		},
	}
	flags.register(cmd, "test-percentage", 20)
	return cmd
}
