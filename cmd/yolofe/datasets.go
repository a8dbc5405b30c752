// Copyright 2026 The yolofe Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newDatasetsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "datasets",
		Short: "List the available datasets",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc := a.scanner()
			summaries, err := sc.List()
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				_, _ = fmt.Fprintf(a.stdout, "No datasets found in %s\n", sc.BaseDir())
				return nil
			}
			table := newReportTable([]string{"Dataset", "Classes", "Images", "Annotations", "Unmatched", "Size"},
				lipgloss.Left, lipgloss.Right)
			for _, s := range summaries {
				table.Add(kindFor(s.Unmatched > 0), s.Name,
					humanize.Comma(int64(s.Classes)),
					humanize.Comma(int64(s.Images)),
					humanize.Comma(int64(s.Annotations)),
					humanize.Comma(int64(s.Unmatched)),
					humanize.IBytes(uint64(s.Bytes)))
			}
			_, _ = fmt.Fprintln(a.stdout, table.Render())
			_, _ = fmt.Fprintf(a.stdout, "Found %d dataset(s) in %s\n", len(summaries), sc.BaseDir())
			return nil
		},
	}
}

func newDatasetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dataset <name>",
		Short: "Show the classes of a dataset with their image and annotation counts",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := a.scanner().Open(args[0])
			if err != nil {
				return err
			}
			classes, err := ds.Classes()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(a.stdout, titleStyle.Render("Dataset "+ds.Name))
			table := newReportTable([]string{"Id", "Class", "Images", "Annotations", "Unmatched", "Size"},
				lipgloss.Right, lipgloss.Left, lipgloss.Right)
			var images, annotations, unmatched int
			var size int64
			for id, c := range classes {
				table.Add(kindFor(c.Unmatched > 0), fmt.Sprint(id), c.Name,
					humanize.Comma(int64(c.Images)),
					humanize.Comma(int64(c.Annotations)),
					humanize.Comma(int64(c.Unmatched)),
					humanize.IBytes(uint64(c.Bytes)))
				images += c.Images
				annotations += c.Annotations
				unmatched += c.Unmatched
				size += c.Bytes
			}
			table.Add(totalRow, "", "Total",
				humanize.Comma(int64(images)),
				humanize.Comma(int64(annotations)),
				humanize.Comma(int64(unmatched)),
				humanize.IBytes(uint64(size)))
			_, _ = fmt.Fprintln(a.stdout, table.Render())
			_, _ = fmt.Fprintf(a.stdout, "Dataset %q: %d classes, %s images in %s\n",
				ds.Name, len(classes), humanize.Comma(int64(images)), ds.Dir)
			return nil
		},
	}
}
