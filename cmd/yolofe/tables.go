// Copyright 2026 The yolofe Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
)

// rowKind selects the style of a table row.
type rowKind int

const (
	plainRow rowKind = iota
	warningRow // E.g. classes with images missing annotations.
	totalRow
)

var (
	cellStyle    = lipgloss.NewStyle().PaddingLeft(1).PaddingRight(1)
	headerStyle  = lipgloss.NewStyle().Reverse(true).Padding(0, 2).Align(lipgloss.Center)
	stripedStyle = cellStyle.Faint(true)
	warningStyle = cellStyle.Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "9", Dark: "9"})
	totalStyle   = cellStyle.Bold(true)
	titleStyle   = lipgloss.NewStyle().Bold(true).Padding(1, 4, 0, 4)
)

// reportTable is a lipgloss table whose rows are styled by kind, and whose columns are aligned.
type reportTable struct {
	*lgtable.Table
	kinds      []rowKind
	alignments []lipgloss.Position
}

// newReportTable with the given header. Alignments are given per column, the last one is used for the
// remaining columns.
func newReportTable(header []string, alignments ...lipgloss.Position) *reportTable {
	t := &reportTable{alignments: alignments}
	t.Table = lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		Headers(header...).
		StyleFunc(t.style)
	return t
}

// Add a row of the given kind.
func (t *reportTable) Add(kind rowKind, cells ...string) {
	t.kinds = append(t.kinds, kind)
	t.Table.Row(cells...)
}

func (t *reportTable) style(row, col int) lipgloss.Style {
	if row == lgtable.HeaderRow {
		return headerStyle
	}
	s := cellStyle
	switch {
	case row < len(t.kinds) && t.kinds[row] == warningRow:
		s = warningStyle
	case row < len(t.kinds) && t.kinds[row] == totalRow:
		s = totalStyle
	case row%2 == 1:
		s = stripedStyle
	}
	if len(t.alignments) == 0 {
		return s
	}
	return s.Align(t.alignments[min(col, len(t.alignments)-1)])
}

// kindFor returns warningRow if warn is set.
func kindFor(warn bool) rowKind {
	if warn {
		return warningRow
	}
	return plainRow
}
