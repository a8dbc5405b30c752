// Copyright 2026 The yolofe Authors. SPDX-License-Identifier: Apache-2.0

// Package commandline holds terminal helpers: a progress bar with a table of metrics for long running
// trainer processes, and parsing of "key=value;..." settings given in flags.
package commandline

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/muesli/termenv"
	"github.com/schollz/progressbar/v3"
)

// ProgressbarStyle to use. Defaults to the ASCII version.
// Consider "progressbar.ThemeUnicode" for a prettier version.
// But it requires some of the graphical symbols to be supported.
var ProgressbarStyle = progressbar.ThemeASCII

// Metric is a named value displayed in the table above the progress bar.
type Metric struct {
	Name, Value string
}

// ProgressBar displays the progress of a number of steps (trainer iterations), along with a table of
// the latest metrics. Updates are drawn asynchronously, so a fast producer is never blocked by a slow terminal.
type ProgressBar struct {
	numSteps int
	bar      *progressbar.ProgressBar
	start    time.Time

	termenv       *termenv.Output
	writer        io.Writer
	statsStyle    lipgloss.Style
	statsTable    *lgtable.Table
	linesToBackup int
	updates       chan progressUpdate
	done          sync.WaitGroup
	closeOnce     sync.Once
}

type progressUpdate struct {
	step    int
	metrics []Metric
}

// maxUpdateFrequency is the time between updates to the commandline display of stats.
var maxUpdateFrequency = time.Millisecond * 200

var (
	normalStyle       = lipgloss.NewStyle().Padding(0, 1)
	rightAlignedStyle = lipgloss.NewStyle().Align(lipgloss.Right).Padding(0, 1)
	tableBorderColor  = "#705090"
)

// NewProgressBar creates a progress bar for numSteps steps, writing to w (usually os.Stdout).
// Call Update as steps complete, and Close at the end.
func NewProgressBar(w io.Writer, description string, numSteps int) *ProgressBar {
	if numSteps <= 0 {
		numSteps = -1 // Unknown: progressbar shows a spinner.
	}
	pBar := &ProgressBar{
		numSteps:   numSteps,
		start:      time.Now(),
		writer:     w,
		termenv:    termenv.NewOutput(w),
		statsStyle: lipgloss.NewStyle().PaddingLeft(8),
		updates:    make(chan progressUpdate, 100), // Large buffer so things are not blocked.
	}
	pBar.bar = progressbar.NewOptions(numSteps,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(w),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("iterations"),
		progressbar.OptionSetTheme(ProgressbarStyle),
	)
	pBar.statsTable = lgtable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color(tableBorderColor))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return rightAlignedStyle
			}
			return normalStyle
		})
	pBar.done.Add(1)
	go pBar.drawLoop()
	return pBar
}

// Update reports that step (1-based count of completed steps) was reached, with its latest metrics.
func (pBar *ProgressBar) Update(step int, metrics ...Metric) {
	pBar.updates <- progressUpdate{step: step, metrics: metrics}
}

// Close waits for the pending updates to be drawn and restores the cursor. It can be called more than once.
func (pBar *ProgressBar) Close() {
	pBar.closeOnce.Do(func() {
		close(pBar.updates)
		pBar.done.Wait()
		_ = pBar.bar.Close()
		pBar.termenv.ShowCursor()
		_, _ = fmt.Fprintln(pBar.writer)
	})
}

func (pBar *ProgressBar) drawLoop() {
	defer pBar.done.Done()
	for update := range pBar.updates {
		// Exhaust the updates in the buffer, only the latest is drawn.
	exhaust:
		for {
			select {
			case newUpdate, ok := <-pBar.updates:
				if !ok {
					break exhaust
				}
				update = newUpdate
			default:
				break exhaust
			}
		}
		pBar.draw(update)
		time.Sleep(maxUpdateFrequency)
	}
}

func (pBar *ProgressBar) draw(update progressUpdate) {
	pBar.statsTable.Data(lgtable.NewStringData())
	if pBar.numSteps > 0 {
		pBar.statsTable.Row("Iteration", fmt.Sprintf("%s of %s",
			humanize.Comma(int64(update.step)), humanize.Comma(int64(pBar.numSteps))))
	} else {
		pBar.statsTable.Row("Iteration", humanize.Comma(int64(update.step)))
	}
	pBar.statsTable.Row("Elapsed", FormatDuration(time.Since(pBar.start)))
	for _, metric := range update.metrics {
		pBar.statsTable.Row(metric.Name, metric.Value)
	}

	// Clear the previous lines that will be overwritten.
	pBar.termenv.HideCursor()
	if pBar.linesToBackup > 0 {
		pBar.termenv.CursorPrevLine(pBar.linesToBackup)
	}
	rendered := pBar.statsStyle.Render(pBar.statsTable.String())
	_, _ = fmt.Fprintln(pBar.writer, rendered)
	_ = pBar.bar.Set(update.step) // Prints progress bar line.
	_, _ = fmt.Fprintln(pBar.writer)
	pBar.linesToBackup = strings.Count(rendered, "\n") + 2
	pBar.termenv.ShowCursor()
}

// FormatDuration pretty prints duration rounded to a reasonable precision.
func FormatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		return d.Round(time.Second).String()
	case d >= time.Second:
		return d.Round(10 * time.Millisecond).String()
	default:
		return d.Round(10 * time.Microsecond).String()
	}
}
