// Copyright 2026 The yolofe Authors. SPDX-License-Identifier: Apache-2.0

package trainer

import (
	"bytes"
	"math"
	"regexp"
	"strconv"
	"sync"
)

// Progress of the trainer, parsed from one of its iteration lines, e.g.:
//
//	" 12: 15.73, 17.21 avg loss, 0.000010 rate, 1.53 seconds, 768 images, 4.21 hours left"
type Progress struct {
	Iteration     int
	Loss, AvgLoss float64
	LearningRate  float64
	Seconds       float64
	Images        int

	// HoursLeft is the trainer's own estimate, or -1 if it didn't print one.
	HoursLeft float64
}

var progressRegexp = regexp.MustCompile(
	`^\s*(\d+):\s*([^,\s]+),\s*([^,\s]+) avg loss,\s*([^,\s]+) rate,\s*([^,\s]+) seconds,\s*(\d+) images(?:,\s*([^,\s]+) hours left)?`)

// parseFloat accepts the "nan" and "-nan" printed by C for diverging losses.
func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// ParseProgress parses a trainer iteration line. It returns false for any other line.
func ParseProgress(line string) (Progress, bool) {
	m := progressRegexp.FindStringSubmatch(line)
	if m == nil {
		return Progress{}, false
	}
	var p Progress
	p.Iteration, _ = strconv.Atoi(m[1])
	p.Loss = parseFloat(m[2])
	p.AvgLoss = parseFloat(m[3])
	p.LearningRate = parseFloat(m[4])
	p.Seconds = parseFloat(m[5])
	p.Images, _ = strconv.Atoi(m[6])
	p.HoursLeft = -1
	if m[7] != "" {
		p.HoursLeft = parseFloat(m[7])
	}
	return p, true
}

// lineWriter is an io.Writer that calls onLine for every complete line written to it.
// Both "\n" and "\r" end lines. Call Flush at the end to process a last line without terminator.
type lineWriter struct {
	mu     sync.Mutex
	buf    []byte
	onLine func(line string)
}

func newLineWriter(onLine func(line string)) *lineWriter {
	return &lineWriter{onLine: onLine}
}

// Write implements io.Writer.
func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	for {
		idx := bytes.IndexAny(w.buf, "\r\n")
		if idx < 0 {
			break
		}
		if idx > 0 {
			w.onLine(string(w.buf[:idx]))
		}
		w.buf = w.buf[idx+1:]
	}
	return len(p), nil
}

// Flush processes any pending incomplete line.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.onLine(string(w.buf))
		w.buf = nil
	}
}
