// Package gcode holds small helpers for print program files: the end-of-file
// sentinel appended before upload and the Slic3r comment parser used to quote
// ready-made programs.
package gcode

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Sentinel is appended to every uploaded program. M400 drains the planner so
// the host only reports the job finished after all motion completed; the
// trailing M115 is a benign query that marks the true end of the stream.
const Sentinel = "\nM400\nM115\n"

// WithSentinel returns a reader that yields the program followed by the
// end-of-file sentinel.
func WithSentinel(program io.Reader) io.Reader {
	return io.MultiReader(program, strings.NewReader(Sentinel))
}

var (
	timeComment   = regexp.MustCompile(`estimated printing time.*=\s*(.+)$`)
	weightComment = regexp.MustCompile(`filament used\s*\[g\]\s*=\s*([0-9.]+)`)
	timePart      = regexp.MustCompile(`(\d+)\s*([dhms])`)
)

// Estimates is what a slicer wrote into the program's trailing comments.
type Estimates struct {
	BuildTime time.Duration
	WeightG   float64
}

// ParseEstimates scans a program for the Slic3r-family footer comments and
// extracts the estimated printing time and filament weight. Returns an error
// when no time comment is present; weight is optional and defaults to zero.
func ParseEstimates(program io.Reader) (Estimates, error) {
	var est Estimates
	foundTime := false

	scanner := bufio.NewScanner(program)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, ";") {
			continue
		}
		if m := timeComment.FindStringSubmatch(line); m != nil {
			d, err := parseSlicerDuration(m[1])
			if err != nil {
				continue
			}
			est.BuildTime = d
			foundTime = true
		}
		if m := weightComment.FindStringSubmatch(line); m != nil {
			if w, err := strconv.ParseFloat(m[1], 64); err == nil {
				est.WeightG = w
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return Estimates{}, fmt.Errorf("scan program: %w", err)
	}
	if !foundTime {
		return Estimates{}, fmt.Errorf("no estimated printing time comment found")
	}
	return est, nil
}

// parseSlicerDuration parses the "1d 2h 30m 12s" format Slic3r writes.
func parseSlicerDuration(s string) (time.Duration, error) {
	matches := timePart.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return 0, fmt.Errorf("unrecognized duration %q", s)
	}
	var total time.Duration
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, err
		}
		switch m[2] {
		case "d":
			total += time.Duration(n) * 24 * time.Hour
		case "h":
			total += time.Duration(n) * time.Hour
		case "m":
			total += time.Duration(n) * time.Minute
		case "s":
			total += time.Duration(n) * time.Second
		}
	}
	return total, nil
}
