// Package assembly joins encoded scene segments into the final video for
// one output format, applying the declared transitions between them.
package assembly

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Segment is one encoded scene in timeline order.
type Segment struct {
	Path     string
	Duration float64
}

// Transition sits between two adjacent segments. A zero Duration or the
// name "none" means a hard cut.
type Transition struct {
	Name     string
	Duration float64
}

// Input is the full assembly request for one format: n segments and n-1
// transitions between them.
type Input struct {
	Segments    []Segment
	Transitions []Transition
}

// AssemblyError wraps a composition failure for one output.
type AssemblyError struct {
	Output string
	Err    error
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("assemble %s: %v", e.Output, e.Err)
}

func (e *AssemblyError) Unwrap() error { return e.Err }

// xfadeNames maps transition names to ffmpeg xfade transitions. Unknown
// names fall back to a plain crossfade.
var xfadeNames = map[string]string{
	"fade":        "fade",
	"slide_left":  "slideleft",
	"slide_right": "slideright",
	"slide_up":    "slideup",
	"slide_down":  "slidedown",
	"wipe_left":   "wipeleft",
	"wipe_right":  "wiperight",
	"smooth_up":   "smoothup",
	"dissolve":    "dissolve",
	"circle":      "circleopen",
}

// cutDuration approximates a hard cut inside an xfade chain, where a true
// zero-length transition is not expressible.
const cutDuration = 0.04

// ExpectedDuration returns the output length: transitions overlap their
// neighbours, so each one consumes its duration from the total.
func ExpectedDuration(in Input) float64 {
	var total float64
	for _, s := range in.Segments {
		total += s.Duration
	}
	for _, t := range in.Transitions {
		if !isCut(t) {
			total -= t.Duration
		}
	}
	return total
}

// Concatenate composes the segments into outPath. With only hard cuts the
// segments are joined losslessly via the concat demuxer; otherwise a
// filter graph crossfades video and audio at each boundary.
func Concatenate(ctx context.Context, in Input, outPath string) error {
	if len(in.Segments) == 0 {
		return &AssemblyError{Output: outPath, Err: fmt.Errorf("no segments")}
	}
	if len(in.Transitions) != len(in.Segments)-1 {
		return &AssemblyError{Output: outPath, Err: fmt.Errorf(
			"%d segments need %d transitions, got %d",
			len(in.Segments), len(in.Segments)-1, len(in.Transitions))}
	}
	for _, s := range in.Segments {
		if _, err := os.Stat(s.Path); err != nil {
			return &AssemblyError{Output: outPath, Err: fmt.Errorf("missing segment: %w", err)}
		}
	}

	if allCuts(in.Transitions) {
		return concatCopy(ctx, in.Segments, outPath)
	}
	return crossfade(ctx, in, outPath)
}

func isCut(t Transition) bool {
	return t.Name == "" || t.Name == "none" || t.Duration <= 0
}

func allCuts(ts []Transition) bool {
	for _, t := range ts {
		if !isCut(t) {
			return false
		}
	}
	return true
}

// concatCopy joins segments without re-encoding.
func concatCopy(ctx context.Context, segs []Segment, outPath string) error {
	list, err := os.CreateTemp(filepath.Dir(outPath), "concat-*.txt")
	if err != nil {
		return &AssemblyError{Output: outPath, Err: err}
	}
	defer os.Remove(list.Name())

	for _, s := range segs {
		abs, err := filepath.Abs(s.Path)
		if err != nil {
			list.Close()
			return &AssemblyError{Output: outPath, Err: err}
		}
		fmt.Fprintf(list, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	if err := list.Close(); err != nil {
		return &AssemblyError{Output: outPath, Err: err}
	}

	return runFFmpeg(ctx, outPath,
		"-y",
		"-f", "concat", "-safe", "0",
		"-i", list.Name(),
		"-c", "copy",
		"-movflags", "+faststart",
		outPath)
}

func crossfade(ctx context.Context, in Input, outPath string) error {
	return runFFmpeg(ctx, outPath, crossfadeArgs(in, outPath)...)
}

// crossfadeArgs builds the xfade/acrossfade chain. The offset of transition
// i is the accumulated output duration before it: each applied transition
// pulls the next segment earlier by its length.
func crossfadeArgs(in Input, outPath string) []string {
	args := []string{"-y"}
	for _, s := range in.Segments {
		args = append(args, "-i", s.Path)
	}

	var filter strings.Builder
	prevV, prevA := "[0:v]", "[0:a]"
	offset := in.Segments[0].Duration
	for i, t := range in.Transitions {
		d := t.Duration
		name := xfadeNames[t.Name]
		if isCut(t) {
			name, d = "fade", cutDuration
		} else if name == "" {
			name = "fade"
		}
		offset -= d

		outV := fmt.Sprintf("[v%d]", i+1)
		outA := fmt.Sprintf("[a%d]", i+1)
		fmt.Fprintf(&filter, "%s[%d:v]xfade=transition=%s:duration=%g:offset=%g%s;",
			prevV, i+1, name, d, offset, outV)
		fmt.Fprintf(&filter, "%s[%d:a]acrossfade=d=%g%s;",
			prevA, i+1, d, outA)

		prevV, prevA = outV, outA
		offset += in.Segments[i+1].Duration
	}
	graph := strings.TrimSuffix(filter.String(), ";")

	return append(args,
		"-filter_complex", graph,
		"-map", prevV, "-map", prevA,
		"-c:v", "libx264", "-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-movflags", "+faststart",
		outPath)
}

func runFFmpeg(ctx context.Context, outPath string, args ...string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &AssemblyError{Output: outPath, Err: fmt.Errorf("%w: %s", err, lastLine(out))}
	}
	return nil
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}
