package system

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"syscall"

	"github.com/shirou/gopsutil/v3/mem"
)

// InitResourceLimits raises the open-file limit. Every surface handle and
// encoder process costs several descriptors, so the default soft limit is
// too low for wide fan-out.
func InitResourceLimits() error {
	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return err
	}
	rLimit.Cur = 2048
	if rLimit.Cur > rLimit.Max {
		rLimit.Cur = rLimit.Max
	}
	return syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit)
}

// AudioDuration returns the duration of an audio file in seconds via ffprobe.
func AudioDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	var duration float64
	if _, err := fmt.Sscanf(strings.TrimSpace(string(out)), "%f", &duration); err != nil {
		return 0, fmt.Errorf("ffprobe %s: parse duration: %w", path, err)
	}
	return duration, nil
}

// BestH264Encoder probes ffmpeg for a hardware H.264 encoder, falling back
// to libx264.
func BestH264Encoder() string {
	out, err := exec.Command("ffmpeg", "-encoders").CombinedOutput()
	if err != nil {
		return "libx264"
	}
	for _, enc := range []string{"h264_videotoolbox", "h264_nvenc"} {
		if strings.Contains(string(out), enc) {
			return enc
		}
	}
	return "libx264"
}

// DefaultPoolSize picks the surface-handle pool size: one handle per core,
// capped so that pool * queue depth worth of frames fits in memory.
func DefaultPoolSize() int {
	n := runtime.NumCPU()
	if n > 8 {
		n = 8
	}
	if n < 1 {
		n = 1
	}
	return n
}

// DefaultQueueDepth sizes the per-pipeline frame queue from available
// memory. A 1080p PNG frame runs 2-8 MB; budget roughly 64 MB per pipeline
// and clamp to [2, 32].
func DefaultQueueDepth() int {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 8
	}
	perPipeline := vm.Available / uint64(DefaultPoolSize())
	depth := int(perPipeline / (8 << 20) / 4)
	if depth < 2 {
		depth = 2
	}
	if depth > 32 {
		depth = 32
	}
	return depth
}
