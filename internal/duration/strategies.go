package duration

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	ProbeTimeout  = 8 * time.Second
	DecodeTimeout = 10 * time.Second

	// One minute of audio per MiB: deliberately conservative and format
	// agnostic.
	bytesPerMinute = 1 << 20
)

// Probe reads the container metadata with ffprobe. It only touches as much
// of the file as the demuxer needs.
func Probe() Strategy {
	return Strategy{Name: "probe", Timeout: ProbeTimeout, Estimate: probeDuration}
}

// Decode decodes the whole stream with ffmpeg and takes the final
// timestamp. Slower than Probe but works for files with broken headers,
// e.g. browser-recorded webm.
func Decode() Strategy {
	return Strategy{Name: "decode", Timeout: DecodeTimeout, Estimate: decodeDuration}
}

func SizeHeuristic() Strategy {
	return Strategy{Name: "size", Estimate: sizeDuration}
}

func probeDuration(ctx context.Context, path string) (float64, error) {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return 0, fmt.Errorf("ffprobe not found")
	}

	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}

	return parseProbeOutput(string(output))
}

func parseProbeOutput(out string) (float64, error) {
	raw := strings.TrimSpace(out)
	if raw == "" || raw == "N/A" {
		return 0, fmt.Errorf("no duration in metadata")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", raw, err)
	}
	return v, nil
}

func decodeDuration(ctx context.Context, path string) (float64, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return 0, fmt.Errorf("ffmpeg not found")
	}

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-nostdin",
		"-i", path,
		"-vn",
		"-f", "null",
		"-",
	)

	// ffmpeg reports progress on stderr
	output, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffmpeg decode: %w", err)
	}

	return parseDecodeOutput(string(output))
}

var timeStamp = regexp.MustCompile(`time=(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)

// parseDecodeOutput takes the last time= progress stamp ffmpeg printed.
func parseDecodeOutput(out string) (float64, error) {
	matches := timeStamp.FindAllStringSubmatch(out, -1)
	if len(matches) == 0 {
		return 0, fmt.Errorf("no progress timestamp in decoder output")
	}
	last := matches[len(matches)-1]

	h, _ := strconv.Atoi(last[1])
	m, _ := strconv.Atoi(last[2])
	s, err := strconv.ParseFloat(last[3], 64)
	if err != nil {
		return 0, fmt.Errorf("parse timestamp: %w", err)
	}
	return float64(h*3600+m*60) + s, nil
}

func sizeDuration(_ context.Context, path string) (float64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return EstimateFromSize(info.Size()), nil
}

// EstimateFromSize converts a byte count to seconds at one minute per MiB.
func EstimateFromSize(size int64) float64 {
	if size <= 0 {
		return 0
	}
	return float64(size) / bytesPerMinute * 60
}
