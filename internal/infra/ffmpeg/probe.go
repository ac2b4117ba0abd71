package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Probe reads stream metadata with ffprobe. It backs up the decoder when the
// container reports a missing or broken frame rate.
type Probe struct {
	logger *zap.Logger
}

func NewProbe(logger *zap.Logger) *Probe {
	return &Probe{logger: logger}
}

// FrameRate returns the average frame rate of the first video stream.
func (p *Probe) FrameRate(ctx context.Context, videoPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=r_frame_rate",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}

	rate, err := parseRational(strings.TrimSpace(string(output)))
	if err != nil {
		return 0, fmt.Errorf("parse frame rate: %w", err)
	}
	return rate, nil
}

// Duration returns the container duration in seconds.
func (p *Probe) Duration(ctx context.Context, videoPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}

	p.logger.Debug("probed container duration",
		zap.String("source", videoPath),
		zap.Float64("seconds", duration),
	)
	return duration, nil
}

// parseRational handles ffprobe rates like "30000/1001" or "25/1".
func parseRational(s string) (float64, error) {
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0, err
		}
		d, err := strconv.ParseFloat(den, 64)
		if err != nil {
			return 0, err
		}
		if d == 0 {
			return 0, fmt.Errorf("zero denominator in %q", s)
		}
		return n / d, nil
	}
	return strconv.ParseFloat(s, 64)
}
