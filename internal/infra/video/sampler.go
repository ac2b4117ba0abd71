package video

import (
	"context"
	"math"

	"github.com/gorggle/lipread-processing-service/internal/domain/entity"
	"github.com/gorggle/lipread-processing-service/internal/domain/port"
	"github.com/gorggle/lipread-processing-service/internal/infra/ffmpeg"
	"github.com/gorggle/lipread-processing-service/internal/pipeline"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Sampler decodes a video container and emits RGB frames at the nearest
// achievable rate to the configured target, by integer frame skip.
type Sampler struct {
	targetFPS float64
	frameCap  int
	probe     *ffmpeg.Probe
	logger    *zap.Logger
}

// NewSampler builds a sampler. probe may be nil; it is only consulted when
// the container metadata reports no usable frame rate.
func NewSampler(targetFPS float64, frameCap int, probe *ffmpeg.Probe, logger *zap.Logger) *Sampler {
	return &Sampler{
		targetFPS: targetFPS,
		frameCap:  frameCap,
		probe:     probe,
		logger:    logger,
	}
}

// Sample decodes source and hands every I-th frame to emit, where
// I = max(1, round(sourceFPS/targetFPS)). Decoding stops at end-of-stream or
// at the frame cap. Ownership of each emitted frame passes to emit.
func (s *Sampler) Sample(ctx context.Context, source string, emit func(entity.RawFrame) error) (*port.SampleResult, error) {
	capture, err := gocv.OpenVideoCapture(source)
	if err != nil {
		return nil, pipeline.Wrap(pipeline.KindSourceUnreadable, err, "open video "+source)
	}
	defer capture.Close()

	if !capture.IsOpened() {
		return nil, pipeline.Errorf(pipeline.KindSourceUnreadable, "cannot open video %s", source)
	}

	sourceFPS := s.resolveSourceFPS(ctx, capture, source)
	interval := SamplingInterval(sourceFPS, s.targetFPS)

	frame := gocv.NewMat()
	defer frame.Close()

	emitted := 0
	decodeIdx := 0
	capped := false

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if ok := capture.Read(&frame); !ok || frame.Empty() {
			break
		}

		if decodeIdx%interval == 0 {
			if emitted >= s.frameCap {
				capped = true
				s.logger.Warn("frame cap reached, stopping decode",
					zap.String("source", source),
					zap.Int("cap", s.frameCap),
				)
				break
			}

			rgb := gocv.NewMat()
			gocv.CvtColor(frame, &rgb, gocv.ColorBGRToRGB)
			raw := entity.RawFrame{
				Index:       emitted,
				DecodeIndex: decodeIdx,
				Timestamp:   float64(decodeIdx) / sourceFPS,
				Image:       rgb,
			}
			if err := emit(raw); err != nil {
				return nil, err
			}
			emitted++
		}
		decodeIdx++
	}

	if emitted == 0 {
		return nil, pipeline.Errorf(pipeline.KindNoFramesExtracted, "no frames decoded from %s", source)
	}

	duration := 0.0
	if s.probe != nil {
		if d, err := s.probe.Duration(ctx, source); err == nil {
			duration = d
		}
	}

	return &port.SampleResult{
		SourceFPS:       sourceFPS,
		SampledFPS:      sourceFPS / float64(interval),
		DurationSeconds: duration,
		Interval:        interval,
		Emitted:         emitted,
		Capped:          capped,
	}, nil
}

// resolveSourceFPS tries container metadata, then ffprobe, then falls back
// to the target rate (every decoded frame is sampled).
func (s *Sampler) resolveSourceFPS(ctx context.Context, capture *gocv.VideoCapture, source string) float64 {
	fps := capture.Get(gocv.VideoCaptureFPS)
	if usableRate(fps) {
		return fps
	}

	if s.probe != nil {
		probed, err := s.probe.FrameRate(ctx, source)
		if err == nil && usableRate(probed) {
			s.logger.Debug("frame rate recovered via ffprobe",
				zap.String("source", source),
				zap.Float64("fps", probed),
			)
			return probed
		}
	}

	s.logger.Warn("source frame rate unavailable, assuming target rate",
		zap.String("source", source),
		zap.Float64("reported", fps),
		zap.Float64("assumed", s.targetFPS),
	)
	return s.targetFPS
}

// SamplingInterval is the integer frame skip I = max(1, round(source/target)).
func SamplingInterval(sourceFPS, targetFPS float64) int {
	if !usableRate(sourceFPS) || !usableRate(targetFPS) {
		return 1
	}
	interval := int(math.Round(sourceFPS / targetFPS))
	if interval < 1 {
		return 1
	}
	return interval
}

func usableRate(fps float64) bool {
	return fps > 0 && !math.IsNaN(fps) && !math.IsInf(fps, 0)
}
