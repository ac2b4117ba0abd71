package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorggle/lipread-processing-service/internal/domain/entity"
	"github.com/gorggle/lipread-processing-service/internal/domain/port"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Config tunes the orchestration, not the per-stage geometry.
type Config struct {
	// Workers bounds the per-frame detect/align/crop fan-out.
	Workers int
	// RANSACSeed makes the similarity estimation, and therefore the whole
	// tensor, reproducible for identical inputs.
	RANSACSeed int
}

// Pipeline is the video-to-mouth-ROI preprocessing pipeline: sample frames,
// locate a face and its landmarks, register to the canonical pose, crop the
// mouth patch, enforce temporal continuity, and assemble the model tensor.
type Pipeline struct {
	sampler   port.FrameSampler
	locator   port.FaceLocator
	aligner   *Aligner
	extractor *Extractor
	assembler *Assembler
	cfg       Config
	logger    *zap.Logger
}

func New(
	sampler port.FrameSampler,
	locator port.FaceLocator,
	aligner *Aligner,
	extractor *Extractor,
	assembler *Assembler,
	cfg Config,
	logger *zap.Logger,
) *Pipeline {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Pipeline{
		sampler:   sampler,
		locator:   locator,
		aligner:   aligner,
		extractor: extractor,
		assembler: assembler,
		cfg:       cfg,
		logger:    logger,
	}
}

type frameOutcome struct {
	roi *entity.MouthROI
	err error
}

// Process runs the whole per-video computation. Per-frame stages run on a
// bounded worker pool; results are re-joined in strict sample-index order
// before the sequential continuity pass.
func (p *Pipeline) Process(ctx context.Context, videoPath string) (*entity.ModelTensor, *entity.PreprocessStats, error) {
	gocv.SetRNGSeed(p.cfg.RANSACSeed)

	jobs := make(chan entity.RawFrame, p.cfg.Workers)
	outcomes := make(map[int]frameOutcome)

	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for frame := range jobs {
				roi, err := p.processFrame(ctx, frame)
				frame.Close()
				mu.Lock()
				outcomes[frame.Index] = frameOutcome{roi: roi, err: err}
				mu.Unlock()
			}
		}()
	}

	result, sampleErr := p.sampler.Sample(ctx, videoPath, func(frame entity.RawFrame) error {
		select {
		case jobs <- frame:
			return nil
		case <-ctx.Done():
			frame.Close()
			return ctx.Err()
		}
	})
	close(jobs)
	wg.Wait()

	if sampleErr != nil {
		return nil, nil, fmt.Errorf("sample frames: %w", sampleErr)
	}

	continuity := NewContinuity()
	backendFailures := 0
	for i := 0; i < result.Emitted; i++ {
		outcome, ok := outcomes[i]
		if !ok || outcome.err != nil {
			if outcome.err != nil {
				kind, _ := KindOf(outcome.err)
				if kind == KindLocatorUnavailable {
					backendFailures++
				}
				p.logger.Debug("per-frame failure",
					zap.Int("frame", i),
					zap.String("kind", string(kind)),
					zap.Error(outcome.err),
				)
			}
			continuity.Fail()
			continue
		}
		continuity.Accept(outcome.roi)
	}

	seq, err := continuity.Finish()
	if err != nil {
		// A run that never warmed up because the landmark backend kept
		// erroring says nothing about the video; report the outage so the
		// job is retried instead of failed permanently.
		if backendFailures*2 >= result.Emitted {
			return nil, nil, Wrap(KindLocatorUnavailable, err,
				fmt.Sprintf("landmark backend failed on %d of %d frames", backendFailures, result.Emitted))
		}
		return nil, nil, err
	}

	tensor, err := p.assembler.Assemble(seq, result.SampledFPS)
	if err != nil {
		return nil, nil, err
	}

	stats := &entity.PreprocessStats{
		SourceFPS:       result.SourceFPS,
		SampledFPS:      result.SampledFPS,
		DurationSeconds: result.DurationSeconds,
		Interval:        result.Interval,
		Sampled:         result.Emitted,
		Dropped:         continuity.Dropped(),
		Substituted:     continuity.Substituted(),
		Valid:           len(seq) - continuity.Substituted(),
		Capped:          result.Capped,
	}

	p.logger.Info("pipeline finished",
		zap.Int("sampled", stats.Sampled),
		zap.Int("sequence_length", len(seq)),
		zap.Int("dropped", stats.Dropped),
		zap.Int("substituted", stats.Substituted),
		zap.Float64("sampled_fps", stats.SampledFPS),
	)

	return tensor, stats, nil
}

// processFrame runs detect → align → crop for a single frame. Any error is
// per-frame recoverable and absorbed by the continuity policy.
func (p *Pipeline) processFrame(ctx context.Context, frame entity.RawFrame) (*entity.MouthROI, error) {
	detections, err := p.locator.Detect(ctx, frame.Image)
	if err != nil {
		return nil, Wrap(KindLocatorUnavailable, err, fmt.Sprintf("locate face in frame %d", frame.Index))
	}
	if len(detections) == 0 {
		return nil, Errorf(KindNoFaceDetected, "no face in frame %d", frame.Index)
	}

	aligned, err := p.aligner.Align(ctx, frame, detections[0].Landmarks)
	if err != nil {
		return nil, err
	}
	defer aligned.Close()

	return p.extractor.Extract(aligned)
}
