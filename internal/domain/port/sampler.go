package port

import (
	"context"

	"github.com/gorggle/lipread-processing-service/internal/domain/entity"
)

// SampleResult describes one completed sampling pass. DurationSeconds is
// best-effort container metadata; zero when unavailable.
type SampleResult struct {
	SourceFPS       float64
	SampledFPS      float64
	DurationSeconds float64
	Interval        int
	Emitted         int
	Capped          bool
}

// FrameSampler decodes a video source and hands every sampled frame to emit,
// in increasing decode order. Ownership of the frame passes to emit; a
// non-nil error from emit aborts sampling. The sequence is finite and
// restartable only by re-invocation.
type FrameSampler interface {
	Sample(ctx context.Context, source string, emit func(entity.RawFrame) error) (*SampleResult, error)
}
