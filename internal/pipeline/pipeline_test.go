package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/gorggle/lipread-processing-service/internal/domain/entity"
	"github.com/gorggle/lipread-processing-service/internal/domain/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// fakeSampler emits a fixed number of uniform gray frames.
type fakeSampler struct {
	frames int
}

func (s *fakeSampler) Sample(ctx context.Context, _ string, emit func(entity.RawFrame) error) (*port.SampleResult, error) {
	for i := 0; i < s.frames; i++ {
		img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(90, 90, 90, 0), 256, 256, gocv.MatTypeCV8UC3)
		raw := entity.RawFrame{
			Index:       i,
			DecodeIndex: i,
			Timestamp:   float64(i) / 25,
			Image:       img,
		}
		if err := emit(raw); err != nil {
			return nil, err
		}
	}
	return &port.SampleResult{
		SourceFPS:       25,
		SampledFPS:      25,
		DurationSeconds: float64(s.frames) / 25,
		Interval:        1,
		Emitted:         s.frames,
	}, nil
}

// scriptedLocator scripts per-call outcomes and otherwise returns the
// template landmarks, which makes alignment the identity. Calls in errAt
// (or all, with errAll) simulate a backend failure; calls in failAt return
// zero detections.
type scriptedLocator struct {
	mu        sync.Mutex
	calls     int
	failUntil int
	failAt    map[int]bool
	failAll   bool
	errAt     map[int]bool
	errAll    bool
	landmarks entity.LandmarkSet
}

func (l *scriptedLocator) Detect(_ context.Context, _ gocv.Mat) ([]entity.FaceDetection, error) {
	l.mu.Lock()
	idx := l.calls
	l.calls++
	l.mu.Unlock()

	if l.errAll || l.errAt[idx] {
		return nil, errors.New("landmark backend: connection refused")
	}
	if l.failAll || idx < l.failUntil || l.failAt[idx] {
		return nil, nil
	}
	return []entity.FaceDetection{{Confidence: 0.95, Landmarks: l.landmarks}}, nil
}

func (l *scriptedLocator) Close() error { return nil }

func newTestPipeline(t *testing.T, loc port.FaceLocator, sampler port.FrameSampler) *Pipeline {
	t.Helper()

	tpl, err := ParseTemplate(testTemplateJSON(t, 256))
	require.NoError(t, err)

	aligner := NewAligner(tpl, nil, testAlignerConfig())
	extractor := NewExtractor(ExtractorConfig{HalfWidth: 48, HalfHeight: 48, BiasTolerance: 8, OutputSize: 96})
	assembler := NewAssembler(AssemblerConfig{Scheme: NormalizationUnit})

	// A single worker keeps locator call order aligned with frame order.
	return New(sampler, loc, aligner, extractor, assembler, Config{Workers: 1, RANSACSeed: 42}, zap.NewNop())
}

func TestPipelineAllFramesValid(t *testing.T) {
	loc := &scriptedLocator{landmarks: testLandmarks(256)}
	p := newTestPipeline(t, loc, &fakeSampler{frames: 12})

	tensor, stats, err := p.Process(context.Background(), "ignored.mp4")
	require.NoError(t, err)

	assert.Equal(t, 12, tensor.FrameCount)
	assert.Equal(t, []int{12, 3, 96, 96}, []int(tensor.Data.Shape()))
	assert.Equal(t, 25.0, tensor.SampledFPS)

	assert.Equal(t, 12, stats.Sampled)
	assert.Equal(t, 0, stats.Dropped)
	assert.Equal(t, 0, stats.Substituted)
	assert.Equal(t, 12, stats.Valid)
	assert.InDelta(t, 12.0/25, stats.DurationSeconds, 1e-9)
	assert.False(t, stats.Capped)
}

func TestPipelineDropsLeadingFailures(t *testing.T) {
	loc := &scriptedLocator{landmarks: testLandmarks(256), failUntil: 10}
	p := newTestPipeline(t, loc, &fakeSampler{frames: 30})

	tensor, stats, err := p.Process(context.Background(), "ignored.mp4")
	require.NoError(t, err)

	assert.Equal(t, 20, tensor.FrameCount)
	assert.Equal(t, 10, stats.Dropped)
	assert.Equal(t, 0, stats.Substituted)
}

func TestPipelineSubstitutesMidSequenceFailure(t *testing.T) {
	loc := &scriptedLocator{landmarks: testLandmarks(256), failAt: map[int]bool{5: true}}
	p := newTestPipeline(t, loc, &fakeSampler{frames: 10})

	tensor, stats, err := p.Process(context.Background(), "ignored.mp4")
	require.NoError(t, err)

	assert.Equal(t, 10, tensor.FrameCount)
	assert.Equal(t, 0, stats.Dropped)
	assert.Equal(t, 1, stats.Substituted)
	assert.Equal(t, 9, stats.Valid)
}

func TestPipelineAllFramesFailIsFatal(t *testing.T) {
	loc := &scriptedLocator{failAll: true}
	p := newTestPipeline(t, loc, &fakeSampler{frames: 8})

	_, _, err := p.Process(context.Background(), "ignored.mp4")
	require.Error(t, err)

	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindNoValidROIs, kind)
	assert.True(t, ContentFatal(err))
}

func TestPipelineLocatorOutageIsRetryable(t *testing.T) {
	loc := &scriptedLocator{errAll: true}
	p := newTestPipeline(t, loc, &fakeSampler{frames: 8})

	_, _, err := p.Process(context.Background(), "ignored.mp4")
	require.Error(t, err)

	// A dead backend must not masquerade as a faceless video.
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindLocatorUnavailable, kind)
	assert.False(t, ContentFatal(err))
}

func TestPipelineTransientLocatorErrorIsSubstituted(t *testing.T) {
	loc := &scriptedLocator{landmarks: testLandmarks(256), errAt: map[int]bool{3: true}}
	p := newTestPipeline(t, loc, &fakeSampler{frames: 10})

	tensor, stats, err := p.Process(context.Background(), "ignored.mp4")
	require.NoError(t, err)

	assert.Equal(t, 10, tensor.FrameCount)
	assert.Equal(t, 1, stats.Substituted)
}

func TestPipelineMostlyFacelessStaysFatal(t *testing.T) {
	loc := &scriptedLocator{failAll: true, errAt: map[int]bool{0: true, 1: true, 2: true}}
	p := newTestPipeline(t, loc, &fakeSampler{frames: 8})

	_, _, err := p.Process(context.Background(), "ignored.mp4")
	require.Error(t, err)

	// 3 backend errors against 5 faceless frames: the video is still the
	// problem, so the failure stays content-fatal.
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindNoValidROIs, kind)
	assert.True(t, ContentFatal(err))
}

func TestPipelineDeterministicOutput(t *testing.T) {
	run := func() []float32 {
		loc := &scriptedLocator{landmarks: testLandmarks(256)}
		p := newTestPipeline(t, loc, &fakeSampler{frames: 4})
		tensor, _, err := p.Process(context.Background(), "ignored.mp4")
		require.NoError(t, err)
		return tensor.Data.Data().([]float32)
	}

	assert.Equal(t, run(), run())
}
