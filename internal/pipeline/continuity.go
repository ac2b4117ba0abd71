package pipeline

import "github.com/gorggle/lipread-processing-service/internal/domain/entity"

type continuityState int

const (
	stateEmpty continuityState = iota
	stateWarm
	stateDone
)

// Continuity decides, frame by frame, whether a ROI is accepted, a failure
// is substituted with the last accepted patch, or the frame is dropped
// entirely. Before the first success (EMPTY) failures are dropped; after it
// (WARM) failures are substituted so frame-count alignment with timing
// metadata is preserved. The machine never returns to EMPTY.
type Continuity struct {
	state       continuityState
	seq         entity.ROISequence
	last        *entity.MouthROI
	dropped     int
	substituted int
}

func NewContinuity() *Continuity {
	return &Continuity{state: stateEmpty}
}

// Accept appends a valid ROI, re-indexed to the position it occupies in the
// sequence, and warms the machine up.
func (c *Continuity) Accept(roi *entity.MouthROI) {
	r := *roi
	r.Index = len(c.seq)
	r.Substituted = false
	c.seq = append(c.seq, r)
	c.last = &c.seq[len(c.seq)-1]
	c.state = stateWarm
}

// Fail records a per-frame failure. Dropped before warm-up; substituted with
// a copy of the most recent accepted patch, marked substituted, afterwards.
func (c *Continuity) Fail() {
	if c.state == stateEmpty {
		c.dropped++
		return
	}

	pixels := make([]float32, len(c.last.Pixels))
	copy(pixels, c.last.Pixels)
	c.seq = append(c.seq, entity.MouthROI{
		Index:       len(c.seq),
		Width:       c.last.Width,
		Height:      c.last.Height,
		Pixels:      pixels,
		Substituted: true,
	})
	c.substituted++
}

// Finish transitions to DONE and returns the gap-free sequence. A sequence
// that never warmed up fails with NoValidROIs, fatal to the pipeline.
func (c *Continuity) Finish() (entity.ROISequence, error) {
	c.state = stateDone
	if len(c.seq) == 0 {
		return nil, Errorf(KindNoValidROIs, "no face detected in any sampled frame")
	}
	return c.seq, nil
}

// Dropped is the number of frames discarded before warm-up.
func (c *Continuity) Dropped() int { return c.dropped }

// Substituted is the number of patches repeated after warm-up.
func (c *Continuity) Substituted() int { return c.substituted }
