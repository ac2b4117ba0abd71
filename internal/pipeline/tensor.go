package pipeline

import (
	"github.com/gorggle/lipread-processing-service/internal/domain/entity"
	"gorgonia.org/tensor"
)

// NormalizationScheme selects the pixel normalization applied during
// assembly.
type NormalizationScheme string

const (
	// NormalizationUnit keeps the plain [0,1] scaling.
	NormalizationUnit NormalizationScheme = "unit"
	// NormalizationMeanStd additionally applies per-channel (v-mean)/std.
	NormalizationMeanStd NormalizationScheme = "meanstd"
)

// AssemblerConfig carries the normalization required by the consuming model.
type AssemblerConfig struct {
	Scheme NormalizationScheme
	Mean   [3]float64
	Std    [3]float64
}

// Assembler stacks an accepted ROI sequence into the (T, C, H, W) model
// tensor, in strictly increasing sequence-index order.
type Assembler struct {
	cfg AssemblerConfig
}

func NewAssembler(cfg AssemblerConfig) *Assembler {
	return &Assembler{cfg: cfg}
}

// Assemble converts the sequence into a float32 tensor of shape
// (len(seq), 3, H, W). An empty sequence is rejected with EmptySequence;
// the NoValidROIs gate upstream should make that unreachable.
func (a *Assembler) Assemble(seq entity.ROISequence, sampledFPS float64) (*entity.ModelTensor, error) {
	if len(seq) == 0 {
		return nil, Errorf(KindEmptySequence, "cannot assemble a zero-length sequence")
	}

	h := seq[0].Height
	w := seq[0].Width
	t := len(seq)

	backing := make([]float32, t*3*h*w)
	for ti, roi := range seq {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				for ch := 0; ch < 3; ch++ {
					v := float64(roi.Pixels[(y*w+x)*3+ch])
					if a.cfg.Scheme == NormalizationMeanStd {
						v = (v - a.cfg.Mean[ch]) / a.cfg.Std[ch]
					}
					backing[((ti*3+ch)*h+y)*w+x] = float32(v)
				}
			}
		}
	}

	dense := tensor.New(tensor.WithShape(t, 3, h, w), tensor.WithBacking(backing))
	return &entity.ModelTensor{
		Data:       dense,
		FrameCount: t,
		SampledFPS: sampledFPS,
	}, nil
}
