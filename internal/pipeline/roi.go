package pipeline

import (
	"fmt"
	"image"
	"math"

	"github.com/gorggle/lipread-processing-service/internal/domain/entity"
	"gocv.io/x/gocv"
)

// ExtractorConfig controls the mouth crop geometry.
type ExtractorConfig struct {
	HalfWidth  int
	HalfHeight int
	// BiasTolerance is how far (px) a crop bound may fall outside the frame
	// before the crop is rejected instead of clamped.
	BiasTolerance int
	// OutputSize is the resized square patch edge length.
	OutputSize int
}

// Extractor crops a fixed-size patch centered on the mouth landmarks from an
// aligned frame, with bounded boundary correction.
type Extractor struct {
	cfg ExtractorConfig
}

func NewExtractor(cfg ExtractorConfig) *Extractor {
	return &Extractor{cfg: cfg}
}

// Extract crops [C−h, C+h) × [C−w, C+w) around the mouth centroid C, clamps
// bounds that exit the image by at most BiasTolerance, and resizes the patch
// to OutputSize². A clamp beyond the tolerance rejects the frame with
// ExcessiveBias, a per-frame recoverable failure.
func (e *Extractor) Extract(aligned *entity.AlignedFrame) (*entity.MouthROI, error) {
	cx, cy := mouthCentroid(&aligned.Landmarks)

	cols := aligned.Image.Cols()
	rows := aligned.Image.Rows()

	x0, x1, err := cropSpan(cx, e.cfg.HalfWidth, cols, e.cfg.BiasTolerance)
	if err != nil {
		return nil, Errorf(KindExcessiveBias, "frame %d: horizontal crop at centroid %d exceeds tolerance", aligned.Index, cx)
	}
	y0, y1, err := cropSpan(cy, e.cfg.HalfHeight, rows, e.cfg.BiasTolerance)
	if err != nil {
		return nil, Errorf(KindExcessiveBias, "frame %d: vertical crop at centroid %d exceeds tolerance", aligned.Index, cy)
	}

	patch := aligned.Image.Region(image.Rect(x0, y0, x1, y1))
	defer patch.Close()

	out := e.cfg.OutputSize
	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(patch, &resized, image.Pt(out, out), 0, 0, gocv.InterpolationLinear)

	pixels, err := matToUnitFloats(resized)
	if err != nil {
		return nil, err
	}

	return &entity.MouthROI{
		Index:  aligned.Index,
		Width:  out,
		Height: out,
		Pixels: pixels,
	}, nil
}

// mouthCentroid is the mean of landmarks 48..67, rounded to integer pixels.
func mouthCentroid(ls *entity.LandmarkSet) (int, int) {
	var sx, sy float64
	mouth := ls.Mouth()
	for _, p := range mouth {
		sx += float64(p.X)
		sy += float64(p.Y)
	}
	n := float64(len(mouth))
	return int(math.Round(sx / n)), int(math.Round(sy / n))
}

var errExcessiveBias = Errorf(KindExcessiveBias, "crop bound exceeds bias tolerance")

// cropSpan resolves one axis of the crop window. The window is
// [center-half, center+half); a bound outside [0, limit) is clamped when
// within tol pixels of the edge and rejected otherwise.
func cropSpan(center, half, limit, tol int) (int, int, error) {
	lo := center - half
	hi := center + half

	if lo < -tol || hi > limit+tol {
		return 0, 0, errExcessiveBias
	}
	if lo < 0 {
		lo = 0
	}
	if hi > limit {
		hi = limit
	}
	if hi-lo <= 0 {
		return 0, 0, errExcessiveBias
	}
	return lo, hi, nil
}

// matToUnitFloats flattens a continuous 8UC3 mat into HWC float32 values
// scaled to [0,1].
func matToUnitFloats(m gocv.Mat) ([]float32, error) {
	data, err := m.DataPtrUint8()
	if err != nil {
		return nil, fmt.Errorf("read patch pixels: %w", err)
	}
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(v) / 255.0
	}
	return out, nil
}
