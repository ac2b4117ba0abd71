package pipeline

import (
	"context"
	"image"
	"image/color"

	"github.com/gorggle/lipread-processing-service/internal/domain/entity"
	"github.com/gorggle/lipread-processing-service/internal/domain/port"
	"gocv.io/x/gocv"
)

// AlignerConfig controls the partial similarity estimation and warp.
type AlignerConfig struct {
	// WarpSize is the canonical output edge length.
	WarpSize int
	// ReprojThreshold is the RANSAC inlier threshold in canonical pixels.
	ReprojThreshold float64
	MaxIters        int
	Confidence      float64
	// RedetectAfterWarp re-runs the locator on the warped frame instead of
	// reprojecting the original landmarks through the transform.
	RedetectAfterWarp bool
}

// Aligner registers detected landmarks to the reference template and warps
// frames into the canonical coordinate frame.
type Aligner struct {
	template *ReferenceTemplate
	locator  port.FaceLocator
	cfg      AlignerConfig
}

func NewAligner(template *ReferenceTemplate, locator port.FaceLocator, cfg AlignerConfig) *Aligner {
	return &Aligner{
		template: template.ScaledTo(cfg.WarpSize),
		locator:  locator,
		cfg:      cfg,
	}
}

// Align estimates a rotation+scale+translation transform from the detected
// landmarks onto the template and warps the full frame to WarpSize².
// Landmarks in canonical coordinates are obtained by a second locator pass
// or by reprojection, per config. Failure to converge is a per-frame,
// recoverable error.
func (a *Aligner) Align(ctx context.Context, frame entity.RawFrame, landmarks entity.LandmarkSet) (*entity.AlignedFrame, error) {
	from := gocv.NewPoint2fVectorFromPoints(toPoint2f(landmarks[:]))
	defer from.Close()
	to := gocv.NewPoint2fVectorFromPoints(toPoint2f(a.template.Landmarks[:]))
	defer to.Close()

	inliers := gocv.NewMat()
	defer inliers.Close()

	m := gocv.EstimateAffinePartial2DWithParams(
		from, to, inliers,
		int(gocv.HomograpyMethodRANSAC),
		a.cfg.ReprojThreshold,
		uint(a.cfg.MaxIters),
		a.cfg.Confidence,
		10,
	)
	defer m.Close()

	if m.Empty() {
		return nil, Errorf(KindAlignmentFailed, "similarity estimator did not converge for frame %d", frame.Index)
	}

	size := a.cfg.WarpSize
	warped := gocv.NewMat()
	gocv.WarpAffineWithParams(frame.Image, &warped, m, image.Pt(size, size),
		gocv.InterpolationLinear, gocv.BorderConstant, color.RGBA{})

	canonical, err := a.canonicalLandmarks(ctx, warped, m, landmarks)
	if err != nil {
		warped.Close()
		return nil, err
	}

	return &entity.AlignedFrame{
		Index:     frame.Index,
		Image:     warped,
		Landmarks: canonical,
	}, nil
}

// canonicalLandmarks corrects for warp-induced geometric drift before
// cropping. A failed re-detection falls back to reprojection rather than
// discarding the frame.
func (a *Aligner) canonicalLandmarks(ctx context.Context, warped gocv.Mat, m gocv.Mat, original entity.LandmarkSet) (entity.LandmarkSet, error) {
	if a.cfg.RedetectAfterWarp && a.locator != nil {
		dets, err := a.locator.Detect(ctx, warped)
		if err == nil && len(dets) > 0 {
			return dets[0].Landmarks, nil
		}
	}
	return reproject(m, original), nil
}

// reproject maps landmarks through a 2x3 affine transform.
func reproject(m gocv.Mat, ls entity.LandmarkSet) entity.LandmarkSet {
	m00 := m.GetDoubleAt(0, 0)
	m01 := m.GetDoubleAt(0, 1)
	m02 := m.GetDoubleAt(0, 2)
	m10 := m.GetDoubleAt(1, 0)
	m11 := m.GetDoubleAt(1, 1)
	m12 := m.GetDoubleAt(1, 2)

	var out entity.LandmarkSet
	for i, p := range ls {
		x := float64(p.X)
		y := float64(p.Y)
		out[i] = entity.Point{
			X: float32(m00*x + m01*y + m02),
			Y: float32(m10*x + m11*y + m12),
		}
	}
	return out
}

func toPoint2f(pts []entity.Point) []gocv.Point2f {
	out := make([]gocv.Point2f, len(pts))
	for i, p := range pts {
		out[i] = gocv.Point2f{X: p.X, Y: p.Y}
	}
	return out
}
