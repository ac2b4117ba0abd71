package port

import (
	"context"

	"github.com/gorggle/lipread-processing-service/internal/domain/entity"
	"gocv.io/x/gocv"
)

// FaceLocator produces zero or more face detections for a frame, ordered by
// detector confidence, highest first. Zero results is not an error.
type FaceLocator interface {
	Detect(ctx context.Context, img gocv.Mat) ([]entity.FaceDetection, error)
	Close() error
}
