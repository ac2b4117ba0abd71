package port

import (
	"context"

	"github.com/gorggle/lipread-processing-service/internal/domain/entity"
)

// Preprocessor turns a raw video file into a model-ready tensor.
type Preprocessor interface {
	Process(ctx context.Context, videoPath string) (*entity.ModelTensor, *entity.PreprocessStats, error)
}
