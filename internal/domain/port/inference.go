package port

import (
	"context"

	"github.com/gorggle/lipread-processing-service/internal/domain/entity"
)

// TranscriptionRequest points the model endpoint at an uploaded tensor.
type TranscriptionRequest struct {
	TensorBucket string  `json:"tensor_bucket"`
	TensorKey    string  `json:"tensor_key"`
	FrameCount   int     `json:"frame_count"`
	FPS          float64 `json:"fps"`
}

// TranscriptionResult is the decoded text with optional time-aligned
// segments.
type TranscriptionResult struct {
	Text     string                     `json:"text"`
	Segments []entity.TranscriptSegment `json:"segments"`
}

// LipReader is the external model-inference capability.
type LipReader interface {
	Transcribe(ctx context.Context, req TranscriptionRequest) (*TranscriptionResult, error)
}
