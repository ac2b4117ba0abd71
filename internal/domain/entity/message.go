package entity

import "github.com/google/uuid"

// VideoProcessingMessage is the inbound message from the lipread.processing
// queue.
type VideoProcessingMessage struct {
	JobID     uuid.UUID `json:"job_id"`
	UserID    string    `json:"user_id"`
	VideoKey  string    `json:"video_key"`
	FileSize  int64     `json:"file_size"`
	UserEmail string    `json:"user_email"`
}

// VideoStatusMessage is the outbound message published to the lipread.status
// queue.
type VideoStatusMessage struct {
	JobID        uuid.UUID           `json:"job_id"`
	UserID       string              `json:"user_id"`
	Status       JobStatus           `json:"status"`
	VideoKey     string              `json:"video_key"`
	TensorKey    string              `json:"tensor_key,omitempty"`
	ResultKey    string              `json:"result_key,omitempty"`
	FrameCount   int                 `json:"frame_count,omitempty"`
	SampledFPS   float64             `json:"sampled_fps,omitempty"`
	Transcript   string              `json:"transcript,omitempty"`
	Segments     []TranscriptSegment `json:"segments,omitempty"`
	ErrorMessage string              `json:"error_message,omitempty"`
	Attempt      int                 `json:"attempt"`
	MaxAttempts  int                 `json:"max_attempts"`
}
