package entity

import (
	"image"

	"gocv.io/x/gocv"
	"gorgonia.org/tensor"
)

// Point is a 2D image coordinate.
type Point struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// Landmark index layout of the 68-point facial template. Indices 48..67
// denote the mouth: outer lip 48..59, inner lip 60..67.
const (
	LandmarkCount = 68
	OuterLipStart = 48
	InnerLipStart = 60
	MouthStart    = 48
	MouthEnd      = 68 // exclusive
)

// LandmarkSet is an ordered set of exactly 68 facial landmarks in image
// coordinates.
type LandmarkSet [LandmarkCount]Point

// Mouth returns the mouth landmarks (indices 48..67).
func (ls *LandmarkSet) Mouth() []Point {
	return ls[MouthStart:MouthEnd]
}

// FaceDetection is one detector result: a face bounding region with its
// landmark set. Detectors return these ordered by confidence, highest first.
type FaceDetection struct {
	Region     image.Rectangle
	Confidence float32
	Landmarks  LandmarkSet
}

// RawFrame is a decoded RGB video frame. Index is the position in the
// sampled sequence, DecodeIndex the position in the source stream.
type RawFrame struct {
	Index       int
	DecodeIndex int
	Timestamp   float64
	Image       gocv.Mat
}

// Close releases the underlying pixel buffer.
func (f *RawFrame) Close() error {
	return f.Image.Close()
}

// AlignedFrame is a frame warped into the canonical coordinate frame,
// together with the landmarks expressed in that frame.
type AlignedFrame struct {
	Index     int
	Image     gocv.Mat
	Landmarks LandmarkSet
}

// Close releases the underlying pixel buffer.
func (f *AlignedFrame) Close() error {
	return f.Image.Close()
}

// MouthROI is a fixed-size mouth patch, float-normalized to [0,1].
// Pixels are laid out HWC, RGB. Substituted marks a patch repeated from the
// previous frame after a per-frame detection failure.
type MouthROI struct {
	Index       int
	Width       int
	Height      int
	Pixels      []float32
	Substituted bool
}

// ROISequence is the gap-free, index-ordered mouth patch sequence of one
// video.
type ROISequence []MouthROI

// ModelTensor is the assembled (T, C, H, W) float32 array handed to the
// inference boundary.
type ModelTensor struct {
	Data       *tensor.Dense
	FrameCount int
	SampledFPS float64
}

// PreprocessStats summarizes one pipeline run.
type PreprocessStats struct {
	SourceFPS       float64
	SampledFPS      float64
	DurationSeconds float64
	Interval        int
	Sampled         int
	Dropped         int
	Substituted     int
	Valid           int
	Capped          bool
}

// TranscriptSegment is a time-aligned piece of decoded text.
type TranscriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}
