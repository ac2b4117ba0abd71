package pipeline

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/gorggle/lipread-processing-service/internal/domain/entity"
	"github.com/stretchr/testify/require"
)

// testLandmarks builds a plausible 68-point set inside a size×size frame:
// 48 contour/feature points on an ellipse, 20 mouth points on two rings
// centered at (size/2, 0.7·size).
func testLandmarks(size float32) entity.LandmarkSet {
	var ls entity.LandmarkSet

	cx := size / 2
	cy := size / 2
	for i := 0; i < entity.MouthStart; i++ {
		angle := 2 * math.Pi * float64(i) / float64(entity.MouthStart)
		ls[i] = entity.Point{
			X: cx + 0.35*size*float32(math.Cos(angle)),
			Y: cy + 0.40*size*float32(math.Sin(angle)),
		}
	}

	mx := size / 2
	my := 0.7 * size
	for i := entity.MouthStart; i < entity.InnerLipStart; i++ {
		angle := 2 * math.Pi * float64(i-entity.MouthStart) / 12
		ls[i] = entity.Point{
			X: mx + 0.10*size*float32(math.Cos(angle)),
			Y: my + 0.05*size*float32(math.Sin(angle)),
		}
	}
	for i := entity.InnerLipStart; i < entity.MouthEnd; i++ {
		angle := 2 * math.Pi * float64(i-entity.InnerLipStart) / 8
		ls[i] = entity.Point{
			X: mx + 0.06*size*float32(math.Cos(angle)),
			Y: my + 0.03*size*float32(math.Sin(angle)),
		}
	}
	return ls
}

func testTemplateJSON(t *testing.T, size int) []byte {
	t.Helper()
	ls := testLandmarks(float32(size))
	points := make([][2]float32, len(ls))
	for i, p := range ls {
		points[i] = [2]float32{p.X, p.Y}
	}
	data, err := json.Marshal(map[string]any{"size": size, "points": points})
	require.NoError(t, err)
	return data
}

func testROI(width, height int, fill float32) *entity.MouthROI {
	px := make([]float32, width*height*3)
	for i := range px {
		px[i] = fill
	}
	return &entity.MouthROI{Width: width, Height: height, Pixels: px}
}
