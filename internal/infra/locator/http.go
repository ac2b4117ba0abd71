package locator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/gorggle/lipread-processing-service/internal/domain/entity"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// HTTPLocator adapts an external 68-point landmark service to the
// FaceLocator port. Frames are posted as JPEG; the service answers with
// confidence-ranked detections.
type HTTPLocator struct {
	endpoint      string
	client        *http.Client
	minConfidence float32
	logger        *zap.Logger
}

func NewHTTPLocator(endpoint string, timeout time.Duration, minConfidence float64, logger *zap.Logger) *HTTPLocator {
	return &HTTPLocator{
		endpoint:      endpoint,
		client:        &http.Client{Timeout: timeout},
		minConfidence: float32(minConfidence),
		logger:        logger,
	}
}

type detectionPayload struct {
	Faces []struct {
		Box struct {
			X      int `json:"x"`
			Y      int `json:"y"`
			Width  int `json:"w"`
			Height int `json:"h"`
		} `json:"box"`
		Confidence float32      `json:"confidence"`
		Landmarks  [][2]float32 `json:"landmarks"`
	} `json:"faces"`
}

func (l *HTTPLocator) Detect(ctx context.Context, img gocv.Mat) ([]entity.FaceDetection, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint, bytes.NewReader(buf.GetBytes()))
	if err != nil {
		return nil, fmt.Errorf("build locator request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call locator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("locator returned %d: %s", resp.StatusCode, body)
	}

	var payload detectionPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode locator response: %w", err)
	}

	detections := make([]entity.FaceDetection, 0, len(payload.Faces))
	for _, face := range payload.Faces {
		if face.Confidence < l.minConfidence {
			continue
		}
		if len(face.Landmarks) != entity.LandmarkCount {
			l.logger.Warn("locator returned malformed landmark set",
				zap.Int("points", len(face.Landmarks)),
			)
			continue
		}

		det := entity.FaceDetection{
			Region: image.Rect(
				face.Box.X, face.Box.Y,
				face.Box.X+face.Box.Width, face.Box.Y+face.Box.Height,
			),
			Confidence: face.Confidence,
		}
		for i, p := range face.Landmarks {
			det.Landmarks[i] = entity.Point{X: p[0], Y: p[1]}
		}
		detections = append(detections, det)
	}

	// Servers usually rank already; keep the contract regardless.
	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].Confidence > detections[j].Confidence
	})
	return detections, nil
}

func (l *HTTPLocator) Close() error {
	l.client.CloseIdleConnections()
	return nil
}
