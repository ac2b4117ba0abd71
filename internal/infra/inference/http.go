package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorggle/lipread-processing-service/internal/domain/port"
	"go.uber.org/zap"
)

// Client invokes the external lip-reading model endpoint with the location
// of an uploaded tensor and returns decoded text plus optional time-aligned
// segments.
type Client struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

func NewClient(endpoint string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

func (c *Client) Transcribe(ctx context.Context, req port.TranscriptionRequest) (*port.TranscriptionResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal inference request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build inference request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call inference endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("inference endpoint returned %d: %s", resp.StatusCode, body)
	}

	var result port.TranscriptionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode inference response: %w", err)
	}

	c.logger.Info("inference completed",
		zap.String("tensor_key", req.TensorKey),
		zap.Int("frame_count", req.FrameCount),
		zap.Int("segments", len(result.Segments)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return &result, nil
}
