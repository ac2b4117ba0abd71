package port

import (
	"context"
	"io"
)

type VideoStorage interface {
	DownloadVideo(ctx context.Context, objectKey string, destPath string) error
	FetchTemplate(ctx context.Context, objectKey string) ([]byte, error)
	UploadTensor(ctx context.Context, objectKey string, reader io.Reader, size int64) error
	UploadResult(ctx context.Context, objectKey string, payload []byte) error
}
