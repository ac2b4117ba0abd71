package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gorggle/lipread-processing-service/internal/domain/entity"
	"github.com/gorggle/lipread-processing-service/internal/domain/port"
	"github.com/gorggle/lipread-processing-service/internal/infra/metrics"
	"github.com/gorggle/lipread-processing-service/internal/pipeline"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ProcessVideoUseCase drives one lip-reading job: fetch the video, run the
// preprocessing pipeline, upload the tensor, invoke the model endpoint and
// publish the transcript.
type ProcessVideoUseCase struct {
	repo         port.JobRepository
	storage      port.VideoStorage
	preprocessor port.Preprocessor
	lipreader    port.LipReader
	publisher    port.StatusPublisher
	dlq          port.DLQPublisher
	notifier     port.FailureNotifier
	logger       *zap.Logger
	tempDir      string
	maxRetry     int
	tensorBucket string
}

type ProcessVideoConfig struct {
	TempDir      string
	MaxRetries   int
	TensorBucket string
}

func NewProcessVideoUseCase(
	repo port.JobRepository,
	storage port.VideoStorage,
	preprocessor port.Preprocessor,
	lipreader port.LipReader,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg ProcessVideoConfig,
) *ProcessVideoUseCase {
	return &ProcessVideoUseCase{
		repo:         repo,
		storage:      storage,
		preprocessor: preprocessor,
		lipreader:    lipreader,
		publisher:    publisher,
		dlq:          dlq,
		notifier:     notifier,
		logger:       logger,
		tempDir:      cfg.TempDir,
		maxRetry:     cfg.MaxRetries,
		tensorBucket: cfg.TensorBucket,
	}
}

func (uc *ProcessVideoUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "ProcessVideoUseCase.Execute")
	defer span.End()

	totalTimer := time.Now()

	var msg entity.VideoProcessingMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		return nil
	}

	span.SetAttributes(
		attribute.String("job.id", msg.JobID.String()),
		attribute.String("job.video_key", msg.VideoKey),
	)

	log := uc.logger.With(zap.String("job_id", msg.JobID.String()), zap.String("video_key", msg.VideoKey))

	job, err := uc.repo.FindByID(ctx, msg.JobID)
	if err != nil {
		job = entity.NewJob(msg.UserID, msg.VideoKey, msg.FileSize, uc.maxRetry)
		job.ID = msg.JobID
		if err := uc.repo.Create(ctx, job); err != nil {
			log.Error("failed to create job record", zap.Error(err))
			return fmt.Errorf("create job: %w", err)
		}
	}

	if !job.CanRetry() {
		log.Warn("job exhausted retries, sending to DLQ")
		_ = uc.handlePermanentFailure(ctx, job, msg, rawMsg, "max retries exceeded", nil)
		return nil
	}

	job.MarkProcessing()
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to PROCESSING", zap.Error(err))
		return fmt.Errorf("update job: %w", err)
	}

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	if err := uc.runJob(ctx, job, msg, rawMsg, log); err != nil {
		return err
	}

	metrics.JobsProcessedTotal.WithLabelValues("completed").Inc()
	metrics.JobProcessingDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())

	return nil
}

func (uc *ProcessVideoUseCase) runJob(
	ctx context.Context,
	job *entity.Job,
	msg entity.VideoProcessingMessage,
	rawMsg []byte,
	log *zap.Logger,
) error {
	tracer := otel.Tracer("usecase")

	workDir := filepath.Join(uc.tempDir, job.ID.String())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	// Download video
	dlStart := time.Now()
	ctx2, spanDl := tracer.Start(ctx, "download_video")
	videoPath := filepath.Join(workDir, "input.mp4")
	if err := uc.storage.DownloadVideo(ctx2, msg.VideoKey, videoPath); err != nil {
		spanDl.End()
		log.Error("failed to download video", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "download_video: "+err.Error(), log)
	}
	spanDl.End()
	metrics.JobProcessingDuration.WithLabelValues("download").Observe(time.Since(dlStart).Seconds())

	// Preprocess: sample, align, crop, assemble
	ppStart := time.Now()
	ctx3, spanPP := tracer.Start(ctx, "preprocess")
	tensor, stats, err := uc.preprocessor.Process(ctx3, videoPath)
	spanPP.End()
	if err != nil {
		log.Error("preprocessing failed", zap.Error(err))
		if pipeline.ContentFatal(err) {
			// Retrying the same bytes cannot help.
			return uc.handlePermanentFailure(ctx, job, msg, rawMsg, "preprocess: "+err.Error(), log)
		}
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "preprocess: "+err.Error(), log)
	}
	metrics.JobProcessingDuration.WithLabelValues("preprocess").Observe(time.Since(ppStart).Seconds())
	metrics.FramesSampledTotal.Add(float64(stats.Sampled))
	metrics.FramesDroppedTotal.Add(float64(stats.Dropped))
	metrics.FramesSubstitutedTotal.Add(float64(stats.Substituted))

	// Upload tensor artifact
	upStart := time.Now()
	ctx4, spanUp := tracer.Start(ctx, "upload_tensor")
	encoded, err := pipeline.EncodeNPY(tensor)
	if err != nil {
		spanUp.End()
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "encode_tensor: "+err.Error(), log)
	}
	tensorKey := fmt.Sprintf("%s/tensor_%s.npy", msg.UserID, job.ID.String())
	if err := uc.storage.UploadTensor(ctx4, tensorKey, bytes.NewReader(encoded), int64(len(encoded))); err != nil {
		spanUp.End()
		log.Error("tensor upload failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "upload_tensor: "+err.Error(), log)
	}
	spanUp.End()
	metrics.JobProcessingDuration.WithLabelValues("upload").Observe(time.Since(upStart).Seconds())

	// Invoke the lip-reading endpoint
	infStart := time.Now()
	ctx5, spanInf := tracer.Start(ctx, "transcribe")
	transcription, err := uc.lipreader.Transcribe(ctx5, port.TranscriptionRequest{
		TensorBucket: uc.tensorBucket,
		TensorKey:    tensorKey,
		FrameCount:   tensor.FrameCount,
		FPS:          tensor.SampledFPS,
	})
	spanInf.End()
	if err != nil {
		log.Error("transcription failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "transcribe: "+err.Error(), log)
	}
	metrics.JobProcessingDuration.WithLabelValues("transcribe").Observe(time.Since(infStart).Seconds())

	// Publish result JSON next to the tensor
	resultKey := fmt.Sprintf("%s/result_%s.json", msg.UserID, job.ID.String())
	resultDoc, _ := json.Marshal(map[string]any{
		"job_id":           job.ID,
		"text":             transcription.Text,
		"segments":         transcription.Segments,
		"frame_count":      tensor.FrameCount,
		"sampled_fps":      tensor.SampledFPS,
		"duration_seconds": stats.DurationSeconds,
		"dropped":          stats.Dropped,
		"substituted":      stats.Substituted,
	})
	if err := uc.storage.UploadResult(ctx, resultKey, resultDoc); err != nil {
		log.Error("result upload failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "upload_result: "+err.Error(), log)
	}

	job.MarkCompleted(tensorKey, resultKey, transcription.Text, tensor.FrameCount, tensor.SampledFPS)
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to COMPLETED", zap.Error(err))
		return fmt.Errorf("update job completed: %w", err)
	}

	uc.publishStatus(ctx, job, transcription.Segments, log)

	log.Info("job completed successfully",
		zap.Int("frame_count", tensor.FrameCount),
		zap.Int("dropped", stats.Dropped),
		zap.Int("substituted", stats.Substituted),
		zap.String("tensor_key", tensorKey),
		zap.String("transcript", transcription.Text),
	)

	return nil
}

func (uc *ProcessVideoUseCase) handleRetryableFailure(
	ctx context.Context,
	job *entity.Job,
	msg entity.VideoProcessingMessage,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	if !job.CanRetry() {
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, errMsg, log)
	}

	metrics.RetryTotal.WithLabelValues(strconv.Itoa(job.Attempt)).Inc()
	uc.publishStatus(ctx, job, nil, log)

	return fmt.Errorf("retryable failure (attempt %d/%d): %s", job.Attempt, job.MaxAttempts, errMsg)
}

func (uc *ProcessVideoUseCase) handlePermanentFailure(
	ctx context.Context,
	job *entity.Job,
	msg entity.VideoProcessingMessage,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	if log == nil {
		log = uc.logger
	}

	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	_ = uc.dlq.PublishToDLQ(ctx, rawMsg, errMsg)

	uc.publishStatus(ctx, job, nil, log)

	metrics.JobsProcessedTotal.WithLabelValues("dlq").Inc()

	if msg.UserEmail != "" {
		_ = uc.notifier.NotifyFailure(ctx, msg.UserEmail, job.ID.String(), msg.VideoKey, errMsg)
	}

	return nil
}

func (uc *ProcessVideoUseCase) publishStatus(ctx context.Context, job *entity.Job, segments []entity.TranscriptSegment, log *zap.Logger) {
	statusMsg := entity.VideoStatusMessage{
		JobID:        job.ID,
		UserID:       job.UserID,
		Status:       job.Status,
		VideoKey:     job.VideoKey,
		TensorKey:    job.TensorKey,
		ResultKey:    job.ResultKey,
		FrameCount:   job.FrameCount,
		SampledFPS:   job.SampledFPS,
		Transcript:   job.Transcript,
		Segments:     segments,
		ErrorMessage: job.ErrorMessage,
		Attempt:      job.Attempt,
		MaxAttempts:  job.MaxAttempts,
	}
	data, _ := json.Marshal(statusMsg)
	if err := uc.publisher.PublishStatus(ctx, data); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}
