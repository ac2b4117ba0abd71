package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorggle/lipread-processing-service/internal/infra/config"
	"github.com/gorggle/lipread-processing-service/internal/infra/email"
	"github.com/gorggle/lipread-processing-service/internal/infra/ffmpeg"
	"github.com/gorggle/lipread-processing-service/internal/infra/inference"
	"github.com/gorggle/lipread-processing-service/internal/infra/locator"
	"github.com/gorggle/lipread-processing-service/internal/infra/metrics"
	"github.com/gorggle/lipread-processing-service/internal/infra/minio"
	"github.com/gorggle/lipread-processing-service/internal/infra/postgres"
	"github.com/gorggle/lipread-processing-service/internal/infra/rabbitmq"
	"github.com/gorggle/lipread-processing-service/internal/infra/tracing"
	"github.com/gorggle/lipread-processing-service/internal/infra/video"
	"github.com/gorggle/lipread-processing-service/internal/pipeline"
	"github.com/gorggle/lipread-processing-service/internal/usecase"
	"github.com/gorggle/lipread-processing-service/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	log.Info("lipread processing service starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.InitTracer(ctx, cfg.JaegerEndpoint)
	if err != nil {
		log.Warn("tracing disabled", zap.Error(err))
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(shutdownCtx)
		}()
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	fatalOnErr(log, "connect to postgres", err)
	defer pool.Close()

	fatalOnErr(log, "run migrations", postgres.RunMigrations(cfg.DatabaseURL, "migrations"))

	storage, err := minio.NewStorage(minio.StorageConfig{
		Endpoint:       cfg.MinIOEndpoint,
		AccessKey:      cfg.MinIOAccessKey,
		SecretKey:      cfg.MinIOSecretKey,
		UseSSL:         cfg.MinIOUseSSL,
		UploadBucket:   cfg.MinIOUploadBucket,
		ArtifactBucket: cfg.MinIOArtifactBucket,
		ModelBucket:    cfg.MinIOModelBucket,
	})
	fatalOnErr(log, "create minio storage", err)
	fatalOnErr(log, "ensure buckets", storage.EnsureBuckets(ctx))

	template, err := loadTemplate(ctx, cfg, storage)
	fatalOnErr(log, "load canonical landmark template", err)

	probe := ffmpeg.NewProbe(log)
	sampler := video.NewSampler(cfg.SampleFPS, cfg.FrameCap, probe, log)

	faceLocator := locator.NewHTTPLocator(
		cfg.LocatorURL,
		time.Duration(cfg.LocatorTimeoutMs)*time.Millisecond,
		cfg.LocatorMinConfidence,
		log,
	)
	defer faceLocator.Close()

	aligner := pipeline.NewAligner(template, faceLocator, pipeline.AlignerConfig{
		WarpSize:          cfg.WarpSize,
		ReprojThreshold:   cfg.RANSACReprojThreshold,
		MaxIters:          cfg.RANSACMaxIters,
		Confidence:        cfg.RANSACConfidence,
		RedetectAfterWarp: cfg.LocatorRedetect,
	})

	extractor := pipeline.NewExtractor(pipeline.ExtractorConfig{
		HalfWidth:     cfg.ROIHalfWidth,
		HalfHeight:    cfg.ROIHalfHeight,
		BiasTolerance: cfg.BiasTolerance,
		OutputSize:    cfg.ROIOutputSize,
	})

	assembler := pipeline.NewAssembler(pipeline.AssemblerConfig{
		Scheme: pipeline.NormalizationScheme(cfg.PixelNormalization),
		Mean:   toTriple(cfg.NormalizationMean),
		Std:    toTriple(cfg.NormalizationStd),
	})

	preprocessor := pipeline.New(sampler, faceLocator, aligner, extractor, assembler, pipeline.Config{
		Workers:    cfg.PipelineWorkers,
		RANSACSeed: cfg.RANSACSeed,
	}, log)

	lipreader := inference.NewClient(
		cfg.InferenceURL,
		time.Duration(cfg.InferenceTimeoutMs)*time.Millisecond,
		log,
	)

	publisher, err := rabbitmq.NewPublisher(cfg.RabbitMQURL, cfg.RabbitMQExchange)
	fatalOnErr(log, "create rabbitmq publisher", err)
	defer publisher.Close()

	statusPublisher := rabbitmq.NewStatusPublisher(publisher, cfg.RabbitMQStatusQueue)
	dlqPublisher := rabbitmq.NewDLQPublisher(publisher, cfg.RabbitMQDLQ)

	notifier := email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log)

	repo := postgres.NewJobRepository(pool)

	uc := usecase.NewProcessVideoUseCase(
		repo,
		storage,
		preprocessor,
		lipreader,
		statusPublisher,
		dlqPublisher,
		notifier,
		log,
		usecase.ProcessVideoConfig{
			TempDir:      cfg.TempDir,
			MaxRetries:   cfg.MaxRetries,
			TensorBucket: storage.ArtifactBucket(),
		},
	)

	metricsSrv := metrics.StartMetricsServer(ctx, cfg.MetricsPort, log)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:               cfg.RabbitMQURL,
		Queue:             cfg.RabbitMQProcessingQueue,
		Exchange:          cfg.RabbitMQExchange,
		DLQ:               cfg.RabbitMQDLQ,
		StatusQueue:       cfg.RabbitMQStatusQueue,
		ProcessingRouting: cfg.RabbitMQProcessingQueue,
		StatusRouting:     cfg.RabbitMQStatusQueue,
		Prefetch:          cfg.RabbitMQPrefetch,
		WorkerCount:       cfg.WorkerCount,
		BaseDelayMs:       cfg.RetryBaseDelayMs,
	}, uc.Execute, log)
	fatalOnErr(log, "create rabbitmq consumer", err)
	defer consumer.Close()

	log.Info("worker ready",
		zap.String("queue", cfg.RabbitMQProcessingQueue),
		zap.Int("workers", cfg.WorkerCount),
		zap.Float64("sample_fps", cfg.SampleFPS),
		zap.Int("roi_size", cfg.ROIOutputSize),
	)

	if err := consumer.Start(ctx); err != nil {
		log.Error("consumer stopped with error", zap.Error(err))
	}

	log.Info("worker shut down cleanly")
}

// loadTemplate prefers a local file so dev setups work without a model
// bucket; production pulls the template from object storage.
func loadTemplate(ctx context.Context, cfg *config.Config, storage *minio.Storage) (*pipeline.ReferenceTemplate, error) {
	var data []byte
	var err error
	if cfg.TemplatePath != "" {
		data, err = os.ReadFile(cfg.TemplatePath)
	} else {
		data, err = storage.FetchTemplate(ctx, cfg.TemplateKey)
	}
	if err != nil {
		return nil, pipeline.Wrap(pipeline.KindTemplateUnavailable, err, "fetch template")
	}
	return pipeline.ParseTemplate(data)
}

func toTriple(v []float64) [3]float64 {
	var out [3]float64
	for i := 0; i < len(v) && i < 3; i++ {
		out[i] = v[i]
	}
	return out
}

func fatalOnErr(log *zap.Logger, msg string, err error) {
	if err != nil {
		log.Fatal(msg, zap.Error(err))
	}
}
