package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/gorggle/lipread-processing-service/internal/domain/entity"
	"github.com/jackc/pgx/v5/pgxpool"
)

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) Create(ctx context.Context, job *entity.Job) error {
	query := `
		INSERT INTO lipread_jobs (
			id, user_id, video_key, tensor_key, result_key, status,
			frame_count, file_size, sampled_fps, transcript,
			attempt, max_attempts, error_message,
			created_at, updated_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`

	_, err := r.pool.Exec(ctx, query,
		job.ID, job.UserID, job.VideoKey, job.TensorKey, job.ResultKey,
		string(job.Status), job.FrameCount, job.FileSize, job.SampledFPS,
		job.Transcript, job.Attempt, job.MaxAttempts, job.ErrorMessage,
		job.CreatedAt, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *JobRepository) Update(ctx context.Context, job *entity.Job) error {
	query := `
		UPDATE lipread_jobs SET
			status=$2, tensor_key=$3, result_key=$4, frame_count=$5,
			sampled_fps=$6, transcript=$7, attempt=$8, error_message=$9,
			updated_at=$10, completed_at=$11
		WHERE id=$1`

	_, err := r.pool.Exec(ctx, query,
		job.ID, string(job.Status), job.TensorKey, job.ResultKey,
		job.FrameCount, job.SampledFPS, job.Transcript, job.Attempt,
		job.ErrorMessage, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

func (r *JobRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	query := `
		SELECT id, user_id, video_key, tensor_key, result_key, status,
			frame_count, file_size, sampled_fps, transcript,
			attempt, max_attempts, error_message,
			created_at, updated_at, completed_at
		FROM lipread_jobs WHERE id=$1`

	job := &entity.Job{}
	var status string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.UserID, &job.VideoKey, &job.TensorKey, &job.ResultKey,
		&status, &job.FrameCount, &job.FileSize, &job.SampledFPS,
		&job.Transcript, &job.Attempt, &job.MaxAttempts, &job.ErrorMessage,
		&job.CreatedAt, &job.UpdatedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("find job by id: %w", err)
	}
	job.Status = entity.JobStatus(status)
	return job, nil
}
