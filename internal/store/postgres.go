package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gmanfredi/framewatch/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Users ---

func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, name, created_at) VALUES ($1, $2, $3)`,
		user.ID, user.Name, user.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Name, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}
	if key.UpdatedAt.IsZero() {
		key.UpdatedAt = key.CreatedAt
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, user_id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.UserID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE user_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`, id, userID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Jobs ---

const jobColumns = `id, user_id, title, source_path, output_path, status, confidence, iou,
	 total_frames, processed_frames, detections_count, error_message, task_id, created_at, updated_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.UserID, &j.Title, &j.SourcePath, &j.OutputPath, &j.Status,
		&j.Confidence, &j.IoU, &j.TotalFrames, &j.ProcessedFrames, &j.DetectionsCount,
		&j.ErrorMessage, &j.TaskID, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}
	return &j, nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, user_id, title, source_path, status, confidence, iou, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		job.ID, job.UserID, job.Title, job.SourcePath, job.Status, job.Confidence, job.IoU,
		job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) GetJobForUser(ctx context.Context, id uuid.UUID, userID *uuid.UUID) (*models.Job, error) {
	var row pgx.Row
	if userID == nil {
		row = s.pool.QueryRow(ctx,
			`SELECT `+jobColumns+` FROM jobs WHERE id = $1 AND user_id IS NULL`, id)
	} else {
		row = s.pool.QueryRow(ctx,
			`SELECT `+jobColumns+` FROM jobs WHERE id = $1 AND user_id = $2`, id, *userID)
	}
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get job for user: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, int, error) {
	where := "user_id IS NULL"
	args := []any{}
	if filter.UserID != nil {
		where = "user_id = $1"
		args = append(args, *filter.UserID)
	}

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM jobs WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	n := len(args)
	query := fmt.Sprintf(
		`SELECT `+jobColumns+` FROM jobs WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, n+1, n+2)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, job)
	}
	return jobs, total, rows.Err()
}

func (s *PostgresStore) SetJobTaskID(ctx context.Context, id uuid.UUID, taskID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE jobs SET task_id = $2, updated_at = NOW() WHERE id = $1`, id, taskID)
	if err != nil {
		return fmt.Errorf("set job task id: %w", err)
	}
	return nil
}

var validTransitions = map[string][]string{
	models.JobStatusPending:    {models.JobStatusProcessing},
	models.JobStatusProcessing: {models.JobStatusCompleted, models.JobStatusFailed},
}

// checkTransition validates the requested status change against the current
// persisted status.
func (s *PostgresStore) checkTransition(ctx context.Context, id uuid.UUID, to string) error {
	var current string
	err := s.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get job status: %w", err)
	}
	for _, allowed := range validTransitions[current] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, to)
}

func (s *PostgresStore) MarkJobProcessing(ctx context.Context, id uuid.UUID) error {
	if err := s.checkTransition(ctx, id, models.JobStatusProcessing); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $2, processed_frames = 0, detections_count = 0,
		 error_message = NULL, updated_at = NOW() WHERE id = $1`,
		id, models.JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("mark job processing: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetJobTotalFrames(ctx context.Context, id uuid.UUID, total int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE jobs SET total_frames = $2, updated_at = NOW() WHERE id = $1`, id, total)
	if err != nil {
		return fmt.Errorf("set job total frames: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateJobProgress(ctx context.Context, id uuid.UUID, processed, detections int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE jobs SET processed_frames = $2, detections_count = $3, updated_at = NOW() WHERE id = $1`,
		id, processed, detections)
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkJobCompleted(ctx context.Context, id uuid.UUID, outputPath string, processed, detections int) error {
	if err := s.checkTransition(ctx, id, models.JobStatusCompleted); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $2, output_path = $3, processed_frames = $4,
		 detections_count = $5, updated_at = NOW() WHERE id = $1`,
		id, models.JobStatusCompleted, outputPath, processed, detections)
	if err != nil {
		return fmt.Errorf("mark job completed: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkJobFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	if err := s.checkTransition(ctx, id, models.JobStatusFailed); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $2, error_message = $3, updated_at = NOW() WHERE id = $1`,
		id, models.JobStatusFailed, errMsg)
	if err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteJob(ctx context.Context, id uuid.UUID, userID *uuid.UUID) (*models.Job, error) {
	job, err := s.GetJobForUser(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	// Detections go with the job via ON DELETE CASCADE.
	tag, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return job, nil
}

// --- Detections ---

func (s *PostgresStore) InsertDetections(ctx context.Context, dets []*models.Detection) error {
	if len(dets) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([][]any, 0, len(dets))
	for _, d := range dets {
		created := d.CreatedAt
		if created.IsZero() {
			created = now
		}
		rows = append(rows, []any{
			d.JobID, d.FrameIndex, d.Class, d.Confidence, d.X1, d.Y1, d.X2, d.Y2, created,
		})
	}
	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"detections"},
		[]string{"job_id", "frame_index", "class", "confidence", "x1", "y1", "x2", "y2", "created_at"},
		pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("insert detections: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountDetections(ctx context.Context, jobID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM detections WHERE job_id = $1`, jobID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count detections: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) GetDetectionClassStats(ctx context.Context, jobID uuid.UUID) ([]models.ClassStat, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT class, COUNT(*), AVG(confidence)
		 FROM detections WHERE job_id = $1
		 GROUP BY class ORDER BY COUNT(*) DESC, class`, jobID)
	if err != nil {
		return nil, fmt.Errorf("get detection class stats: %w", err)
	}
	defer rows.Close()

	var stats []models.ClassStat
	for rows.Next() {
		var st models.ClassStat
		if err := rows.Scan(&st.Class, &st.Count, &st.AvgConfidence); err != nil {
			return nil, fmt.Errorf("scan class stat: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
