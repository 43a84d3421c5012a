package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"presenter-video-pipeline/internal/domain"
	"presenter-video-pipeline/internal/domain/model"
	"presenter-video-pipeline/internal/domain/ports/repository"
)

// Compile-time check
var _ repository.MediaJobRepository = (*mediaJobRepo)(nil)

// mediaJobRepo is the durable job ledger. WriteIfPhase is the system's
// serialization point: the phase-guarded UPDATE is what keeps two
// overlapping advance calls from repeating a provider side effect.
type mediaJobRepo struct {
	pool *pgxpool.Pool
}

func NewMediaJobRepo(pool *pgxpool.Pool) *mediaJobRepo {
	return &mediaJobRepo{pool: pool}
}

// NewPgxPool opens the ledger connection pool.
func NewPgxPool(ctx context.Context, url string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS media_jobs (
    id                  TEXT PRIMARY KEY,
    phase               TEXT NOT NULL,
    script_content      TEXT NOT NULL,
    synthesis           JSONB NOT NULL,
    avatar              JSONB NOT NULL,
    wants_composite     BOOLEAN NOT NULL DEFAULT FALSE,
    staged_audio_key    TEXT NOT NULL DEFAULT '',
    audio_asset         JSONB,
    external_render_id  TEXT NOT NULL DEFAULT '',
    pending_output_url  TEXT NOT NULL DEFAULT '',
    composite_render_id TEXT NOT NULL DEFAULT '',
    composite_bucket    TEXT NOT NULL DEFAULT '',
    final_output        JSONB,
    composite_output    JSONB,
    error_message       TEXT NOT NULL DEFAULT '',
    progress_percent    INT NOT NULL DEFAULT 0,
    created_at          TIMESTAMPTZ NOT NULL,
    updated_at          TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS media_jobs_phase_idx ON media_jobs (phase, created_at);`

// EnsureSchema creates the ledger table when missing.
func (r *mediaJobRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, schema)
	return err
}

func (r *mediaJobRepo) Save(ctx context.Context, job *model.MediaJob) error {
	const q = `
INSERT INTO media_jobs (
    id, phase, script_content, synthesis, avatar, wants_composite,
    staged_audio_key, audio_asset, external_render_id, pending_output_url,
    composite_render_id, composite_bucket, final_output, composite_output,
    error_message, progress_percent, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18);`

	args, err := encodeArgs(job)
	if err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, q, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (r *mediaJobRepo) FindByID(ctx context.Context, id string) (*model.MediaJob, error) {
	const q = selectCols + ` FROM media_jobs WHERE id = $1;`
	row := r.pool.QueryRow(ctx, q, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return job, err
}

func (r *mediaJobRepo) WriteIfPhase(ctx context.Context, job *model.MediaJob, expected model.Phase) (bool, error) {
	const q = `
UPDATE media_jobs SET
    phase = $2, staged_audio_key = $3, audio_asset = $4,
    external_render_id = $5, pending_output_url = $6,
    composite_render_id = $7, composite_bucket = $8,
    final_output = $9, composite_output = $10,
    error_message = $11, progress_percent = $12, updated_at = $13
WHERE id = $1 AND phase = $14;`

	audioAsset, err := encodeNullable(job.AudioAsset)
	if err != nil {
		return false, err
	}
	finalOut, err := encodeNullable(job.FinalOutput)
	if err != nil {
		return false, err
	}
	compositeOut, err := encodeNullable(job.CompositeOutput)
	if err != nil {
		return false, err
	}

	tag, err := r.pool.Exec(ctx, q,
		job.ID, job.Phase, job.StagedAudioKey, audioAsset,
		job.ExternalRenderID, job.PendingOutputURL,
		job.CompositeRenderID, job.CompositeBucket,
		finalOut, compositeOut,
		job.ErrorMessage, job.ProgressPercent, time.Now().UTC(),
		expected)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *mediaJobRepo) List(ctx context.Context, phase model.Phase, limit int) ([]*model.MediaJob, error) {
	if limit <= 0 {
		limit = 50
	}
	q := selectCols + ` FROM media_jobs`
	args := []any{}
	if phase != "" {
		q += ` WHERE phase = $1`
		args = append(args, string(phase))
	}
	q += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d;`, limit)

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.MediaJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

const selectCols = `
SELECT id, phase, script_content, synthesis, avatar, wants_composite,
       staged_audio_key, audio_asset, external_render_id, pending_output_url,
       composite_render_id, composite_bucket, final_output, composite_output,
       error_message, progress_percent, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.MediaJob, error) {
	var (
		job          model.MediaJob
		phase        string
		synthesis    []byte
		avatarParams []byte
		audioAsset   []byte
		finalOut     []byte
		compositeOut []byte
	)
	err := row.Scan(
		&job.ID, &phase, &job.ScriptContent, &synthesis, &avatarParams, &job.WantsComposite,
		&job.StagedAudioKey, &audioAsset, &job.ExternalRenderID, &job.PendingOutputURL,
		&job.CompositeRenderID, &job.CompositeBucket, &finalOut, &compositeOut,
		&job.ErrorMessage, &job.ProgressPercent, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	job.Phase = model.Phase(phase)
	if err := json.Unmarshal(synthesis, &job.Synthesis); err != nil {
		return nil, fmt.Errorf("decode synthesis: %w", err)
	}
	if err := json.Unmarshal(avatarParams, &job.Avatar); err != nil {
		return nil, fmt.Errorf("decode avatar: %w", err)
	}
	if err := decodeNullable(audioAsset, &job.AudioAsset); err != nil {
		return nil, err
	}
	if err := decodeNullable(finalOut, &job.FinalOutput); err != nil {
		return nil, err
	}
	if err := decodeNullable(compositeOut, &job.CompositeOutput); err != nil {
		return nil, err
	}
	return &job, nil
}

func encodeArgs(job *model.MediaJob) ([]any, error) {
	synthesis, err := json.Marshal(job.Synthesis)
	if err != nil {
		return nil, err
	}
	avatarParams, err := json.Marshal(job.Avatar)
	if err != nil {
		return nil, err
	}
	audioAsset, err := encodeNullable(job.AudioAsset)
	if err != nil {
		return nil, err
	}
	finalOut, err := encodeNullable(job.FinalOutput)
	if err != nil {
		return nil, err
	}
	compositeOut, err := encodeNullable(job.CompositeOutput)
	if err != nil {
		return nil, err
	}
	return []any{
		job.ID, string(job.Phase), job.ScriptContent, synthesis, avatarParams, job.WantsComposite,
		job.StagedAudioKey, audioAsset, job.ExternalRenderID, job.PendingOutputURL,
		job.CompositeRenderID, job.CompositeBucket, finalOut, compositeOut,
		job.ErrorMessage, job.ProgressPercent, job.CreatedAt, job.UpdatedAt,
	}, nil
}

func encodeNullable[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func decodeNullable[T any](b []byte, dst **T) error {
	if len(b) == 0 {
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*dst = &v
	return nil
}
