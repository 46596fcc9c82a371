package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kdimtricp/vsearch/internal/models"
)

const videoColumns = `id, title, description, filename, content_type, size, upload_time,
	duration, frame_rate, analysis_status, analysis_progress, analysis_message,
	run_id, analysis_cost, updated_at`

type VideoRepository struct {
	db *DB
}

func NewVideoRepository(db *DB) *VideoRepository {
	return &VideoRepository{db: db}
}

func (r *VideoRepository) InsertVideo(ctx context.Context, video *models.Video) error {
	query := r.db.rebind(`INSERT INTO videos (` + videoColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := r.db.conn.ExecContext(ctx, query,
		video.ID, video.Title, video.Description, video.Filename, video.ContentType,
		video.Size, video.UploadTime.UTC(), video.Duration, video.FrameRate,
		string(video.AnalysisStatus), video.AnalysisProgress, video.AnalysisMessage,
		video.RunID, video.AnalysisCost, video.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert video: %w", err)
	}
	return nil
}

func (r *VideoRepository) GetVideoByID(ctx context.Context, id string) (*models.Video, error) {
	query := r.db.rebind(`SELECT ` + videoColumns + ` FROM videos WHERE id = ?`)

	video, err := scanVideo(r.db.reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("video %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get video: %w", err)
	}
	return video, nil
}

func (r *VideoRepository) ListVideos(ctx context.Context) ([]models.Video, error) {
	query := `SELECT ` + videoColumns + ` FROM videos ORDER BY upload_time DESC`
	return r.queryVideos(ctx, query)
}

func (r *VideoRepository) SearchVideos(ctx context.Context, q string) ([]models.Video, error) {
	if q == "" {
		return r.ListVideos(ctx)
	}

	pattern := "%" + q + "%"
	where := "LOWER(title) LIKE LOWER(?) OR LOWER(description) LIKE LOWER(?)"
	if r.db.dbType == "postgres" {
		where = "title ILIKE ? OR description ILIKE ?"
	}
	query := r.db.rebind(`SELECT ` + videoColumns + ` FROM videos WHERE ` + where +
		` ORDER BY upload_time DESC LIMIT 20`)

	return r.queryVideos(ctx, query, pattern, pattern)
}

// SetMediaInfo records what the prober learned about the file.
func (r *VideoRepository) SetMediaInfo(ctx context.Context, id string, duration, frameRate float64) error {
	query := r.db.rebind(`UPDATE videos SET duration = ?, frame_rate = ?, updated_at = ? WHERE id = ?`)
	return r.exec(ctx, "set media info", query, duration, frameRate, time.Now().UTC(), id)
}

// UpdateAnalysis persists job status and progress. It never touches run_id:
// only the index commit moves a video to a new run.
func (r *VideoRepository) UpdateAnalysis(ctx context.Context, id string, status models.AnalysisStatus, progress int, message string) error {
	query := r.db.rebind(`UPDATE videos
		SET analysis_status = ?, analysis_progress = ?, analysis_message = ?, updated_at = ?
		WHERE id = ?`)
	return r.exec(ctx, "update analysis", query, string(status), progress, message, time.Now().UTC(), id)
}

func (r *VideoRepository) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := r.db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("failed to %s: %w", op, ErrNotFound)
	}
	return nil
}

func (r *VideoRepository) queryVideos(ctx context.Context, query string, args ...any) ([]models.Video, error) {
	rows, err := r.db.reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	defer rows.Close()

	videos := []models.Video{}
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan video: %w", err)
		}
		videos = append(videos, *video)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	return videos, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVideo(row rowScanner) (*models.Video, error) {
	var v models.Video
	var status string
	err := row.Scan(
		&v.ID, &v.Title, &v.Description, &v.Filename, &v.ContentType, &v.Size, &v.UploadTime,
		&v.Duration, &v.FrameRate, &status, &v.AnalysisProgress, &v.AnalysisMessage,
		&v.RunID, &v.AnalysisCost, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	v.AnalysisStatus = models.AnalysisStatus(status)
	return &v, nil
}
