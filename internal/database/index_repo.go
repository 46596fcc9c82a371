package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kdimtricp/vsearch/internal/index"
	"github.com/kdimtricp/vsearch/internal/models"
)

// IndexRepository stores the metadata and detection stores of a video.
type IndexRepository struct {
	db *DB
}

func NewIndexRepository(db *DB) *IndexRepository {
	return &IndexRepository{db: db}
}

// ReplaceIndex swaps a video over to a new run in one transaction: both
// stores are rewritten and the video is marked completed together.
func (r *IndexRepository) ReplaceIndex(ctx context.Context, idx *index.Index) error {
	tx, err := r.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, r.db.rebind(`UPDATE videos
		SET run_id = ?, analysis_cost = ?, analysis_status = ?, analysis_progress = 100,
			analysis_message = ?, updated_at = ?
		WHERE id = ?`),
		idx.RunID, idx.Cost, string(models.StatusCompleted),
		idx.CompletedMessage(),
		time.Now().UTC(), idx.VideoID,
	)
	if err != nil {
		return fmt.Errorf("failed to update video run: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to update video run: %w", err)
	} else if n == 0 {
		return fmt.Errorf("video %s: %w", idx.VideoID, ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, r.db.rebind(`DELETE FROM detection_records WHERE video_id = ?`), idx.VideoID); err != nil {
		return fmt.Errorf("failed to clear detections: %w", err)
	}
	if _, err := tx.ExecContext(ctx, r.db.rebind(`DELETE FROM frame_metadata WHERE video_id = ?`), idx.VideoID); err != nil {
		return fmt.Errorf("failed to clear metadata: %w", err)
	}

	if err := r.insertFrames(ctx, tx, idx); err != nil {
		return err
	}
	if err := r.insertDetections(ctx, tx, idx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit index: %w", err)
	}
	return nil
}

func (r *IndexRepository) insertFrames(ctx context.Context, tx *sql.Tx, idx *index.Index) error {
	stmt, err := tx.PrepareContext(ctx, r.db.rebind(`INSERT INTO frame_metadata
		(video_id, run_id, image_id, timestamp, document) VALUES (?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare metadata insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range idx.Frames {
		doc, err := json.Marshal(f)
		if err != nil {
			return fmt.Errorf("failed to marshal frame %s: %w", f.ImageID, err)
		}
		if _, err := stmt.ExecContext(ctx, idx.VideoID, idx.RunID, f.ImageID, f.Timestamp, string(doc)); err != nil {
			return fmt.Errorf("failed to insert frame %s: %w", f.ImageID, err)
		}
	}
	return nil
}

func (r *IndexRepository) insertDetections(ctx context.Context, tx *sql.Tx, idx *index.Index) error {
	stmt, err := tx.PrepareContext(ctx, r.db.rebind(`INSERT INTO detection_records
		(video_id, run_id, image_id, seq, label, x, y, width, height, confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare detection insert: %w", err)
	}
	defer stmt.Close()

	for seq, d := range idx.Detections {
		if _, err := stmt.ExecContext(ctx, idx.VideoID, idx.RunID, d.ImageID, seq, d.Label,
			d.BBox.X, d.BBox.Y, d.BBox.Width, d.BBox.Height, d.Confidence); err != nil {
			return fmt.Errorf("failed to insert detection for %s: %w", d.ImageID, err)
		}
	}
	return nil
}

// LoadMetadata returns the committed metadata store of a video in timestamp
// order. An unindexed video yields an empty slice.
func (r *IndexRepository) LoadMetadata(ctx context.Context, videoID string) ([]index.MetadataFrame, error) {
	rows, err := r.db.reader.QueryContext(ctx, r.db.rebind(`SELECT document FROM frame_metadata
		WHERE video_id = ? ORDER BY timestamp, image_id`), videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to query metadata: %w", err)
	}
	defer rows.Close()

	frames := []index.MetadataFrame{}
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}
		var f index.MetadataFrame
		if err := json.Unmarshal(doc, &f); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
		frames = append(frames, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query metadata: %w", err)
	}
	return frames, nil
}

// LoadDetections returns the detection store of a video in commit order.
func (r *IndexRepository) LoadDetections(ctx context.Context, videoID string) ([]index.DetectionRecord, error) {
	rows, err := r.db.reader.QueryContext(ctx, r.db.rebind(`SELECT image_id, label, x, y, width, height, confidence
		FROM detection_records WHERE video_id = ? ORDER BY seq`), videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	defer rows.Close()

	dets := []index.DetectionRecord{}
	for rows.Next() {
		var d index.DetectionRecord
		if err := rows.Scan(&d.ImageID, &d.Label, &d.BBox.X, &d.BBox.Y, &d.BBox.Width, &d.BBox.Height, &d.Confidence); err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		dets = append(dets, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	return dets, nil
}
