package models

import (
	"time"

	"github.com/google/uuid"
)

type AnalysisStatus string

const (
	StatusPending   AnalysisStatus = "pending"
	StatusAnalyzing AnalysisStatus = "analyzing"
	StatusCompleted AnalysisStatus = "completed"
	StatusFailed    AnalysisStatus = "failed"
)

// Terminal reports whether no job is expected to move the video further.
func (s AnalysisStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Video struct {
	ID               string         `json:"id"`
	Title            string         `json:"title"`
	Description      string         `json:"description"`
	Filename         string         `json:"filename"`
	ContentType      string         `json:"content_type"`
	Size             int64          `json:"size"`
	UploadTime       time.Time      `json:"upload_time"`
	Duration         float64        `json:"duration"`
	FrameRate        float64        `json:"frame_rate"`
	AnalysisStatus   AnalysisStatus `json:"analysis_status"`
	AnalysisProgress int            `json:"analysis_progress"`
	AnalysisMessage  string         `json:"analysis_message"`
	RunID            string         `json:"run_id,omitempty"`
	AnalysisCost     float64        `json:"analysis_cost"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

func NewVideo(title, description, filename, contentType string, size int64) *Video {
	now := time.Now().UTC()
	return &Video{
		ID:              uuid.New().String(),
		Title:           title,
		Description:     description,
		Filename:        filename,
		ContentType:     contentType,
		Size:            size,
		UploadTime:      now,
		AnalysisStatus:  StatusPending,
		AnalysisMessage: "Waiting for analysis",
		UpdatedAt:       now,
	}
}
