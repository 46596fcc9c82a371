package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/kdimtricp/vsearch/internal/models"
)

// Update is one progress event of an analysis job.
type Update struct {
	VideoID  string                `json:"video_id"`
	RunID    string                `json:"run_id"`
	Status   models.AnalysisStatus `json:"analysis_status"`
	Progress int                   `json:"analysis_progress"`
	Message  string                `json:"analysis_message"`
	Time     time.Time             `json:"time"`
}

// Job is a single analysis run. RunID becomes the video's run id if the
// run commits.
type Job struct {
	RunID     string
	VideoID   string
	StartedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	progress int
	err      error
}

// Done is closed once the job has finished, whatever the outcome.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Err is the failure of a finished job, or nil.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

func (j *Job) Progress() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.progress
}
