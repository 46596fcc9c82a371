// Package jobs runs video analyses in the background: sampling, the per
// frame pipeline and the index commit, with progress reporting and
// cancellation.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kdimtricp/vsearch/internal/ai"
	"github.com/kdimtricp/vsearch/internal/analysis"
	"github.com/kdimtricp/vsearch/internal/index"
	"github.com/kdimtricp/vsearch/internal/metrics"
	"github.com/kdimtricp/vsearch/internal/models"
	"github.com/kdimtricp/vsearch/internal/storage"
)

var (
	ErrJobRunning  = errors.New("analysis already running")
	ErrNoActiveJob = errors.New("no active analysis")
)

const (
	MessageQueued    = "Waiting for analysis"
	MessageCancelled = "analysis cancelled"
)

const (
	progressProbing  = 5
	progressSampling = 10
	progressFrames   = 85
	progressIndexing = 90
	progressDone     = 100
)

const (
	subscriberBuffer = 32
	failureTimeout   = 10 * time.Second
)

type VideoStore interface {
	GetVideoByID(ctx context.Context, id string) (*models.Video, error)
	SetMediaInfo(ctx context.Context, id string, duration, frameRate float64) error
	UpdateAnalysis(ctx context.Context, id string, status models.AnalysisStatus, progress int, message string) error
}

type Prober interface {
	Probe(ctx context.Context, videoPath string) (ai.VideoInfo, error)
}

type FrameSampler interface {
	Sample(ctx context.Context, videoPath string, info ai.VideoInfo) ([]ai.SampledFrame, error)
}

type FrameProcessor interface {
	Process(ctx context.Context, sf ai.SampledFrame, frame models.Frame, tracker *analysis.CostTracker) models.FrameResult
}

type Committer interface {
	Commit(ctx context.Context, idx *index.Index) error
}

type Config struct {
	FrameWorkers     int
	MaxFallbackCalls int
	// FrameURLPrefix is where the frame store is served over HTTP.
	FrameURLPrefix string
}

type Service struct {
	videos    VideoStore
	files     storage.Storage
	frames    storage.FrameStore
	prober    Prober
	sampler   FrameSampler
	processor FrameProcessor
	indexer   Committer
	cfg       Config
	metrics   *metrics.Metrics
	logger    *slog.Logger

	jobs   map[string]*Job
	jobsMu sync.RWMutex
	wg     sync.WaitGroup

	subs   map[string]map[chan Update]struct{}
	subsMu sync.RWMutex
}

func NewService(
	videos VideoStore,
	files storage.Storage,
	frames storage.FrameStore,
	prober Prober,
	sampler FrameSampler,
	processor FrameProcessor,
	indexer Committer,
	config Config,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Service {
	if config.FrameWorkers < 1 {
		config.FrameWorkers = 4
	}
	if config.MaxFallbackCalls <= 0 {
		config.MaxFallbackCalls = analysis.DefaultMaxFallbackCalls
	}
	if config.FrameURLPrefix == "" {
		config.FrameURLPrefix = "/frames"
	}

	return &Service{
		videos:    videos,
		files:     files,
		frames:    frames,
		prober:    prober,
		sampler:   sampler,
		processor: processor,
		indexer:   indexer,
		cfg:       config,
		metrics:   m,
		logger:    logger.With("component", "jobs"),
		jobs:      make(map[string]*Job),
		subs:      make(map[string]map[chan Update]struct{}),
	}
}

// Start acknowledges the job as pending and runs it in the background.
// The job outlives ctx; use Cancel to stop it.
func (s *Service) Start(ctx context.Context, videoID string) (*Job, error) {
	video, err := s.videos.GetVideoByID(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("getting video: %w", err)
	}

	s.jobsMu.Lock()
	if _, running := s.jobs[videoID]; running {
		s.jobsMu.Unlock()
		return nil, ErrJobRunning
	}
	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	job := &Job{
		RunID:     uuid.New().String(),
		VideoID:   videoID,
		StartedAt: time.Now(),
		ctx:       jobCtx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	s.jobs[videoID] = job
	s.jobsMu.Unlock()

	if err := s.report(ctx, job, models.StatusPending, 0, MessageQueued); err != nil {
		s.jobsMu.Lock()
		delete(s.jobs, videoID)
		s.jobsMu.Unlock()
		cancel()
		close(job.done)
		return nil, fmt.Errorf("persisting job state: %w", err)
	}

	s.logger.Info("Analysis started", "video_id", videoID, "run_id", job.RunID)

	s.wg.Add(1)
	go s.run(job, video)

	return job, nil
}

// Run starts an analysis and waits for it. Cancelling ctx cancels the job.
func (s *Service) Run(ctx context.Context, videoID string) error {
	job, err := s.Start(ctx, videoID)
	if err != nil {
		return err
	}
	select {
	case <-job.Done():
	case <-ctx.Done():
		job.cancel()
		<-job.Done()
	}
	return job.Err()
}

func (s *Service) Active(videoID string) (*Job, bool) {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()

	job, exists := s.jobs[videoID]
	return job, exists
}

func (s *Service) Cancel(videoID string) error {
	job, exists := s.Active(videoID)
	if !exists {
		return ErrNoActiveJob
	}

	s.logger.Info("Cancelling analysis", "video_id", videoID, "run_id", job.RunID)
	job.cancel()
	return nil
}

// Subscribe streams progress updates for a video until the returned
// function is called. Slow subscribers miss updates rather than block jobs.
func (s *Service) Subscribe(videoID string) (<-chan Update, func()) {
	ch := make(chan Update, subscriberBuffer)

	s.subsMu.Lock()
	if s.subs[videoID] == nil {
		s.subs[videoID] = make(map[chan Update]struct{})
	}
	s.subs[videoID][ch] = struct{}{}
	s.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs[videoID], ch)
			if len(s.subs[videoID]) == 0 {
				delete(s.subs, videoID)
			}
			s.subsMu.Unlock()
			close(ch)
		})
	}
}

// Shutdown cancels every running job and waits for them to record their
// final state.
func (s *Service) Shutdown(ctx context.Context) error {
	s.jobsMu.RLock()
	for _, job := range s.jobs {
		job.cancel()
	}
	s.jobsMu.RUnlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) run(job *Job, video *models.Video) {
	defer s.wg.Done()

	err := s.analyze(job.ctx, job, video)
	status := string(models.StatusCompleted)
	if err != nil {
		status = string(models.StatusFailed)
		s.fail(job, err)
	}
	s.metrics.RecordJob(status, time.Since(job.StartedAt))

	job.mu.Lock()
	job.err = err
	job.mu.Unlock()

	s.jobsMu.Lock()
	delete(s.jobs, job.VideoID)
	s.jobsMu.Unlock()

	job.cancel()
	close(job.done)
}

func (s *Service) analyze(ctx context.Context, job *Job, video *models.Video) error {
	if err := s.report(ctx, job, models.StatusAnalyzing, progressProbing, "Probing video"); err != nil {
		return fmt.Errorf("persisting progress: %w", err)
	}

	videoPath, err := s.files.LocalPath(video.Filename)
	if err != nil {
		return fmt.Errorf("resolving video file: %w", err)
	}

	info, err := s.prober.Probe(ctx, videoPath)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("probing video: %w", ctx.Err())
		}
		s.logger.Warn("Probe failed, sampling with stored media info", "video_id", video.ID, "error", err)
		info = ai.VideoInfo{Duration: video.Duration, FrameRate: video.FrameRate}
	} else if err := s.videos.SetMediaInfo(ctx, video.ID, info.Duration, info.FrameRate); err != nil {
		s.logger.Warn("Failed to store media info", "video_id", video.ID, "error", err)
	}

	s.progress(ctx, job, progressSampling, "Sampling frames")
	sampled, err := s.sampler.Sample(ctx, videoPath, info)
	if err != nil {
		return fmt.Errorf("sampling frames: %w", err)
	}

	tracker := analysis.NewCostTracker(s.cfg.MaxFallbackCalls)
	results, err := s.processFrames(ctx, job, sampled, tracker)
	if err != nil {
		return err
	}

	s.progress(ctx, job, progressIndexing, fmt.Sprintf("Indexing %d frames", len(results)))
	idx, err := index.Build(job.VideoID, job.RunID, results, s.imageURL)
	if err != nil {
		return fmt.Errorf("building index: %w", err)
	}
	idx.Cost = tracker.Total()

	if err := s.indexer.Commit(ctx, idx); err != nil {
		return fmt.Errorf("committing index: %w", err)
	}

	// The commit itself marked the video completed.
	job.mu.Lock()
	job.progress = progressDone
	s.broadcast(job, models.StatusCompleted, progressDone, idx.CompletedMessage())
	job.mu.Unlock()

	if err := s.frames.PruneRuns(job.VideoID, job.RunID); err != nil {
		s.logger.Warn("Failed to prune superseded frames", "video_id", job.VideoID, "error", err)
	}

	s.logger.Info("Analysis completed",
		"video_id", job.VideoID,
		"run_id", job.RunID,
		"frames", len(idx.Frames),
		"persons", idx.PersonCount(),
		"fallback_calls", tracker.FallbackCalls(),
		"cost_usd", idx.Cost,
		"elapsed", time.Since(job.StartedAt))
	return nil
}

// processFrames fans frames out to a bounded worker pool. Cancellation is
// checked before each dispatch; a dispatched frame always finishes.
func (s *Service) processFrames(ctx context.Context, job *Job, sampled []ai.SampledFrame, tracker *analysis.CostTracker) ([]models.FrameResult, error) {
	results := make([]models.FrameResult, len(sampled))
	total := int64(len(sampled))
	work := context.WithoutCancel(ctx)
	var completed atomic.Int64

	var g errgroup.Group
	g.SetLimit(s.cfg.FrameWorkers)
	for i, sf := range sampled {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			frame := models.Frame{
				VideoID:   job.VideoID,
				RunID:     job.RunID,
				Index:     sf.Index,
				Timestamp: sf.Timestamp,
				ImageID:   models.ImageIDFor(sf.Index),
			}
			if p, err := s.frames.SaveFrame(job.VideoID, job.RunID, frame.ImageID, sf.JPEG); err != nil {
				s.logger.Warn("Failed to store frame image", "video_id", job.VideoID, "image_id", frame.ImageID, "error", err)
			} else {
				frame.ImagePath = p
			}

			results[i] = s.processor.Process(work, sf, frame, tracker)

			n := completed.Add(1)
			pct := progressSampling + int((progressFrames-progressSampling)*n/total)
			s.progress(work, job, pct, fmt.Sprintf("Analyzed frame %d/%d", n, total))
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("processing frames: %w", err)
	}
	return results, nil
}

func (s *Service) imageURL(f models.Frame) string {
	if f.ImagePath == "" {
		return ""
	}
	return path.Join(s.cfg.FrameURLPrefix, f.ImagePath)
}

func (s *Service) fail(job *Job, err error) {
	message := failureMessage(err)
	s.logger.Error("Analysis failed", "video_id", job.VideoID, "run_id", job.RunID, "error", err)

	ctx, cancel := context.WithTimeout(context.Background(), failureTimeout)
	defer cancel()
	if perr := s.report(ctx, job, models.StatusFailed, job.Progress(), message); perr != nil {
		s.logger.Error("Failed to persist analysis failure", "video_id", job.VideoID, "error", perr)
	}
	if derr := s.frames.DeleteRun(job.VideoID, job.RunID); derr != nil {
		s.logger.Warn("Failed to delete frames of failed run", "video_id", job.VideoID, "error", derr)
	}
}

func failureMessage(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return MessageCancelled
	case errors.Is(err, ai.ErrNoFrames):
		return "Analysis failed: no frames could be decoded"
	default:
		return "Analysis failed: " + err.Error()
	}
}

// progress records an intermediate step. Persistence errors are logged
// only; the run is still committed at the end.
func (s *Service) progress(ctx context.Context, job *Job, pct int, message string) {
	if err := s.report(ctx, job, models.StatusAnalyzing, pct, message); err != nil {
		s.logger.Warn("Failed to persist progress", "video_id", job.VideoID, "progress", pct, "error", err)
	}
}

// report persists and broadcasts a state change. Progress never moves
// backwards, except when a job fails.
func (s *Service) report(ctx context.Context, job *Job, status models.AnalysisStatus, pct int, message string) error {
	job.mu.Lock()
	defer job.mu.Unlock()

	if status != models.StatusFailed && pct < job.progress {
		return nil
	}
	job.progress = pct
	err := s.videos.UpdateAnalysis(ctx, job.VideoID, status, pct, message)
	s.broadcast(job, status, pct, message)
	return err
}

func (s *Service) broadcast(job *Job, status models.AnalysisStatus, pct int, message string) {
	u := Update{
		VideoID:  job.VideoID,
		RunID:    job.RunID,
		Status:   status,
		Progress: pct,
		Message:  message,
		Time:     time.Now().UTC(),
	}

	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	for ch := range s.subs[job.VideoID] {
		select {
		case ch <- u:
		default:
		}
	}
}
