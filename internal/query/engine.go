// Package query answers natural-language questions against a committed
// video index.
package query

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/kdimtricp/vsearch/internal/index"
	"github.com/kdimtricp/vsearch/internal/metrics"
	"github.com/kdimtricp/vsearch/internal/models"
)

type Status string

const (
	StatusOK      Status = "ok"
	StatusNoMatch Status = "no_match"
	StatusNoData  Status = "no_data"
)

const (
	MessageNoData  = "no data available"
	MessageNoMatch = "no frames matched the query"
)

type Request struct {
	VideoID   string `json:"video_id"`
	QueryText string `json:"query_text"`
}

type Result struct {
	ImageID        string   `json:"image_id"`
	Timestamp      float64  `json:"timestamp"`
	ImageURL       string   `json:"image_url,omitempty"`
	RelevanceScore int      `json:"relevance_score"`
	MatchedSignals []string `json:"matched_signals"`
}

type Response struct {
	Intent      Intent     `json:"intent"`
	Intents     []Intent   `json:"intents"`
	Status      Status     `json:"status"`
	Message     string     `json:"message,omitempty"`
	Results     []Result   `json:"results"`
	SummaryText string     `json:"summary_text,omitempty"`
	TimeRange   *TimeRange `json:"time_range,omitempty"`
}

type VideoReader interface {
	GetVideoByID(ctx context.Context, id string) (*models.Video, error)
}

type MetadataReader interface {
	LoadMetadata(ctx context.Context, videoID string) ([]index.MetadataFrame, error)
}

type Config struct {
	MaxResults int
	CacheTTL   time.Duration
}

// Engine is safe for concurrent use. It only reads committed runs: a
// video is queryable once its status is completed, and loaded frames are
// cached per run so a new commit is never served stale data.
type Engine struct {
	videos   VideoReader
	metadata MetadataReader
	terms    *Terms
	cache    *cache.Cache
	cfg      Config
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewEngine(videos VideoReader, metadata MetadataReader, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Engine {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 10
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	return &Engine{
		videos:   videos,
		metadata: metadata,
		terms:    DefaultTerms(),
		cache:    cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		cfg:      cfg,
		metrics:  m,
		logger:   logger.With("component", "query_engine"),
	}
}

// Query never returns an error: failures surface as StatusNoData.
func (e *Engine) Query(ctx context.Context, req Request) Response {
	started := time.Now()
	resp := e.query(ctx, req)
	e.metrics.RecordQuery(string(resp.Intent), string(resp.Status), time.Since(started))
	return resp
}

func (e *Engine) query(ctx context.Context, req Request) Response {
	video, frames, ok := e.load(ctx, req.VideoID)

	duration := 0.0
	if ok {
		duration = video.Duration
		if duration <= 0 && len(frames) > 0 {
			duration = frames[len(frames)-1].Timestamp
		}
	}
	q := Parse(req.QueryText, e.terms, duration)

	resp := Response{
		Intent:    q.Intent,
		Intents:   q.Intents,
		Results:   []Result{},
		TimeRange: q.TimeRange,
	}
	if !ok {
		resp.Status = StatusNoData
		resp.Message = MessageNoData
		return resp
	}

	if q.Intent == IntentSummary {
		if len(framesInWindow(frames, q.TimeRange)) == 0 {
			resp.Status = StatusNoMatch
			resp.Message = MessageNoMatch
			return resp
		}
		resp.Status = StatusOK
		resp.SummaryText = Digest(frames, q.TimeRange)
		return resp
	}

	if strings.TrimSpace(q.Text) == "" {
		resp.Status = StatusNoMatch
		resp.Message = "empty query"
		return resp
	}

	scored := Score(q, frames)
	if len(scored) == 0 {
		resp.Status = StatusNoMatch
		resp.Message = MessageNoMatch
		return resp
	}
	if len(scored) > e.cfg.MaxResults {
		scored = scored[:e.cfg.MaxResults]
	}
	for _, s := range scored {
		resp.Results = append(resp.Results, Result{
			ImageID:        s.ImageID,
			Timestamp:      s.Timestamp,
			ImageURL:       s.ImageURL,
			RelevanceScore: s.Score,
			MatchedSignals: s.Signals,
		})
	}
	resp.Status = StatusOK
	return resp
}

// load returns the committed frames of a video, or false when there is
// nothing to query.
func (e *Engine) load(ctx context.Context, videoID string) (*models.Video, []index.MetadataFrame, bool) {
	if videoID == "" {
		return nil, nil, false
	}
	video, err := e.videos.GetVideoByID(ctx, videoID)
	if err != nil {
		e.logger.Debug("Query for unavailable video", "video_id", videoID, "error", err)
		return nil, nil, false
	}
	if video.AnalysisStatus != models.StatusCompleted || video.RunID == "" {
		return video, nil, false
	}

	key := cacheKey(video.ID, video.RunID)
	if cached, found := e.cache.Get(key); found {
		frames := cached.([]index.MetadataFrame)
		return video, frames, len(frames) > 0
	}

	frames, err := e.metadata.LoadMetadata(ctx, video.ID)
	if err != nil {
		e.logger.Error("Failed to load metadata", "video_id", video.ID, "error", err)
		return video, nil, false
	}
	e.cache.SetDefault(key, frames)
	return video, frames, len(frames) > 0
}

// Invalidate drops every cached run of a video. It is registered as an
// index commit hook.
func (e *Engine) Invalidate(videoID, _ string) {
	prefix := videoID + ":"
	for key := range e.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			e.cache.Delete(key)
		}
	}
}

func cacheKey(videoID, runID string) string {
	return videoID + ":" + runID
}
