// Package app wires the vsearch components from a loaded configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/kdimtricp/vsearch/internal/ai"
	"github.com/kdimtricp/vsearch/internal/analysis"
	"github.com/kdimtricp/vsearch/internal/api"
	"github.com/kdimtricp/vsearch/internal/config"
	"github.com/kdimtricp/vsearch/internal/database"
	"github.com/kdimtricp/vsearch/internal/index"
	"github.com/kdimtricp/vsearch/internal/jobs"
	"github.com/kdimtricp/vsearch/internal/metrics"
	"github.com/kdimtricp/vsearch/internal/query"
	"github.com/kdimtricp/vsearch/internal/storage"
)

// Services holds every long-lived component. Close releases the database.
type Services struct {
	Config    *config.Config
	DB        *database.DB
	Videos    *database.VideoRepository
	Indexes   *database.IndexRepository
	Uploads   *storage.LocalStorage
	Frames    *storage.LocalFrameStorage
	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics
	Engine    *query.Engine
	Jobs      *jobs.Service
	Detector  *ai.HTTPDetector
	Primary   *ai.HTTPAttributeModel
	Fallback  *ai.OpenAIAttributeModel
	Captioner *ai.OpenAICaptioner
	Logger    *slog.Logger
}

// New opens the database and storage and builds the analysis and query
// services. ffmpeg must be on PATH.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Services, error) {
	db, err := database.NewDB(ctx, cfg.Database.DB(), logger)
	if err != nil {
		return nil, err
	}

	s, err := build(cfg, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func build(cfg *config.Config, db *database.DB, logger *slog.Logger) (*Services, error) {
	uploads, err := storage.NewLocalStorage(cfg.Storage.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("init upload storage: %w", err)
	}
	frames, err := storage.NewLocalFrameStorage(cfg.Storage.FrameDir)
	if err != nil {
		return nil, fmt.Errorf("init frame storage: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(registry)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	agg, err := analysis.ParseAggregation(cfg.Analysis.Aggregation)
	if err != nil {
		return nil, err
	}

	extractor, err := ai.NewFrameExtractor(logger)
	if err != nil {
		return nil, err
	}

	retry := ai.DefaultRetryPolicy()
	if cfg.Analysis.RetryAttempts > 0 {
		retry.Attempts = cfg.Analysis.RetryAttempts
	}
	if cfg.Analysis.CallTimeout > 0 {
		retry.PerCallTimeout = cfg.Analysis.CallTimeout
	}

	client := &http.Client{}
	s := &Services{
		Config:   cfg,
		DB:       db,
		Videos:   database.NewVideoRepository(db),
		Indexes:  database.NewIndexRepository(db),
		Uploads:  uploads,
		Frames:   frames,
		Registry: registry,
		Metrics:  m,
		Detector: ai.NewHTTPDetector(cfg.Models.DetectorURL, cfg.Models.DetectorConfidence, client),
		Primary:  ai.NewHTTPAttributeModel(cfg.Models.PrimaryAttributeURL, client),
		Logger:   logger,
	}

	// Without an API key ambiguous crops are flagged low confidence and
	// frames carry no caption.
	var fallback ai.AttributeModel
	var captioner ai.Captioner
	if cfg.Models.OpenAIAPIKey != "" {
		s.Fallback = ai.NewOpenAIAttributeModel(ai.OpenAIConfig{
			APIKey:  cfg.Models.OpenAIAPIKey,
			BaseURL: cfg.Models.OpenAIBaseURL,
			Model:   cfg.Models.FallbackModel,
		}, cfg.Analysis.FallbackCostPerCall)
		s.Captioner = ai.NewOpenAICaptioner(ai.OpenAIConfig{
			APIKey:  cfg.Models.OpenAIAPIKey,
			BaseURL: cfg.Models.OpenAIBaseURL,
			Model:   cfg.Models.CaptionModel,
		})
		fallback, captioner = s.Fallback, s.Captioner
	} else {
		logger.Warn("OpenAI not configured; fallback attributes and captions are disabled")
	}

	analyzer := analysis.NewAnalyzer(s.Primary, fallback, analysis.AnalyzerConfig{
		Aggregation:         agg,
		FallbackCostPerCall: cfg.Analysis.FallbackCostPerCall,
		FallbackRate:        cfg.Analysis.FallbackRatePerSecond,
		Retry:               retry,
	}, m, logger)
	processor := analysis.NewFrameProcessor(s.Detector, analyzer, captioner, analysis.PipelineConfig{
		PersonWorkers: cfg.Analysis.PersonWorkers,
		Retry:         retry,
	}, m, logger)
	sampler := ai.NewSampler(extractor, ai.SamplingOptions{
		MaxFrames: cfg.Analysis.MaxFrames,
		MinFrames: cfg.Analysis.MinFrames,
		FrameSize: cfg.Analysis.FrameSize,
	}, logger)

	s.Engine = query.NewEngine(s.Videos, s.Indexes, query.Config{
		MaxResults: cfg.Query.MaxResults,
		CacheTTL:   cfg.Query.CacheTTL,
	}, m, logger)

	indexer := index.NewIndexer(s.Indexes, logger)
	indexer.OnCommit(s.Engine.Invalidate)

	s.Jobs = jobs.NewService(s.Videos, uploads, frames, extractor, sampler, processor, indexer, jobs.Config{
		FrameWorkers:     cfg.Analysis.FrameWorkers,
		MaxFallbackCalls: cfg.Analysis.MaxFallbackCalls,
	}, m, logger)

	return s, nil
}

// Router returns the HTTP API over these services.
func (s *Services) Router() http.Handler {
	return api.NewRouter(&api.App{
		Storage:       s.Uploads,
		VideoRepo:     s.Videos,
		IndexRepo:     s.Indexes,
		Jobs:          s.Jobs,
		Engine:        s.Engine,
		FrameDir:      s.Frames.Dir(),
		MaxUploadSize: s.Config.Server.MaxUploadSize,
		Registry:      s.Registry,
		Logger:        s.Logger,
	})
}

// Close stops running jobs, then closes the database.
func (s *Services) Close(ctx context.Context) error {
	jobsErr := s.Jobs.Shutdown(ctx)
	if err := s.DB.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return jobsErr
}
