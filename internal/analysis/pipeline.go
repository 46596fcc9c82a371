package analysis

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kdimtricp/vsearch/internal/ai"
	"github.com/kdimtricp/vsearch/internal/metrics"
	"github.com/kdimtricp/vsearch/internal/models"
)

const DefaultCropMaxSide = 512

type PipelineConfig struct {
	PersonWorkers int
	CropMaxSide   int
	Retry         ai.RetryPolicy
}

// FrameProcessor turns one sampled frame into detections, person
// attributes, clothing colors and a caption.
type FrameProcessor struct {
	detector  ai.Detector
	analyzer  *Analyzer
	colors    ColorExtractor
	captioner ai.Captioner
	cfg       PipelineConfig
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewFrameProcessor builds the per-frame pipeline. captioner may be nil.
func NewFrameProcessor(detector ai.Detector, analyzer *Analyzer, captioner ai.Captioner, cfg PipelineConfig, m *metrics.Metrics, logger *slog.Logger) *FrameProcessor {
	if cfg.PersonWorkers < 1 {
		cfg.PersonWorkers = 4
	}
	if cfg.CropMaxSide <= 0 {
		cfg.CropMaxSide = DefaultCropMaxSide
	}
	return &FrameProcessor{
		detector:  detector,
		analyzer:  analyzer,
		captioner: captioner,
		cfg:       cfg,
		metrics:   m,
		logger:    logger.With("component", "frame_processor"),
	}
}

// Process never fails. A detector error yields a frame without detections
// and a captioner error yields an empty caption; the frame is still indexed.
func (p *FrameProcessor) Process(ctx context.Context, sf ai.SampledFrame, frame models.Frame, tracker *CostTracker) models.FrameResult {
	result := models.FrameResult{Frame: frame}

	var (
		detections []models.Detection
		caption    *ai.Caption
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		detections = p.detect(gctx, sf, frame)
		return nil
	})
	g.Go(func() error {
		caption = p.caption(gctx, sf, frame)
		return nil
	})
	_ = g.Wait()

	result.Detections = detections
	result.Persons = p.persons(ctx, sf, detections, tracker)
	result.Caption = p.frameCaption(sf, caption)

	p.metrics.RecordFrame()
	return result
}

func (p *FrameProcessor) detect(ctx context.Context, sf ai.SampledFrame, frame models.Frame) []models.Detection {
	if p.detector == nil {
		return nil
	}
	dets, err := ai.Retry(ctx, p.cfg.Retry, func(ctx context.Context) ([]models.Detection, error) {
		return p.detector.Detect(ctx, sf.JPEG)
	})
	p.metrics.RecordModelCall(p.detector.Name(), err)
	if err != nil {
		p.logger.Warn("Detection failed, indexing frame without objects",
			"image_id", frame.ImageID, "timestamp", frame.Timestamp, "error", err)
		return nil
	}

	out := make([]models.Detection, 0, len(dets))
	for _, d := range dets {
		if !d.BBox.Valid() {
			continue
		}
		d.ImageID = frame.ImageID
		d.Label = strings.ToLower(strings.TrimSpace(d.Label))
		out = append(out, d)
	}
	return out
}

func (p *FrameProcessor) caption(ctx context.Context, sf ai.SampledFrame, frame models.Frame) *ai.Caption {
	if p.captioner == nil {
		return nil
	}
	c, err := ai.Retry(ctx, p.cfg.Retry, func(ctx context.Context) (*ai.Caption, error) {
		return p.captioner.Caption(ctx, sf.JPEG)
	})
	p.metrics.RecordModelCall("captioner", err)
	if err != nil {
		p.logger.Warn("Captioning failed, leaving caption empty",
			"image_id", frame.ImageID, "error", err)
		return nil
	}
	return c
}

func (p *FrameProcessor) frameCaption(sf ai.SampledFrame, c *ai.Caption) models.FrameCaption {
	var fc models.FrameCaption
	if c != nil {
		fc.Caption = strings.TrimSpace(c.Text)
		fc.SceneType = c.SceneType
		fc.Lighting = c.Lighting
	}
	if (fc.SceneType == "" || fc.Lighting == "") && sf.Image != nil {
		scene, lighting := SceneTags(sf.Image)
		if fc.SceneType == "" {
			fc.SceneType = scene
		}
		if fc.Lighting == "" {
			fc.Lighting = lighting
		}
	}
	return fc
}

// persons analyzes every person detection with at most PersonWorkers crops
// in flight. Output order follows detection order.
func (p *FrameProcessor) persons(ctx context.Context, sf ai.SampledFrame, detections []models.Detection, tracker *CostTracker) []models.Person {
	var people []models.Detection
	for _, d := range detections {
		if d.IsPerson() {
			people = append(people, d)
		}
	}
	if len(people) == 0 || sf.Image == nil {
		return nil
	}

	out := make([]models.Person, len(people))
	var g errgroup.Group
	g.SetLimit(p.cfg.PersonWorkers)
	for i, det := range people {
		g.Go(func() error {
			out[i] = p.person(ctx, sf, det, tracker)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (p *FrameProcessor) person(ctx context.Context, sf ai.SampledFrame, det models.Detection, tracker *CostTracker) models.Person {
	person := models.Person{
		Detection: det,
		Colors:    p.colors.Extract(sf.Image, det.BBox),
	}

	crop, err := CropPerson(sf.Image, det.BBox, p.cfg.CropMaxSide)
	if err != nil {
		if errors.Is(err, ErrDegenerateCrop) {
			p.logger.Debug("Skipping attributes for small person box", "image_id", det.ImageID, "error", err)
		} else {
			p.logger.Warn("Failed to crop person", "image_id", det.ImageID, "error", err)
		}
		person.Attributes = unanalyzed()
		return person
	}

	if p.analyzer == nil {
		person.Attributes = unanalyzed()
		return person
	}
	person.Attributes = p.analyzer.Analyze(ctx, crop, tracker)
	return person
}

// unanalyzed is what a person gets when no attribute model saw the crop.
func unanalyzed() models.PersonAttributes {
	return models.PersonAttributes{
		Gender:        models.GenderUnknown,
		AgeGroup:      models.AgeUnknown,
		Emotion:       models.EmotionUnknown,
		Source:        models.SourcePrimary,
		Decision:      models.DecisionFlaggedLowConfidence,
		LowConfidence: true,
	}
}
