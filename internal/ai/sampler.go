package ai

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"
)

type SamplingOptions struct {
	MaxFrames int
	MinFrames int
	FrameSize int
}

func DefaultSamplingOptions() SamplingOptions {
	return SamplingOptions{MaxFrames: 100, MinFrames: 5, FrameSize: 512}
}

// FrameDecoder materializes a single still from a video file.
type FrameDecoder interface {
	DecodeAt(ctx context.Context, videoPath string, timestamp float64, size int) ([]byte, image.Image, error)
}

// samplingInterval spaces samples more densely in short clips.
func samplingInterval(duration float64) float64 {
	switch {
	case duration <= 10:
		return 0.5
	case duration <= 30:
		return 1
	case duration <= 60:
		return 2
	case duration <= 120:
		return 3
	case duration <= 300:
		return 4
	default:
		return 6
	}
}

// PlanTimestamps returns between 1 and opts.MaxFrames strictly increasing
// timestamps covering [0, duration).
func PlanTimestamps(duration, fps float64, opts SamplingOptions) []float64 {
	maxFrames := opts.MaxFrames
	if maxFrames < 1 {
		maxFrames = 1
	}
	if duration <= 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
		return []float64{0}
	}

	interval := samplingInterval(duration)
	var raw []float64
	for i := 0; ; i++ {
		t := float64(i) * interval
		if t >= duration {
			break
		}
		raw = append(raw, t)
	}
	if last := duration - 0.1; last > 0 {
		raw = append(raw, last)
	}
	plan := snapAndDedupe(raw, fps)

	minFrames := opts.MinFrames
	if minFrames > maxFrames {
		minFrames = maxFrames
	}
	if len(plan) < minFrames {
		uniform := make([]float64, 0, minFrames)
		for i := 1; i <= minFrames; i++ {
			uniform = append(uniform, duration*float64(i)/float64(minFrames+1))
		}
		if u := snapAndDedupe(uniform, fps); len(u) > len(plan) {
			plan = u
		}
	}

	if len(plan) > maxFrames {
		plan = evenlyPick(plan, maxFrames)
	}
	if len(plan) == 0 {
		return []float64{0}
	}
	return plan
}

func snapAndDedupe(ts []float64, fps float64) []float64 {
	out := make([]float64, 0, len(ts))
	for _, t := range ts {
		if fps > 0 {
			t = math.Floor(t*fps) / fps
		}
		t = math.Round(t*1000) / 1000
		if len(out) > 0 && t <= out[len(out)-1] {
			continue
		}
		out = append(out, t)
	}
	return out
}

func evenlyPick(ts []float64, n int) []float64 {
	if n == 1 {
		return []float64{ts[0]}
	}
	out := make([]float64, 0, n)
	last := len(ts) - 1
	for i := 0; i < n; i++ {
		out = append(out, ts[i*last/(n-1)])
	}
	return out
}

type Sampler struct {
	decoder FrameDecoder
	opts    SamplingOptions
	logger  *slog.Logger
}

func NewSampler(decoder FrameDecoder, opts SamplingOptions, logger *slog.Logger) *Sampler {
	if opts.FrameSize <= 0 {
		opts.FrameSize = DefaultSamplingOptions().FrameSize
	}
	return &Sampler{
		decoder: decoder,
		opts:    opts,
		logger:  logger.With("component", "sampler"),
	}
}

// Sample decodes every planned timestamp. Frames that fail to decode are
// skipped; only a run with zero usable frames is an error.
func (s *Sampler) Sample(ctx context.Context, videoPath string, info VideoInfo) ([]SampledFrame, error) {
	plan := PlanTimestamps(info.Duration, info.FrameRate, s.opts)
	s.logger.Info("sampling frames", "path", videoPath, "duration", info.Duration, "fps", info.FrameRate, "planned", len(plan))

	frames := make([]SampledFrame, 0, len(plan))
	for i, ts := range plan {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("sampling cancelled: %w", err)
		}

		data, img, err := s.decoder.DecodeAt(ctx, videoPath, ts, s.opts.FrameSize)
		if err != nil {
			s.logger.Warn("skipping frame", "index", i, "timestamp", ts, "error", err)
			continue
		}
		frames = append(frames, SampledFrame{
			Index:     len(frames),
			Timestamp: ts,
			JPEG:      data,
			Image:     img,
		})
	}

	if len(frames) == 0 {
		return nil, fmt.Errorf("attempted %d frames: %w", len(plan), ErrNoFrames)
	}

	s.logger.Info("sampled frames", "decoded", len(frames), "planned", len(plan))
	return frames, nil
}
