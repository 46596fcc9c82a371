package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// FrameExtractor probes and decodes video files with ffprobe/ffmpeg.
type FrameExtractor struct {
	ffmpegPath  string
	ffprobePath string
	logger      *slog.Logger
}

func NewFrameExtractor(logger *slog.Logger) (*FrameExtractor, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	// ffprobe is optional; Probe falls back to parsing ffmpeg output.
	ffprobePath, _ := exec.LookPath("ffprobe")

	logger = logger.With("component", "frame_extractor")
	logger.Info("frame extractor ready", "ffmpeg", ffmpegPath, "ffprobe", ffprobePath)

	return &FrameExtractor{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		logger:      logger,
	}, nil
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
}

func (fe *FrameExtractor) Probe(ctx context.Context, videoPath string) (VideoInfo, error) {
	if _, err := os.Stat(videoPath); err != nil {
		return VideoInfo{}, fmt.Errorf("video file not accessible: %w", err)
	}

	if fe.ffprobePath != "" {
		info, err := fe.probeJSON(ctx, videoPath)
		if err == nil && info.Duration > 0 {
			return info, nil
		}
		fe.logger.Warn("ffprobe failed, falling back to ffmpeg", "path", videoPath, "error", err)
	}

	cmd := exec.CommandContext(ctx, fe.ffmpegPath, "-i", videoPath, "-f", "null", "-")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	_ = cmd.Run()

	duration, err := parseFFmpegDuration(stderr.String())
	if err != nil {
		return VideoInfo{}, fmt.Errorf("failed to get video duration: %w", err)
	}
	return VideoInfo{Duration: duration}, nil
}

func (fe *FrameExtractor) probeJSON(ctx context.Context, videoPath string) (VideoInfo, error) {
	cmd := exec.CommandContext(ctx, fe.ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		"-select_streams", "v:0",
		videoPath)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return VideoInfo{}, fmt.Errorf("running ffprobe: %w", err)
	}
	return parseProbeOutput(stdout.Bytes())
}

func parseProbeOutput(data []byte) (VideoInfo, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return VideoInfo{}, fmt.Errorf("failed to decode ffprobe output: %w", err)
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(out.Format.Duration), 64)
	if err != nil {
		return VideoInfo{}, fmt.Errorf("invalid duration %q: %w", out.Format.Duration, err)
	}

	info := VideoInfo{Duration: duration}
	for _, s := range out.Streams {
		if s.CodecType != "" && s.CodecType != "video" {
			continue
		}
		info.Width, info.Height = s.Width, s.Height
		info.FrameRate = parseFrameRate(s.RFrameRate)
		if info.FrameRate == 0 {
			info.FrameRate = parseFrameRate(s.AvgFrameRate)
		}
		break
	}
	return info, nil
}

// parseFrameRate reads ffprobe rationals such as "30000/1001".
func parseFrameRate(s string) float64 {
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

func parseFFmpegDuration(output string) (float64, error) {
	const prefix = "Duration: "
	start := strings.Index(output, prefix)
	if start == -1 {
		return 0, fmt.Errorf("duration not found in ffmpeg output")
	}
	start += len(prefix)
	end := strings.Index(output[start:], ",")
	if end == -1 {
		return 0, fmt.Errorf("invalid duration format")
	}

	durationStr := output[start : start+end]
	parts := strings.Split(durationStr, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid duration format: %s", durationStr)
	}

	var total float64
	for i, mult := range []float64{3600, 60, 1} {
		v, err := strconv.ParseFloat(parts[i], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration format: %s", durationStr)
		}
		total += v * mult
	}
	return total, nil
}

// DecodeAt grabs the frame at timestamp, scaled so its width is at most size.
func (fe *FrameExtractor) DecodeAt(ctx context.Context, videoPath string, timestamp float64, size int) ([]byte, image.Image, error) {
	args := []string{
		"-v", "error",
		"-ss", fmt.Sprintf("%.3f", timestamp),
		"-i", videoPath,
		"-frames:v", "1",
		"-vf", fmt.Sprintf("scale='min(%d,iw)':-2", size),
		"-q:v", "2",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, fe.ffmpegPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, nil, fmt.Errorf("failed to extract frame at %.3f: %w (%s)", timestamp, err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, nil, fmt.Errorf("no frame data at %.3f", timestamp)
	}

	img, _, err := image.Decode(&stdout)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode frame: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	return buf.Bytes(), img, nil
}
