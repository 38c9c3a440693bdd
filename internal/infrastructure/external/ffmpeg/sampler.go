package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// ErrNoFrames is returned when ffmpeg succeeded but wrote no images
var ErrNoFrames = errors.New("no frames extracted")

var commandContext = exec.CommandContext

const framePattern = "frame_%06d.jpg"

// Config controls frame sampling
type Config struct {
	Binary   string
	FPS      float64
	MaxWidth int
	// Quality is the mjpeg qscale, 2 (best) to 31
	Quality int
}

// DefaultConfig samples one frame per second at up to 1280px wide
func DefaultConfig() Config {
	return Config{
		Binary:   "ffmpeg",
		FPS:      1,
		MaxWidth: 1280,
		Quality:  5,
	}
}

// Sampler implements port.FrameSampler with the ffmpeg CLI
type Sampler struct {
	cfg    Config
	logger *zap.Logger
}

// NewSampler creates a sampler, filling unset config values with defaults
func NewSampler(cfg Config, logger *zap.Logger) *Sampler {
	d := DefaultConfig()
	if cfg.Binary == "" {
		cfg.Binary = d.Binary
	}
	if cfg.FPS <= 0 {
		cfg.FPS = d.FPS
	}
	if cfg.MaxWidth <= 0 {
		cfg.MaxWidth = d.MaxWidth
	}
	if cfg.Quality <= 0 {
		cfg.Quality = d.Quality
	}
	return &Sampler{cfg: cfg, logger: logger}
}

// ExtractFrames writes frame_000001.jpg, frame_000002.jpg... into outDir and
// returns their paths in playback order
func (s *Sampler) ExtractFrames(ctx context.Context, videoPath, outDir string) ([]string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create frame dir: %w", err)
	}

	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", videoPath,
		"-vf", fmt.Sprintf("fps=%g,scale='min(%d,iw)':-2", s.cfg.FPS, s.cfg.MaxWidth),
		"-q:v", fmt.Sprintf("%d", s.cfg.Quality),
		filepath.Join(outDir, framePattern),
	}
	cmd := commandContext(ctx, s.cfg.Binary, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("ffmpeg sample frames: %w: %s", err, strings.TrimSpace(string(output)))
	}

	frames, err := filepath.Glob(filepath.Join(outDir, "frame_*.jpg"))
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}
	if len(frames) == 0 {
		return nil, ErrNoFrames
	}
	sort.SliceStable(frames, func(i, j int) bool {
		return frameNumber(frames[i]) < frameNumber(frames[j])
	})

	s.logger.Debug("Sampled frames",
		zap.String("video", filepath.Base(videoPath)),
		zap.Int("frames", len(frames)))

	return frames, nil
}

// frameNumber reads the sequence number ffmpeg wrote into a frame name
func frameNumber(path string) int {
	name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), "frame_"), ".jpg")
	n, err := strconv.Atoi(name)
	if err != nil {
		return -1
	}
	return n
}
