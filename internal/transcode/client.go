package transcode

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"slipstream/internal/config"
	"slipstream/internal/services"
)

var commandContext = exec.CommandContext

// MediaInfo describes a probed source file.
type MediaInfo struct {
	Duration time.Duration
	Width    int
	Height   int
	Codec    string
	Format   string
}

// Resolution renders the probed dimensions as WxH, or empty when unknown.
func (m MediaInfo) Resolution() string {
	if m.Width <= 0 || m.Height <= 0 {
		return ""
	}
	return fmt.Sprintf("%dx%d", m.Width, m.Height)
}

// Client defines transcoding behaviour.
type Client interface {
	Probe(ctx context.Context, inputPath string) (MediaInfo, error)
	Transcode(ctx context.Context, inputPath, outputDir string, progress func(percent float64)) (string, error)
}

// CLI shells out to ffmpeg and ffprobe.
type CLI struct {
	ffmpeg      string
	ffprobe     string
	preset      string
	crf         int
	segmentTime int
}

// NewCLI constructs a CLI client from configuration, falling back to
// sensible defaults for unset fields.
func NewCLI(cfg config.Transcode) *CLI {
	cli := &CLI{
		ffmpeg:      "ffmpeg",
		ffprobe:     "ffprobe",
		preset:      "fast",
		crf:         23,
		segmentTime: 10,
	}
	if cfg.FFmpegBinary != "" {
		cli.ffmpeg = cfg.FFmpegBinary
	}
	if cfg.FFprobeBinary != "" {
		cli.ffprobe = cfg.FFprobeBinary
	}
	if cfg.Preset != "" {
		cli.preset = cfg.Preset
	}
	if cfg.CRF > 0 {
		cli.crf = cfg.CRF
	}
	if cfg.SegmentTime > 0 {
		cli.segmentTime = cfg.SegmentTime
	}
	return cli
}

// Probe reads stream and container metadata with ffprobe.
func (c *CLI) Probe(ctx context.Context, inputPath string) (MediaInfo, error) {
	if strings.TrimSpace(inputPath) == "" {
		return MediaInfo{}, services.Wrap(services.ErrValidation, "transcode", "probe", "input path required", nil)
	}

	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		inputPath,
	}
	cmd := commandContext(ctx, c.ffprobe, args...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return MediaInfo{}, services.Wrap(services.ErrExternalTool, "transcode", "probe",
			fmt.Sprintf("ffprobe failed: %s", firstLine(stderr.String())), err)
	}

	var payload struct {
		Format struct {
			Duration   string `json:"duration"`
			FormatName string `json:"format_name"`
		} `json:"format"`
		Streams []struct {
			CodecType string `json:"codec_type"`
			CodecName string `json:"codec_name"`
			Width     int    `json:"width"`
			Height    int    `json:"height"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &payload); err != nil {
		return MediaInfo{}, services.Wrap(services.ErrExternalTool, "transcode", "probe", "parse ffprobe output", err)
	}

	info := MediaInfo{Format: payload.Format.FormatName}
	if seconds, err := strconv.ParseFloat(payload.Format.Duration, 64); err == nil && seconds > 0 {
		info.Duration = time.Duration(seconds * float64(time.Second))
	}
	for _, stream := range payload.Streams {
		if stream.CodecType == "video" {
			info.Codec = stream.CodecName
			info.Width = stream.Width
			info.Height = stream.Height
			break
		}
	}
	return info, nil
}

// Transcode runs ffmpeg to produce an HLS rendition and returns the playlist
// path. The progress callback receives percentages in [0, 100] when the
// source duration is known.
func (c *CLI) Transcode(ctx context.Context, inputPath, outputDir string, progress func(float64)) (string, error) {
	if strings.TrimSpace(inputPath) == "" {
		return "", services.Wrap(services.ErrValidation, "transcode", "transcode", "input path required", nil)
	}
	if strings.TrimSpace(outputDir) == "" {
		return "", services.Wrap(services.ErrValidation, "transcode", "transcode", "output directory required", nil)
	}

	var totalDuration time.Duration
	if info, err := c.Probe(ctx, inputPath); err == nil {
		totalDuration = info.Duration
	}

	playlist := filepath.Join(outputDir, "index.m3u8")
	args := []string{
		"-hide_banner",
		"-nostats",
		"-y",
		"-i", inputPath,
		"-c:v", "libx264",
		"-c:a", "aac",
		"-crf", strconv.Itoa(c.crf),
		"-preset", c.preset,
		"-g", "48",
		"-sc_threshold", "0",
		"-hls_time", strconv.Itoa(c.segmentTime),
		"-hls_list_size", "0",
		"-hls_segment_filename", filepath.Join(outputDir, "segment_%03d.ts"),
		"-f", "hls",
		"-progress", "pipe:1",
		playlist,
	}

	cmd := commandContext(ctx, c.ffmpeg, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "transcode", "transcode", "stdout pipe", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "transcode", "transcode", "start ffmpeg", err)
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "out_time_us":
			if progress == nil || totalDuration <= 0 {
				continue
			}
			elapsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil || elapsed < 0 {
				continue
			}
			percent := float64(elapsed) / float64(totalDuration.Microseconds()) * 100
			if percent > 100 {
				percent = 100
			}
			progress(percent)
		case "progress":
			if value == "end" && progress != nil {
				progress(100)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "transcode", "transcode", "read ffmpeg output", err)
	}

	if err := cmd.Wait(); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "transcode", "transcode",
			fmt.Sprintf("ffmpeg failed: %s", firstLine(stderr.String())), err)
	}
	return playlist, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return "no diagnostic output"
	}
	return s
}

var _ Client = (*CLI)(nil)
