package assembler

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"videoStitch/logging"
)

// Clipper is the media primitive boundary: trim a sub-clip, render a title
// card, concatenate clips. Implementations may be slow; the assembler owns
// timeouts and failure policy.
type Clipper interface {
	Trim(ctx context.Context, src string, start, end float64, out string) error
	TitleCard(ctx context.Context, title string, seconds float64, out string) error
	Concat(ctx context.Context, inputs []string, out string) error
	Duration(ctx context.Context, path string) (float64, error)
}

// FFmpegClipper shells out to ffmpeg/ffprobe. Segments are re-encoded with a
// common codec so the concat demuxer can splice clips from different sources.
type FFmpegClipper struct {
	logger      zerolog.Logger
	ffmpegPath  string
	ffprobePath string
}

const (
	clipVideoCodec = "libx264"
	clipAudioCodec = "aac"
	clipCRF        = 23
)

func NewFFmpegClipper() (*FFmpegClipper, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}
	return &FFmpegClipper{
		logger:      logging.Component("ffmpeg"),
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
	}, nil
}

func (c *FFmpegClipper) Trim(ctx context.Context, src string, start, end float64, out string) error {
	if end <= start {
		return fmt.Errorf("invalid clip range: end must be after start")
	}
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("source video not found: %w", err)
	}
	args := []string{
		"-i", src,
		"-ss", ffmpegTime(start),
		"-t", ffmpegTime(end - start),
		"-c:v", clipVideoCodec,
		"-c:a", clipAudioCodec,
		"-preset", "fast",
		"-crf", strconv.Itoa(clipCRF),
		"-avoid_negative_ts", "make_zero",
		out,
	}
	c.logger.Debug().Str("src", src).Float64("start", start).Float64("end", end).Msg("extracting clip")
	return c.run(ctx, args, out)
}

func (c *FFmpegClipper) TitleCard(ctx context.Context, title string, seconds float64, out string) error {
	text := strings.NewReplacer("'", "", ":", "\\:", "\\", "").Replace(title)
	args := []string{
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=black:size=1280x720:duration=%.1f", seconds),
		"-f", "lavfi",
		"-i", fmt.Sprintf("anullsrc=channel_layout=stereo:sample_rate=44100:duration=%.1f", seconds),
		"-vf", fmt.Sprintf("drawtext=text='%s':fontcolor=white:fontsize=48:x=(w-text_w)/2:y=(h-text_h)/2", text),
		"-c:v", clipVideoCodec,
		"-c:a", clipAudioCodec,
		"-preset", "fast",
		"-crf", strconv.Itoa(clipCRF),
		"-shortest",
		out,
	}
	c.logger.Debug().Str("title", title).Float64("seconds", seconds).Msg("rendering title card")
	return c.run(ctx, args, out)
}

func (c *FFmpegClipper) Concat(ctx context.Context, inputs []string, out string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("no input files provided")
	}
	listFile, err := c.writeConcatList(inputs)
	if err != nil {
		return fmt.Errorf("failed to create concat list: %w", err)
	}
	defer os.Remove(listFile)

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-c:v", clipVideoCodec,
		"-c:a", clipAudioCodec,
		"-preset", "fast",
		"-crf", strconv.Itoa(clipCRF),
		out,
	}
	c.logger.Info().Int("inputs", len(inputs)).Str("output", out).Msg("concatenating clips")
	return c.run(ctx, args, out)
}

func (c *FFmpegClipper) Duration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, c.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}
	return strconv.ParseFloat(strings.TrimSpace(out.String()), 64)
}

// run executes ffmpeg and removes the partial output on failure.
func (c *FFmpegClipper) run(ctx context.Context, args []string, out string) error {
	full := append([]string{"-y", "-hide_banner", "-loglevel", "error"}, args...)
	cmd := exec.CommandContext(ctx, c.ffmpegPath, full...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		os.Remove(out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return fmt.Errorf("ffmpeg failed: %s", msg)
	}
	return nil
}

func (c *FFmpegClipper) writeConcatList(inputs []string) (string, error) {
	tmp, err := os.CreateTemp("", "stitch-concat-*.txt")
	if err != nil {
		return "", err
	}
	defer tmp.Close()
	for _, input := range inputs {
		abs, err := filepath.Abs(input)
		if err != nil {
			return "", err
		}
		if _, err := fmt.Fprintf(tmp, "file '%s'\n", abs); err != nil {
			return "", err
		}
	}
	return tmp.Name(), nil
}

// ffmpegTime renders seconds as HH:MM:SS.mmm for -ss/-t arguments.
func ffmpegTime(sec float64) string {
	h := int(sec) / 3600
	m := (int(sec) % 3600) / 60
	s := math.Mod(sec, 60)
	return fmt.Sprintf("%02d:%02d:%06.3f", h, m, s)
}
