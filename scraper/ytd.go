package scraper

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mudler/xlog"
)

// AudioSource downloads the full audio track of a video into dir.
type AudioSource interface {
	Download(ctx context.Context, videoID, dir string) (*Audio, error)
}

// Ytdlp downloads the best‑quality audio track of a YouTube video and
// converts it to MP3 (via yt‑dlp + ffmpeg).
type Ytdlp struct {
	Runner     CommandRunner
	Binary     string
	MaxRetries uint64
	// Timeout bounds a single download attempt. Zero means no limit
	// beyond ctx.
	Timeout time.Duration
	// NewBackOff overrides the retry schedule, tests use a constant one.
	NewBackOff func() backoff.BackOff
}

// Download is idempotent: if <dir>/<videoID>.mp3 already exists it only
// calculates the duration and returns.
func (y *Ytdlp) Download(ctx context.Context, videoID, dir string) (*Audio, error) {
	if videoID == "" {
		return nil, errors.New("videoID cannot be empty")
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("make abs path: %w", err)
	}
	if err = os.MkdirAll(absDir, fs.ModePerm); err != nil {
		return nil, fmt.Errorf("mkdir output dir: %w", err)
	}

	// Fast‑path: file already present.
	if path := findAudioFile(absDir, videoID); path != "" {
		return describeMP3(path), nil
	}

	args := []string{
		"--format", "bestaudio/best",
		"--extract-audio",
		"--audio-format", "mp3",
		"--audio-quality", "0",
		"--no-playlist",
		"--output", filepath.Join(absDir, videoID+".%(ext)s"),
		WatchURL(videoID),
	}

	operation := func() error {
		attemptCtx, cancel := y.attemptContext(ctx)
		defer cancel()

		out, err := y.runner().Run(attemptCtx, y.binary(), args...)
		if err != nil {
			ferr := classifyYtdlp(err, out)
			if FetchReasonOf(ferr) == ReasonNotFound {
				return backoff.Permanent(ferr)
			}
			xlog.Warn("audio download attempt failed", "video", videoID, "error", ferr)
			return ferr
		}
		return nil
	}

	b := y.backOff()
	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, y.MaxRetries), ctx)); err != nil {
		return nil, fmt.Errorf("yt-dlp: %w", err)
	}

	path := findAudioFile(absDir, videoID)
	if path == "" {
		return nil, fmt.Errorf("audio file for %s not found in %s", videoID, absDir)
	}
	return describeMP3(path), nil
}

func (y *Ytdlp) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if y.Timeout > 0 {
		return context.WithTimeout(ctx, y.Timeout)
	}
	return context.WithCancel(ctx)
}

func (y *Ytdlp) backOff() backoff.BackOff {
	if y.NewBackOff != nil {
		return y.NewBackOff()
	}
	return backoff.NewExponentialBackOff()
}

func (y *Ytdlp) runner() CommandRunner {
	if y.Runner == nil {
		return ExecRunner{}
	}
	return y.Runner
}

func (y *Ytdlp) binary() string {
	if y.Binary == "" {
		return "yt-dlp"
	}
	return y.Binary
}

// findAudioFile locates the downloaded track; yt-dlp sometimes leaves a
// doubled extension such as <id>.mp3.mp3.
func findAudioFile(dir, videoID string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.Contains(name, "_sequence_") {
			continue
		}
		if strings.HasPrefix(name, videoID) && strings.HasSuffix(name, ".mp3") {
			return filepath.Join(dir, name)
		}
	}
	return ""
}

func describeMP3(path string) *Audio {
	dur, err := Mp3DurationByFrames(path)
	if err != nil {
		xlog.Debug("could not measure mp3 duration", "path", path, "error", err)
	}
	return &Audio{Path: path, Duration: dur, Format: FormatMP3}
}
