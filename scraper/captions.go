package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/humblenginr/yt_listening_comp/failure"
)

// TranscriptSource fetches the timed transcript of a video.
type TranscriptSource interface {
	Fetch(ctx context.Context, videoID, language string) ([]TranscriptEntry, error)
}

type FetchReason string

const (
	ReasonDisabled FetchReason = "disabled"
	ReasonNotFound FetchReason = "not_found"
	ReasonOther    FetchReason = "other"
)

type FetchError struct {
	Reason FetchReason
	Detail string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("transcript %s: %s", e.Reason, e.Detail)
}

// FetchReasonOf returns the reason carried by a transcript fetch failure.
func FetchReasonOf(err error) FetchReason {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Reason
	}
	return ReasonOther
}

// YtdlpCaptions reads manual or automatic captions through yt-dlp in json3
// format without downloading the media.
type YtdlpCaptions struct {
	Runner CommandRunner
	Binary string
	// TempDir holds the subtitle file while it is parsed. Empty uses os.TempDir.
	TempDir string
	// Timeout bounds the yt-dlp call. Zero means no limit beyond ctx.
	Timeout time.Duration
}

func (y *YtdlpCaptions) Fetch(ctx context.Context, videoID, language string) ([]TranscriptEntry, error) {
	const op = "fetch transcript"
	if videoID == "" {
		return nil, failure.Newf(failure.KindInput, op, "videoID cannot be empty")
	}

	dir, err := os.MkdirTemp(y.TempDir, "captions-*")
	if err != nil {
		return nil, failure.New(failure.KindUpstream, op, fmt.Errorf("create temp dir: %w", err))
	}
	defer os.RemoveAll(dir)

	args := []string{
		"--skip-download",
		"--write-subs",
		"--write-auto-subs",
		"--sub-format", "json3",
		"--sub-langs", language,
		"--output", filepath.Join(dir, videoID+".%(ext)s"),
		WatchURL(videoID),
	}
	runCtx, cancel := y.attemptContext(ctx)
	defer cancel()
	out, err := y.runner().Run(runCtx, y.binary(), args...)
	if err != nil {
		if cerr := runCtx.Err(); cerr != nil {
			return nil, failure.New(failure.KindUpstream, op, fmt.Errorf("yt-dlp: %w", cerr))
		}
		return nil, failure.New(failure.KindUpstream, op, classifyYtdlp(err, out))
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "*.json3"))
	if len(matches) == 0 {
		return nil, failure.New(failure.KindUpstream, op, &FetchError{
			Reason: ReasonDisabled,
			Detail: fmt.Sprintf("no %q captions for %s", language, videoID),
		})
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		return nil, failure.New(failure.KindUpstream, op, fmt.Errorf("read captions: %w", err))
	}
	entries, err := ParseJSON3(data)
	if err != nil {
		return nil, failure.New(failure.KindUpstream, op, &FetchError{Reason: ReasonOther, Detail: err.Error()})
	}
	return entries, nil
}

func (y *YtdlpCaptions) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if y.Timeout > 0 {
		return context.WithTimeout(ctx, y.Timeout)
	}
	return context.WithCancel(ctx)
}

func (y *YtdlpCaptions) runner() CommandRunner {
	if y.Runner == nil {
		return ExecRunner{}
	}
	return y.Runner
}

func (y *YtdlpCaptions) binary() string {
	if y.Binary == "" {
		return "yt-dlp"
	}
	return y.Binary
}

func classifyYtdlp(err error, out []byte) error {
	msg := string(out)
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "video unavailable"),
		strings.Contains(lower, "private video"),
		strings.Contains(lower, "does not exist"),
		strings.Contains(lower, "http error 404"):
		return &FetchError{Reason: ReasonNotFound, Detail: strings.TrimSpace(msg)}
	case strings.Contains(lower, "subtitles are disabled"),
		strings.Contains(lower, "no subtitles"):
		return &FetchError{Reason: ReasonDisabled, Detail: strings.TrimSpace(msg)}
	}
	return &FetchError{Reason: ReasonOther, Detail: fmt.Sprintf("yt-dlp: %v – %s", err, strings.TrimSpace(msg))}
}

type json3Doc struct {
	Events []struct {
		StartMs    float64 `json:"tStartMs"`
		DurationMs float64 `json:"dDurationMs"`
		Append     int     `json:"aAppend"`
		Segs       []struct {
			UTF8 string `json:"utf8"`
		} `json:"segs"`
	} `json:"events"`
}

// ParseJSON3 turns a YouTube json3 caption document into transcript entries,
// skipping window-only and newline-append events.
func ParseJSON3(data []byte) ([]TranscriptEntry, error) {
	var doc json3Doc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode json3: %w", err)
	}

	entries := make([]TranscriptEntry, 0, len(doc.Events))
	for _, ev := range doc.Events {
		if ev.Append != 0 || len(ev.Segs) == 0 {
			continue
		}
		var b strings.Builder
		for _, s := range ev.Segs {
			b.WriteString(s.UTF8)
		}
		text := strings.Join(strings.Fields(b.String()), " ")
		if text == "" {
			continue
		}
		entries = append(entries, TranscriptEntry{
			Text:     text,
			Start:    ev.StartMs / 1000,
			Duration: ev.DurationMs / 1000,
		})
	}
	return entries, nil
}
