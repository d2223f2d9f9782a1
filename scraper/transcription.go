package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/mudler/xlog"

	"github.com/humblenginr/yt_listening_comp/failure"
)

// SpeechToText transcribes one audio file with an explicit language hint.
type SpeechToText interface {
	Transcribe(ctx context.Context, audioPath, language string) (string, error)
}

// SegmentTranscript is either the text of one segment or the reason it
// could not be transcribed.
type SegmentTranscript struct {
	Text string
	Err  error
}

func (t SegmentTranscript) OK() bool { return t.Err == nil }

// String renders failures with the "ERROR: " marker used in saved results.
func (t SegmentTranscript) String() string {
	if t.Err != nil {
		return "ERROR: " + t.Err.Error()
	}
	return t.Text
}

type Transcriber struct {
	STT      SpeechToText
	Language string
	// Timeout bounds each speech-to-text call.
	Timeout time.Duration
}

// TranscribeSegment transcribes a single artifact. A path that can never
// be transcribed (relative, missing, empty) is an input_error.
func (t *Transcriber) TranscribeSegment(ctx context.Context, audioPath string) (string, error) {
	const op = "transcribe segment"
	if !filepath.IsAbs(audioPath) {
		return "", failure.Newf(failure.KindInput, op, "audio path: %s has to be absolute path", audioPath)
	}
	if err := validateAudioFile(audioPath); err != nil {
		return "", failure.New(failure.KindInput, op, err)
	}
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}
	text, err := t.STT.Transcribe(ctx, audioPath, t.Language)
	if err != nil {
		return "", fmt.Errorf("transcribe %s: %w", filepath.Base(audioPath), err)
	}
	return strings.TrimSpace(text), nil
}

// TranscribeDir transcribes every segment in dir one after the other. A
// failing file is recorded under its name and the batch carries on.
func (t *Transcriber) TranscribeDir(ctx context.Context, dir string) (map[string]SegmentTranscript, error) {
	names, err := ListSegments(dir)
	if err != nil {
		return nil, err
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("abs dir: %w", err)
	}

	results := make(map[string]SegmentTranscript, len(names))
	for _, name := range names {
		xlog.Info("transcribing segment", "file", name)
		text, err := t.TranscribeSegment(ctx, filepath.Join(absDir, name))
		if err != nil {
			xlog.Error("error transcribing segment", "file", name, "error", err)
			results[name] = SegmentTranscript{Err: err}
			continue
		}
		xlog.Info("transcribed segment", "file", name)
		results[name] = SegmentTranscript{Text: text}
	}
	return results, nil
}

// ListSegments returns the audio artifacts of dir ordered by sequence
// ordinal, then by name.
func ListSegments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read segment dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), outputSegmentExt) {
			names = append(names, e.Name())
		}
	}
	slices.SortFunc(names, func(a, b string) int {
		oa, ob := SegmentOrdinal(a), SegmentOrdinal(b)
		if oa != ob {
			return oa - ob
		}
		return strings.Compare(a, b)
	})
	return names, nil
}

// SegmentOrdinal extracts n from "<source>_sequence_<n>.mp3", 0 if the
// name does not follow that scheme.
func SegmentOrdinal(name string) int {
	i := strings.LastIndex(name, "_sequence_")
	if i < 0 {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSuffix(name[i+len("_sequence_"):], filepath.Ext(name)))
	if err != nil {
		return 0
	}
	return n
}

const transcriptionResultsFile = "transcription_results.json"

// WriteResults saves the transcription map as JSON next to the segments.
func WriteResults(dir string, results map[string]SegmentTranscript) (string, error) {
	out := make(map[string]string, len(results))
	for name, r := range results {
		out[name] = r.String()
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, transcriptionResultsFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write results: %w", err)
	}
	return path, nil
}

func validateAudioFile(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("audio file not found: %s", path)
	}
	if fi.IsDir() {
		return fmt.Errorf("path is not a file: %s", path)
	}
	if fi.Size() == 0 {
		return fmt.Errorf("audio file is empty: %s", path)
	}
	return nil
}
