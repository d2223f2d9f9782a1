package scraper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mudler/xlog"

	"github.com/humblenginr/yt_listening_comp/failure"
)

const (
	// outputSegmentFormat: The audio format for the output segments
	outputSegmentFormat = FormatMP3
	outputSegmentExt    = ".mp3"
	runDirTimeLayout    = "20060102_150405"
)

// Slicer downloads a source once and cuts it into one file per sequence.
type Slicer struct {
	Audio   AudioSource
	Runner  CommandRunner
	FFmpeg  string
	WorkDir string
	// Timeout bounds each ffmpeg invocation.
	Timeout time.Duration
	Now     func() time.Time
}

// SegmentFileName is the deterministic artifact name of the n-th (1-based)
// sequence of a source.
func SegmentFileName(sourceID string, ordinal int) string {
	return fmt.Sprintf("%s_sequence_%d%s", sourceID, ordinal, outputSegmentExt)
}

// SliceAudio is all-or-nothing: any download, decode or ffmpeg failure
// removes the run directory and returns an upstream failure. On success
// the full-length download is deleted and only the segments remain.
func (s *Slicer) SliceAudio(ctx context.Context, sourceID string, sequences []Sequence) (*SegmentSet, error) {
	const op = "slice audio"
	if s.Audio == nil {
		return nil, failure.Newf(failure.KindUpstream, op, "no audio source configured")
	}

	runDir, err := s.makeRunDir(sourceID)
	if err != nil {
		return nil, failure.New(failure.KindUpstream, op, err)
	}
	xlog.Info("created output folder", "dir", runDir)

	set, err := s.slice(ctx, sourceID, runDir, sequences)
	if err != nil {
		xlog.Error("audio segmentation failed", "source", sourceID, "dir", runDir, "error", err)
		if rmErr := os.RemoveAll(runDir); rmErr != nil {
			xlog.Warn("could not remove run directory", "dir", runDir, "error", rmErr)
		}
		return nil, failure.New(failure.KindUpstream, op, err)
	}
	return set, nil
}

func (s *Slicer) slice(ctx context.Context, sourceID, runDir string, sequences []Sequence) (*SegmentSet, error) {
	full, err := s.Audio.Download(ctx, sourceID, runDir)
	if err != nil {
		return nil, fmt.Errorf("download audio: %w", err)
	}
	if _, err := os.Stat(full.Path); err != nil {
		return nil, fmt.Errorf("audio file not found: %w", err)
	}
	xlog.Info("splitting audio file", "path", full.Path, "sequences", len(sequences))

	set := &SegmentSet{SourceID: sourceID, Dir: runDir}
	for i, seq := range sequences {
		ordinal := i + 1
		if seq.End <= seq.Start {
			return nil, fmt.Errorf("sequence %d has invalid bounds %s -> %s", ordinal, seq.Start, seq.End)
		}
		name := SegmentFileName(sourceID, ordinal)
		outputPath := filepath.Join(runDir, name)

		if err := s.cut(ctx, full.Path, outputPath, seq); err != nil {
			return nil, fmt.Errorf("segment %d (%s -> %s): %w", ordinal, seq.Start, seq.End, err)
		}
		if _, err := os.Stat(outputPath); err != nil {
			return nil, fmt.Errorf("segment %d not written: %w", ordinal, err)
		}

		dur, err := Mp3DurationByFrames(outputPath)
		if err != nil || dur == 0 {
			dur = seq.End.Duration() - seq.Start.Duration()
		}
		seq.Ordinal = ordinal
		set.Segments = append(set.Segments, SegmentFile{
			Name:     name,
			Sequence: seq,
			Audio:    Audio{Path: outputPath, Duration: dur, Format: outputSegmentFormat},
		})
	}

	// Clean up the full audio file
	if err := os.Remove(full.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove full audio: %w", err)
	}

	xlog.Info("split audio into segments", "count", len(set.Segments), "dir", runDir)
	return set, nil
}

// cut extracts [start, end) into outputPath. -ss after -i gives a sample
// accurate seek at the cost of decoding from the beginning.
func (s *Slicer) cut(ctx context.Context, input, outputPath string, seq Sequence) error {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", input,
		"-ss", msToSeconds(seq.Start.Milliseconds()),
		"-to", msToSeconds(seq.End.Milliseconds()),
		"-vn",
		"-acodec", "libmp3lame",
		"-q:a", "2",
		outputPath,
	}
	runner := s.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	bin := s.FFmpeg
	if bin == "" {
		bin = "ffmpeg"
	}
	if out, err := runner.Run(ctx, bin, args...); err != nil {
		return fmt.Errorf("ffmpeg: %w – %s", err, out)
	}
	return nil
}

func (s *Slicer) makeRunDir(sourceID string) (string, error) {
	root := s.WorkDir
	if root == "" {
		root = "segmented_audio"
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("abs work dir: %w", err)
	}
	if err := os.MkdirAll(absRoot, 0o755); err != nil {
		return "", fmt.Errorf("mkdir work dir: %w", err)
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	base := fmt.Sprintf("%s_%s", sourceID, now().Format(runDirTimeLayout))
	dir := filepath.Join(absRoot, base)
	err = os.Mkdir(dir, 0o755)
	if errors.Is(err, os.ErrExist) {
		// two runs of the same source within one second
		return os.MkdirTemp(absRoot, base+"_*")
	}
	if err != nil {
		return "", fmt.Errorf("mkdir run dir: %w", err)
	}
	return dir, nil
}

func msToSeconds(ms int64) string {
	return fmt.Sprintf("%d.%03d", ms/1000, ms%1000)
}
