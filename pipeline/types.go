package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/humblenginr/yt_listening_comp/exercise"
	"github.com/humblenginr/yt_listening_comp/failure"
	"github.com/humblenginr/yt_listening_comp/scraper"
)

type Stage int

const (
	StageNotStarted Stage = iota
	StageFetchTranscript
	StageSegment
	StageSliceAudio
	StageTranscribeAll
	StageGenerateAll
	StageDone
)

var stageNames = map[Stage]string{
	StageNotStarted:      "NotStarted",
	StageFetchTranscript: "FetchTranscript",
	StageSegment:         "Segment",
	StageSliceAudio:      "SliceAudio",
	StageTranscribeAll:   "TranscribeAll",
	StageGenerateAll:     "GenerateAll",
	StageDone:            "Done",
}

func (s Stage) String() string {
	if n, ok := stageNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

func (s Stage) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// AudioSlicer cuts the source audio into one file per sequence. It is all
// or nothing.
type AudioSlicer interface {
	SliceAudio(ctx context.Context, sourceID string, sequences []scraper.Sequence) (*scraper.SegmentSet, error)
}

type SegmentTranscriber interface {
	TranscribeSegment(ctx context.Context, audioPath string) (string, error)
}

type ContentGenerator interface {
	Generate(ctx context.Context, transcript string) exercise.Result
}

// GeneratedExercise is one accepted exercise plus what the index needs to
// store it.
type GeneratedExercise struct {
	ID           string             `json:"id"`
	Ordinal      int                `json:"ordinal"`
	AudioPath    string             `json:"audio_path"`
	Sequence     scraper.Sequence   `json:"sequence"`
	Transcript   string             `json:"transcript"`
	DialogueText string             `json:"dialogue_text"`
	Exercise     *exercise.Exercise `json:"exercise"`
	Model        string             `json:"model,omitempty"`
	Usage        *exercise.Usage    `json:"usage,omitempty"`
}

// SegmentFailure records why one segment produced no exercise.
type SegmentFailure struct {
	Ordinal int             `json:"ordinal"`
	Name    string          `json:"name"`
	Stage   Stage           `json:"stage"`
	Kind    failure.Kind    `json:"kind"`
	Detail  string          `json:"detail"`
	Debug   *exercise.Debug `json:"debug,omitempty"`
}

type Report struct {
	RunID      string                `json:"run_id"`
	SourceID   string                `json:"source_id"`
	SourceURL  string                `json:"source_url"`
	Dir        string                `json:"dir,omitempty"`
	Stage      Stage                 `json:"stage"`
	Sequences  []scraper.Sequence    `json:"sequences"`
	Segments   []scraper.SegmentFile `json:"segments,omitempty"`
	Exercises  []GeneratedExercise   `json:"exercises"`
	Failures   []SegmentFailure      `json:"failures"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
}

// ExerciseID is the index id of the exercise built from a sequence.
func ExerciseID(sourceID string, ordinal int) string {
	return fmt.Sprintf("%s_%d", sourceID, ordinal)
}

// Partial returns a partial_failure error when some segments failed, nil
// otherwise.
func (r *Report) Partial() error {
	if len(r.Failures) == 0 {
		return nil
	}
	return failure.Newf(failure.KindPartial, "run "+r.SourceID,
		"%d of %d segments failed", len(r.Failures), len(r.Failures)+len(r.Exercises))
}
