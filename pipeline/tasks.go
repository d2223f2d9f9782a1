package pipeline

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mudler/xlog"

	"github.com/humblenginr/yt_listening_comp/dag"
	"github.com/humblenginr/yt_listening_comp/exercise"
	"github.com/humblenginr/yt_listening_comp/failure"
	"github.com/humblenginr/yt_listening_comp/scraper"
)

func transcribeID(n int) string  { return fmt.Sprintf("transcribe:%d", n) }
func generateID(n int) string    { return fmt.Sprintf("generate:%d", n) }
func transcriptKey(n int) string { return fmt.Sprintf("transcript:%d", n) }

// collector accumulates segment outcomes from concurrent tasks.
type collector struct {
	mu          sync.Mutex
	report      *Report
	transcripts map[string]scraper.SegmentTranscript
	results     map[int]exercise.Result
	metrics     *Metrics
	// enter moves the report to the next stage and times the previous one.
	enter       func(Stage)
}

func newCollector(r *Report, m *Metrics, enter func(Stage)) *collector {
	return &collector{
		enter:       enter,
		report:      r,
		transcripts: make(map[string]scraper.SegmentTranscript),
		results:     make(map[int]exercise.Result),
		metrics:     m,
	}
}

func (c *collector) transcribed(name string, t scraper.SegmentTranscript) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transcripts[name] = t
}

// generating switches to GenerateAll when the first generation starts, so
// TranscribeAll is timed up to that point.
func (c *collector) generating() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.report.Stage < StageGenerateAll {
		c.enter(StageGenerateAll)
	}
}

func (c *collector) generated(seg scraper.SegmentFile, transcript string, res exercise.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[seg.Sequence.Ordinal] = res
	c.metrics.observeUsage(res.Debug.Usage)
	if !res.Success {
		return
	}
	c.report.Exercises = append(c.report.Exercises, GeneratedExercise{
		ID:           ExerciseID(c.report.SourceID, seg.Sequence.Ordinal),
		Ordinal:      seg.Sequence.Ordinal,
		AudioPath:    seg.Path,
		Sequence:     seg.Sequence,
		Transcript:   transcript,
		DialogueText: res.Content.DialogueText(),
		Exercise:     res.Content,
		Model:        res.Debug.Model,
		Usage:        res.Debug.Usage,
	})
}

// finish turns every segment without an exercise into a SegmentFailure and
// orders both lists by ordinal.
func (c *collector) finish(engine *dag.Engine, segments []scraper.SegmentFile) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, seg := range segments {
		n := seg.Sequence.Ordinal
		if engine.Succeeded(generateID(n)) {
			c.metrics.segmentDone(StageGenerateAll, true)
			continue
		}
		f := SegmentFailure{Ordinal: n, Name: seg.Name}
		if !engine.Succeeded(transcribeID(n)) {
			err := engine.Err(transcribeID(n))
			f.Stage = StageTranscribeAll
			f.Kind = kindOr(err, failure.KindUpstream)
			f.Detail = errString(err)
		} else {
			f.Stage = StageGenerateAll
			if res, ok := c.results[n]; ok {
				debug := res.Debug
				f.Kind = res.Kind
				f.Detail = res.Error
				f.Debug = &debug
			} else {
				// never started, cut off by cancellation
				err := engine.Err(generateID(n))
				f.Kind = kindOr(err, failure.KindPartial)
				f.Detail = errString(err)
			}
		}
		c.metrics.segmentDone(f.Stage, false)
		xlog.Warn("segment failed", "ordinal", n, "stage", f.Stage, "kind", f.Kind, "detail", f.Detail)
		c.report.Failures = append(c.report.Failures, f)
	}

	slices.SortFunc(c.report.Exercises, func(a, b GeneratedExercise) int { return a.Ordinal - b.Ordinal })
	slices.SortFunc(c.report.Failures, func(a, b SegmentFailure) int { return a.Ordinal - b.Ordinal })
}

type TranscribeTask struct {
	seg     scraper.SegmentFile
	stt     SegmentTranscriber
	out     *collector
	retries uint64
	timeout time.Duration
}

func (t TranscribeTask) ID() string             { return transcribeID(t.seg.Sequence.Ordinal) }
func (t TranscribeTask) Deps() []string         { return nil }
func (t TranscribeTask) MaxRetries() uint64     { return t.retries }
func (t TranscribeTask) Timeout() time.Duration { return t.timeout }
func (t TranscribeTask) Run(ctx context.Context, _ dag.Artifacts) (dag.Artifacts, error) {
	xlog.Info("transcribing segment", "file", t.seg.Name)
	text, err := t.stt.TranscribeSegment(ctx, t.seg.Path)
	if err != nil {
		xlog.Error("error transcribing segment", "file", t.seg.Name, "error", err)
		t.out.transcribed(t.seg.Name, scraper.SegmentTranscript{Err: err})
		if failure.Is(err, failure.KindInput) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	t.out.transcribed(t.seg.Name, scraper.SegmentTranscript{Text: text})
	return dag.Artifacts{transcriptKey(t.seg.Sequence.Ordinal): text}, nil
}

type GenerateTask struct {
	seg     scraper.SegmentFile
	gen     ContentGenerator
	out     *collector
	retries uint64
	timeout time.Duration
}

func (t GenerateTask) ID() string             { return generateID(t.seg.Sequence.Ordinal) }
func (t GenerateTask) Deps() []string         { return []string{transcribeID(t.seg.Sequence.Ordinal)} }
func (t GenerateTask) MaxRetries() uint64     { return t.retries }
func (t GenerateTask) Timeout() time.Duration { return t.timeout }
func (t GenerateTask) Run(ctx context.Context, in dag.Artifacts) (dag.Artifacts, error) {
	t.out.generating()
	transcript := in[transcriptKey(t.seg.Sequence.Ordinal)]
	xlog.Info("generating exercise", "ordinal", t.seg.Sequence.Ordinal)

	res := t.gen.Generate(ctx, transcript)
	t.out.generated(t.seg, transcript, res)
	if err := res.Err(); err != nil {
		if res.Kind == failure.KindInput {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	return nil, nil
}

func kindOr(err error, fallback failure.Kind) failure.Kind {
	if k := failure.KindOf(err); k != "" {
		return k
	}
	return fallback
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
