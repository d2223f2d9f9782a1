package pipeline

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/mudler/xlog"

	"github.com/humblenginr/yt_listening_comp/dag"
	"github.com/humblenginr/yt_listening_comp/failure"
	"github.com/humblenginr/yt_listening_comp/scraper"
)

type Options struct {
	Language string
	Sequence scraper.SequenceOptions
	// Workers bounds how many segment tasks run at once.
	Workers           int
	TranscribeRetries uint64
	GenerateRetries   uint64
	// per attempt, zero means no bound
	TranscribeTimeout time.Duration
	GenerateTimeout   time.Duration
	NewBackOff        func() backoff.BackOff
}

func DefaultOptions() Options {
	return Options{
		Language:          "fr",
		Sequence:          scraper.DefaultSequenceOptions(),
		Workers:           4,
		TranscribeRetries: 2,
	}
}

// Pipeline turns one video into listening exercises:
// FetchTranscript -> Segment -> SliceAudio -> TranscribeAll -> GenerateAll -> Done.
type Pipeline struct {
	Transcripts scraper.TranscriptSource
	Slicer      AudioSlicer
	Transcriber SegmentTranscriber
	Generator   ContentGenerator
	Options     Options
	Metrics     *Metrics
	Now         func() time.Time
}

// Run processes one locator. Locator, fetch and slice failures abort the
// run and are returned as errors together with the report so far. Segment
// failures never abort: they are listed in Report.Failures. A cancelled ctx
// returns ctx.Err() with every unfinished segment recorded as failed.
func (p *Pipeline) Run(ctx context.Context, locator string) (*Report, error) {
	report := &Report{RunID: uuid.NewString(), StartedAt: p.now()}
	clock := p.now()
	enter := func(s Stage) {
		if report.Stage != StageNotStarted {
			p.Metrics.stageTook(report.Stage, p.now().Sub(clock))
		}
		clock = p.now()
		report.Stage = s
		xlog.Debug("pipeline stage", "run", report.RunID, "stage", s)
	}
	finish := func(err error) (*Report, error) {
		report.FinishedAt = p.now()
		p.Metrics.runDone(report.Stage, err == nil)
		return report, err
	}

	id, err := scraper.ParseVideoID(locator)
	if err != nil {
		return finish(err)
	}
	report.SourceID = id
	report.SourceURL = scraper.WatchURL(id)
	xlog.Info("starting pipeline", "run", report.RunID, "source", id)

	enter(StageFetchTranscript)
	entries, err := p.Transcripts.Fetch(ctx, id, p.Options.Language)
	if err != nil {
		xlog.Error("could not fetch transcript", "source", id, "reason", scraper.FetchReasonOf(err), "error", err)
		return finish(abort(err, "fetch transcript"))
	}
	xlog.Info("fetched transcript", "source", id, "entries", len(entries))

	enter(StageSegment)
	report.Sequences = scraper.SegmentSequences(entries, p.Options.Sequence)
	for _, s := range report.Sequences {
		xlog.Debug("sequence", "n", s.Ordinal, "start", s.Start, "end", s.End, "entries", s.Entries)
	}
	if len(report.Sequences) == 0 {
		// every run was shorter than min_entries, the source yields nothing
		xlog.Warn("no sequences found in transcript", "source", id, "entries", len(entries),
			"min_entries", p.Options.Sequence.MinEntries)
		enter(StageDone)
		return finish(nil)
	}

	enter(StageSliceAudio)
	set, err := p.Slicer.SliceAudio(ctx, id, report.Sequences)
	if err != nil {
		return finish(abort(err, "slice audio"))
	}
	report.Dir = set.Dir
	report.Segments = set.Segments

	enter(StageTranscribeAll)
	p.processSegments(ctx, report, set, enter)

	if err := ctx.Err(); err != nil {
		return finish(err)
	}
	enter(StageDone)
	xlog.Info("pipeline done", "source", id, "exercises", len(report.Exercises), "failures", len(report.Failures))
	return finish(nil)
}

func (p *Pipeline) processSegments(ctx context.Context, report *Report, set *scraper.SegmentSet, enter func(Stage)) {
	out := newCollector(report, p.Metrics, enter)

	var tasks []dag.Task
	for _, seg := range set.Segments {
		tasks = append(tasks,
			TranscribeTask{seg: seg, stt: p.Transcriber, out: out,
				retries: p.Options.TranscribeRetries, timeout: p.Options.TranscribeTimeout},
			GenerateTask{seg: seg, gen: p.Generator, out: out,
				retries: p.Options.GenerateRetries, timeout: p.Options.GenerateTimeout},
		)
	}

	engine := dag.NewEngine(tasks)
	engine.NewBackOff = p.Options.NewBackOff
	workers := p.Options.Workers
	if workers < 1 {
		workers = 1
	}
	if err := engine.Run(ctx, dag.Artifacts{"dir": set.Dir}, workers); err != nil {
		xlog.Debug("segment tasks finished with errors", "error", err)
	}
	out.finish(engine, set.Segments)

	if _, err := scraper.WriteResults(set.Dir, out.transcripts); err != nil {
		xlog.Warn("could not save transcription results", "dir", set.Dir, "error", err)
	}
}

// abort classifies a stage-total failure, upstream unless the cause says
// otherwise.
func abort(err error, op string) error {
	if failure.KindOf(err) != "" {
		return err
	}
	return failure.New(failure.KindUpstream, op, err)
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}
