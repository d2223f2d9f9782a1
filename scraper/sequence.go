package scraper

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

type SequenceOptions struct {
	// GapThreshold: a pause longer than this (seconds) between two entry
	// starts closes the running sequence.
	GapThreshold float64 `yaml:"gap_threshold_seconds"`
	// EndBuffer: seconds appended after the last entry so trailing speech
	// is not clipped.
	EndBuffer float64 `yaml:"end_buffer_seconds"`
	// MinEntries: runs with fewer entries are dropped entirely.
	MinEntries int `yaml:"min_entries"`
}

func DefaultSequenceOptions() SequenceOptions {
	return SequenceOptions{GapThreshold: 10, EndBuffer: 10, MinEntries: 2}
}

// Validate rejects options that would let sequences overlap: a run closed
// by a gap ends at last start + EndBuffer, the next run starts more than
// GapThreshold after that last start, so EndBuffer may not exceed
// GapThreshold.
func (o SequenceOptions) Validate() error {
	var errs []error
	if o.GapThreshold < 0 || o.EndBuffer < 0 {
		errs = append(errs, errors.New("sequence gap and buffer must not be negative"))
	}
	if o.EndBuffer > o.GapThreshold {
		errs = append(errs, fmt.Errorf("sequence end_buffer_seconds (%g) must not exceed gap_threshold_seconds (%g)", o.EndBuffer, o.GapThreshold))
	}
	if o.MinEntries < 1 {
		errs = append(errs, fmt.Errorf("sequence min_entries must be at least 1, got %d", o.MinEntries))
	}
	return errors.Join(errs...)
}

// SegmentSequences groups transcript entries into dialogue sequences by
// splitting on pauses longer than opts.GapThreshold.
//
// A run closed by a gap ends at its last entry's start offset plus the
// buffer; the final run ends at the last entry's start+duration plus the
// buffer. Runs shorter than opts.MinEntries are dropped, which means a
// transcript that never reaches MinEntries yields no sequences at all.
func SegmentSequences(entries []TranscriptEntry, opts SequenceOptions) []Sequence {
	if len(entries) == 0 {
		return nil
	}

	sorted := slices.Clone(entries)
	slices.SortStableFunc(sorted, func(a, b TranscriptEntry) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		}
		return 0
	})

	var (
		out       []Sequence
		runStart  = 0
		lastStart = sorted[0].Start
	)

	emit := func(from, to int, end float64) {
		count := to - from
		if count < opts.MinEntries {
			return
		}
		texts := make([]string, 0, count)
		for _, e := range sorted[from:to] {
			if t := strings.TrimSpace(e.Text); t != "" {
				texts = append(texts, t)
			}
		}
		out = append(out, Sequence{
			Ordinal: len(out) + 1,
			Start:   TimestampFromSeconds(sorted[from].Start),
			End:     TimestampFromSeconds(end + opts.EndBuffer),
			Entries: count,
			Text:    strings.Join(texts, " "),
		})
	}

	for i := 1; i < len(sorted); i++ {
		cur := sorted[i]
		if cur.Start-lastStart > opts.GapThreshold {
			emit(runStart, i, lastStart)
			runStart = i
		}
		lastStart = cur.Start
	}
	emit(runStart, len(sorted), sorted[len(sorted)-1].End())

	return out
}
