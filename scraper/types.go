package scraper

import "time"

type Format string

const (
	FormatMP3 Format = "mp3"
	FormatM4A Format = "m4a"
	FormatWAV Format = "wav"
)

type Audio struct {
	Path     string        `json:"path"`
	Duration time.Duration `json:"duration"`
	Format   Format        `json:"format"`
}

// TranscriptEntry is one caption line of the source transcript. Offsets are
// in seconds from the start of the source.
type TranscriptEntry struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

func (e TranscriptEntry) End() float64 { return e.Start + e.Duration }

// Sequence is a contiguous run of transcript entries treated as one
// dialogue unit.
type Sequence struct {
	Ordinal int       `json:"ordinal"`
	Start   Timestamp `json:"start"`
	End     Timestamp `json:"end"`
	Entries int       `json:"entries"`
	Text    string    `json:"text,omitempty"`
}

// SegmentFile is one sliced audio artifact on disk.
type SegmentFile struct {
	Name     string   `json:"name"`
	Sequence Sequence `json:"sequence"`
	Audio
}

// SegmentSet is the outcome of slicing one source.
type SegmentSet struct {
	SourceID string        `json:"source_id"`
	Dir      string        `json:"dir"`
	Segments []SegmentFile `json:"segments"`
}
