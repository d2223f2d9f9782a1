package scraper

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Timestamp is a whole-second offset rendered as MM:SS. There is no hour
// field, minutes simply keep counting past 59.
type Timestamp int

// TimestampFromSeconds truncates a fractional offset to whole seconds.
func TimestampFromSeconds(s float64) Timestamp {
	if s < 0 {
		return 0
	}
	return Timestamp(s)
}

func (t Timestamp) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

func (t Timestamp) Milliseconds() int64 { return int64(t) * 1000 }

func (t Timestamp) Duration() time.Duration { return time.Duration(t) * time.Second }

// ParseTimestamp parses an "MM:SS" string.
func ParseTimestamp(s string) (Timestamp, error) {
	mm, ss, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("invalid timestamp format: %q, expected MM:SS", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 {
		return 0, fmt.Errorf("invalid timestamp minutes: %q", s)
	}
	sc, err := strconv.Atoi(ss)
	if err != nil || sc < 0 || sc >= 60 {
		return 0, fmt.Errorf("invalid timestamp seconds: %q", s)
	}
	return Timestamp(m*60 + sc), nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}
