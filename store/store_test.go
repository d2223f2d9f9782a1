package store_test

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/humblenginr/yt_listening_comp/exercise"
	"github.com/humblenginr/yt_listening_comp/pipeline"
	"github.com/humblenginr/yt_listening_comp/scraper"
	"github.com/humblenginr/yt_listening_comp/store"
)

// letterEmbedding is a deterministic stand-in for a real embedding model:
// the normalized a-z letter histogram of the text.
func letterEmbedding(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, 26)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			v[r-'a']++
		}
	}
	var sum float64
	for _, x := range v {
		sum += float64(x * x)
	}
	norm := float32(math.Sqrt(sum))
	if norm == 0 {
		v[0], norm = 1, 1
	}
	for i := range v {
		v[i] /= norm
	}
	return v, nil
}

func sampleExercise(a, b string, topics ...string) *exercise.Exercise {
	return &exercise.Exercise{
		Dialogue:           []exercise.Turn{{Speaker: "A", Text: a}, {Speaker: "B", Text: b}},
		Question:           "Q",
		Answers:            []string{"a", "b", "c", "d"},
		CorrectAnswerIndex: 1,
		Topics:             topics,
		DifficultyLevel:    exercise.LevelB1,
	}
}

var _ = Describe("Store", func() {
	var (
		dataDir string
		runDir  string
		report  *pipeline.Report
		s       *store.Store
	)

	BeforeEach(func() {
		dataDir = GinkgoT().TempDir()
		runDir = GinkgoT().TempDir()
		report = &pipeline.Report{
			RunID:     "run-1",
			SourceID:  "abcdefghijk",
			SourceURL: "https://www.youtube.com/watch?v=abcdefghijk",
			Dir:       runDir,
		}
		for n, ex := range []*exercise.Exercise{
			sampleExercise("aaaa baba", "abba aaa", "greetings", "family"),
			sampleExercise("zzzz yzzy", "zyzzy zz", "travel", "trains"),
		} {
			name := filepath.Join(runDir, "abcdefghijk_sequence_"+string(rune('1'+n))+".mp3")
			Expect(os.WriteFile(name, []byte("mp3"), 0o644)).To(Succeed())
			report.Segments = append(report.Segments, scraper.SegmentFile{
				Name:  filepath.Base(name),
				Audio: scraper.Audio{Path: name, Format: scraper.FormatMP3},
			})
			report.Exercises = append(report.Exercises, pipeline.GeneratedExercise{
				ID:           pipeline.ExerciseID("abcdefghijk", n+1),
				Ordinal:      n + 1,
				AudioPath:    name,
				DialogueText: ex.DialogueText(),
				Exercise:     ex,
			})
		}

		var err error
		s, err = store.Open(dataDir, letterEmbedding)
		Expect(err).ToNot(HaveOccurred())
		s.Now = func() time.Time { return time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC) }
	})

	It("archives audio and metadata", func() {
		saved, err := s.SaveRun(context.Background(), report)
		Expect(err).ToNot(HaveOccurred())
		Expect(saved.Timestamp).To(Equal("20261019_093000"))

		archived := filepath.Join(dataDir, "audio", "abcdefghijk_20261019_093000", "abcdefghijk_sequence_1.mp3")
		Expect(archived).To(BeARegularFile())
		Expect(saved.AudioFiles).To(HaveKeyWithValue("abcdefghijk_sequence_1.mp3", archived))
		Expect(filepath.Join(runDir, "abcdefghijk_sequence_1.mp3")).ToNot(BeAnExistingFile())

		for _, ex := range report.Exercises {
			_, err := os.Stat(ex.AudioPath)
			Expect(err).ToNot(HaveOccurred())
			Expect(filepath.Dir(ex.AudioPath)).To(Equal(filepath.Dir(archived)))
		}
		Expect(report.Segments[0].Path).To(Equal(archived))

		data, err := os.ReadFile(filepath.Join(dataDir, "metadata", "abcdefghijk_20261019_093000.json"))
		Expect(err).ToNot(HaveOccurred())
		var meta map[string]any
		Expect(json.Unmarshal(data, &meta)).To(Succeed())
		Expect(meta).To(HaveKeyWithValue("youtube_url", report.SourceURL))
		Expect(meta).To(HaveKeyWithValue("exercises", 2.0))
	})

	It("finds exercises by topic", func() {
		_, err := s.SaveRun(context.Background(), report)
		Expect(err).ToNot(HaveOccurred())
		Expect(s.Count()).To(Equal(2))

		hits, err := s.QueryByTopic(context.Background(), "zzz", 10)
		Expect(err).ToNot(HaveOccurred())
		Expect(hits).To(HaveLen(2))
		Expect(hits[0].ID).To(Equal("abcdefghijk_2"))
		Expect(hits[0].Ordinal).To(Equal(2))
		Expect(hits[0].Exercise.Topics).To(Equal([]string{"travel", "trains"}))
		Expect(hits[0].Exercise.Dialogue[0]).To(Equal(exercise.Turn{Speaker: "A", Text: "zzzz yzzy"}))
		Expect(hits[0].AudioFile).To(BeARegularFile())
		Expect(hits[0].Similarity).To(BeNumerically(">", hits[1].Similarity))

		hits, err = s.QueryByTopic(context.Background(), "aaa", 1)
		Expect(err).ToNot(HaveOccurred())
		Expect(hits).To(HaveLen(1))
		Expect(hits[0].ID).To(Equal("abcdefghijk_1"))
	})

	It("returns nothing from an empty index", func() {
		hits, err := s.QueryByTopic(context.Background(), "greetings", 5)
		Expect(err).ToNot(HaveOccurred())
		Expect(hits).To(BeEmpty())
	})

	It("keeps the index across reopen and replaces re-saved ids", func() {
		_, err := s.SaveRun(context.Background(), report)
		Expect(err).ToNot(HaveOccurred())

		reopened, err := store.Open(dataDir, letterEmbedding)
		Expect(err).ToNot(HaveOccurred())
		Expect(reopened.Count()).To(Equal(2))

		report.Dir = ""
		_, err = reopened.SaveRun(context.Background(), report)
		Expect(err).ToNot(HaveOccurred())
		Expect(reopened.Count()).To(Equal(2))
	})

	It("refuses a report without source", func() {
		_, err := s.SaveRun(context.Background(), &pipeline.Report{})
		Expect(err).To(HaveOccurred())
	})
})
