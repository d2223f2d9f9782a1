package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/humblenginr/yt_listening_comp/config"
)

var _ = Describe("Config", func() {
	It("defaults without a file", func() {
		cfg, err := config.Load("")
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg).To(Equal(config.Default()))
		Expect(cfg.Language).To(Equal("fr"))
		Expect(cfg.Sequence.GapThreshold).To(Equal(10.0))
		Expect(cfg.Sequence.MinEntries).To(Equal(2))
		Expect(cfg.Retries.Transcription).To(Equal(uint64(2)))
		Expect(cfg.Retries.Generation).To(BeZero())
		Expect(cfg.OpenAI.MaxTokens).To(Equal(4000))
		Expect(cfg.Timeouts.Fetch).To(Equal(time.Minute))
	})

	It("merges a file onto the defaults", func() {
		path := filepath.Join(GinkgoT().TempDir(), "config.yaml")
		Expect(os.WriteFile(path, []byte(`
language: es
workers: 8
sequence:
  gap_threshold_seconds: 5
timeouts:
  generation: 45s
retries:
  generation: 1
openai:
  chat_model: gpt-4o-mini
`), 0o644)).To(Succeed())

		cfg, err := config.Load(path)
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.Language).To(Equal("es"))
		Expect(cfg.Workers).To(Equal(8))
		Expect(cfg.Sequence.GapThreshold).To(Equal(5.0))
		Expect(cfg.Sequence.EndBuffer).To(Equal(10.0))
		Expect(cfg.Sequence.MinEntries).To(Equal(2))
		Expect(cfg.Timeouts.Generation).To(Equal(45 * time.Second))
		Expect(cfg.Timeouts.Download).To(Equal(10 * time.Minute))
		Expect(cfg.Retries.Generation).To(Equal(uint64(1)))
		Expect(cfg.OpenAI.ChatModel).To(Equal("gpt-4o-mini"))
		Expect(cfg.OpenAI.TranscriptionModel).To(Equal("whisper-1"))
	})

	It("accepts an empty file", func() {
		cfg, err := config.Parse(nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg).To(Equal(config.Default()))
	})

	It("rejects unknown keys", func() {
		_, err := config.Parse([]byte("wrokers: 3\n"))
		Expect(err).To(MatchError(ContainSubstring("wrokers")))
	})

	It("rejects a missing file", func() {
		_, err := config.Load(filepath.Join(GinkgoT().TempDir(), "nope.yaml"))
		Expect(err).To(HaveOccurred())
	})

	It("rejects an end buffer longer than the gap threshold", func() {
		_, err := config.Parse([]byte("sequence: {gap_threshold_seconds: 5, end_buffer_seconds: 20}\n"))
		Expect(err).To(MatchError(ContainSubstring("end_buffer_seconds")))
	})

	It("reads the fetch timeout", func() {
		cfg, err := config.Parse([]byte("timeouts: {fetch: 90s}\n"))
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.Timeouts.Fetch).To(Equal(90 * time.Second))
	})

	It("validates", func() {
		cfg := config.Default()
		cfg.Workers = 0
		cfg.Sequence.MinEntries = 0
		err := cfg.Validate()
		Expect(err).To(MatchError(ContainSubstring("workers")))
		Expect(err).To(MatchError(ContainSubstring("min_entries")))
	})
})
