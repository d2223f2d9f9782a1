package scraper_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/humblenginr/yt_listening_comp/failure"
	"github.com/humblenginr/yt_listening_comp/scraper"
)

type fakeAudioSource struct {
	err   error
	calls int
}

func (f *fakeAudioSource) Download(_ context.Context, videoID, dir string) (*scraper.Audio, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	path := filepath.Join(dir, videoID+".mp3")
	if err := os.WriteFile(path, []byte("full audio"), 0o644); err != nil {
		return nil, err
	}
	return &scraper.Audio{Path: path, Format: scraper.FormatMP3}, nil
}

var _ = Describe("Slicer", func() {
	var (
		runner  *fakeRunner
		source  *fakeAudioSource
		workDir string
		slicer  *scraper.Slicer
		seqs    []scraper.Sequence
	)

	BeforeEach(func() {
		runner = &fakeRunner{handle: func(_ int, _ string, args []string) ([]byte, error) {
			return nil, writeLastArg(args)
		}}
		source = &fakeAudioSource{}
		workDir = GinkgoT().TempDir()
		slicer = &scraper.Slicer{
			Audio:   source,
			Runner:  runner,
			WorkDir: workDir,
			Now:     func() time.Time { return time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC) },
		}
		seqs = []scraper.Sequence{
			{Ordinal: 1, Start: 0, End: 16},
			{Ordinal: 2, Start: 40, End: 56},
		}
	})

	It("cuts one file per sequence and removes the full download", func() {
		set, err := slicer.SliceAudio(context.Background(), "abcdefghijk", seqs)
		Expect(err).ToNot(HaveOccurred())

		Expect(set.Dir).To(Equal(filepath.Join(workDir, "abcdefghijk_20261019_093000")))
		Expect(set.Segments).To(HaveLen(2))
		Expect(set.Segments[0].Name).To(Equal("abcdefghijk_sequence_1.mp3"))
		Expect(set.Segments[1].Name).To(Equal("abcdefghijk_sequence_2.mp3"))
		Expect(set.Segments[1].Sequence.Start).To(Equal(scraper.Timestamp(40)))
		Expect(set.Segments[1].Duration).To(Equal(16 * time.Second))

		for _, s := range set.Segments {
			Expect(s.Path).To(BeAnExistingFile())
		}
		Expect(filepath.Join(set.Dir, "abcdefghijk.mp3")).ToNot(BeAnExistingFile())
		Expect(source.calls).To(Equal(1))

		calls := runner.Calls()
		Expect(calls).To(HaveLen(2))
		Expect(calls[1].name).To(Equal("ffmpeg"))
		Expect(argAfter(calls[1].args, "-ss")).To(Equal("40.000"))
		Expect(argAfter(calls[1].args, "-to")).To(Equal("56.000"))
	})

	It("uses a distinct directory for a second run in the same second", func() {
		first, err := slicer.SliceAudio(context.Background(), "abcdefghijk", seqs)
		Expect(err).ToNot(HaveOccurred())
		second, err := slicer.SliceAudio(context.Background(), "abcdefghijk", seqs)
		Expect(err).ToNot(HaveOccurred())
		Expect(second.Dir).ToNot(Equal(first.Dir))
	})

	It("aborts everything when one cut fails", func() {
		runner.handle = func(n int, _ string, args []string) ([]byte, error) {
			if n == 2 {
				return []byte("Invalid data found when processing input"), errors.New("exit status 1")
			}
			return nil, writeLastArg(args)
		}
		set, err := slicer.SliceAudio(context.Background(), "abcdefghijk", seqs)
		Expect(set).To(BeNil())
		Expect(failure.KindOf(err)).To(Equal(failure.KindUpstream))
		Expect(err.Error()).To(ContainSubstring("segment 2"))

		entries, err := os.ReadDir(workDir)
		Expect(err).ToNot(HaveOccurred())
		Expect(entries).To(BeEmpty())
	})

	It("aborts when the download fails", func() {
		source.err = errors.New("yt-dlp: exit status 1")
		_, err := slicer.SliceAudio(context.Background(), "abcdefghijk", seqs)
		Expect(failure.KindOf(err)).To(Equal(failure.KindUpstream))
		Expect(runner.Calls()).To(BeEmpty())
	})

	It("rejects sequences with inverted bounds", func() {
		_, err := slicer.SliceAudio(context.Background(), "abcdefghijk", []scraper.Sequence{{Start: 20, End: 10}})
		Expect(failure.KindOf(err)).To(Equal(failure.KindUpstream))
	})
})
