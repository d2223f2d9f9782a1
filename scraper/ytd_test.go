package scraper_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/humblenginr/yt_listening_comp/scraper"
)

var _ = Describe("Ytdlp", func() {
	var (
		runner *fakeRunner
		dir    string
		y      *scraper.Ytdlp
	)

	BeforeEach(func() {
		runner = &fakeRunner{}
		dir = GinkgoT().TempDir()
		y = &scraper.Ytdlp{
			Runner:     runner,
			MaxRetries: 2,
			NewBackOff: func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) },
		}
	})

	It("downloads the audio track as mp3", func() {
		runner.handle = func(_ int, _ string, args []string) ([]byte, error) {
			return nil, writeOutput(args, "mp3", []byte("full audio"))
		}
		a, err := y.Download(context.Background(), "_O3AMgo5lOQ", dir)
		Expect(err).ToNot(HaveOccurred())
		Expect(a.Path).To(Equal(filepath.Join(dir, "_O3AMgo5lOQ.mp3")))
		Expect(a.Format).To(Equal(scraper.FormatMP3))
		Expect(argAfter(runner.Calls()[0].args, "--audio-format")).To(Equal("mp3"))
	})

	It("skips the download when the file is already there", func() {
		Expect(os.WriteFile(filepath.Join(dir, "_O3AMgo5lOQ.mp3.mp3"), []byte("x"), 0o644)).To(Succeed())
		a, err := y.Download(context.Background(), "_O3AMgo5lOQ", dir)
		Expect(err).ToNot(HaveOccurred())
		Expect(filepath.Base(a.Path)).To(Equal("_O3AMgo5lOQ.mp3.mp3"))
		Expect(runner.Calls()).To(BeEmpty())
	})

	It("retries transient failures", func() {
		runner.handle = func(n int, _ string, args []string) ([]byte, error) {
			if n == 1 {
				return []byte("ERROR: connection reset"), errors.New("exit status 1")
			}
			return nil, writeOutput(args, "mp3", []byte("full audio"))
		}
		_, err := y.Download(context.Background(), "_O3AMgo5lOQ", dir)
		Expect(err).ToNot(HaveOccurred())
		Expect(runner.Calls()).To(HaveLen(2))
	})

	It("does not retry a missing video", func() {
		runner.handle = func(int, string, []string) ([]byte, error) {
			return []byte("ERROR: Private video"), errors.New("exit status 1")
		}
		_, err := y.Download(context.Background(), "_O3AMgo5lOQ", dir)
		Expect(err).To(HaveOccurred())
		Expect(scraper.FetchReasonOf(err)).To(Equal(scraper.ReasonNotFound))
		Expect(runner.Calls()).To(HaveLen(1))
	})

	It("gives up after MaxRetries", func() {
		runner.handle = func(int, string, []string) ([]byte, error) {
			return []byte("ERROR: timeout"), errors.New("exit status 1")
		}
		_, err := y.Download(context.Background(), "_O3AMgo5lOQ", dir)
		Expect(err).To(HaveOccurred())
		Expect(runner.Calls()).To(HaveLen(3))
	})
})
