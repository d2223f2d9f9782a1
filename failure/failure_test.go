package failure_test

import (
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/humblenginr/yt_listening_comp/failure"
)

var _ = Describe("Error", func() {
	It("formats op, kind and cause", func() {
		err := failure.New(failure.KindUpstream, "download audio", errors.New("yt-dlp exited 1"))
		Expect(err.Error()).To(Equal("download audio: upstream_unavailable: yt-dlp exited 1"))
	})

	It("finds the kind through wrapping", func() {
		cause := errors.New("boom")
		err := fmt.Errorf("slice audio: %w", failure.New(failure.KindUpstream, "ffmpeg", cause))
		Expect(failure.KindOf(err)).To(Equal(failure.KindUpstream))
		Expect(failure.Is(err, failure.KindUpstream)).To(BeTrue())
		Expect(errors.Is(err, cause)).To(BeTrue())
	})

	It("reports no kind for plain errors", func() {
		Expect(failure.KindOf(errors.New("plain"))).To(BeEmpty())
		Expect(failure.Is(nil, failure.KindInput)).To(BeFalse())
	})

	It("builds formatted errors", func() {
		err := failure.Newf(failure.KindInput, "parse locator", "no video id in %q", "https://example.com")
		Expect(err.Kind).To(Equal(failure.KindInput))
		Expect(err.Error()).To(ContainSubstring(`no video id in "https://example.com"`))
	})
})
