package scraper

import (
	"regexp"
	"strings"

	"github.com/humblenginr/yt_listening_comp/failure"
)

var (
	videoIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:v=|/embed/|/shorts/|/live/)([0-9A-Za-z_-]{11})`),
		regexp.MustCompile(`youtu\.be/([0-9A-Za-z_-]{11})`),
	}
	bareVideoID = regexp.MustCompile(`^[0-9A-Za-z_-]{11}$`)
)

// ParseVideoID extracts the YouTube video id from a watch/share/embed URL or
// accepts a bare 11-character id.
func ParseVideoID(locator string) (string, error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return "", failure.Newf(failure.KindInput, "parse locator", "locator cannot be empty")
	}
	if bareVideoID.MatchString(locator) {
		return locator, nil
	}
	for _, re := range videoIDPatterns {
		if m := re.FindStringSubmatch(locator); m != nil {
			return m[1], nil
		}
	}
	return "", failure.Newf(failure.KindInput, "parse locator", "no video id in %q", locator)
}

// WatchURL is the canonical URL handed to yt-dlp.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}
