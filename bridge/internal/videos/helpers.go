package videos

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strings"
)

var unsafeFilenameChars = regexp.MustCompile(`[/\\?%*:|"<>]`)

// SanitizeFilename replaces characters that are unsafe in filenames on
// common filesystems.
func SanitizeFilename(name string) string {
	return unsafeFilenameChars.ReplaceAllString(name, "_")
}

// FormatTime renders a duration in seconds as m:ss or h:mm:ss.
func FormatTime(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return "0:00"
	}

	s := int(seconds)
	h := s / 3600
	m := (s % 3600) / 60
	sec := s % 60

	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%d:%02d", m, sec)
}

// ThumbnailForURL derives a thumbnail URL for known hosts, currently
// YouTube watch pages and youtu.be short links. Returns "" when none
// can be derived.
func ThumbnailForURL(raw string) string {
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	host := strings.TrimPrefix(u.Hostname(), "www.")

	switch host {
	case "youtube.com", "m.youtube.com":
		if id := u.Query().Get("v"); id != "" {
			return "https://i.ytimg.com/vi/" + id + "/hqdefault.jpg"
		}
	case "youtu.be":
		for _, part := range strings.Split(u.Path, "/") {
			if part != "" {
				return "https://i.ytimg.com/vi/" + part + "/hqdefault.jpg"
			}
		}
	}

	return ""
}

// ShortenPath reduces a saved-file path to a displayable folder label.
func ShortenPath(path string) string {
	if path == "" {
		return "Downloads"
	}

	normalized := strings.ReplaceAll(path, `\`, "/")
	parts := strings.Split(normalized, "/")
	if len(parts) >= 2 {
		folder := parts[len(parts)-2]
		if strings.EqualFold(folder, "downloads") || folder == "" {
			return "Downloads"
		}
		return folder
	}

	return "Downloads"
}
