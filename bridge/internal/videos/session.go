// Package videos holds the inspection session: the list of videos the
// discovery layer found on the current page and the one the user has
// picked. The discovery layer itself (DOM scraping, thumbnails) lives
// outside this process; it only submits records here.
package videos

import (
	"fmt"
	"math"
	"sync"

	"github.com/smartvideo/ytdlp-bridge/bridge/internal/formats"
)

// FallbackDuration is assumed when a video's real length is unknown
// until a probe refines it.
const FallbackDuration float64 = 7200

// Page identifies the page the discovery layer scanned.
type Page struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Video is one record supplied by the discovery layer.
type Video struct {
	Title     string  `json:"title"`
	Src       string  `json:"src,omitempty"`
	PageURL   string  `json:"pageUrl,omitempty"`
	Duration  float64 `json:"duration,omitempty"`
	Thumbnail string  `json:"thumbnail,omitempty"`
	IsPageURL bool    `json:"isPageUrl,omitempty"`
}

// Selected is the video under inspection. KnownDuration is refined by
// probe results; Formats is replaced wholesale when a probe arrives.
type Selected struct {
	Video
	KnownDuration float64              `json:"knownDuration"`
	Formats       []formats.Descriptor `json:"formats,omitempty"`
}

// Session is the mutable inspection state. Selecting a new video
// replaces the previous selection entirely.
type Session struct {
	mu       sync.RWMutex
	page     Page
	videos   []Video
	selected *Selected
}

func NewSession() *Session {
	return &Session{}
}

// SetDiscovered replaces the discovered list. When the discovery layer
// found nothing but the page itself has a URL, a single page-URL entry
// is offered so the helper can still resolve formats from it. Any
// previous selection is dropped.
func (s *Session) SetDiscovered(page Page, vids []Video) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(vids) == 0 && page.URL != "" {
		title := page.Title
		if title == "" {
			title = "This page (native helper)"
		}
		vids = []Video{{
			Title:     title,
			PageURL:   page.URL,
			Thumbnail: ThumbnailForURL(page.URL),
			IsPageURL: true,
		}}
	}

	s.page = page
	s.videos = vids
	s.selected = nil
}

func (s *Session) Page() Page {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.page
}

func (s *Session) Videos() []Video {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Video, len(s.videos))
	copy(out, s.videos)
	return out
}

// Select picks a video from the discovered list by index.
func (s *Session) Select(index int) (Selected, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.videos) {
		return Selected{}, fmt.Errorf("video index %d out of range", index)
	}

	v := s.videos[index]
	sel := &Selected{
		Video:         v,
		KnownDuration: knownDuration(v.Duration),
	}
	s.selected = sel

	return *sel, nil
}

// Selected returns a copy of the current selection.
func (s *Session) Selected() (Selected, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.selected == nil {
		return Selected{}, false
	}
	return cloneSelected(s.selected), true
}

// ApplyProbe refines the selection with probe results: a real duration
// supersedes the fallback, title and thumbnail fill gaps only, and a
// non-empty catalog replaces the previous one.
func (s *Session) ApplyProbe(duration float64, title, thumbnail string, catalog []formats.Descriptor) (Selected, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selected == nil {
		return Selected{}, false
	}

	if duration > 0 && !math.IsInf(duration, 0) {
		s.selected.Duration = duration
		s.selected.KnownDuration = duration
	}
	if title != "" && s.selected.Title == "" {
		s.selected.Title = title
	}
	if thumbnail != "" && s.selected.Thumbnail == "" {
		s.selected.Thumbnail = thumbnail
	}
	if len(catalog) > 0 {
		s.selected.Formats = catalog
	}

	return cloneSelected(s.selected), true
}

func knownDuration(d float64) float64 {
	if d > 0 && !math.IsInf(d, 0) && !math.IsNaN(d) {
		return d
	}
	return FallbackDuration
}

func cloneSelected(sel *Selected) Selected {
	out := *sel
	out.Formats = make([]formats.Descriptor, len(sel.Formats))
	copy(out.Formats, sel.Formats)
	return out
}
