package formats

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// StreamType selects which kind of stream the user wants.
type StreamType string

const (
	StreamAudio      StreamType = "a"
	StreamVideo      StreamType = "v"
	StreamAudioVideo StreamType = "av"
)

// ParseStreamType normalizes user input, defaulting to audio+video.
func ParseStreamType(s string) StreamType {
	switch StreamType(s) {
	case StreamAudio, StreamVideo:
		return StreamType(s)
	default:
		return StreamAudioVideo
	}
}

// Descriptor is one entry of the helper's reported format catalog.
// Field names follow the yt-dlp JSON schema; any field may be absent.
type Descriptor struct {
	FormatID   string  `json:"format_id"`
	Ext        string  `json:"ext,omitempty"`
	Height     int     `json:"height,omitempty"`
	Width      int     `json:"width,omitempty"`
	TBR        float64 `json:"tbr,omitempty"`
	FormatNote string  `json:"format_note,omitempty"`
	FPS        float64 `json:"fps,omitempty"`
	VCodec     string  `json:"vcodec,omitempty"`
	ACodec     string  `json:"acodec,omitempty"`
}

// Option is one selectable entry of the rendered quality list.
type Option struct {
	Value    string `json:"value"`
	Label    string `json:"label"`
	Disabled bool   `json:"disabled,omitempty"`
}

// FormatValuePrefix marks an option bound to a concrete catalog format
// id, as opposed to the symbolic presets ("best", "720p", ...).
const FormatValuePrefix = "format:"

const labelSeparator = " · "

// containers treated as audio files when a descriptor still carries a
// video codec field
var audioExtensions = []string{"m4a", "mp3", "webm", "opus", "ogg", "flac", "wav"}

func hasAudioCodec(d Descriptor) bool {
	return d.ACodec != "" && strings.ToLower(d.ACodec) != "none"
}

func hasVideoCodec(d Descriptor) bool {
	return d.VCodec != "" && d.VCodec != "none"
}

// QualityOptions filters, ranks and renders the selectable quality list
// for a catalog and stream type. Output is deterministic: stable sort,
// ties broken by catalog order.
func QualityOptions(catalog []Descriptor, st StreamType) []Option {
	var formats []Descriptor
	for _, f := range catalog {
		if f.FormatID != "" {
			formats = append(formats, f)
		}
	}

	// nothing probed yet: symbolic presets only
	if len(formats) == 0 {
		if st == StreamAudio {
			return []Option{{Value: "audio", Label: "Best available (audio)"}}
		}
		opts := []Option{
			{Value: "best", Label: "Best available"},
			{Value: "1080p", Label: "Up to 1080p"},
			{Value: "720p", Label: "Up to 720p"},
			{Value: "480p", Label: "Up to 480p"},
		}
		if st == StreamAudioVideo {
			opts = append(opts, Option{Value: "audio", Label: "Audio only"})
		}
		return opts
	}

	var opts []Option
	if st == StreamAudio {
		opts = append(opts, Option{Value: "audio", Label: "Best available (audio)"})
	} else {
		opts = append(opts, Option{Value: "best", Label: "Best available"})
	}

	var list []Descriptor

	switch st {
	case StreamAudio:
		for _, f := range formats {
			noVideo := f.VCodec == "" || strings.ToLower(f.VCodec) == "none"
			audioishExt := slices.Contains(audioExtensions, strings.ToLower(f.Ext))
			if hasAudioCodec(f) && (noVideo || audioishExt) {
				list = append(list, f)
			}
		}
		sort.SliceStable(list, func(i, j int) bool { return list[i].TBR > list[j].TBR })

	case StreamVideo:
		// prefer pure video-only formats; fall back to anything with a
		// video codec only when no such format exists
		for _, f := range formats {
			noAudio := f.ACodec == "" || f.ACodec == "none"
			if hasVideoCodec(f) && noAudio {
				list = append(list, f)
			}
		}
		if len(list) == 0 {
			for _, f := range formats {
				if hasVideoCodec(f) {
					list = append(list, f)
				}
			}
		}
		sort.SliceStable(list, func(i, j int) bool { return list[i].Height > list[j].Height })

	default: // audio+video
		for _, f := range formats {
			if hasVideoCodec(f) && f.ACodec != "" && f.ACodec != "none" {
				list = append(list, f)
			}
		}
		if len(list) == 0 {
			for _, f := range formats {
				if hasVideoCodec(f) {
					list = append(list, f)
				}
			}
		}
		sort.SliceStable(list, func(i, j int) bool { return list[i].Height > list[j].Height })
	}

	if len(list) == 0 {
		return append(opts, Option{
			Label:    "No formats of this type; try a different type",
			Disabled: true,
		})
	}

	for _, f := range list {
		opts = append(opts, Option{
			Value: FormatValuePrefix + f.FormatID,
			Label: renderLabel(f, st),
		})
	}

	return opts
}

func renderLabel(f Descriptor, st StreamType) string {
	var parts []string

	if st == StreamAudio {
		if f.TBR > 0 {
			parts = append(parts, fmt.Sprintf("%dkbps", int(math.Round(f.TBR))))
		}
		if f.Ext != "" {
			parts = append(parts, f.Ext)
		}
		if f.FormatNote != "" {
			parts = append(parts, f.FormatNote)
		}
	} else {
		if f.Width > 0 && f.Height > 0 {
			parts = append(parts, fmt.Sprintf("%dx%d", f.Width, f.Height))
		} else if f.Height > 0 {
			parts = append(parts, fmt.Sprintf("%dp", f.Height))
		}
		if f.FPS > 0 {
			parts = append(parts, strconv.FormatFloat(f.FPS, 'f', -1, 64)+"fps")
		}
		if f.Ext != "" {
			parts = append(parts, f.Ext)
		}
		if f.TBR > 0 {
			parts = append(parts, fmt.Sprintf("%dkbps", int(math.Round(f.TBR))))
		}

		// role suffix, re-derived from codec presence
		if st == StreamVideo {
			parts = append(parts, "video only")
		} else if hasVideoCodec(f) && f.ACodec != "" && f.ACodec != "none" {
			parts = append(parts, "video + audio")
		} else {
			parts = append(parts, "muxed with best audio")
		}

		if f.FormatNote != "" {
			parts = append(parts, f.FormatNote)
		}
	}

	if len(parts) == 0 {
		return f.FormatID
	}
	return strings.Join(parts, labelSeparator)
}

// ContainerOptions lists the output container choices per stream type.
func ContainerOptions(st StreamType) []Option {
	if st == StreamAudio {
		return []Option{
			{Value: "m4a", Label: "M4A (AAC)"},
			{Value: "mp3", Label: "MP3 (re-encode)"},
			{Value: "webm", Label: "WebM / Opus"},
			{Value: "auto", Label: "Auto (best audio)"},
		}
	}
	return []Option{
		{Value: "mp4", Label: "MP4"},
		{Value: "webm", Label: "WebM"},
		{Value: "auto", Label: "Auto"},
	}
}
