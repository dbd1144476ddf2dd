package protocol

import "github.com/smartvideo/ytdlp-bridge/bridge/internal/formats"

// Kind discriminates outbound payloads. The values are the wire types
// the native helper dispatches on.
type Kind string

const (
	KindDownloadFull    Kind = "DOWNLOAD_FULL"
	KindDownloadTrimmed Kind = "DOWNLOAD_TRIMMED"
	KindProbeInfo       Kind = "PROBE_INFO"
	KindChooseSaveDir   Kind = "CHOOSE_SAVE_DIR"
)

// Request is an outbound payload. Immutable once sent.
// Start/End are pointers so an untrimmed download omits them entirely.
type Request struct {
	Type       Kind               `json:"type"`
	JobID      string             `json:"jobId"`
	Title      string             `json:"title,omitempty"`
	VideoURL   string             `json:"videoUrl,omitempty"`
	PageURL    string             `json:"pageUrl,omitempty"`
	Quality    string             `json:"quality,omitempty"`
	FormatID   string             `json:"formatId,omitempty"`
	Container  string             `json:"container,omitempty"`
	StreamType formats.StreamType `json:"streamType,omitempty"`
	Start      *float64           `json:"start,omitempty"`
	End        *float64           `json:"end,omitempty"`
}

// Event names emitted by the helper while a job runs.
type Event string

const (
	EventStart    Event = "start"
	EventProgress Event = "progress"
	EventComplete Event = "complete"
	EventError    Event = "error"
)

// Message is any inbound frame: either the single response to a
// request/response exchange or a broadcast job event. The helper keeps
// the schema flat, so one struct covers both.
type Message struct {
	JobID      string               `json:"jobId"`
	Event      Event                `json:"event,omitempty"`
	OK         bool                 `json:"ok,omitempty"`
	Percent    float64              `json:"percent,omitempty"`
	Filename   string               `json:"filename,omitempty"`
	Error      string               `json:"error,omitempty"`
	Duration   float64              `json:"duration,omitempty"`
	Title      string               `json:"title,omitempty"`
	Thumbnail  string               `json:"thumbnail,omitempty"`
	Formats    []formats.Descriptor `json:"formats,omitempty"`
	Dir        string               `json:"dir,omitempty"`
	FromNative bool                 `json:"fromNative,omitempty"`
}
