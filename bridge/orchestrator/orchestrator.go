// Package orchestrator coordinates user download intents: it validates
// them, assembles native requests, arms the matching download slot and
// feeds helper events back into it.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/smartvideo/ytdlp-bridge/bridge/archive"
	"github.com/smartvideo/ytdlp-bridge/bridge/internal/correlation"
	"github.com/smartvideo/ytdlp-bridge/bridge/internal/formats"
	"github.com/smartvideo/ytdlp-bridge/bridge/internal/jobs"
	"github.com/smartvideo/ytdlp-bridge/bridge/internal/nativemsg"
	"github.com/smartvideo/ytdlp-bridge/bridge/internal/protocol"
	"github.com/smartvideo/ytdlp-bridge/bridge/internal/videos"
	"github.com/smartvideo/ytdlp-bridge/bridge/settings"
)

// SlotTopic is the bus topic slot snapshots are re-published to after
// every accepted transition, for UI surfaces to render.
const SlotTopic = "slots:update"

// Intent is a user's request to start a download on a slot.
type Intent struct {
	Slot       jobs.Slot          `json:"slot"`
	StreamType formats.StreamType `json:"streamType"`
	Quality    string             `json:"quality"`
	Container  string             `json:"container"`
	Trim       bool               `json:"trim"`
	Start      float64            `json:"start"`
	End        float64            `json:"end"`
}

// jobInfo remembers what a slot is downloading, for archiving on
// completion.
type jobInfo struct {
	title  string
	source string
}

type Orchestrator struct {
	channel  *nativemsg.Channel
	session  *videos.Session
	store    *settings.Store
	archiver *archive.Archiver

	bus EventBus.Bus

	mu    sync.Mutex
	slots map[jobs.Slot]*jobs.Machine
	info  map[jobs.Slot]jobInfo
}

func New(
	channel *nativemsg.Channel,
	session *videos.Session,
	store *settings.Store,
	archiver *archive.Archiver,
	bus EventBus.Bus,
) *Orchestrator {
	o := &Orchestrator{
		channel:  channel,
		session:  session,
		store:    store,
		archiver: archiver,
		bus:      bus,
		slots:    make(map[jobs.Slot]*jobs.Machine),
		info:     make(map[jobs.Slot]jobInfo),
	}

	for _, s := range jobs.Slots {
		o.slots[s] = jobs.NewMachine(s)
	}

	// synchronous subscription keeps per-job event order exactly as the
	// channel delivered it
	bus.Subscribe(nativemsg.EventTopic, o.HandleEvent)

	return o
}

// StartDownload validates an intent, assembles the request payload and
// fires it at the helper. It returns the job id the caller can expect
// progress events for. Validation failures happen before any message is
// sent and never allocate a job id.
func (o *Orchestrator) StartDownload(in Intent) (string, error) {
	sel, ok := o.session.Selected()
	if !ok {
		return "", fmt.Errorf("%w: no video selected", protocol.ErrValidation)
	}

	machine := o.slots[in.Slot]
	if machine == nil {
		return "", fmt.Errorf("%w: unknown slot %q", protocol.ErrValidation, in.Slot)
	}
	if machine.Busy() {
		return "", fmt.Errorf("%w: slot %s is busy", protocol.ErrValidation, in.Slot)
	}

	trimmed := in.Slot == jobs.SlotTrimmed

	start := 0.0
	end := sel.KnownDuration

	if trimmed {
		if !in.Trim {
			return "", fmt.Errorf("%w: trimming is not enabled", protocol.ErrValidation)
		}
		start = in.Start
		end = in.End
		if end == 0 {
			end = sel.KnownDuration
		}
		if end <= start {
			return "", fmt.Errorf("%w: end must be greater than start", protocol.ErrValidation)
		}
	}

	req := o.buildRequest(sel, in, trimmed, start, end)
	req.JobID = correlation.NewJobID()

	// arm the slot before transmitting so the very first helper event
	// already finds a matching job id
	if err := machine.Start(req.JobID); err != nil {
		return "", fmt.Errorf("%w: %v", protocol.ErrValidation, err)
	}

	o.mu.Lock()
	o.info[in.Slot] = jobInfo{title: req.Title, source: sourceURL(req)}
	o.mu.Unlock()

	if _, err := o.channel.Send(req); err != nil {
		machine.OnError(req.JobID, err.Error())
		o.publishSlot(machine)
		return "", err
	}

	slog.Info("download requested",
		slog.String("slot", string(in.Slot)),
		slog.String("id", req.JobID),
		slog.String("quality", req.Quality),
		slog.String("streamType", string(req.StreamType)),
	)

	o.publishSlot(machine)
	return req.JobID, nil
}

// buildRequest assembles the payload. A concrete selected format id
// reduces quality to a generic hint for the helper; trim bounds are
// only attached for the trimmed kind.
func (o *Orchestrator) buildRequest(sel videos.Selected, in Intent, trimmed bool, start, end float64) protocol.Request {
	st := in.StreamType
	if st == "" {
		st = formats.StreamAudioVideo
	}

	quality := in.Quality
	if quality == "" {
		quality = "best"
	}

	var formatID string
	if strings.HasPrefix(quality, formats.FormatValuePrefix) {
		formatID = strings.TrimPrefix(quality, formats.FormatValuePrefix)
		if st == formats.StreamAudio {
			quality = "audio"
		} else {
			quality = "best"
		}
	}

	container := in.Container
	if container == "" {
		container = "mp4"
	}

	fallback := "video"
	kind := protocol.KindDownloadFull
	if trimmed {
		fallback = "clip"
		kind = protocol.KindDownloadTrimmed
	}

	title := videos.SanitizeFilename(firstNonEmpty(sel.Title, o.session.Page().Title, fallback))
	if title == "" {
		title = fallback
	}

	req := protocol.Request{
		Type:       kind,
		Title:      title,
		VideoURL:   sel.Src,
		PageURL:    firstNonEmpty(sel.PageURL, o.session.Page().URL),
		Quality:    quality,
		FormatID:   formatID,
		Container:  container,
		StreamType: st,
	}

	if trimmed {
		req.Start = &start
		req.End = &end
	}

	return req
}

// Probe asks the helper for duration, title, thumbnail and the format
// catalog of the selected video, and folds the answer into the session.
// The wait has no internal deadline; cancel ctx to abandon it.
func (o *Orchestrator) Probe(ctx context.Context) (videos.Selected, error) {
	sel, ok := o.session.Selected()
	if !ok {
		return videos.Selected{}, fmt.Errorf("%w: no video selected", protocol.ErrValidation)
	}

	pageURL := firstNonEmpty(sel.PageURL, o.session.Page().URL)
	if pageURL == "" {
		return videos.Selected{}, fmt.Errorf("%w: selected video has no page url", protocol.ErrValidation)
	}

	msg, err := o.channel.Request(ctx, protocol.Request{
		Type:    protocol.KindProbeInfo,
		PageURL: pageURL,
	})
	if err != nil {
		return videos.Selected{}, err
	}

	updated, ok := o.session.ApplyProbe(msg.Duration, msg.Title, msg.Thumbnail, msg.Formats)
	if !ok {
		// a different video was selected while the probe was in flight
		return videos.Selected{}, fmt.Errorf("%w: selection changed during probe", protocol.ErrValidation)
	}

	slog.Info("probe completed",
		slog.String("url", pageURL),
		slog.Int("formats", len(updated.Formats)),
	)

	return updated, nil
}

// ChooseDirectory asks the helper to show its directory picker and
// persists the choice.
func (o *Orchestrator) ChooseDirectory(ctx context.Context) (string, error) {
	msg, err := o.channel.Request(ctx, protocol.Request{Type: protocol.KindChooseSaveDir})
	if err != nil {
		return "", err
	}

	if msg.Dir != "" {
		if err := o.store.SetSaveDir(msg.Dir); err != nil {
			slog.Error("failed persisting save directory", slog.Any("err", err))
		}
	}

	return msg.Dir, nil
}

// SelectVideo picks a discovered video and resets both slots: any
// in-flight job keeps running in the helper but is no longer displayed.
func (o *Orchestrator) SelectVideo(index int) (videos.Selected, error) {
	sel, err := o.session.Select(index)
	if err != nil {
		return videos.Selected{}, fmt.Errorf("%w: %v", protocol.ErrValidation, err)
	}

	for _, m := range o.slots {
		m.Reset()
		o.publishSlot(m)
	}

	return sel, nil
}

// ResetSlot force-clears one slot.
func (o *Orchestrator) ResetSlot(slot jobs.Slot) error {
	machine := o.slots[slot]
	if machine == nil {
		return fmt.Errorf("%w: unknown slot %q", protocol.ErrValidation, slot)
	}

	machine.Reset()
	o.publishSlot(machine)
	return nil
}

// Slots returns a snapshot of every slot, in fixed order.
func (o *Orchestrator) Slots() []jobs.Snapshot {
	out := make([]jobs.Snapshot, 0, len(jobs.Slots))
	for _, s := range jobs.Slots {
		out = append(out, o.slots[s].Snapshot())
	}
	return out
}

// HandleEvent routes a broadcast helper event to the slot owning its
// job id. Events for unknown or stale ids are ignored.
func (o *Orchestrator) HandleEvent(msg protocol.Message) {
	for _, s := range jobs.Slots {
		machine := o.slots[s]

		var accepted bool

		switch msg.Event {
		case protocol.EventStart:
			accepted = machine.OnProgress(msg.JobID, 0)
		case protocol.EventProgress:
			accepted = machine.OnProgress(msg.JobID, msg.Percent)
		case protocol.EventComplete:
			accepted = machine.OnComplete(msg.JobID, msg.Filename)
			if accepted {
				o.archiveCompleted(s, msg.Filename)
			}
		case protocol.EventError:
			accepted = machine.OnError(msg.JobID, firstNonEmpty(msg.Error, "unknown error"))
			if accepted {
				o.clearInfo(s)
				slog.Error("download failed",
					slog.String("slot", string(s)),
					slog.String("id", msg.JobID),
					slog.String("err", msg.Error),
				)
			}
		}

		if accepted {
			o.publishSlot(machine)
		}
	}
}

func (o *Orchestrator) clearInfo(slot jobs.Slot) {
	o.mu.Lock()
	delete(o.info, slot)
	o.mu.Unlock()
}

func (o *Orchestrator) archiveCompleted(slot jobs.Slot, filename string) {
	o.mu.Lock()
	info := o.info[slot]
	delete(o.info, slot)
	o.mu.Unlock()

	o.archiver.Publish(&archive.Entity{
		Title:     info.title,
		Source:    info.source,
		Filename:  filename,
		CreatedAt: time.Now(),
	})
}

func (o *Orchestrator) publishSlot(m *jobs.Machine) {
	o.bus.Publish(SlotTopic, m.Snapshot())
}

func sourceURL(req protocol.Request) string {
	return firstNonEmpty(req.VideoURL, req.PageURL)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
