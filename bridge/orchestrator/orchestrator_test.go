package orchestrator

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
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
	bolt "go.etcd.io/bbolt"
)

type fakeTransport struct {
	mu      sync.Mutex
	sent    []protocol.Request
	inbound chan protocol.Message
	onWrite func(protocol.Request)
	once    sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{inbound: make(chan protocol.Message, 16)}
}

func (f *fakeTransport) WriteMessage(v any) error {
	req := v.(protocol.Request)
	f.mu.Lock()
	f.sent = append(f.sent, req)
	f.mu.Unlock()
	if f.onWrite != nil {
		f.onWrite(req)
	}
	return nil
}

func (f *fakeTransport) ReadMessage() (protocol.Message, error) {
	msg, ok := <-f.inbound
	if !ok {
		return protocol.Message{}, io.EOF
	}
	return msg, nil
}

func (f *fakeTransport) Close() error {
	f.once.Do(func() { close(f.inbound) })
	return nil
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeTransport) lastSent() protocol.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

type fixture struct {
	orch      *Orchestrator
	transport *fakeTransport
	session   *videos.Session
	store     *settings.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := bolt.Open(filepath.Join(t.TempDir(), "bolt.db"), 0600, nil)
	if err != nil {
		t.Fatalf("open bolt: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := settings.NewStore(db)
	if err != nil {
		t.Fatalf("settings store: %v", err)
	}

	ft := newFakeTransport()
	bus := EventBus.New()
	channel := nativemsg.NewChannel(
		func() (nativemsg.Transport, error) { return ft, nil },
		correlation.NewRegistry(),
		bus,
	)
	t.Cleanup(channel.Close)

	session := videos.NewSession()
	orch := New(channel, session, store, archive.NewArchiver(nil), bus)

	return &fixture{orch: orch, transport: ft, session: session, store: store}
}

func (f *fixture) discoverAndSelect(t *testing.T, v videos.Video) {
	t.Helper()
	f.session.SetDiscovered(videos.Page{URL: "https://watch.example/page", Title: "Page Title"}, []videos.Video{v})
	if _, err := f.orch.SelectVideo(0); err != nil {
		t.Fatalf("select video: %v", err)
	}
}

func (f *fixture) slot(t *testing.T, s jobs.Slot) jobs.Snapshot {
	t.Helper()
	for _, snap := range f.orch.Slots() {
		if snap.Slot == s {
			return snap
		}
	}
	t.Fatalf("slot %s missing from snapshot list", s)
	return jobs.Snapshot{}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestStartDownloadRequiresSelection(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.StartDownload(Intent{Slot: jobs.SlotFull})
	if !errors.Is(err, protocol.ErrValidation) {
		t.Fatalf("err = %v, want a validation error", err)
	}
	if f.transport.sentCount() != 0 {
		t.Fatal("a request was sent despite the rejected intent")
	}
}

func TestTrimmedValidation(t *testing.T) {
	f := newFixture(t)
	f.discoverAndSelect(t, videos.Video{Title: "clip source", Src: "https://cdn.example/v.mp4", Duration: 100})

	tests := []struct {
		name   string
		intent Intent
	}{
		{"trim disabled", Intent{Slot: jobs.SlotTrimmed, Trim: false, Start: 1, End: 5}},
		{"end before start", Intent{Slot: jobs.SlotTrimmed, Trim: true, Start: 50, End: 30}},
		{"end equals start", Intent{Slot: jobs.SlotTrimmed, Trim: true, Start: 10, End: 10}},
		{"unknown slot", Intent{Slot: jobs.Slot("bogus")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := f.orch.StartDownload(tt.intent)
			if !errors.Is(err, protocol.ErrValidation) {
				t.Fatalf("err = %v, want a validation error", err)
			}
			if id != "" {
				t.Fatalf("a job id %q was allocated for a rejected intent", id)
			}
		})
	}

	if f.transport.sentCount() != 0 {
		t.Fatalf("%d requests sent, want 0", f.transport.sentCount())
	}
	if snap := f.slot(t, jobs.SlotTrimmed); snap.Phase != jobs.PhaseIdle {
		t.Fatalf("rejected intents moved the slot: %+v", snap)
	}
}

func TestTrimmedEndDefaultsToKnownDuration(t *testing.T) {
	f := newFixture(t)
	f.discoverAndSelect(t, videos.Video{Title: "clip source", Src: "https://cdn.example/v.mp4", Duration: 100})

	id, err := f.orch.StartDownload(Intent{Slot: jobs.SlotTrimmed, Trim: true, Start: 5})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	req := f.transport.lastSent()
	if req.Type != protocol.KindDownloadTrimmed {
		t.Fatalf("type = %q", req.Type)
	}
	if req.JobID != id {
		t.Fatalf("sent job id %q, returned %q", req.JobID, id)
	}
	if req.Start == nil || *req.Start != 5 {
		t.Fatalf("start bound = %v", req.Start)
	}
	if req.End == nil || *req.End != 100 {
		t.Fatalf("end bound = %v, want the known duration", req.End)
	}
	if req.Title != "clip source" {
		t.Fatalf("title = %q", req.Title)
	}
}

func TestFullDownloadPayload(t *testing.T) {
	f := newFixture(t)
	f.discoverAndSelect(t, videos.Video{
		Title:   "My: Video",
		Src:     "https://cdn.example/v.mp4",
		PageURL: "https://watch.example/v",
	})

	id, err := f.orch.StartDownload(Intent{
		Slot:       jobs.SlotFull,
		StreamType: formats.StreamVideo,
		Quality:    "format:137",
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	req := f.transport.lastSent()
	if req.Type != protocol.KindDownloadFull {
		t.Fatalf("type = %q", req.Type)
	}
	if req.Title != "My_ Video" {
		t.Fatalf("title not sanitized: %q", req.Title)
	}
	if req.Quality != "best" || req.FormatID != "137" {
		t.Fatalf("format value not reconciled: quality=%q formatId=%q", req.Quality, req.FormatID)
	}
	if req.Container != "mp4" {
		t.Fatalf("container default = %q", req.Container)
	}
	if req.VideoURL != "https://cdn.example/v.mp4" || req.PageURL != "https://watch.example/v" {
		t.Fatalf("urls = %q / %q", req.VideoURL, req.PageURL)
	}
	if req.Start != nil || req.End != nil {
		t.Fatal("trim bounds attached to a full download")
	}

	snap := f.slot(t, jobs.SlotFull)
	if snap.Phase != jobs.PhaseBusy || snap.JobID != id {
		t.Fatalf("slot not armed: %+v", snap)
	}
}

func TestAudioFormatReconciliation(t *testing.T) {
	f := newFixture(t)
	f.discoverAndSelect(t, videos.Video{Src: "https://cdn.example/v.mp4"})

	if _, err := f.orch.StartDownload(Intent{
		Slot:       jobs.SlotFull,
		StreamType: formats.StreamAudio,
		Quality:    "format:140",
		Container:  "m4a",
	}); err != nil {
		t.Fatalf("start: %v", err)
	}

	req := f.transport.lastSent()
	if req.Quality != "audio" || req.FormatID != "140" {
		t.Fatalf("quality=%q formatId=%q, want audio/140", req.Quality, req.FormatID)
	}
	if req.Title != "Page Title" {
		t.Fatalf("title fallback = %q, want the page title", req.Title)
	}
}

func TestBusySlotRejected(t *testing.T) {
	f := newFixture(t)
	f.discoverAndSelect(t, videos.Video{Src: "https://cdn.example/v.mp4"})

	if _, err := f.orch.StartDownload(Intent{Slot: jobs.SlotFull}); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if _, err := f.orch.StartDownload(Intent{Slot: jobs.SlotFull}); !errors.Is(err, protocol.ErrValidation) {
		t.Fatalf("second start err = %v, want a validation error", err)
	}
	if f.transport.sentCount() != 1 {
		t.Fatalf("%d requests sent, want 1", f.transport.sentCount())
	}
}

func TestEventRoutingLifecycle(t *testing.T) {
	f := newFixture(t)
	f.discoverAndSelect(t, videos.Video{Src: "https://cdn.example/v.mp4"})

	id, err := f.orch.StartDownload(Intent{Slot: jobs.SlotFull})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	f.transport.inbound <- protocol.Message{JobID: id, Event: protocol.EventStart}
	f.transport.inbound <- protocol.Message{JobID: id, Event: protocol.EventProgress, Percent: 42}

	waitFor(t, "progress", func() bool {
		return f.slot(t, jobs.SlotFull).Percent == 42
	})

	f.transport.inbound <- protocol.Message{JobID: id, Event: protocol.EventComplete, Filename: "v.mp4"}

	waitFor(t, "completion", func() bool {
		return f.slot(t, jobs.SlotFull).Phase == jobs.PhaseDone
	})

	snap := f.slot(t, jobs.SlotFull)
	if snap.Percent != 100 || snap.Filename != "v.mp4" || snap.JobID != "" {
		t.Fatalf("terminal snapshot: %+v", snap)
	}
}

func TestForeignJobEventsIgnored(t *testing.T) {
	f := newFixture(t)
	f.discoverAndSelect(t, videos.Video{Src: "https://cdn.example/v.mp4"})

	id, err := f.orch.StartDownload(Intent{Slot: jobs.SlotFull})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// an error for a foreign id must not disturb the slot; the following
	// progress event proves it did not, since a cleared id would have
	// rejected it too
	f.transport.inbound <- protocol.Message{JobID: "someone-else", Event: protocol.EventError, Error: "boom"}
	f.transport.inbound <- protocol.Message{JobID: id, Event: protocol.EventProgress, Percent: 42}

	waitFor(t, "progress", func() bool {
		return f.slot(t, jobs.SlotFull).Percent == 42
	})

	snap := f.slot(t, jobs.SlotFull)
	if snap.Phase != jobs.PhaseBusy || snap.JobID != id || snap.Error != "" {
		t.Fatalf("foreign event changed state: %+v", snap)
	}
}

func TestErrorEventFreesSlot(t *testing.T) {
	f := newFixture(t)
	f.discoverAndSelect(t, videos.Video{Src: "https://cdn.example/v.mp4"})

	id, err := f.orch.StartDownload(Intent{Slot: jobs.SlotFull})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	f.transport.inbound <- protocol.Message{JobID: id, Event: protocol.EventError, Error: "network unreachable"}

	waitFor(t, "error state", func() bool {
		return f.slot(t, jobs.SlotFull).Phase == jobs.PhaseError
	})

	if snap := f.slot(t, jobs.SlotFull); snap.Error != "network unreachable" {
		t.Fatalf("error message: %+v", snap)
	}

	// the slot is immediately retryable
	if _, err := f.orch.StartDownload(Intent{Slot: jobs.SlotFull}); err != nil {
		t.Fatalf("retry after error: %v", err)
	}
}

func TestErrorEventClearsJobInfo(t *testing.T) {
	f := newFixture(t)
	f.discoverAndSelect(t, videos.Video{Title: "doomed", Src: "https://cdn.example/v.mp4"})

	id, err := f.orch.StartDownload(Intent{Slot: jobs.SlotFull})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	f.orch.mu.Lock()
	_, ok := f.orch.info[jobs.SlotFull]
	f.orch.mu.Unlock()
	if !ok {
		t.Fatal("no job info recorded for the in-flight download")
	}

	f.transport.inbound <- protocol.Message{JobID: id, Event: protocol.EventError, Error: "boom"}

	waitFor(t, "error state", func() bool {
		return f.slot(t, jobs.SlotFull).Phase == jobs.PhaseError
	})

	f.orch.mu.Lock()
	_, ok = f.orch.info[jobs.SlotFull]
	f.orch.mu.Unlock()
	if ok {
		t.Fatal("job info retained after a failed download")
	}
}

func TestSelectVideoResetsSlots(t *testing.T) {
	f := newFixture(t)
	f.session.SetDiscovered(videos.Page{URL: "https://watch.example/page"}, []videos.Video{
		{Title: "one", Src: "https://cdn.example/1.mp4"},
		{Title: "two", Src: "https://cdn.example/2.mp4"},
	})
	if _, err := f.orch.SelectVideo(0); err != nil {
		t.Fatalf("select: %v", err)
	}

	if _, err := f.orch.StartDownload(Intent{Slot: jobs.SlotFull}); err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := f.orch.SelectVideo(1); err != nil {
		t.Fatalf("reselect: %v", err)
	}

	for _, snap := range f.orch.Slots() {
		if snap.Phase != jobs.PhaseIdle || snap.JobID != "" {
			t.Fatalf("slot not reset on reselection: %+v", snap)
		}
	}
}

func TestResetSlot(t *testing.T) {
	f := newFixture(t)
	f.discoverAndSelect(t, videos.Video{Src: "https://cdn.example/v.mp4"})

	if err := f.orch.ResetSlot(jobs.Slot("bogus")); !errors.Is(err, protocol.ErrValidation) {
		t.Fatalf("unknown slot err = %v", err)
	}

	if _, err := f.orch.StartDownload(Intent{Slot: jobs.SlotFull}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.orch.ResetSlot(jobs.SlotFull); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if snap := f.slot(t, jobs.SlotFull); snap.Phase != jobs.PhaseIdle {
		t.Fatalf("slot still %+v after reset", snap)
	}
}

func TestProbeAppliesResult(t *testing.T) {
	f := newFixture(t)
	f.discoverAndSelect(t, videos.Video{Src: "https://cdn.example/v.mp4", PageURL: "https://watch.example/v"})

	f.transport.onWrite = func(req protocol.Request) {
		if req.Type != protocol.KindProbeInfo {
			return
		}
		f.transport.inbound <- protocol.Message{
			JobID:    req.JobID,
			OK:       true,
			Duration: 321,
			Title:    "Probed Title",
			Formats:  []formats.Descriptor{{FormatID: "137", VCodec: "avc1", ACodec: "none", Height: 1080}},
		}
	}

	sel, err := f.orch.Probe(context.Background())
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if sel.KnownDuration != 321 || sel.Title != "Probed Title" {
		t.Fatalf("probe result not applied: %+v", sel)
	}
	if len(sel.Formats) != 1 || sel.Formats[0].FormatID != "137" {
		t.Fatalf("catalog: %+v", sel.Formats)
	}

	req := f.transport.lastSent()
	if req.PageURL != "https://watch.example/v" {
		t.Fatalf("probe sent page url %q", req.PageURL)
	}
}

func TestProbeFailureResponse(t *testing.T) {
	f := newFixture(t)
	f.discoverAndSelect(t, videos.Video{PageURL: "https://watch.example/v"})

	f.transport.onWrite = func(req protocol.Request) {
		f.transport.inbound <- protocol.Message{JobID: req.JobID, OK: false, Error: "unsupported url"}
	}

	if _, err := f.orch.Probe(context.Background()); !errors.Is(err, protocol.ErrProtocol) {
		t.Fatalf("err = %v, want a protocol error", err)
	}
}

func TestChooseDirectoryPersists(t *testing.T) {
	f := newFixture(t)

	f.transport.onWrite = func(req protocol.Request) {
		if req.Type == protocol.KindChooseSaveDir {
			f.transport.inbound <- protocol.Message{JobID: req.JobID, OK: true, Dir: "/media/saved"}
		}
	}

	dir, err := f.orch.ChooseDirectory(context.Background())
	if err != nil {
		t.Fatalf("choose directory: %v", err)
	}
	if dir != "/media/saved" {
		t.Fatalf("dir = %q", dir)
	}
	if got := f.store.SaveDir(); got != "/media/saved" {
		t.Fatalf("persisted dir = %q", got)
	}
}
