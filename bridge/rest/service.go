package rest

import (
	"context"

	"github.com/smartvideo/ytdlp-bridge/bridge/archive"
	"github.com/smartvideo/ytdlp-bridge/bridge/internal/formats"
	"github.com/smartvideo/ytdlp-bridge/bridge/internal/jobs"
	"github.com/smartvideo/ytdlp-bridge/bridge/internal/videos"
	"github.com/smartvideo/ytdlp-bridge/bridge/orchestrator"
	"github.com/smartvideo/ytdlp-bridge/bridge/settings"
	"github.com/smartvideo/ytdlp-bridge/bridge/sys"
)

type Service struct {
	orc      *orchestrator.Orchestrator
	session  *videos.Session
	archive  *archive.Service
	settings *settings.Store
}

func NewService(args *ContainerArgs) *Service {
	return &Service{
		orc:      args.Orchestrator,
		session:  args.Session,
		archive:  args.Archive,
		settings: args.Settings,
	}
}

// SelectionView is what a UI needs to render the inspection panel for
// one video: the selection itself plus its option lists and a
// display-ready duration.
type SelectionView struct {
	Selected      videos.Selected  `json:"selected"`
	DurationLabel string           `json:"durationLabel,omitempty"`
	Quality       []formats.Option `json:"quality"`
	Containers    []formats.Option `json:"containers"`
}

func (s *Service) view(sel videos.Selected, st formats.StreamType) SelectionView {
	return SelectionView{
		Selected:      sel,
		DurationLabel: videos.FormatTime(sel.KnownDuration),
		Quality:       formats.QualityOptions(sel.Formats, st),
		Containers:    formats.ContainerOptions(st),
	}
}

// SlotView decorates a slot snapshot with the folder a finished file
// landed in.
type SlotView struct {
	jobs.Snapshot
	Folder string `json:"folder,omitempty"`
}

func slotViews(snaps []jobs.Snapshot) []SlotView {
	views := make([]SlotView, 0, len(snaps))
	for _, snap := range snaps {
		v := SlotView{Snapshot: snap}
		if snap.Filename != "" {
			v.Folder = videos.ShortenPath(snap.Filename)
		}
		views = append(views, v)
	}
	return views
}

func (s *Service) SubmitVideos(page videos.Page, vids []videos.Video) []videos.Video {
	s.session.SetDiscovered(page, vids)
	return s.session.Videos()
}

func (s *Service) Videos() []videos.Video {
	return s.session.Videos()
}

func (s *Service) Select(index int, st formats.StreamType) (SelectionView, error) {
	sel, err := s.orc.SelectVideo(index)
	if err != nil {
		return SelectionView{}, err
	}
	return s.view(sel, st), nil
}

func (s *Service) Probe(ctx context.Context, st formats.StreamType) (SelectionView, error) {
	sel, err := s.orc.Probe(ctx)
	if err != nil {
		return SelectionView{}, err
	}
	return s.view(sel, st), nil
}

func (s *Service) Options(st formats.StreamType) (SelectionView, bool) {
	sel, ok := s.session.Selected()
	if !ok {
		// no selection yet: presets only
		return SelectionView{
			Quality:    formats.QualityOptions(nil, st),
			Containers: formats.ContainerOptions(st),
		}, false
	}
	return s.view(sel, st), true
}

func (s *Service) Download(in orchestrator.Intent) (string, error) {
	return s.orc.StartDownload(in)
}

func (s *Service) Slots() []SlotView {
	return slotViews(s.orc.Slots())
}

func (s *Service) ResetSlot(slot jobs.Slot) error {
	return s.orc.ResetSlot(slot)
}

func (s *Service) ChooseDirectory(ctx context.Context) (string, error) {
	dir, err := s.orc.ChooseDirectory(ctx)
	if err != nil {
		return "", err
	}
	if dir == "" {
		dir = s.settings.SaveDir()
	}
	return dir, nil
}

func (s *Service) FreeSpace() (uint64, error) {
	return sys.FreeSpace(s.settings.SaveDir())
}

func (s *Service) Archived(ctx context.Context) ([]archive.Entity, error) {
	return s.archive.All(ctx)
}
