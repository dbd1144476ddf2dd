package rest

import (
	"github.com/smartvideo/ytdlp-bridge/bridge/archive"
	"github.com/smartvideo/ytdlp-bridge/bridge/internal/videos"
	"github.com/smartvideo/ytdlp-bridge/bridge/orchestrator"
	"github.com/smartvideo/ytdlp-bridge/bridge/settings"
)

type ContainerArgs struct {
	Orchestrator *orchestrator.Orchestrator
	Session      *videos.Session
	Archive      *archive.Service
	Settings     *settings.Store
}
