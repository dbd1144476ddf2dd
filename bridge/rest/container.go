package rest

import (
	"github.com/go-chi/chi/v5"
)

func ApplyRouter(args *ContainerArgs) func(chi.Router) {
	h := ProvideHandler(ProvideService(args))

	return func(r chi.Router) {
		r.Get("/videos", h.ListVideos)
		r.Post("/videos", h.SubmitVideos)
		r.Post("/select", h.SelectVideo)
		r.Post("/probe", h.Probe)
		r.Get("/options", h.Options)
		r.Post("/download", h.Download)
		r.Get("/slots", h.Slots)
		r.Post("/slots/{slot}/reset", h.ResetSlot)
		r.Post("/directory", h.ChooseDirectory)
		r.Get("/freespace", h.FreeSpace)
		r.Get("/archive", h.Archived)
	}
}
