package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/ping", PingHandler)

	if app.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}

	if app.FrameDir != "" {
		fileServer := http.FileServer(http.Dir(app.FrameDir))
		r.Handle("/frames/*", http.StripPrefix("/frames", fileServer))
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/query", app.QueryHandler)

		r.Route("/videos", func(r chi.Router) {
			r.Get("/", app.ListVideosHandler)
			r.Post("/", app.UploadHandler)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", app.GetVideoHandler)
				r.Get("/stream", app.StreamVideoHandler)

				r.Post("/analysis", app.StartAnalysisHandler)
				r.Get("/analysis", app.AnalysisStatusHandler)
				r.Delete("/analysis", app.CancelAnalysisHandler)
				r.Get("/analysis/ws", app.AnalysisProgressHandler)

				r.Get("/index/metadata", app.MetadataHandler)
				r.Get("/index/detections", app.DetectionsHandler)
			})
		})
	})

	return r
}
