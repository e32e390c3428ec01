package router

import (
	"net/http"
	"time"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/sgroy10/excel-to-image-api/internal/transport/handler"
)

// NewRouter wires the HTTP surface. Sentry sits inside Recoverer with
// Repanic on, so panics are reported and still end up as a plain 500.
func NewRouter(h *handler.Handler, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.Use(hlog.NewHandler(log))
	r.Use(hlog.AccessHandler(func(req *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(req).Info().
			Str("method", req.Method).
			Stringer("url", req.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Str("request_id", middleware.GetReqID(req.Context())).
			Msg("request")
	}))

	r.Use(middleware.Recoverer)
	r.Use(sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle)

	r.Get("/", h.Health)
	r.Post("/convert", h.Convert)
	r.Post("/convert-all", h.ConvertAll)

	return cors.AllowAll().Handler(r)
}
