package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/karen-os/backend/internal/handler/chat"
	"github.com/zhouzirui/karen-os/backend/internal/handler/persona"
	"github.com/zhouzirui/karen-os/backend/internal/handler/realtime"
	middlewarePkg "github.com/zhouzirui/karen-os/backend/internal/middleware"
	personaModel "github.com/zhouzirui/karen-os/backend/internal/model/persona"
	chatService "github.com/zhouzirui/karen-os/backend/internal/service/chat"
)

// Deps groups what the HTTP layer needs from the running session.
type Deps struct {
	Personas       personaModel.Store
	ActivePersona  string
	Session        chat.Session
	Transcript     *chatService.Service
	Hub            *realtime.Hub
	AllowedOrigins []string
	Logger         zerolog.Logger
}

// NewRouter wires HTTP routes to the session.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.AllowedOrigins))

	personaHandler := persona.New(deps.Personas, deps.ActivePersona)
	chatHandler := chat.New(deps.Session, deps.Transcript, deps.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		personaHandler.RegisterRoutes(api)
		chatHandler.RegisterRoutes(api)

		if deps.Hub != nil {
			deps.Hub.RegisterRoutes(api)
		}
	})

	return r
}
