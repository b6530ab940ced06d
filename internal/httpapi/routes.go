package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/DoyleJ11/hangman-backend/internal/hub"
	"github.com/DoyleJ11/hangman-backend/internal/invite"
	"github.com/DoyleJ11/hangman-backend/internal/lobby"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// History lists a user's archived sessions.
type History interface {
	ForUser(ctx context.Context, userID string, limit int) ([]lobby.Record, error)
}

type Deps struct {
	Invites  *invite.Manager
	Sessions *hub.Hub
	History  History // optional
	Socket   http.Handler
	Log      *zap.Logger
	// CORSOrigins defaults to every origin.
	CORSOrigins []string
}

func SetupRoutes(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}

	socket := d.Socket
	if socket == nil {
		socket = http.NotFoundHandler()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log.Named("http")))
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthz", Healthz)

	r.Group(func(r chi.Router) {
		r.Use(requireUser)

		r.Get("/ws", socket.ServeHTTP)

		r.Route("/invites", func(r chi.Router) {
			r.Use(middleware.Timeout(10 * time.Second))
			r.Post("/", SendInvite(d.Invites))
			r.Get("/pending", ListPending(d.Invites))
			r.Get("/sent", ListSent(d.Invites))
			r.Get("/{inviteID}", GetInvite(d.Invites))
			r.Post("/{inviteID}/respond", RespondInvite(d.Invites))
			r.Post("/{inviteID}/cancel", CancelInvite(d.Invites))
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Use(middleware.Timeout(10 * time.Second))
			r.Get("/history", SessionHistory(d.History))
			r.Get("/{sessionID}", GetSession(d.Sessions))
			r.Post("/{sessionID}/word", SubmitWord(d.Sessions))
			r.Post("/{sessionID}/guess", GuessLetter(d.Sessions))
			r.Post("/{sessionID}/leave", LeaveSession(d.Sessions))
		})
	})

	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", UserHeader},
	}).Handler(r)
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
