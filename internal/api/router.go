package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

func NewRouter(apiHandler *APIHandler, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// All API routes live under /api
	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Post("/signup", apiHandler.SignupHandler)
		r.Post("/login", apiHandler.LoginHandler)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		// User-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)

			// Dream entries
			r.Post("/dreams", apiHandler.CreateDreamHandler)
			r.Get("/dreams", apiHandler.ListDreamsHandler)
			r.Get("/dreams/{dreamID}", apiHandler.GetDreamHandler)
			r.Patch("/dreams/{dreamID}", apiHandler.UpdateDreamHandler)
			r.Delete("/dreams/{dreamID}", apiHandler.DeleteDreamHandler)

			// Per-entry chat
			r.Post("/dreams/{dreamID}/messages", apiHandler.PostMessageHandler)

			// Clarifying questions
			r.Post("/questions/{questionID}/answer", apiHandler.AnswerQuestionHandler)

			// Community + profile
			r.Get("/community", apiHandler.CommunityHandler)
			r.Get("/profile", apiHandler.GetProfileHandler)
			r.Put("/profile", apiHandler.UpdateProfileHandler)

			// Admin listings
			r.Group(func(r chi.Router) {
				r.Use(apiHandler.AdminOnlyMiddleware)
				r.Get("/admin/dreams", apiHandler.AdminListDreamsHandler)
				r.Get("/admin/dreams/{dreamID}", apiHandler.AdminGetDreamHandler)
				r.Get("/admin/tags", apiHandler.AdminListTagsHandler)
				r.Get("/admin/symbols", apiHandler.AdminListSymbolsHandler)
			})
		})
	})

	return r
}

// requestLogger emits one structured log line per request.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("request")
		})
	}
}
