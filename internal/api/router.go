package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	// Public routes
	r.Post("/register", apiHandler.RegisterHandler)
	r.Post("/login", apiHandler.LoginHandler)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Token-protected routes
	r.Group(func(r chi.Router) {
		r.Use(apiHandler.JWTAuthMiddleware)

		r.Post("/conversations", apiHandler.CreateConversationHandler)
		r.Get("/conversations", apiHandler.ListConversationsHandler)
		r.Get("/conversations/{conversationID}", apiHandler.GetConversationHandler)
		r.Delete("/conversations/{conversationID}", apiHandler.DeleteConversationHandler)

		r.Post("/conversations/{conversationID}/documents", apiHandler.UploadDocumentHandler)
		r.Get("/conversations/{conversationID}/documents", apiHandler.DocumentStatusHandler)

		r.Post("/chat", apiHandler.ChatHandler)
	})

	return r
}
