package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/knowbase-io/knowbase/internal/api/handlers"
	middleware "github.com/knowbase-io/knowbase/internal/api/middlewares"
)

type Server struct {
	httpServer *http.Server
}

func NewServer(a *App) *Server {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authHandler := handlers.NewAuthHandler(a.DB, a.Cfg.JWTSecret)
	docHandler := handlers.NewDocumentHandler(a.DB, a.Objects, a.Ingestor, a.Cfg.BucketName, a.Log)
	searchHandler := handlers.NewSearchHandler(a.Searcher, a.LLM, a.Cfg, a.Log)
	collHandler := handlers.NewCollectionHandler(a.Store, a.Log)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/signup", authHandler.Signup)
		r.Post("/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.JWTMiddleware(a.Cfg.JWTSecret))

			r.Post("/documents", docHandler.IngestText)
			r.Post("/documents/upload", docHandler.UploadDocument)
			r.Get("/documents", docHandler.GetDocuments)
			r.Get("/documents/{id}", docHandler.GetDocument)
			r.Delete("/documents/{id}", docHandler.DeleteDocument)

			r.Post("/search", searchHandler.Search)
			r.Post("/chat", searchHandler.Chat)

			r.Get("/collections", collHandler.ListCollections)
			r.Delete("/collections/{name}/points", collHandler.ClearCollection)
			r.Delete("/collections/{name}", collHandler.DeleteCollection)
		})
	})

	return &Server{
		httpServer: &http.Server{
			Addr:    ":" + a.Cfg.Port,
			Handler: r,
		},
	}
}

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
