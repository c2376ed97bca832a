package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"

	"github.com/cliproom/cliproom/internal/blob"
	"github.com/cliproom/cliproom/internal/clipboard"
	"github.com/cliproom/cliproom/internal/config"
	"github.com/cliproom/cliproom/internal/server"
	"github.com/cliproom/cliproom/internal/stats"
)

// CliproomApp is the HTTP surface: the clipboard control endpoints, the
// file relay endpoints and the websocket upgrade.
type CliproomApp struct {
	log            *log.Logger
	manager        *clipboard.Manager
	blobs          blob.BlobStore
	gateway        *server.GatewayServer
	stats          stats.StatsProvider
	mux            *http.Server
	allowedOrigins []string
}

func NewCliproomApp(mux *http.ServeMux, logger *log.Logger, gw *server.GatewayServer, manager *clipboard.Manager, blobs blob.BlobStore, sp stats.StatsProvider, cfg *config.Config) *CliproomApp {
	s := &CliproomApp{
		log:            logger,
		manager:        manager,
		blobs:          blobs,
		gateway:        gw,
		stats:          sp,
		allowedOrigins: cfg.AllowedOrigins,
	}

	sp.RegisterMetric(stats.RoomsCreated)
	sp.RegisterMetric(stats.FilesUploaded)

	mux.HandleFunc("POST /api/clipboard/create", s.createClipboard)
	mux.HandleFunc("GET /api/clipboard/{roomCode}/exists", s.clipboardExists)
	mux.HandleFunc("POST /api/clipboard/{roomCode}/verify", s.verifyPassword)
	mux.HandleFunc("POST /api/clipboard/{roomCode}/refresh", s.refreshExpiration)
	mux.HandleFunc("POST /api/clipboard/{roomCode}/files", s.uploadFile)
	mux.HandleFunc("GET /api/clipboard/{roomCode}/files/{fileId}", s.getFile)
	mux.HandleFunc("DELETE /api/clipboard/{roomCode}/files/{fileId}", s.deleteFile)
	mux.HandleFunc("GET /ws", s.serveWs)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *CliproomApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *CliproomApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
