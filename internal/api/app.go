package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/parley-chat/parley/internal/config"
	"github.com/parley-chat/parley/internal/database"
	"github.com/parley-chat/parley/internal/server"
	"github.com/parley-chat/parley/internal/stats"
)

type ParleyApp struct {
	log            *log.Logger
	db             database.ChatRepository
	mux            *http.Server
	cs             *server.ChatServer
	stats          stats.StatsProvider
	signingKey     []byte
	allowedOrigins []string
}

func NewParleyApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, db database.ChatRepository, st stats.StatsProvider, cfg *config.Config) *ParleyApp {
	s := &ParleyApp{
		log:            logger,
		db:             db,
		cs:             cs,
		stats:          st,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.Handle("GET /api/auth/session", s.authMiddleware(s.session))
	mux.Handle("PUT /api/auth/account", s.authMiddleware(s.updateAccount))
	mux.Handle("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.Handle("POST /api/rooms", s.authMiddleware(s.createRoom))
	mux.Handle("GET /api/rooms", s.authMiddleware(s.getRoom))
	mux.Handle("DELETE /api/rooms", s.authMiddleware(s.deleteRoom))
	mux.Handle("GET /api/memberships", s.authMiddleware(s.listRooms))
	mux.Handle("POST /api/memberships", s.authMiddleware(s.joinRoom))
	mux.Handle("DELETE /api/memberships", s.authMiddleware(s.leaveRoom))
	mux.Handle("GET /api/members", s.authMiddleware(s.getRoomMembers))
	mux.Handle("GET /api/messages", s.authMiddleware(s.getMessages))
	mux.Handle("PUT /api/messages", s.authMiddleware(s.updateMessage))
	mux.Handle("DELETE /api/messages", s.authMiddleware(s.deleteMessage))
	mux.Handle("POST /api/reactions", s.authMiddleware(s.addReaction))
	mux.Handle("DELETE /api/reactions", s.authMiddleware(s.removeReaction))
	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
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

func (s *ParleyApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *ParleyApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
