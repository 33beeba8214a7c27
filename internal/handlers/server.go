// Package handlers exposes the entity world over a websocket and a small JSON API.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/jason-s-yu/explorers/internal/catalog"
	"github.com/jason-s-yu/explorers/internal/database"
	"github.com/jason-s-yu/explorers/internal/entities"
	"github.com/jason-s-yu/explorers/internal/middleware"
	"github.com/jason-s-yu/explorers/internal/models"
	"github.com/jason-s-yu/explorers/internal/services"
	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
)

// Accounts is the part of the auth provider the user endpoints need.
type Accounts interface {
	SignUp(ctx context.Context, in models.LoginInput) (*models.User, models.AuthTokens, error)
	SignIn(ctx context.Context, in models.LoginInput) (models.AuthTokens, error)
	ClaimAnonymous(ctx context.Context, accessToken string, in models.LoginInput) (models.AuthTokens, error)
}

// Server holds what the HTTP and websocket handlers share.
type Server struct {
	Manager        *entities.Manager
	Rooms          database.Store
	Chat           services.ChatStore
	Accounts       Accounts
	Catalog        *catalog.Catalog
	Logger         *logrus.Logger
	PublicURL      string
	AllowedOrigins []string
}

// Router registers every route and wraps them in request logging.
func (s *Server) Router() http.Handler {
	mux := httprouter.New()

	mux.GET("/healthz", s.healthz)
	mux.GET("/ws", s.serveWS)

	mux.GET("/games", s.listGames)
	mux.GET("/rooms", s.listRooms)
	mux.GET("/rooms/:slug", s.getRoom)
	mux.GET("/rooms/:slug/messages", s.roomMessages)
	mux.GET("/rooms/:slug/qr", s.roomQR)

	mux.POST("/user/create", s.createUser)
	mux.POST("/user/login", s.login)
	mux.POST("/user/claim", s.claimUser)

	return middleware.LogMiddleware(s.Logger)(mux)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"entities": s.Manager.World().Len(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
