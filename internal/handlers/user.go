package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/jason-s-yu/explorers/internal/auth"
	"github.com/jason-s-yu/explorers/internal/database"
	"github.com/jason-s-yu/explorers/internal/models"
	"github.com/julienschmidt/httprouter"
)

type userResponse struct {
	User   *models.User      `json:"user,omitempty"`
	Tokens models.AuthTokens `json:"tokens"`
}

func decodeLogin(w http.ResponseWriter, r *http.Request) (models.LoginInput, bool) {
	var in models.LoginInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return in, false
	}
	return in, true
}

// authStatus maps account errors to HTTP status codes.
func authStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, database.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, auth.ErrWrongTokenType):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrNotAnonymous):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrUnknownUser):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *Server) accountError(w http.ResponseWriter, op string, err error) {
	status := authStatus(err)
	if status == http.StatusInternalServerError {
		s.Logger.WithError(err).Error(op)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

// createUser registers an email/password account.
func (s *Server) createUser(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	in, ok := decodeLogin(w, r)
	if !ok {
		return
	}
	user, tokens, err := s.Accounts.SignUp(r.Context(), in)
	if err != nil {
		s.accountError(w, "create user", err)
		return
	}
	writeJSON(w, http.StatusCreated, userResponse{User: user, Tokens: tokens})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	in, ok := decodeLogin(w, r)
	if !ok {
		return
	}
	tokens, err := s.Accounts.SignIn(r.Context(), in)
	if err != nil {
		s.accountError(w, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

// claimUser gives the anonymous user behind the bearer token an email and password.
func (s *Server) claimUser(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !found || token == "" {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}
	in, ok := decodeLogin(w, r)
	if !ok {
		return
	}
	tokens, err := s.Accounts.ClaimAnonymous(r.Context(), token, in)
	if err != nil {
		s.accountError(w, "claim user", err)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}
