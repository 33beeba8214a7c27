package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/jason-s-yu/explorers/internal/database"
	"github.com/jason-s-yu/explorers/internal/models"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const (
	qrSize              = 320
	defaultMessageLimit = 50
	maxMessageLimit     = 200
)

// roomView is a persisted room joined with its live state, when it has one.
type roomView struct {
	models.RoomRecord
	Live  bool              `json:"live"`
	Scene string            `json:"scene,omitempty"`
	Props *models.RoomProps `json:"props,omitempty"`
}

func (s *Server) view(rec models.RoomRecord) roomView {
	v := roomView{RoomRecord: rec}
	if room, ok := s.Manager.RoomBySlug(rec.Slug); ok {
		props := room.Props()
		v.Live = true
		v.Scene = room.Scene()
		v.Props = &props
	}
	return v
}

func (s *Server) listGames(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, s.Catalog.Games())
}

func (s *Server) listRooms(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	recs, err := s.Rooms.ListRooms(r.Context())
	if err != nil {
		s.Logger.WithError(err).Error("list rooms")
		writeError(w, http.StatusInternalServerError, "could not list rooms")
		return
	}
	out := make([]roomView, 0, len(recs))
	for _, rec := range recs {
		out = append(out, s.view(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

// roomSlug reads and checks the :slug parameter, answering 400 on failure.
func roomSlug(w http.ResponseWriter, ps httprouter.Params) (string, bool) {
	slug := ps.ByName("slug")
	if !models.IsSlug(slug) {
		writeError(w, http.StatusBadRequest, "invalid room slug")
		return "", false
	}
	return slug, true
}

func (s *Server) getRoom(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	slug, ok := roomSlug(w, ps)
	if !ok {
		return
	}
	rec, err := s.Rooms.GetRoomBySlug(r.Context(), slug)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	if err != nil {
		s.Logger.WithError(err).WithField("roomSlug", slug).Error("get room")
		writeError(w, http.StatusInternalServerError, "could not load room")
		return
	}
	writeJSON(w, http.StatusOK, s.view(*rec))
}

func (s *Server) roomMessages(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	slug, ok := roomSlug(w, ps)
	if !ok {
		return
	}
	limit := defaultMessageLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxMessageLimit)
	}
	msgs, err := s.Chat.RecentMessages(r.Context(), slug, limit)
	if err != nil {
		s.Logger.WithError(err).WithField("roomSlug", slug).Error("room messages")
		writeError(w, http.StatusInternalServerError, "could not load messages")
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// roomQR renders an invite code pointing at the room page.
func (s *Server) roomQR(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	slug, ok := roomSlug(w, ps)
	if !ok {
		return
	}
	url := strings.TrimSuffix(s.PublicURL, "/") + "/" + slug
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "qr generation failed")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}
