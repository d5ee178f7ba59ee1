package api

import (
	"errors"
	"net/http"

	"github.com/avellano/avellano-bot/internal/broadcast"
	"github.com/avellano/avellano-bot/internal/models"
)

var errBroadcastsDisabled = errors.New("broadcast service not configured")

func (s *Server) listBroadcastsHandler(w http.ResponseWriter, r *http.Request) {
	if s.broadcasts == nil {
		writeError(w, "listBroadcastsHandler", errBroadcastsDisabled)
		return
	}
	list, err := s.broadcasts.List(r.Context())
	if err != nil {
		writeError(w, "listBroadcastsHandler", err)
		return
	}
	if list == nil {
		list = []models.Broadcast{}
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessList(list, len(list)))
}

func (s *Server) getBroadcastHandler(w http.ResponseWriter, r *http.Request) {
	if s.broadcasts == nil {
		writeError(w, "getBroadcastHandler", errBroadcastsDisabled)
		return
	}
	b, err := s.broadcasts.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, "getBroadcastHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(b))
}

// createBroadcastHandler handles POST /api/eventos. Immediate broadcasts are
// delivered before the response; programmed and recurring ones are queued.
func (s *Server) createBroadcastHandler(w http.ResponseWriter, r *http.Request) {
	if s.broadcasts == nil {
		writeError(w, "createBroadcastHandler", errBroadcastsDisabled)
		return
	}
	var req broadcast.Request
	if !s.decodeBody(w, r, "createBroadcastHandler", &req) {
		return
	}
	b, err := s.broadcasts.Create(r.Context(), req, currentUser(r).Email)
	if err != nil {
		writeError(w, "createBroadcastHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, models.Success(b))
}
