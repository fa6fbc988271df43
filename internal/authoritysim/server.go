package authoritysim

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/wordrush/internal/authority"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

// Server exposes the simulator over the authority HTTP/JSON API consumed by
// authority.HTTPClient, plus the WebSocket event feed consumed by
// reconcile.WSFeedSource.
type Server struct {
	sim *Sim
	hub *Hub
}

// NewServer creates a server over sim. hub may be nil when the WebSocket
// feed is not wanted.
func NewServer(sim *Sim, hub *Hub) *Server {
	return &Server{sim: sim, hub: hub}
}

type createRoomRequest struct {
	RoomID          uuid.UUID    `json:"room_id"`
	Players         []PlayerSpec `json:"players"`
	TurnDurationSec int          `json:"turn_duration_sec"`
}

type submitRequest struct {
	PlayerID uuid.UUID `json:"player_id"`
	TurnSeq  int64     `json:"turn_seq"`
	Word     string    `json:"word"`
}

type timeoutRequest struct {
	PlayerID uuid.UUID `json:"player_id"`
}

// RegisterRoutes registers the API routes on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/time", s.handleGetTime)
	mux.HandleFunc("POST /api/rooms", s.handleCreateRoom)
	mux.HandleFunc("GET /api/rooms/{id}/state", s.handleGetState)
	mux.HandleFunc("POST /api/rooms/{id}/start", s.handleStart)
	mux.HandleFunc("POST /api/rooms/{id}/submit", s.handleSubmit)
	mux.HandleFunc("POST /api/rooms/{id}/timeout", s.handleTimeout)
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.hub != nil {
		mux.HandleFunc("GET /ws/rooms", s.hub.HandleRoomFeed)
	}
}

// NewHTTPServer builds the http.Server with CORS wrapping, listening on addr.
func (s *Server) NewHTTPServer(addr string) *http.Server {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	return &http.Server{
		Addr:    addr,
		Handler: c.Handler(mux),
	}
}

func (s *Server) handleGetTime(w http.ResponseWriter, r *http.Request) {
	now, _ := s.sim.GetServerTime(r.Context())
	writeJSON(w, http.StatusOK, map[string]time.Time{"server_time": now})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		log.Error().Err(err).Msg("failed to write health check response")
	}
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.RoomID == uuid.Nil {
		req.RoomID = uuid.New()
	}

	state, err := s.sim.CreateRoom(req.RoomID, req.Players, req.TurnDurationSec)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, state)
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	roomID, ok := roomIDFromPath(w, r)
	if !ok {
		return
	}
	state, err := s.sim.GetRoomState(r.Context(), roomID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	roomID, ok := roomIDFromPath(w, r)
	if !ok {
		return
	}
	g, err := s.sim.StartGame(r.Context(), roomID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"game": g})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	roomID, ok := roomIDFromPath(w, r)
	if !ok {
		return
	}
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := s.sim.SubmitWord(r.Context(), authority.SubmitWordRequest{
		RoomID:   roomID,
		PlayerID: req.PlayerID,
		TurnSeq:  req.TurnSeq,
		Word:     req.Word,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleTimeout(w http.ResponseWriter, r *http.Request) {
	roomID, ok := roomIDFromPath(w, r)
	if !ok {
		return
	}
	var req timeoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := s.sim.HandleTimeout(r.Context(), roomID, req.PlayerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func roomIDFromPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	roomID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid room id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return roomID, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// writeError maps benign races to 409 with their code so the HTTP client
// can classify them; everything else is a 500.
func writeError(w http.ResponseWriter, err error) {
	var benign *authority.BenignError
	if errors.As(err, &benign) {
		writeJSON(w, http.StatusConflict, map[string]string{
			"code":    benign.Code,
			"message": benign.Message,
		})
		return
	}
	log.Error().Err(err).Msg("command failed")
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"code":    "internal",
		"message": err.Error(),
	})
}

// Shutdown gracefully stops the WebSocket hub, if any.
func (s *Server) Shutdown(ctx context.Context) {
	if s.hub != nil {
		s.hub.CloseAll()
	}
}
