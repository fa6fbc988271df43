package statehttp

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mcdev12/wordrush/internal/game"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

// EngineView is the slice of the engine the handler reads. It matches the
// upward interface exposed to presentation collaborators.
type EngineView interface {
	EffectiveState() *game.Game
	Players() []game.Player
	TimeLeft() int
	CanSubmit() bool
	Now() time.Time
}

// StateResponse is the JSON view served to the UI.
type StateResponse struct {
	Game      *game.Game    `json:"game"`
	Players   []game.Player `json:"players"`
	TimeLeft  int           `json:"time_left_sec"`
	CanSubmit bool          `json:"can_submit"`
	Now       time.Time     `json:"server_now"`
}

// Handler serves the engine's effective state over local HTTP for a browser
// UI. Read-only: submissions still go through the engine API.
type Handler struct {
	engine EngineView
}

// NewHandler creates a state handler over one engine session.
func NewHandler(engine EngineView) *Handler {
	return &Handler{engine: engine}
}

// HandleGetState handles GET /api/state.
func (h *Handler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := StateResponse{
		Game:      h.engine.EffectiveState(),
		Players:   h.engine.Players(),
		TimeLeft:  h.engine.TimeLeft(),
		CanSubmit: h.engine.CanSubmit(),
		Now:       h.engine.Now(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("failed to encode state response")
	}
}

// HandleHealth handles GET /health.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		log.Error().Err(err).Msg("failed to write health check response")
	}
}

// NewServer builds an HTTP server serving the state API with CORS enabled
// for browser UIs.
func NewServer(addr string, engine EngineView) *http.Server {
	h := NewHandler(engine)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", h.HandleGetState)
	mux.HandleFunc("/health", h.HandleHealth)

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodHead, http.MethodGet},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	return &http.Server{
		Addr:    addr,
		Handler: c.Handler(mux),
	}
}
