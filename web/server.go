package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrUnsupportedPlatform is returned when browser opening is not supported.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

//go:embed static/*
var staticFiles embed.FS

// EngineController defines the subset of the audio engine the monitoring UI
// can read and mutate at runtime.
type EngineController interface {
	LoudnessFactor() float32
	SetLoudnessFactor(v float32)
	PauseAudioPlayback() bool
	SetPauseAudioPlayback(v bool)
	PauseConvolution() bool
	SetPauseConvolution(v bool)
	LoopSound() bool
	SetLoopSound(v bool)
	ClipCount() uint64
	UnderrunCount() uint64
	DirtyChannelCounts() (ds, er, lr, sd int)
	PlayerNames() []string
	PlayerState(name string) (playing, looping bool, volume float32, ok bool)
	SetPlayerPlaying(name string, playing bool) bool
	SetPlayerVolume(name string, volume float32) bool
	StopAllPlayers()
}

// Message represents a WebSocket message.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// StatePayload represents the engine's current runtime-mutable state.
type StatePayload struct {
	Loudness           float64 `json:"loudness"`
	LoopSound          bool    `json:"loopSound"`
	PauseAudioPlayback bool    `json:"pauseAudioPlayback"`
	PauseConvolution   bool    `json:"pauseConvolution"`
}

// PlayerPayload represents one registered player for JSON serialization.
type PlayerPayload struct {
	Name    string  `json:"name"`
	Playing bool    `json:"playing"`
	Looping bool    `json:"looping"`
	Volume  float64 `json:"volume"`
}

// MetersPayload represents a periodic engine-health snapshot.
type MetersPayload struct {
	ClipCount     uint64 `json:"clipCount"`
	UnderrunCount uint64 `json:"underrunCount"`
	DirtyDS       int    `json:"dirtyDS"`
	DirtyER       int    `json:"dirtyER"`
	DirtyLR       int    `json:"dirtyLR"`
	DirtySD       int    `json:"dirtySD"`
}

// Server is the web server for the binaural auralization monitoring UI.
type Server struct {
	engine     EngineController
	port       int
	hub        *Hub
	httpServer *http.Server
}

// NewServer creates a new web server bound to engine.
func NewServer(engine EngineController, port int) *Server {
	return &Server{
		engine: engine,
		port:   port,
		hub:    NewHub(),
	}
}

// Start starts the web server.
func (s *Server) Start() error {
	go s.hub.Run()
	go s.meterBroadcastLoop()

	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return fmt.Errorf("failed to create static file system: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/api/state", s.handleAPIState)
	mux.HandleFunc("/api/players", s.handleAPIPlayers)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Web server starting", "port", s.port, "url", fmt.Sprintf("http://localhost:%d", s.port))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// handleIndex serves the main HTML page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	data, err := staticFiles.ReadFile("static/index.html")
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(data)
}

//nolint:gochecknoglobals // WebSocket upgrader configuration
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// handleWebSocket handles WebSocket connections.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, 256),
	}

	s.hub.register <- client

	s.sendState(client)
	s.sendPlayerList(client)

	go client.writePump()
	client.readPump(func(msg []byte) {
		s.handleClientMessage(msg)
	})
}

func (s *Server) statePayload() StatePayload {
	return StatePayload{
		Loudness:           float64(s.engine.LoudnessFactor()),
		LoopSound:          s.engine.LoopSound(),
		PauseAudioPlayback: s.engine.PauseAudioPlayback(),
		PauseConvolution:   s.engine.PauseConvolution(),
	}
}

func (s *Server) playerList() []PlayerPayload {
	names := s.engine.PlayerNames()
	list := make([]PlayerPayload, 0, len(names))
	for _, name := range names {
		playing, looping, volume, ok := s.engine.PlayerState(name)
		if !ok {
			continue
		}
		list = append(list, PlayerPayload{Name: name, Playing: playing, Looping: looping, Volume: float64(volume)})
	}
	return list
}

// sendState sends the current state to a client.
func (s *Server) sendState(client *Client) {
	msg := Message{Type: "state", Payload: s.statePayload()}
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to marshal state", "error", err)
		return
	}
	client.send <- data
}

// sendPlayerList sends the current player list to a client.
func (s *Server) sendPlayerList(client *Client) {
	msg := Message{Type: "player_list", Payload: s.playerList()}
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to marshal player list", "error", err)
		return
	}
	client.send <- data
}

// handleClientMessage handles incoming WebSocket messages.
func (s *Server) handleClientMessage(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Error("Failed to parse WebSocket message", "error", err)
		return
	}

	payload, _ := msg.Payload.(map[string]interface{})

	switch msg.Type {
	case "set_loudness":
		if value, ok := payload["value"].(float64); ok {
			s.engine.SetLoudnessFactor(float32(value))
			s.broadcastParamChange("loudness", value)
		}

	case "set_loop_sound":
		if value, ok := payload["value"].(bool); ok {
			s.engine.SetLoopSound(value)
			s.broadcastParamChange("loopSound", value)
		}

	case "set_pause_audio":
		if value, ok := payload["value"].(bool); ok {
			s.engine.SetPauseAudioPlayback(value)
			s.broadcastParamChange("pauseAudioPlayback", value)
		}

	case "set_pause_convolution":
		if value, ok := payload["value"].(bool); ok {
			s.engine.SetPauseConvolution(value)
			s.broadcastParamChange("pauseConvolution", value)
		}

	case "set_player_playing":
		name, _ := payload["name"].(string)
		playing, _ := payload["playing"].(bool)
		if name != "" && s.engine.SetPlayerPlaying(name, playing) {
			s.broadcastPlayerList()
		}

	case "set_player_volume":
		name, _ := payload["name"].(string)
		value, okVal := payload["value"].(float64)
		if name != "" && okVal && s.engine.SetPlayerVolume(name, float32(value)) {
			s.broadcastPlayerList()
		}

	case "stop_all_players":
		s.engine.StopAllPlayers()
		s.broadcastPlayerList()
	}
}

// broadcastParamChange broadcasts a parameter change to all clients.
func (s *Server) broadcastParamChange(param string, value interface{}) {
	msg := Message{
		Type: "param_changed",
		Payload: map[string]interface{}{
			"param": param,
			"value": value,
		},
	}
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to marshal param change", "error", err)
		return
	}
	s.hub.Broadcast(data)
}

// broadcastPlayerList broadcasts the current player list to all clients.
func (s *Server) broadcastPlayerList() {
	msg := Message{Type: "player_list", Payload: s.playerList()}
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to marshal player list", "error", err)
		return
	}
	s.hub.Broadcast(data)
}

// meterBroadcastLoop broadcasts meter values at 50ms intervals.
func (s *Server) meterBroadcastLoop() {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		if s.hub.ClientCount() == 0 {
			continue // No clients, skip
		}

		ds, er, lr, sd := s.engine.DirtyChannelCounts()
		meters := MetersPayload{
			ClipCount:     s.engine.ClipCount(),
			UnderrunCount: s.engine.UnderrunCount(),
			DirtyDS:       ds,
			DirtyER:       er,
			DirtyLR:       lr,
			DirtySD:       sd,
		}

		msg := Message{Type: "meters", Payload: meters}
		data, err := json.Marshal(msg)
		if err != nil {
			continue // Skip this tick on marshal error
		}
		s.hub.Broadcast(data)
	}
}

// handleAPIState handles the REST API state endpoint.
func (s *Server) handleAPIState(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	//nolint:errchkjson // StatePayload is a well-defined struct
	_ = json.NewEncoder(w).Encode(s.statePayload())
}

// handleAPIPlayers handles the REST API player-list endpoint.
func (s *Server) handleAPIPlayers(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	//nolint:errchkjson // PlayerPayload slice is well-defined
	_ = json.NewEncoder(w).Encode(s.playerList())
}

// OpenBrowser opens the default browser to the specified URL.
func OpenBrowser(url string) error {
	ctx := context.Background()
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "linux":
		cmd = exec.CommandContext(ctx, "xdg-open", url)
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", url)
	case "windows":
		cmd = exec.CommandContext(ctx, "cmd", "/c", "start", url)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedPlatform, runtime.GOOS)
	}

	return cmd.Start()
}
