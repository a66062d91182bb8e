package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/avdeenkov/roomcast/internal/config"
	"github.com/avdeenkov/roomcast/internal/upload"
)

const maxMultipartMemory = 32 << 20

// Handlers bundles the HTTP endpoints with their collaborators.
type Handlers struct {
	hub      *Hub
	uploads  *upload.Service
	cfg      config.Config
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewHandlers(hub *Hub, uploads *upload.Service, cfg config.Config, log zerolog.Logger) *Handlers {
	policy := newOriginPolicy(cfg.AllowedOrigins, log)
	return &Handlers{
		hub:     hub,
		uploads: uploads,
		cfg:     cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     policy.check,
		},
		log: log,
	}
}

// WebSocket upgrades the request and hands the connection to the hub. Every
// connection gets a fresh id that identifies it in the routing core.
func (h *Handlers) WebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("addr", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	connID := uuid.NewString()
	limiter := newRateLimiter(h.cfg.RateLimit.Burst, h.cfg.RateLimit.RefillInterval())
	client := NewClient(connID, conn, h.hub, r.RemoteAddr, h.cfg.MaxMessageSize,
		limiter, h.log.With().Str("conn_id", connID).Logger())

	h.hub.Register(client)
}

// Health reports that the server is up.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "roomcast server is running")
}

type uploadResponse struct {
	Success bool `json:"success"`
	File    any  `json:"file"`
}

// Upload accepts one multipart file, stores it by MIME category, and
// returns the attachment descriptor clients attach to send_message.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadSize)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "file required")
		return
	}
	defer file.Close()

	if header.Size < 0 || header.Size > h.cfg.MaxUploadSize {
		writeJSONError(w, http.StatusBadRequest, "file size exceeds limit")
		return
	}

	att, err := h.uploads.Save(header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to store upload")
		writeJSONError(w, http.StatusInternalServerError, "failed to store file")
		return
	}

	h.log.Info().Str("filename", att.Filename).Int64("size", att.SizeBytes).Msg("file uploaded")

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(uploadResponse{Success: true, File: att})
}

func writeJSONError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
