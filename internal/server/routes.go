package server

import "net/http"

// SetupRoutes wires the HTTP endpoints: health check, WebSocket upgrade,
// file upload, and static serving of stored uploads.
func SetupRoutes(h *Handlers, uploadDir string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", h.Health)
	mux.HandleFunc("/ws", h.WebSocket)
	mux.HandleFunc("/upload", h.Upload)
	mux.Handle("/uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(uploadDir))))
	return mux
}
