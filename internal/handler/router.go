package handler

import (
	"net/http"

	"github.com/gorilla/mux"
)

type Handlers struct {
	Notes     *SharedNoteHandler
	Share     *ShareHandler
	WebSocket *WebSocketHandler
	Metrics   http.Handler
}

// Routes mounts the shared note API on r. Middleware is left to the caller.
func Routes(r *mux.Router, h Handlers) {
	r.HandleFunc("/notes", h.Notes.Create).Methods("POST", "OPTIONS")
	r.HandleFunc("/notes/{id}", h.Notes.Get).Methods("GET", "OPTIONS")
	r.HandleFunc("/notes/{id}", h.Notes.Update).Methods("PUT", "OPTIONS")
	r.HandleFunc("/notes/{id}", h.Notes.Delete).Methods("DELETE", "OPTIONS")
	r.HandleFunc("/share", h.Share.Share).Methods("POST", "OPTIONS")

	if h.WebSocket != nil {
		r.HandleFunc("/notes/{id}/ws", h.WebSocket.HandleConnection).Methods("GET")
	}
	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics).Methods("GET")
	}

	r.HandleFunc("/health", healthHandler).Methods("GET")
	r.HandleFunc("/", rootHandler).Methods("GET")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","service":"shared-notes-server"}`))
}

func rootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"message":"Shared Notes API","version":"1.0.0","endpoints":{"/notes":"POST","/notes/{id}":"GET, PUT, DELETE","/notes/{id}/ws":"GET (websocket)","/share":"POST"}}`))
}
