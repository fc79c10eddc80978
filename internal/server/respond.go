package server

import (
	"encoding/json"
	"net/http"

	"github.com/tjfontaine/polyglot-webhook-relay/internal/core/domain"
)

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteAck writes the relay's {"code","msg","data"} body, with code mirroring the HTTP status.
func WriteAck(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, domain.Ack{Code: status, Msg: msg, Data: ""})
}
