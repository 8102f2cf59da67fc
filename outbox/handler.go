package outbox

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/goliatone/go-federation/core"
)

// Handler serves published outbox documents: the object itself and its
// wrapping activity. Only JSON representations are offered.
type Handler struct {
	store  core.OutboxStore
	origin string
}

func NewHandler(cfg core.Config, store core.OutboxStore) *Handler {
	return &Handler{store: store, origin: cfg.Origin()}
}

// Register mounts the outbox routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /objects/{id}", h.serveObject)
	mux.HandleFunc("GET /objects/{id}/activity", h.serveActivity)
}

func (h *Handler) serveObject(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.load(w, r)
	if !ok {
		return
	}
	writeDocument(w, r, entry.Object)
}

func (h *Handler) serveActivity(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.load(w, r)
	if !ok {
		return
	}
	writeDocument(w, r, entry.Activity)
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (core.OutboxEntry, bool) {
	id := h.origin + "/objects/" + r.PathValue("id")
	entry, err := h.store.Get(r.Context(), id)
	if err != nil {
		mapped := core.MapError(err)
		http.Error(w, mapped.Message, mapped.Code)
		return core.OutboxEntry{}, false
	}
	return entry, true
}

func writeDocument(w http.ResponseWriter, r *http.Request, document map[string]any) {
	if !acceptsJSON(r.Header.Get("Accept")) {
		http.Error(w, "not acceptable", http.StatusNotAcceptable)
		return
	}
	w.Header().Set("Content-Type", core.ActivityStreamsMime)
	json.NewEncoder(w).Encode(document)
}

func acceptsJSON(accept string) bool {
	if strings.TrimSpace(accept) == "" {
		return true
	}
	for _, part := range strings.Split(accept, ",") {
		mime := strings.TrimSpace(part)
		if i := strings.IndexByte(mime, ';'); i >= 0 {
			mime = strings.TrimSpace(mime[:i])
		}
		switch mime {
		case "*/*", "application/*", core.JSONMime, core.JSONLDMime, core.LegacyActivityMime:
			return true
		}
	}
	return false
}
