package transport

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pulsefeed/pulsefeed-go/pkg/stream"
)

// SessionHeader carries the client session identifier. A client that omits
// it gets a generated session and learns it from the first SSE event.
const SessionHeader = "X-Session-ID"

// Handler serves the SSE streaming endpoints on top of a stream.Service.
type Handler struct {
	service *stream.Service
}

// NewHandler creates an SSE transport handler.
func NewHandler(service *stream.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the streaming endpoints on a chi router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/streams/{category}/{entity}", h.stream)
	r.Get("/healthz", h.health)
}

// parseCategory maps the URL segment to a state category.
func parseCategory(segment string) (stream.Category, bool) {
	switch segment {
	case "orders":
		return stream.CategoryOrder, true
	case "deliveries":
		return stream.CategoryDelivery, true
	case "merchants":
		return stream.CategoryMerchant, true
	default:
		return 0, false
	}
}

// stream handles one SSE subscription for the life of the connection.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	category, ok := parseCategory(chi.URLParam(r, "category"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	entity := stream.EntityID(chi.URLParam(r, "entity"))

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	session := r.Header.Get(SessionHeader)
	if session == "" {
		session = uuid.NewString()
	}

	// Filter criteria travel in the query string; first value wins.
	fields := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			fields[key] = values[0]
		}
	}
	rc := stream.NewRequestContext(session, fields)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Tell the client its session before any update flows, so it can
	// re-register under the same identity after a reconnect.
	fmt.Fprintf(w, "event: session\ndata: %s\n\n", session)
	flusher.Flush()

	emitter := newSSEEmitter(w, flusher)
	if err := h.service.Register(r.Context(), entity, category, rc, emitter); err != nil {
		emitter.CompleteWithError(err)
		return
	}

	select {
	case <-r.Context().Done():
		// Client went away; removal completes the emitter.
		h.service.Unregister(entity, category, session)
	case <-emitter.Done():
		// Terminal send failure, replacement or shutdown: whoever
		// completed the emitter already settled the registry. An extra
		// unregister here could remove a replacement subscription that
		// re-registered under the same session.
	}
}

// health reports active subscription counts.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	counts := h.service.SubscriptionCounts()
	byCategory := make(map[string]int, len(counts))
	for category, n := range counts {
		byCategory[category.String()] = n
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":        "ok",
		"subscriptions": h.service.SubscriptionCount(),
		"by_category":   byCategory,
	})
}
