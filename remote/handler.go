package remote

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/denster32/dogtv-datacore/logger"
	"github.com/denster32/dogtv-datacore/models"
)

// Handler exposes a Replica over the pull/push HTTP protocol consumed by
// NewHTTPReplica. It lets an integrating application stand up a replica
// endpoint with any Replica implementation behind it.
type Handler struct {
	replica Replica
	token   string
	log     *logger.Logger
}

// NewHandler wraps replica. When token is non-empty every request must
// carry it as a bearer token.
func NewHandler(replica Replica, token string, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{replica: replica, token: token, log: log}
}

// Init builds the chi router for the sync endpoints.
func (h *Handler) Init() *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	router.Group(func(r chi.Router) {
		if h.token != "" {
			r.Use(h.requireToken)
		}
		r.Get("/api/sync/pull", h.pull)
		r.Post("/api/sync/push", h.push)
	})

	return router
}

func (h *Handler) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		got, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || got != h.token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) pull(w http.ResponseWriter, r *http.Request) {
	since := models.SyncCursor(r.URL.Query().Get("since"))

	result, err := h.replica.Pull(r.Context(), since)
	if err != nil {
		h.log.Err(err).Str("func", "*Handler.pull").Msg("error pulling changes")
		http.Error(w, "error pulling changes", statusFromError(err))
		return
	}

	writeJSON(w, pullResponse{Changes: result.Changes, Next: result.Next}, http.StatusOK)
}

func (h *Handler) push(w http.ResponseWriter, r *http.Request) {
	var req pushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Err(err).Str("func", "*Handler.push").Msg("invalid JSON was passed")
		http.Error(w, "invalid JSON was passed", http.StatusBadRequest)
		return
	}

	acks, err := h.replica.Push(r.Context(), req.Changes)
	if err != nil {
		h.log.Err(err).Str("func", "*Handler.push").Msg("error applying pushed changes")
		http.Error(w, "error applying pushed changes", statusFromError(err))
		return
	}

	writeJSON(w, pushResponse{Acks: acks, Length: len(acks)}, http.StatusOK)
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, data any, statusCode int) {
	payload, err := json.Marshal(data)
	if err != nil {
		http.Error(w, "error writing data to JSON", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(payload)
}
