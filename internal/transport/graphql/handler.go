package graphql

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/vektah/gqlparser/v2/gqlerror"
)

// Handler serves GraphQL queries and mutations over HTTP POST.
type Handler struct {
	exec    *Executor
	log     *slog.Logger
	maxBody int64
}

// NewHandler creates an HTTP handler around the executor. maxBody bounds the
// request body size in bytes.
func NewHandler(log *slog.Logger, exec *Executor, maxBody int64) *Handler {
	return &Handler{
		exec:    exec,
		log:     log.With(slog.String("component", "graphql")),
		maxBody: maxBody,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.writeResponse(w, http.StatusMethodNotAllowed, &Response{
			Errors: gqlerror.List{gqlerror.Errorf("method not allowed")},
		})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeResponse(w, http.StatusBadRequest, &Response{
			Errors: gqlerror.List{gqlerror.Errorf("invalid request body")},
		})
		return
	}

	resp := h.exec.Execute(r.Context(), &req)
	h.writeResponse(w, http.StatusOK, resp)
}

func (h *Handler) writeResponse(w http.ResponseWriter, status int, resp *Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Error("failed to write GraphQL response", slog.String("error", err.Error()))
	}
}
