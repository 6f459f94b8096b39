package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/apulibrary/backend/pkg/ctxutil"
)

// RequestID ensures every request carries an id: an inbound X-Request-Id is
// trusted, otherwise one is generated. The id lands in the context and the
// response header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.New().String()
		}
		ctx := ctxutil.WithRequestID(r.Context(), id)
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
