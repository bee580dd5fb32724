package connectivity

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewHTTPHandler exposes every service of the router at POST /{service}.
// The request body is the payload; the response body is the handler's
// answer. Mount it under a prefix such as /rpc.
func NewHTTPHandler(r *Router) http.Handler {
	mux := chi.NewRouter()
	mux.Post("/{service}", func(w http.ResponseWriter, req *http.Request) {
		service := chi.URLParam(req, "service")
		payload, err := io.ReadAll(io.LimitReader(req.Body, maxResponseBody))
		if err != nil {
			http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
			return
		}
		resp, err := r.Call(req.Context(), service, payload)
		if err != nil {
			var nf *ErrServiceNotFound
			if errors.As(err, &nf) {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if len(resp) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Write(resp)
	})
	return mux
}
