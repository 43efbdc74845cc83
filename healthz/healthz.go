// Package healthz serves liveness and readiness probes for the backend
// binary.
package healthz

import "net/http"

type Handler struct {
}

func New() *Handler {
	return &Handler{}
}

// The probes carry no state: the process is healthy iff it can answer at
// all.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
