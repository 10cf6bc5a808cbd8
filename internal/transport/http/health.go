package http

import (
	stdhttp "net/http"
)

// HealthHandler reports liveness. Scanner clients probe it to detect that
// the network is back.
func HealthHandler(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(stdhttp.StatusOK)
	if r.Method == stdhttp.MethodHead {
		return
	}
	_, _ = w.Write([]byte("ok"))
}
