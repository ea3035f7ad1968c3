// Package health serves liveness and readiness probes.
package health

import (
	"net/http"
	"sync"
)

// Healthz returns 200 "ok\n" unconditionally.
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// Readiness gates /readyz on the startup self-check. The zero value is not
// ready.
type Readiness struct {
	mu     sync.RWMutex
	ready  bool
	reason string
}

// Set records the readiness state. reason is reported while not ready.
func (r *Readiness) Set(ready bool, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ready = ready
	r.reason = reason
}

// Ready reports the current state and, if not ready, why.
func (r *Readiness) Ready() (bool, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ready, r.reason
}

// Readyz returns 200 "ready\n" once the self-check has passed and 503 with
// the reason before that.
func (r *Readiness) Readyz(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	ok, reason := r.Ready()
	if !ok {
		if reason == "" {
			reason = "starting"
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("not ready: " + reason + "\n"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready\n"))
}
