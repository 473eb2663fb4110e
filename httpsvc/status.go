package httpsvc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/avsej/gocbcore-lite/internal/logger"
	"github.com/avsej/gocbcore-lite/topology"
)

// statusResponse is the JSON body of GET /debug/core/status (spec.md §9,
// "pprof-style local diagnostic endpoint").
type statusResponse struct {
	Status    string      `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// bucketStatus summarizes the currently installed topology for the status
// endpoint: enough to debug routing decisions without dumping every field
// of topology.BucketConfig.
type bucketStatus struct {
	UUID        string            `json:"uuid"`
	Name        string            `json:"name"`
	Revision    topology.Revision `json:"revision"`
	NumVbuckets int               `json:"num_vbuckets"`
	NumReplicas int               `json:"num_replicas"`
	Nodes       []nodeStatus      `json:"nodes"`
}

type nodeStatus struct {
	Hostname string   `json:"hostname"`
	Services []string `json:"services"`
}

// StatusHandler serves the local diagnostic endpoint over the shared
// topology.Store (spec.md §9). It never pulls in pool/dispatcher internals
// directly; a caller that wants pool-level detail wires its own handler
// alongside this one.
type StatusHandler struct {
	Store *topology.Store
}

// Router returns a chi.Router exposing GET /debug/core/status, with the
// same middleware stack (request id, recoverer, structured request log)
// the teacher's pkg/api/router.go applies to its own diagnostic routes.
func (h *StatusHandler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Get("/debug/core/status", h.handleStatus)
	return r
}

func (h *StatusHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	bc := h.Store.Current()
	if bc == nil {
		writeJSON(w, http.StatusServiceUnavailable, statusResponse{
			Status:    "unhealthy",
			Timestamp: time.Now().UTC(),
			Error:     "no topology installed yet",
		})
		return
	}

	nodes := make([]nodeStatus, len(bc.Nodes))
	for i, n := range bc.Nodes {
		var services []string
		for svc := range bc.EnabledServices[i] {
			services = append(services, svc.String())
		}
		nodes[i] = nodeStatus{Hostname: n.Hostname, Services: services}
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Data: bucketStatus{
			UUID:        bc.UUID,
			Name:        bc.Name,
			Revision:    bc.Rev,
			NumVbuckets: len(bc.VbucketMap),
			NumReplicas: bc.NumReplicas,
			Nodes:       nodes,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		logger.Error("httpsvc: failed to encode status response", "error", err)
		http.Error(w, `{"status":"error","error":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Debug("httpsvc: request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).String(),
		)
	})
}
