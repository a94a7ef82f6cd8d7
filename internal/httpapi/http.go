// Package httpapi exposes the telephony webhooks, the dashboard REST API,
// and the /ops surface on one mux.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"civic_reports/internal/archive"
	"civic_reports/internal/assistant"
	"civic_reports/internal/cluster"
	"civic_reports/internal/config"
	"civic_reports/internal/intake"
	"civic_reports/internal/logger"
	"civic_reports/internal/metrics"
	"civic_reports/internal/queue"
	"civic_reports/internal/report"
)

// Router builds HTTP handlers for the webhook, /api, and /ops surfaces.
type Router struct {
	cfg       config.Config
	store     *report.Store
	orch      *intake.Orchestrator
	queue     *queue.Queue
	archive   *archive.Archive
	assistant *assistant.Assistant
	log       *logger.Logger
}

func NewRouter(cfg config.Config, st *report.Store, orch *intake.Orchestrator, q *queue.Queue, a *archive.Archive, asst *assistant.Assistant, log *logger.Logger) *Router {
	return &Router{cfg: cfg, store: st, orch: orch, queue: q, archive: a, assistant: asst, log: log}
}

func (r *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("/", r.incomingCall)
	mux.HandleFunc("/process_recording", r.processRecording)
	mux.HandleFunc("/transcription_complete", r.transcriptionComplete)
	mux.HandleFunc("/api/citizen-reports", r.listReports)
	mux.HandleFunc("/api/citizen-reports/", r.reportDetail)
	mux.HandleFunc("/api/ask", r.ask)
	mux.HandleFunc("/ops/status", r.status)
	mux.HandleFunc("/ops/health", r.health)
}

// incomingCall answers the voice webhook with the greeting TwiML. The
// telephony provider may probe with GET, so both methods are accepted.
func (r *Router) incomingCall(w http.ResponseWriter, req *http.Request) {
	if req.URL.Path != "/" {
		http.NotFound(w, req)
		return
	}
	body, err := r.orch.HandleIncomingCall(req.FormValue("CallSid"), req.FormValue("From"))
	if err != nil {
		r.log.WithRequest(req).Errorf("render greeting: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	respondXML(w, body)
}

func (r *Router) processRecording(w http.ResponseWriter, req *http.Request) {
	body, err := r.orch.HandleRecordingFinished(
		req.FormValue("CallSid"),
		req.FormValue("From"),
		req.FormValue("RecordingUrl"),
	)
	if err != nil {
		r.log.WithRequest(req).Errorf("render goodbye: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	respondXML(w, body)
}

func (r *Router) transcriptionComplete(w http.ResponseWriter, req *http.Request) {
	err := r.orch.HandleTranscription(
		req.FormValue("CallSid"),
		req.FormValue("From"),
		req.FormValue("RecordingUrl"),
		req.FormValue("TranscriptionText"),
	)
	if err != nil {
		r.log.WithRequest(req).Warnf("transcription callback: %v", err)
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) listReports(w http.ResponseWriter, req *http.Request) {
	respondJSON(r.log, w, r.store.List())
}

// reportDetail serves /api/citizen-reports/{id}, .../{id}/status, and the
// clusters view.
func (r *Router) reportDetail(w http.ResponseWriter, req *http.Request) {
	rest := strings.TrimPrefix(req.URL.Path, "/api/citizen-reports/")

	if rest == "clusters" {
		r.clusters(w, req)
		return
	}
	if id, ok := strings.CutSuffix(rest, "/status"); ok {
		r.updateStatus(w, req, id)
		return
	}

	rep, err := r.store.Find(rest)
	if err != nil {
		errorJSON(r.log, w, http.StatusNotFound, "Report not found")
		return
	}
	respondJSON(r.log, w, rep)
}

func (r *Router) updateStatus(w http.ResponseWriter, req *http.Request, id string) {
	if req.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || strings.TrimSpace(body.Status) == "" {
		errorJSON(r.log, w, http.StatusBadRequest, "Missing status")
		return
	}
	rep, err := r.orch.UpdateStatus(id, body.Status)
	if err != nil {
		if err == report.ErrNotFound {
			errorJSON(r.log, w, http.StatusNotFound, "Report not found")
			return
		}
		errorJSON(r.log, w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(r.log, w, rep)
}

// ask answers a dashboard question about the current reports.
func (r *Router) ask(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || strings.TrimSpace(body.Message) == "" {
		errorJSON(r.log, w, http.StatusBadRequest, "Message required")
		return
	}
	if r.assistant == nil {
		errorJSON(r.log, w, http.StatusServiceUnavailable, "Assistant not configured")
		return
	}
	answer, err := r.assistant.Ask(req.Context(), body.Message)
	if err != nil {
		r.log.WithRequest(req).Warnf("assistant: %v", err)
		errorJSON(r.log, w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(r.log, w, map[string]string{"response": answer})
}

func (r *Router) clusters(w http.ResponseWriter, req *http.Request) {
	groups := cluster.Group(r.store.List(), cluster.DefaultOptions())
	if groups == nil {
		groups = []cluster.Cluster{}
	}
	respondJSON(r.log, w, groups)
}

func (r *Router) status(w http.ResponseWriter, req *http.Request) {
	var recent []archive.ArchivedReport
	if r.archive != nil {
		recent, _ = r.archive.Recent(req.Context(), 5)
	}
	respondJSON(r.log, w, map[string]any{
		"reports":  r.store.Len(),
		"queue":    r.queue.Stats(),
		"counters": metrics.Snapshot(),
		"mode":     r.cfg.TranscriptionMode,
		"recent":   recent,
	})
}

func (r *Router) health(w http.ResponseWriter, req *http.Request) {
	if !r.queue.Healthy() {
		http.Error(w, "queue not started", http.StatusServiceUnavailable)
		return
	}
	if r.archive != nil {
		if err := r.archive.Health(req.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func respondXML(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/xml")
	_, _ = w.Write(body)
}

func respondJSON(log *logger.Logger, w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Errorf("write json: %v", err)
	}
}

func errorJSON(log *logger.Logger, w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": msg}); err != nil {
		log.Errorf("write json: %v", err)
	}
}
