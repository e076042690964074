// Package rest is the operator surface: fleet status reads plus the handful
// of floor operations (confirmations, cancel, reset, enable/disable).
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/polyforge/printfarm-go/internal/application/fleet"
	"github.com/polyforge/printfarm-go/internal/domain/shared"
)

// Server serves the operator REST API over one HTTP listener.
type Server struct {
	fleet *fleet.Fleet
	clock shared.Clock
	log   *zap.SugaredLogger

	httpServer *http.Server
}

// Options tunes the server.
type Options struct {
	Address     string
	MetricsPath string // empty disables the metrics endpoint
}

// NewServer builds the operator server and its routes.
func NewServer(fl *fleet.Fleet, clock shared.Clock, log *zap.SugaredLogger, opts Options) *Server {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	s := &Server{fleet: fl, clock: clock, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /printers", s.handlePrinters)
	mux.HandleFunc("GET /pending_filament_changes", s.handlePendingChanges)
	mux.HandleFunc("GET /print_jobs_pending_for_confirmation", s.handlePendingJobs)
	mux.HandleFunc("POST /operations/confirm_filament_change/{id}", s.handleConfirmChange)
	mux.HandleFunc("POST /operations/confirm_job_result/{id}", s.handleConfirmJob)
	mux.HandleFunc("POST /operations/cancel_active_task/{id}", s.handleCancelActive)
	mux.HandleFunc("POST /operations/reset_printer/{id}", s.handleReset)
	mux.HandleFunc("POST /operations/toggle_printer_en_dis/{id}", s.handleToggle)
	if opts.MetricsPath != "" {
		mux.Handle("GET "+opts.MetricsPath, promhttp.Handler())
	}

	s.httpServer = &http.Server{
		Addr:         opts.Address,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving the API until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.log.Infow("operator API listening", "address", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePrinters(w http.ResponseWriter, r *http.Request) {
	now := s.clock.Now()
	var out []printerView
	for _, ctrl := range s.fleet.Controllers() {
		out = append(out, newPrinterView(ctrl, now))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePendingChanges(w http.ResponseWriter, r *http.Request) {
	var out []filamentChangeView
	for _, fc := range s.fleet.PendingChanges() {
		out = append(out, newFilamentChangeView(fc))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePendingJobs(w http.ResponseWriter, r *http.Request) {
	var out []printJobView
	for _, job := range s.fleet.JobsAwaitingConfirmation() {
		out = append(out, newPrintJobView(job))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleConfirmChange(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid filament change id")
		return
	}
	if err := s.fleet.ConfirmFilamentChange(id); err != nil {
		s.writeOperationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "confirmed"})
}

func (s *Server) handleConfirmJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid print job id")
		return
	}
	var body struct {
		Success *bool `json:"success"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Success == nil {
		writeError(w, http.StatusBadRequest, "body must carry a boolean 'success'")
		return
	}
	if err := s.fleet.ConfirmJobResult(id, *body.Success); err != nil {
		s.writeOperationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "confirmed"})
}

func (s *Server) handleCancelActive(w http.ResponseWriter, r *http.Request) {
	printerID, ok := s.printerID(w, r)
	if !ok {
		return
	}
	if err := s.fleet.CancelActiveTask(r.Context(), printerID); err != nil {
		s.writeOperationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "cancelled"})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	printerID, ok := s.printerID(w, r)
	if !ok {
		return
	}
	if err := s.fleet.ResetPrinter(printerID); err != nil {
		s.writeOperationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "reset"})
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	printerID, ok := s.printerID(w, r)
	if !ok {
		return
	}
	disabled, err := s.fleet.TogglePrinter(printerID)
	if err != nil {
		s.writeOperationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"disabled": disabled})
}

func (s *Server) printerID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(strings.TrimSpace(r.PathValue("id")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid printer id")
		return 0, false
	}
	return id, true
}

func (s *Server) writeOperationError(w http.ResponseWriter, err error) {
	if errors.Is(err, shared.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.log.Warnw("operation failed", "error", err)
	writeError(w, http.StatusConflict, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
