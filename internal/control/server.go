// Package control exposes the daemon over a loopback HTTP API. The CLI
// and any local UI talk to the daemon exclusively through this surface.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/bastionhq/bastion/internal/coordinator"
	"github.com/bastionhq/bastion/internal/domain"
)

// Server is the daemon's control API.
type Server struct {
	coord     *coordinator.Coordinator
	catalog   domain.CatalogStore
	schedules domain.ScheduleStore
	history   domain.HistoryStore
	verifier  domain.CredentialVerifier
	processes domain.ProcessManager
	logger    *zap.Logger
}

// NewServer wires the control API over the daemon's components.
func NewServer(
	coord *coordinator.Coordinator,
	catalog domain.CatalogStore,
	schedules domain.ScheduleStore,
	history domain.HistoryStore,
	verifier domain.CredentialVerifier,
	processes domain.ProcessManager,
	logger *zap.Logger,
) *Server {
	return &Server{
		coord:     coord,
		catalog:   catalog,
		schedules: schedules,
		history:   history,
		verifier:  verifier,
		processes: processes,
		logger:    logger,
	}
}

// Router builds the chi router for the control API.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.getStatus)
		r.Get("/events", s.streamEvents)

		r.Route("/session", func(r chi.Router) {
			r.Post("/start", s.startSession)
			r.Post("/stop", s.stopSession)
			r.Post("/override", s.overrideSession)
		})

		r.Route("/pomodoro", func(r chi.Router) {
			r.Post("/start", s.startPhase)
			r.Post("/pause", s.pausePhase)
			r.Post("/reset", s.resetPhase)
			r.Put("/config", s.configurePhases)
		})

		r.Route("/blocks", func(r chi.Router) {
			r.Get("/sites", s.listSites)
			r.Post("/sites", s.addSite)
			r.Patch("/sites/{id}", s.setSiteEnabled)
			r.Delete("/sites/{id}", s.deleteSite)

			r.Get("/apps", s.listApps)
			r.Post("/apps", s.addApp)
			r.Patch("/apps/{id}", s.setAppEnabled)
			r.Delete("/apps/{id}", s.deleteApp)
		})

		r.Route("/schedules", func(r chi.Router) {
			r.Get("/", s.listSchedules)
			r.Post("/", s.addSchedule)
			r.Delete("/{id}", s.deleteSchedule)
		})

		r.Route("/history", func(r chi.Router) {
			r.Get("/blocks", s.recentBlocks)
			r.Get("/stats", s.stats)
		})

		r.Get("/processes", s.listProcesses)
		r.Post("/secret", s.setSecret)
	})

	return r
}

// ListenAndServe binds the control API and serves until ctx is canceled.
// The bind address must be loopback; the API carries no authentication
// beyond OS-level reachability.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("control API listening", zap.String("addr", ln.Addr().String()))
	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// --- session ---

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.coord.Snapshot(), http.StatusOK)
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label           string `json:"label"`
		DurationSeconds int64  `json:"duration_seconds"`
		Hardcore        bool   `json:"hardcore"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	session, err := s.coord.StartSession(req.Label, time.Duration(req.DurationSeconds)*time.Second, req.Hardcore)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, session, http.StatusCreated)
}

func (s *Server) stopSession(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.StopSession(); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) overrideSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Secret string `json:"secret"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.coord.OverrideStopSession(req.Secret); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- pomodoro ---

func (s *Server) startPhase(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.TogglePhaseRunning(true); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) pausePhase(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.TogglePhaseRunning(false); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) resetPhase(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.ResetPhase(); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) configurePhases(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkMinutes             int `json:"work_minutes"`
		ShortBreakMinutes       int `json:"short_break_minutes"`
		LongBreakMinutes        int `json:"long_break_minutes"`
		IntervalsUntilLongBreak int `json:"intervals_until_long_break"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	cfg := domain.PhaseConfig{
		Work:                    time.Duration(req.WorkMinutes) * time.Minute,
		ShortBreak:              time.Duration(req.ShortBreakMinutes) * time.Minute,
		LongBreak:               time.Duration(req.LongBreakMinutes) * time.Minute,
		IntervalsUntilLongBreak: req.IntervalsUntilLongBreak,
	}
	if err := s.coord.ConfigurePhases(cfg); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- block catalog ---

func (s *Server) listSites(w http.ResponseWriter, r *http.Request) {
	sites, err := s.catalog.GetBlockedSites()
	if err != nil {
		respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, sites, http.StatusOK)
}

func (s *Server) addSite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Domain   string `json:"domain"`
		Category string `json:"category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Domain == "" {
		respondError(w, "domain is required", http.StatusBadRequest)
		return
	}

	id, err := s.catalog.AddBlockedSite(req.Domain, req.Category)
	if err != nil {
		respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, map[string]int64{"id": id}, http.StatusCreated)
}

func (s *Server) setSiteEnabled(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.catalog.SetBlockedSiteEnabled(id, req.Enabled); err != nil {
		respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteSite(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.catalog.DeleteBlockedSite(id); err != nil {
		respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listApps(w http.ResponseWriter, r *http.Request) {
	apps, err := s.catalog.GetBlockedApps()
	if err != nil {
		respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, apps, http.StatusOK)
}

func (s *Server) addApp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		ProcessName string `json:"process_name"`
		Category    string `json:"category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProcessName == "" {
		respondError(w, "process_name is required", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		req.Name = req.ProcessName
	}

	id, err := s.catalog.AddBlockedApp(req.Name, req.ProcessName, req.Category)
	if err != nil {
		respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, map[string]int64{"id": id}, http.StatusCreated)
}

func (s *Server) setAppEnabled(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.catalog.SetBlockedAppEnabled(id, req.Enabled); err != nil {
		respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteApp(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.catalog.DeleteBlockedApp(id); err != nil {
		respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- schedules ---

func (s *Server) listSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := s.schedules.GetSchedules()
	if err != nil {
		respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, schedules, http.StatusOK)
}

func (s *Server) addSchedule(w http.ResponseWriter, r *http.Request) {
	var req domain.Schedule
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Days) == 0 || req.StartTime == "" || req.EndTime == "" {
		respondError(w, "days, start_time and end_time are required", http.StatusBadRequest)
		return
	}

	id, err := s.schedules.AddSchedule(req)
	if err != nil {
		respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, map[string]int64{"id": id}, http.StatusCreated)
}

func (s *Server) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.schedules.DeleteSchedule(id); err != nil {
		respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- history, processes, secret ---

func (s *Server) recentBlocks(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	events, err := s.history.GetRecentBlocks(limit)
	if err != nil {
		respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, events, http.StatusOK)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 7)
	stats, err := s.history.GetStats(days)
	if err != nil {
		respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, stats, http.StatusOK)
}

func (s *Server) listProcesses(w http.ResponseWriter, r *http.Request) {
	procs, err := s.processes.List()
	if err != nil {
		respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, procs, http.StatusOK)
}

func (s *Server) setSecret(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Secret string `json:"secret"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.verifier.SetSecret(req.Secret); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- helpers ---

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, "invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func respondJSON(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, map[string]string{"error": message}, status)
}

// respondDomainError maps domain sentinel errors to HTTP statuses.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrLocked):
		respondError(w, err.Error(), http.StatusLocked)
	case errors.Is(err, domain.ErrUnauthorized):
		respondError(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, domain.ErrAlreadyRunning):
		respondError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrNoSession):
		respondError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidDuration),
		errors.Is(err, domain.ErrInvalidConfig),
		errors.Is(err, domain.ErrInvalidSecret),
		errors.Is(err, domain.ErrEmptyCredential):
		respondError(w, err.Error(), http.StatusBadRequest)
	default:
		respondError(w, err.Error(), http.StatusInternalServerError)
	}
}
