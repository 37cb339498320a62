package api

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"pfsync/models"
	"pfsync/services"
	"pfsync/storage"
)

// maxFailureSample bounds the per-record failure list returned over HTTP.
// The full list stays in the logs and the run history.
const maxFailureSample = 5

// Pinger is the store health probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RunLister reads recent run history.
type RunLister interface {
	RecentRuns(limit int) ([]models.Run, error)
}

// Server exposes the pipeline over HTTP. Runs triggered here share one
// RunGuard with the scheduler, so a manual trigger during a scheduled
// run is rejected with 409 instead of piling on.
type Server struct {
	sync    *services.SyncService
	cleanup *services.CleanupService
	guard   *services.RunGuard
	store   Pinger
	runs    RunLister
}

func NewServer(sync *services.SyncService, cleanup *services.CleanupService, guard *services.RunGuard, store Pinger, runs RunLister) *Server {
	return &Server{sync: sync, cleanup: cleanup, guard: guard, store: store, runs: runs}
}

// handleSync triggers a full sync run: POST /sync.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if !s.guard.TryAcquire() {
		writeError(w, http.StatusConflict, "a run is already in progress")
		return
	}
	defer s.guard.Release()

	report, err := s.sync.Run(r.Context())
	if err != nil {
		log.Printf("sync run failed: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, trimFailures(report))
}

// handleCleanup triggers a reconciliation run: POST /cleanup.
func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	opts := services.CleanupOptions{
		DryRun:          queryBool(r, "dryRun"),
		ReturnIDs:       queryBool(r, "returnIds"),
		ProgressEvery:   queryInt(r, "progressEvery"),
		SampleCap:       queryInt(r, "sampleCap"),
		DeleteChunkSize: queryInt(r, "deleteChunkSize"),
		AgentChunkSize:  queryInt(r, "agentChunkSize"),
	}

	if !s.guard.TryAcquire() {
		writeError(w, http.StatusConflict, "a run is already in progress")
		return
	}
	defer s.guard.Release()

	report, err := s.cleanup.Run(r.Context(), opts)
	if err != nil {
		log.Printf("cleanup run failed: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleHealth reports process and store health: GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := map[string]string{"status": "ok", "database": "ok"}
	code := http.StatusOK
	if err := s.store.Ping(ctx); err != nil {
		status["status"] = "degraded"
		status["database"] = err.Error()
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// handleRuns lists recent runs: GET /runs?limit=N.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeJSON(w, http.StatusOK, []models.Run{})
		return
	}
	runs, err := s.runs.RecentRuns(queryInt(r, "limit"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// trimFailures caps the failure sample in the HTTP payload without
// mutating the report the run history already recorded.
func trimFailures(report *services.SyncReport) *services.SyncReport {
	if len(report.Failures) <= maxFailureSample {
		return report
	}
	trimmed := *report
	trimmed.Failures = report.Failures[:maxFailureSample]
	return &trimmed
}

func queryBool(r *http.Request, key string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(key))
	return err == nil && v
}

func queryInt(r *http.Request, key string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return v
}

var _ Pinger = (*storage.MongoStore)(nil)
var _ RunLister = (*storage.RunLog)(nil)
