package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"pfsync/feed"
	"pfsync/models"
	"pfsync/storage"
)

// CleanupStore is the slice of the document store cleanup needs.
type CleanupStore interface {
	StreamListingIDs(ctx context.Context, fn func(id string) error) (int, error)
	DeleteListingsByIDs(ctx context.Context, ids []string) (int64, error)
	PullAgentListings(ctx context.Context, ids []string) (int64, error)
}

// CleanupOptions tune one reconciliation run. Zero values take the
// defaults below.
type CleanupOptions struct {
	// DryRun computes the diff without deleting anything.
	DryRun bool
	// ReturnIDs includes a sample of doomed ids in the report.
	ReturnIDs bool
	// ProgressEvery logs a progress line each N scanned documents.
	ProgressEvery int
	// SampleCap bounds the id sample when ReturnIDs is set.
	SampleCap int
	// DeleteChunkSize bounds each listing delete batch.
	DeleteChunkSize int
	// AgentChunkSize bounds each agent unlink batch.
	AgentChunkSize int
}

func (o *CleanupOptions) normalize() {
	if o.ProgressEvery <= 0 {
		o.ProgressEvery = 5000
	}
	if o.SampleCap <= 0 {
		o.SampleCap = 100
	}
	if o.DeleteChunkSize <= 0 {
		o.DeleteChunkSize = 5000
	}
	if o.AgentChunkSize <= 0 {
		o.AgentChunkSize = 5000
	}
}

// CleanupCounts carries the numeric outcome of one reconciliation run.
type CleanupCounts struct {
	FeedCount          int   `json:"xmlCount"`
	DBScanned          int   `json:"dbScanned"`
	ToDelete           int   `json:"toDelete"`
	DeletedListings    int64 `json:"deletedProperties"`
	AgentsUpdated      int64 `json:"agentsUpdated"`
	FailedDeleteChunks int   `json:"failedDeleteChunks,omitempty"`
	FailedAgentChunks  int   `json:"failedAgentChunks,omitempty"`
}

// CleanupReport summarizes one reconciliation run.
type CleanupReport struct {
	DryRun     bool          `json:"dryRun"`
	Counts     CleanupCounts `json:"counts"`
	SampleIDs  []string      `json:"sampleIds,omitempty"`
	DurationMS int64         `json:"durationMs"`
}

// CleanupService removes stored listings the feed no longer carries and
// unlinks them from agents. The feed is the source of truth: anything in
// the store but absent from the current document is considered retired.
type CleanupService struct {
	fetcher *feed.Fetcher
	store   CleanupStore
	runlog  *storage.RunLog
}

func NewCleanupService(fetcher *feed.Fetcher, store CleanupStore) *CleanupService {
	return &CleanupService{fetcher: fetcher, store: store}
}

func (s *CleanupService) SetRunLog(rl *storage.RunLog) {
	s.runlog = rl
}

// Run executes one reconciliation pass. The feed is refetched rather
// than reusing sync's copy, so a stale or failed download aborts the run
// before any deletion can happen; a parseable document with zero records
// aborts for the same reason.
func (s *CleanupService) Run(ctx context.Context, opts CleanupOptions) (report *CleanupReport, err error) {
	opts.normalize()
	started := time.Now()
	runID := s.beginRun()
	defer func() {
		if report != nil {
			report.DurationMS = time.Since(started).Milliseconds()
		}
		s.finishRun(runID, report, err)
	}()

	data, err := s.fetcher.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	records, err := feed.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	feedIDs := feed.CollectIDs(records)

	report = &CleanupReport{DryRun: opts.DryRun}
	report.Counts.FeedCount = len(feedIDs)

	var (
		toDelete []string
		seen     int
	)
	scanned, err := s.store.StreamListingIDs(ctx, func(id string) error {
		seen++
		if seen%opts.ProgressEvery == 0 {
			log.Printf("cleanup: scanned %d stored listings, %d missing from feed", seen, len(toDelete))
		}
		id = strings.TrimSpace(id)
		if id == "" {
			return nil
		}
		if _, ok := feedIDs[id]; !ok {
			if len(toDelete) < 10 {
				log.Printf("cleanup: listing %s missing from feed", id)
			}
			toDelete = append(toDelete, id)
		}
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("scan stored listings: %w", err)
	}

	report.Counts.DBScanned = scanned
	report.Counts.ToDelete = len(toDelete)
	if opts.ReturnIDs {
		n := opts.SampleCap
		if n > len(toDelete) {
			n = len(toDelete)
		}
		report.SampleIDs = append([]string(nil), toDelete[:n]...)
	}

	if opts.DryRun || len(toDelete) == 0 {
		return report, nil
	}

	// Listings first, then agent unlinks: a crash in between leaves
	// dangling agent references, which the next run's $pull repairs.
	for _, chunk := range chunkIDs(toDelete, opts.DeleteChunkSize) {
		deleted, derr := s.store.DeleteListingsByIDs(ctx, chunk)
		if derr != nil {
			report.Counts.FailedDeleteChunks++
			log.Printf("Warning: delete chunk of %d listings: %v", len(chunk), derr)
			continue
		}
		report.Counts.DeletedListings += deleted
	}
	for _, chunk := range chunkIDs(toDelete, opts.AgentChunkSize) {
		updated, perr := s.store.PullAgentListings(ctx, chunk)
		if perr != nil {
			report.Counts.FailedAgentChunks++
			log.Printf("Warning: unlink chunk of %d listings from agents: %v", len(chunk), perr)
			continue
		}
		report.Counts.AgentsUpdated += updated
	}

	return report, nil
}

func chunkIDs(ids []string, size int) [][]string {
	var chunks [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

func (s *CleanupService) beginRun() string {
	if s.runlog == nil {
		return ""
	}
	id, err := s.runlog.Begin(models.RunKindCleanup)
	if err != nil {
		log.Printf("Warning: record run start: %v", err)
		return ""
	}
	return id
}

func (s *CleanupService) finishRun(runID string, report *CleanupReport, runErr error) {
	if s.runlog == nil || runID == "" {
		return
	}
	status := models.RunStatusCompleted
	errText := ""
	if runErr != nil {
		status = models.RunStatusFailed
		errText = runErr.Error()
	}
	var counts json.RawMessage
	if report != nil {
		if b, err := json.Marshal(report); err == nil {
			counts = b
		}
	}
	if err := s.runlog.Finish(runID, status, errText, counts); err != nil {
		log.Printf("Warning: record run finish: %v", err)
	}
}
