package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"pfsync/feed"
	"pfsync/models"
	"pfsync/storage"
)

// ListingStore is the slice of the document store the sync pipeline needs.
type ListingStore interface {
	ExistingPublishDates(ctx context.Context, ids []string) (map[string]string, error)
	BulkUpsertListings(ctx context.Context, writes []storage.ListingWrite) (*storage.BulkResult, error)
}

// Decision is the update policy's verdict for one incoming listing.
type Decision int

const (
	DecisionCreate Decision = iota
	DecisionUpdate
	DecisionPatchPublished
	DecisionSkip
)

// Decide applies the update policy: unknown listings are created, the
// feed's update flag gates full rewrites, and a shifted raw publish date
// on a frozen listing still gets patched through. Raw strings are
// compared byte for byte; parsing is for display only.
func Decide(incoming *models.Listing, storedPublished string, exists bool) Decision {
	if !exists {
		return DecisionCreate
	}
	if incoming.ShouldUpdate() {
		return DecisionUpdate
	}
	if incoming.PublishedAtRaw != "" && incoming.PublishedAtRaw != storedPublished {
		return DecisionPatchPublished
	}
	return DecisionSkip
}

// ClassificationStats breaks the batch down by the raw fields the
// classifier reads. Fallbacks flag records the rules could not place.
type ClassificationStats struct {
	ByCompletionStatus map[string]int `json:"byCompletionStatus"`
	ByOfferingType     map[string]int `json:"byOfferingType"`
	Fallbacks          int            `json:"fallbacks"`
}

// TypeCounts splits writes per derived category.
type TypeCounts struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// RecordFailure is one record that did not make it into the store.
type RecordFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// SyncReport summarizes one full sync run.
type SyncReport struct {
	TotalInFeed        int                    `json:"totalInFeed"`
	Processed          int                    `json:"processed"`
	Live               int                    `json:"liveListings"`
	NonLive            int                    `json:"nonLiveListings"`
	Created            int                    `json:"created"`
	Updated            int                    `json:"updated"`
	PatchedPublishDate int                    `json:"patchedPublishDate"`
	Skipped            int                    `json:"skipped"`
	Failed             int                    `json:"failed"`
	ByType             map[string]*TypeCounts `json:"byType"`
	Classification     ClassificationStats    `json:"classificationStats"`
	AgentLinks         LinkStats              `json:"agentLinks"`
	MissingAgents      []MissingAgent         `json:"missingAgents"`
	Failures           []RecordFailure        `json:"failures"`
	DurationMS         int64                  `json:"durationMs"`
}

// SyncService runs the full ingestion pipeline: fetch, parse, classify,
// normalize, decide, write, link.
type SyncService struct {
	fetcher  *feed.Fetcher
	listings ListingStore
	linker   *AgentLinker
	runlog   *storage.RunLog
}

func NewSyncService(fetcher *feed.Fetcher, listings ListingStore, linker *AgentLinker) *SyncService {
	return &SyncService{fetcher: fetcher, listings: listings, linker: linker}
}

// SetRunLog enables run history persistence. Recording failures are
// logged and never fail the run itself.
func (s *SyncService) SetRunLog(rl *storage.RunLog) {
	s.runlog = rl
}

// Run executes one sync pass. A returned error means the run aborted
// before any decisions were applied; per-record problems are folded into
// the report instead.
func (s *SyncService) Run(ctx context.Context) (report *SyncReport, err error) {
	started := time.Now()
	runID := s.beginRun(models.RunKindSync)
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

	report = &SyncReport{
		TotalInFeed: len(records),
		ByType:      make(map[string]*TypeCounts),
		Classification: ClassificationStats{
			ByCompletionStatus: make(map[string]int),
			ByOfferingType:     make(map[string]int),
		},
		MissingAgents: []MissingAgent{},
		Failures:      []RecordFailure{},
	}

	// Normalize record by record; one bad record never sinks the batch.
	// Duplicate ids collapse to the last occurrence, matching the feed's
	// own "later entry wins" ordering.
	listings := make([]*models.Listing, 0, len(records))
	index := make(map[string]int, len(records))
	for i, rec := range records {
		listing, nerr := feed.Normalize(rec)
		if nerr != nil {
			report.Failed++
			report.Failures = append(report.Failures, RecordFailure{
				ID:    recordLabel(rec, i),
				Error: nerr.Error(),
			})
			continue
		}
		if at, dup := index[listing.ID]; dup {
			log.Printf("Warning: duplicate listing id %s in feed, keeping later record", listing.ID)
			listings[at] = listing
			continue
		}
		index[listing.ID] = len(listings)
		listings = append(listings, listing)
	}
	report.Processed = len(listings)

	ids := make([]string, 0, len(listings))
	for _, l := range listings {
		ids = append(ids, l.ID)
		report.Classification.ByCompletionStatus[l.Custom.CompletionStatus]++
		report.Classification.ByOfferingType[l.OfferingType]++
		if l.Classification.Reason == feed.FallbackReason {
			report.Classification.Fallbacks++
		}
		if l.IsLive() {
			report.Live++
		} else {
			report.NonLive++
		}
	}

	existing, err := s.listings.ExistingPublishDates(ctx, ids)
	if err != nil {
		return report, fmt.Errorf("load existing publish dates: %w", err)
	}

	writes := make([]storage.ListingWrite, 0, len(listings))
	decisions := make(map[string]Decision, len(listings))
	for _, l := range listings {
		stored, exists := existing[l.ID]
		d := Decide(l, stored, exists)
		decisions[l.ID] = d
		switch d {
		case DecisionCreate:
			writes = append(writes, storage.ListingWrite{Listing: l})
			report.Created++
			report.typeCounts(l.Classification.Category).Created++
		case DecisionUpdate:
			writes = append(writes, storage.ListingWrite{Listing: l})
			report.Updated++
			report.typeCounts(l.Classification.Category).Updated++
		case DecisionPatchPublished:
			writes = append(writes, storage.ListingWrite{Listing: l, PatchOnly: true})
			report.PatchedPublishDate++
		case DecisionSkip:
			report.Skipped++
		}
	}

	result, err := s.listings.BulkUpsertListings(ctx, writes)
	if err != nil {
		return report, fmt.Errorf("bulk upsert listings: %w", err)
	}
	for _, f := range result.Failures {
		report.Failed++
		report.Failures = append(report.Failures, RecordFailure{ID: f.ID, Error: f.Err})
		report.uncount(f.ID, decisions, index, listings)
	}

	// Link every live listing, including skipped ones: the agent-side
	// summary must converge even when the listing document did not change.
	if s.linker != nil {
		live := make([]*models.Listing, 0, report.Live)
		for _, l := range listings {
			if l.IsLive() {
				live = append(live, l)
			}
		}
		report.AgentLinks, report.MissingAgents = s.linker.LinkAll(ctx, live)
	}

	return report, nil
}

func (r *SyncReport) typeCounts(category string) *TypeCounts {
	tc, ok := r.ByType[category]
	if !ok {
		tc = &TypeCounts{}
		r.ByType[category] = tc
	}
	return tc
}

// uncount backs a failed write out of the decision tallies so the report
// only claims writes that actually landed.
func (r *SyncReport) uncount(id string, decisions map[string]Decision, index map[string]int, listings []*models.Listing) {
	d, ok := decisions[id]
	if !ok {
		return
	}
	switch d {
	case DecisionCreate:
		r.Created--
		if at, ok := index[id]; ok {
			r.typeCounts(listings[at].Classification.Category).Created--
		}
	case DecisionUpdate:
		r.Updated--
		if at, ok := index[id]; ok {
			r.typeCounts(listings[at].Classification.Category).Updated--
		}
	case DecisionPatchPublished:
		r.PatchedPublishDate--
	}
}

func recordLabel(rec feed.RawRecord, position int) string {
	if id := rec.ID(); id != "" {
		return id
	}
	return fmt.Sprintf("record #%d", position)
}

func (s *SyncService) beginRun(kind models.RunKind) string {
	if s.runlog == nil {
		return ""
	}
	id, err := s.runlog.Begin(kind)
	if err != nil {
		log.Printf("Warning: record run start: %v", err)
		return ""
	}
	return id
}

func (s *SyncService) finishRun(runID string, report *SyncReport, runErr error) {
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
