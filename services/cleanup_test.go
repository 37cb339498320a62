package services

import (
	"context"
	"fmt"
	"testing"

	"pfsync/feed"
)

type fakeCleanupStore struct {
	storedIDs   []string
	deleteCalls [][]string
	pullCalls   [][]string
	failDeletes bool
}

func (s *fakeCleanupStore) StreamListingIDs(_ context.Context, fn func(string) error) (int, error) {
	for _, id := range s.storedIDs {
		if err := fn(id); err != nil {
			return 0, err
		}
	}
	return len(s.storedIDs), nil
}

func (s *fakeCleanupStore) DeleteListingsByIDs(_ context.Context, ids []string) (int64, error) {
	if s.failDeletes {
		return 0, fmt.Errorf("delete rejected")
	}
	s.deleteCalls = append(s.deleteCalls, ids)
	return int64(len(ids)), nil
}

func (s *fakeCleanupStore) PullAgentListings(_ context.Context, ids []string) (int64, error) {
	s.pullCalls = append(s.pullCalls, ids)
	return 1, nil
}

func TestCleanupRun_DryRun(t *testing.T) {
	srv := fixtureServer(t, "cleanup_feed.xml")
	store := &fakeCleanupStore{storedIDs: []string{"C-1", "C-2", "C-3", "C-4", " ", ""}}

	svc := NewCleanupService(feed.NewFetcher(srv.Client(), srv.URL), store)
	report, err := svc.Run(context.Background(), CleanupOptions{DryRun: true, ReturnIDs: true, SampleCap: 1})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if !report.DryRun {
		t.Fatal("expected dry-run report")
	}
	if report.Counts.FeedCount != 2 {
		t.Fatalf("expected 2 feed ids, got %d", report.Counts.FeedCount)
	}
	if report.Counts.DBScanned != 6 {
		t.Fatalf("expected 6 scanned, got %d", report.Counts.DBScanned)
	}
	if report.Counts.ToDelete != 2 {
		t.Fatalf("expected 2 to delete, got %d", report.Counts.ToDelete)
	}
	if len(report.SampleIDs) != 1 || report.SampleIDs[0] != "C-3" {
		t.Fatalf("expected capped sample [C-3], got %v", report.SampleIDs)
	}
	if len(store.deleteCalls) != 0 || len(store.pullCalls) != 0 {
		t.Fatal("dry run must not touch the store")
	}
}

func TestCleanupRun_DeletesInChunks(t *testing.T) {
	srv := fixtureServer(t, "cleanup_feed.xml")
	store := &fakeCleanupStore{storedIDs: []string{"C-1", "C-2", "C-3", "C-4", "C-5"}}

	svc := NewCleanupService(feed.NewFetcher(srv.Client(), srv.URL), store)
	report, err := svc.Run(context.Background(), CleanupOptions{DeleteChunkSize: 2, AgentChunkSize: 3})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if report.Counts.ToDelete != 3 {
		t.Fatalf("expected 3 to delete, got %d", report.Counts.ToDelete)
	}
	if report.Counts.DeletedListings != 3 {
		t.Fatalf("expected 3 deleted, got %d", report.Counts.DeletedListings)
	}
	if len(store.deleteCalls) != 2 {
		t.Fatalf("expected 2 delete chunks, got %d", len(store.deleteCalls))
	}
	if len(store.deleteCalls[0]) != 2 || len(store.deleteCalls[1]) != 1 {
		t.Fatalf("unexpected delete chunk sizes %v", store.deleteCalls)
	}
	if len(store.pullCalls) != 1 {
		t.Fatalf("expected 1 agent chunk, got %d", len(store.pullCalls))
	}
	if report.Counts.AgentsUpdated != 1 {
		t.Fatalf("expected 1 agent update, got %d", report.Counts.AgentsUpdated)
	}
}

func TestCleanupRun_NothingToDelete(t *testing.T) {
	srv := fixtureServer(t, "cleanup_feed.xml")
	store := &fakeCleanupStore{storedIDs: []string{"C-1", "C-2"}}

	svc := NewCleanupService(feed.NewFetcher(srv.Client(), srv.URL), store)
	report, err := svc.Run(context.Background(), CleanupOptions{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if report.Counts.ToDelete != 0 {
		t.Fatalf("expected nothing to delete, got %d", report.Counts.ToDelete)
	}
	if len(store.deleteCalls) != 0 {
		t.Fatal("expected no delete calls")
	}
}

func TestCleanupRun_EmptyFeedAborts(t *testing.T) {
	srv := fixtureServer(t, "empty_feed.xml")
	store := &fakeCleanupStore{storedIDs: []string{"C-1"}}

	svc := NewCleanupService(feed.NewFetcher(srv.Client(), srv.URL), store)
	if _, err := svc.Run(context.Background(), CleanupOptions{}); err == nil {
		t.Fatal("expected empty feed to abort cleanup")
	}
	if len(store.deleteCalls) != 0 {
		t.Fatal("an unreadable feed must never delete anything")
	}
}

func TestCleanupRun_FailedChunksAreCountedNotFatal(t *testing.T) {
	srv := fixtureServer(t, "cleanup_feed.xml")
	store := &fakeCleanupStore{storedIDs: []string{"C-1", "C-9"}, failDeletes: true}

	svc := NewCleanupService(feed.NewFetcher(srv.Client(), srv.URL), store)
	report, err := svc.Run(context.Background(), CleanupOptions{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if report.Counts.FailedDeleteChunks != 1 {
		t.Fatalf("expected 1 failed delete chunk, got %d", report.Counts.FailedDeleteChunks)
	}
	if report.Counts.DeletedListings != 0 {
		t.Fatalf("expected 0 deleted, got %d", report.Counts.DeletedListings)
	}
	if len(store.pullCalls) != 1 {
		t.Fatal("agent unlink should still run after a failed delete chunk")
	}
}
