package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"pfsync/feed"
	"pfsync/models"
	"pfsync/services"
	"pfsync/storage"
)

type fakeListingStore struct{}

func (fakeListingStore) ExistingPublishDates(context.Context, []string) (map[string]string, error) {
	return map[string]string{}, nil
}

func (fakeListingStore) BulkUpsertListings(_ context.Context, writes []storage.ListingWrite) (*storage.BulkResult, error) {
	return &storage.BulkResult{Upserted: int64(len(writes))}, nil
}

type fakeCleanupStore struct{}

func (fakeCleanupStore) StreamListingIDs(_ context.Context, fn func(string) error) (int, error) {
	for _, id := range []string{"A-1", "A-9"} {
		if err := fn(id); err != nil {
			return 0, err
		}
	}
	return 2, nil
}

func (fakeCleanupStore) DeleteListingsByIDs(_ context.Context, ids []string) (int64, error) {
	return int64(len(ids)), nil
}

func (fakeCleanupStore) PullAgentListings(context.Context, []string) (int64, error) {
	return 1, nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type fakeRunLister struct{ runs []models.Run }

func (l fakeRunLister) RecentRuns(int) ([]models.Run, error) { return l.runs, nil }

func testServer(t *testing.T, pingErr error) *Server {
	t.Helper()

	data, err := os.ReadFile(filepath.Join("testdata", "feed.xml"))
	if err != nil {
		t.Fatalf("failed to read fixture: %v", err)
	}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(data)
	}))
	t.Cleanup(upstream.Close)

	fetcher := feed.NewFetcher(upstream.Client(), upstream.URL)
	syncSvc := services.NewSyncService(fetcher, fakeListingStore{}, nil)
	cleanupSvc := services.NewCleanupService(fetcher, fakeCleanupStore{})

	return NewServer(syncSvc, cleanupSvc, &services.RunGuard{}, fakePinger{err: pingErr}, fakeRunLister{
		runs: []models.Run{{ID: "run-1", Kind: models.RunKindSync, Status: models.RunStatusCompleted}},
	})
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return env
}

func TestHandleSync(t *testing.T) {
	srv := testServer(t, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("POST", "/sync", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if !env.Success {
		t.Fatalf("expected success envelope, got %+v", env)
	}
}

func TestHandleSync_BusyReturns409(t *testing.T) {
	srv := testServer(t, nil)
	if !srv.guard.TryAcquire() {
		t.Fatal("failed to acquire guard")
	}
	defer srv.guard.Release()

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("POST", "/sync", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 while busy, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Success {
		t.Fatal("expected failure envelope")
	}
}

func TestHandleCleanup_QueryParams(t *testing.T) {
	srv := testServer(t, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("POST", "/cleanup?dryRun=true&returnIds=true&sampleCap=1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var env struct {
		Success bool                   `json:"success"`
		Data    services.CleanupReport `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !env.Data.DryRun {
		t.Fatal("expected dry-run report")
	}
	if env.Data.Counts.ToDelete != 1 {
		t.Fatalf("expected 1 to delete, got %d", env.Data.Counts.ToDelete)
	}
	if len(env.Data.SampleIDs) != 1 || env.Data.SampleIDs[0] != "A-9" {
		t.Fatalf("expected sample [A-9], got %v", env.Data.SampleIDs)
	}
}

func TestHandleHealth(t *testing.T) {
	srv := testServer(t, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	srv = testServer(t, fmt.Errorf("no reachable servers"))
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when store ping fails, got %d", rec.Code)
	}
}

func TestHandleRuns(t *testing.T) {
	srv := testServer(t, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/runs?limit=5", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var env struct {
		Success bool         `json:"success"`
		Data    []models.Run `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(env.Data) != 1 || env.Data[0].ID != "run-1" {
		t.Fatalf("unexpected runs %+v", env.Data)
	}
}
