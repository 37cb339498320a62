package feed

import (
	"os"
	"path/filepath"
	"testing"
)

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	path := filepath.Join("testdata", name)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read fixture %s: %v", name, err)
	}
	return data
}

func TestParse_Basic(t *testing.T) {
	records, err := Parse(loadFixture(t, "feed_basic.xml"))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ID() != "PF-1001" {
		t.Fatalf("expected id PF-1001, got %s", records[0].ID())
	}
	if records[1].ID() != "PF-1002" {
		t.Fatalf("expected id PF-1002, got %s", records[1].ID())
	}
	if got := records[0].Str("created_at"); got != "2024-05-01 10:00:00" {
		t.Fatalf("expected created_at attribute merged into record, got %q", got)
	}
	if got := records[0].Str("general_listing_information", "listing_title"); got != "Marina View 2BR" {
		t.Fatalf("unexpected title %q", got)
	}
}

func TestParse_SingleRecord(t *testing.T) {
	records, err := Parse(loadFixture(t, "feed_single.xml"))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].ID() != "PF-2001" {
		t.Fatalf("expected id PF-2001, got %s", records[0].ID())
	}
}

func TestParse_NestedContainer(t *testing.T) {
	records, err := Parse(loadFixture(t, "feed_nested.xml"))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ID() != "PF-3001" {
		t.Fatalf("expected id PF-3001, got %s", records[0].ID())
	}
}

func TestParse_EmptyDocument(t *testing.T) {
	if _, err := Parse(loadFixture(t, "feed_empty.xml")); err == nil {
		t.Fatal("expected error for document with no records")
	}
}

func TestParse_InvalidXML(t *testing.T) {
	if _, err := Parse([]byte("not an xml document")); err == nil {
		t.Fatal("expected error for invalid xml")
	}
}

func TestCollectIDs(t *testing.T) {
	records := []RawRecord{
		{"Id": "A"},
		{"id": "B"},
		{"Id": "A"},
		{"Id": ""},
		{},
	}
	ids := CollectIDs(records)
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %d", len(ids))
	}
	if _, ok := ids["A"]; !ok {
		t.Fatal("expected id A")
	}
	if _, ok := ids["B"]; !ok {
		t.Fatal("expected id B")
	}
}
