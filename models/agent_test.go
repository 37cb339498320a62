package models

import (
	"testing"
	"time"
)

func TestNewAgentListingSummary(t *testing.T) {
	published := time.Date(2024, 5, 2, 8, 30, 0, 0, time.UTC)
	l := &Listing{
		ID:             "PF-1001",
		PublishedAtRaw: "2024-05-02 08:30:00",
		PublishedAt:    &published,
		ListingType:    CategoryOffPlan,
		PropertyType:   "villa",
		Address:        AddressInfo{City: "Dubai", Address: "Palm Jumeirah"},
		General: GeneralInfo{
			Title:     "Palm Villa",
			Price:     "5000000",
			Currency:  "AED",
			Status:    "Live",
			Bedrooms:  "4",
			Bathrooms: "5",
			TotalArea: "6000",
		},
		Custom: CustomFields{
			City:         "Dubai",
			Community:    "Palm Jumeirah",
			PropertyName: "Frond A",
		},
		Media: []Image{{URL: "https://img.example.com/1.jpg"}},
	}

	s := NewAgentListingSummary(l)
	if s.PropertyID != "PF-1001" {
		t.Fatalf("unexpected property id %s", s.PropertyID)
	}
	if s.ListingType != "Off Plan" {
		t.Fatalf("expected OffPlan rendered with a space, got %q", s.ListingType)
	}
	if s.AddedDate == nil || !s.AddedDate.Equal(published) {
		t.Fatalf("unexpected added date %v", s.AddedDate)
	}
	if s.AddedDateString != "2024-05-02 08:30:00" {
		t.Fatalf("unexpected added date string %q", s.AddedDateString)
	}
	if !s.LastUpdated.Equal(published) {
		t.Fatalf("expected last updated to mirror publish date, got %v", s.LastUpdated)
	}
	if s.Location.City != "Dubai" || s.Location.Community != "Palm Jumeirah" || s.Location.Building != "Frond A" {
		t.Fatalf("unexpected location %+v", s.Location)
	}
	if len(s.Images) != 1 {
		t.Fatalf("expected 1 image, got %d", len(s.Images))
	}
}

func TestNewAgentListingSummary_Defaults(t *testing.T) {
	s := NewAgentListingSummary(&Listing{ID: "PF-2"})
	if s.ListingType != CategorySale {
		t.Fatalf("expected Sale default, got %q", s.ListingType)
	}
	if s.PropertyType != "Unknown" {
		t.Fatalf("expected Unknown property type, got %q", s.PropertyType)
	}
	if s.AddedDate != nil {
		t.Fatalf("expected nil added date, got %v", s.AddedDate)
	}
	if s.LastUpdated.IsZero() {
		t.Fatal("expected last updated fallback to now")
	}
}

func TestListingFlags(t *testing.T) {
	l := &Listing{General: GeneralInfo{Status: "live", Updated: "No"}}
	if !l.IsLive() {
		t.Fatal("expected case-insensitive live check")
	}
	if l.ShouldUpdate() {
		t.Fatal("expected updated=No to suppress updates")
	}

	l.General.Updated = "Yes"
	if !l.ShouldUpdate() {
		t.Fatal("expected updated=Yes to allow updates")
	}
	l.General.Updated = ""
	if !l.ShouldUpdate() {
		t.Fatal("expected absent flag to allow updates")
	}
}
