package feed

import (
	"testing"

	"pfsync/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name             string
		offeringType     string
		completionStatus string
		status           string
		category         string
	}{
		{"sale", "RS", "completed", "Live", models.CategorySale},
		{"rent", "RR", "completed", "Live", models.CategoryRent},
		{"commercial sale", "CS", "completed", "Live", models.CategoryCommercial},
		{"commercial rent", "CR", "completed", "Live", models.CategoryCommercial},
		{"off plan primary", "RS", "off_plan_primary", "Live", models.CategoryOffPlan},
		{"off plan secondary", "RR", "off_plan_secondary", "Live", models.CategoryOffPlan},
		{"sold", "RS", "completed", "Sold", models.CategoryNonActive},
		{"blank status", "RS", "completed", "", models.CategoryNonActive},
		{"case insensitive live", "RR", "completed", "LIVE", models.CategoryRent},
		{"unknown offering", "XX", "completed", "Live", models.CategorySale},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.offeringType, tt.completionStatus, tt.status)
			if got.Category != tt.category {
				t.Fatalf("expected %s, got %s (%s)", tt.category, got.Category, got.Reason)
			}
		})
	}
}

func TestClassify_NonLiveBeatsOffPlan(t *testing.T) {
	got := Classify("RS", "off_plan_primary", "Archived")
	if got.Category != models.CategoryNonActive {
		t.Fatalf("expected NonActive, got %s", got.Category)
	}
}

func TestClassify_FallbackReason(t *testing.T) {
	got := Classify("", "", "Live")
	if got.Category != models.CategorySale {
		t.Fatalf("expected Sale fallback, got %s", got.Category)
	}
	if got.Reason != FallbackReason {
		t.Fatalf("expected fallback reason, got %q", got.Reason)
	}
}
