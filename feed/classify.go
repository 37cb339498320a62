package feed

import (
	"strings"

	"pfsync/models"
)

// FallbackReason marks listings that matched no classification rule and
// defaulted to Sale. Run reports count these separately.
const FallbackReason = "fallback: no clear classification found"

// Classify derives a listing category from the feed's offering_type and
// completion_status custom fields plus the general status. Precedence:
// non-live status wins outright, then off-plan completion, then offering
// type, then the Sale fallback.
func Classify(offeringType, completionStatus, status string) models.Classification {
	if !strings.EqualFold(strings.TrimSpace(status), "live") {
		return models.Classification{
			Category: models.CategoryNonActive,
			Reason:   "status is not Live: " + status,
		}
	}

	switch completionStatus {
	case "off_plan_primary", "off_plan_secondary":
		return models.Classification{
			Category: models.CategoryOffPlan,
			Reason:   "completion_status is " + completionStatus,
		}
	}

	switch offeringType {
	case "RR":
		return models.Classification{Category: models.CategoryRent, Reason: "offering_type is RR"}
	case "RS":
		return models.Classification{Category: models.CategorySale, Reason: "offering_type is RS"}
	case "CS", "CR":
		return models.Classification{Category: models.CategoryCommercial, Reason: "offering_type is " + offeringType}
	}

	return models.Classification{Category: models.CategorySale, Reason: FallbackReason}
}
