package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AgentRef identifies an agent document resolved by email. Only the
// fields the linker needs; agent CRUD belongs to another service.
type AgentRef struct {
	ID    primitive.ObjectID `bson:"_id"`
	Name  string             `bson:"agentName"`
	Email string             `bson:"email"`
}

// ListingLocation is the denormalized location block embedded in an
// agent's listing summary.
type ListingLocation struct {
	City      string `bson:"city" json:"city"`
	Address   string `bson:"address" json:"address"`
	Community string `bson:"community" json:"community"`
	Building  string `bson:"building" json:"building"`
}

// AgentListingSummary is the projection of a live Listing embedded in its
// owning agent's properties array, keyed by PropertyID. AddedDate and
// AddedDateString must always mirror the listing's publish date; the sync
// pipeline re-links live listings on every run to keep them in step.
type AgentListingSummary struct {
	PropertyID      string          `bson:"propertyId" json:"propertyId"`
	ListingTitle    string          `bson:"listingTitle" json:"listingTitle"`
	ListingType     string          `bson:"listingType" json:"listingType"`
	PropertyType    string          `bson:"propertyType" json:"propertyType"`
	Price           string          `bson:"price" json:"price"`
	Currency        string          `bson:"currency" json:"currency"`
	Status          string          `bson:"status" json:"status"`
	Bedrooms        string          `bson:"bedrooms" json:"bedrooms"`
	Bathrooms       string          `bson:"bathrooms" json:"bathrooms"`
	Area            string          `bson:"area" json:"area"`
	Location        ListingLocation `bson:"location" json:"location"`
	Images          []Image         `bson:"images" json:"images"`
	Description     string          `bson:"description" json:"description"`
	AddedDate       *time.Time      `bson:"addedDate" json:"addedDate"`
	AddedDateString string          `bson:"addedDateString" json:"addedDateString"`
	LastUpdated     time.Time       `bson:"lastUpdated" json:"lastUpdated"`
}

// NewAgentListingSummary builds the embedded summary for a listing. The
// agent model stores "Off Plan" with a space, unlike the listing category.
func NewAgentListingSummary(l *Listing) AgentListingSummary {
	listingType := l.ListingType
	if listingType == "" {
		listingType = CategorySale
	}
	if listingType == CategoryOffPlan {
		listingType = "Off Plan"
	}

	propertyType := l.PropertyType
	if propertyType == "" {
		propertyType = "Unknown"
	}

	lastUpdated := time.Now().UTC()
	if l.PublishedAt != nil {
		lastUpdated = *l.PublishedAt
	}

	return AgentListingSummary{
		PropertyID:   l.ID,
		ListingTitle: l.General.Title,
		ListingType:  listingType,
		PropertyType: propertyType,
		Price:        l.General.Price,
		Currency:     l.General.Currency,
		Status:       l.General.Status,
		Bedrooms:     l.General.Bedrooms,
		Bathrooms:    l.General.Bathrooms,
		Area:         l.General.TotalArea,
		Location: ListingLocation{
			City:      firstNonEmpty(l.Custom.City, l.Address.City),
			Address:   firstNonEmpty(l.Custom.Region, l.Address.Address),
			Community: l.Custom.Community,
			Building:  l.Custom.PropertyName,
		},
		Images:          l.Media,
		Description:     l.General.Description,
		AddedDate:       l.PublishedAt,
		AddedDateString: l.PublishedAtRaw,
		LastUpdated:     lastUpdated,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
