package models

import (
	"strings"
	"time"
)

// Listing categories derived from the feed's offering/completion fields.
const (
	CategorySale       = "Sale"
	CategoryRent       = "Rent"
	CategoryOffPlan    = "OffPlan"
	CategoryCommercial = "Commercial"
	CategoryNonActive  = "NonActive"
)

// Classification is the derived category of a listing plus the rule that
// produced it. The reason is kept for auditing; fallback classifications
// are counted separately in run reports.
type Classification struct {
	Category string `bson:"category" json:"category"`
	Reason   string `bson:"reason" json:"reason"`
}

// Listing is the canonical persisted representation of one feed record.
// BSON field names follow the upstream feed so documents stay readable
// next to the raw XML.
type Listing struct {
	ID string `bson:"id" json:"id"`

	// PublishedAtRaw is the upstream publish timestamp exactly as delivered.
	// The update policy compares this string, not the parsed time, so a
	// feed-side format change never masks a real shift.
	PublishedAtRaw string     `bson:"created_at" json:"created_at"`
	PublishedAt    *time.Time `bson:"published_at,omitempty" json:"published_at,omitempty"`
	Timestamp      string     `bson:"timestamp" json:"timestamp"`

	OfferingType string `bson:"offering_type" json:"offering_type"`
	PropertyType string `bson:"property_type" json:"property_type"`
	ListingType  string `bson:"listing_type" json:"listing_type"`

	Address        AddressInfo    `bson:"address_information" json:"address_information"`
	General        GeneralInfo    `bson:"general_listing_information" json:"general_listing_information"`
	Agent          ListingAgent   `bson:"listing_agent" json:"listing_agent"`
	Custom         CustomFields   `bson:"custom_fields" json:"custom_fields"`
	Media          []Image        `bson:"listing_media" json:"listing_media"`
	QRCode         string         `bson:"qr_code" json:"qr_code"`
	Classification Classification `bson:"classification" json:"classification"`
}

// AddressInfo is the feed's address block.
type AddressInfo struct {
	City    string `bson:"city" json:"city"`
	Address string `bson:"address" json:"address"`
}

// GeneralInfo mirrors the feed's general_listing_information block. All
// numeric-looking fields stay strings, as the feed delivers them.
type GeneralInfo struct {
	Title       string `bson:"listing_title" json:"listing_title"`
	Updated     string `bson:"updated" json:"updated"`
	Price       string `bson:"listingprice" json:"listingprice"`
	ListingType string `bson:"listingtype" json:"listingtype"`
	Currency    string `bson:"currency_iso_code" json:"currency_iso_code"`
	Status      string `bson:"status" json:"status"`
	TotalArea   string `bson:"totalarea" json:"totalarea"`
	Description string `bson:"description" json:"description"`
	Bedrooms    string `bson:"bedrooms" json:"bedrooms"`
	Bathrooms   string `bson:"fullbathrooms" json:"fullbathrooms"`
}

// ListingAgent is the contact block of the agent who owns the listing.
type ListingAgent struct {
	Email       string `bson:"listing_agent_email" json:"listing_agent_email"`
	FirstName   string `bson:"listing_agent_firstname" json:"listing_agent_firstname"`
	LastName    string `bson:"listing_agent_lastname" json:"listing_agent_lastname"`
	MobilePhone string `bson:"listing_agent_mobil_phone" json:"listing_agent_mobil_phone"`
	Phone       string `bson:"listing_agent_phone" json:"listing_agent_phone"`
}

// CustomFields carries the feed's custom_fields block. Known fields are
// typed; anything else lands in Extra so no upstream data is dropped.
type CustomFields struct {
	PropertyRecordID   string            `bson:"property_record_id" json:"property_record_id"`
	PermitNumber       string            `bson:"permit_number" json:"permit_number"`
	OfferingType       string            `bson:"offering_type" json:"offering_type"`
	PriceOnApplication string            `bson:"price_on_application" json:"price_on_application"`
	PaymentMethod      string            `bson:"payment_method" json:"payment_method"`
	City               string            `bson:"city" json:"city"`
	Community          string            `bson:"community" json:"community"`
	SubCommunity       string            `bson:"sub_community" json:"sub_community"`
	PropertyName       string            `bson:"property_name" json:"property_name"`
	Region             string            `bson:"propertyfinder_region" json:"propertyfinder_region"`
	UnitNumber         string            `bson:"unitnumber" json:"unitnumber"`
	Amenities          string            `bson:"private_amenities" json:"private_amenities"`
	PlotSize           string            `bson:"plot_size" json:"plot_size"`
	Developer          string            `bson:"developer" json:"developer"`
	CompletionStatus   string            `bson:"completion_status" json:"completion_status"`
	Parking            string            `bson:"parking" json:"parking"`
	Furnished          string            `bson:"furnished" json:"furnished"`
	ProjectName        string            `bson:"project_name" json:"project_name"`
	TitleDeed          string            `bson:"title_deed" json:"title_deed"`
	AvailabilityDate   string            `bson:"availability_date" json:"availability_date"`
	QRCode             string            `bson:"qr_code" json:"qr_code"`
	Extra              map[string]string `bson:"extra,omitempty" json:"extra,omitempty"`
}

// Image is one entry of the media block.
type Image struct {
	Title string `bson:"title" json:"title"`
	URL   string `bson:"url" json:"url"`
}

// IsLive reports whether the listing's upstream status marks it as
// currently publishable.
func (l *Listing) IsLive() bool {
	return strings.EqualFold(strings.TrimSpace(l.General.Status), "live")
}

// ShouldUpdate reports the feed's update hint. Only the literal "No"
// suppresses a full update; any other value, including absence, allows it.
func (l *Listing) ShouldUpdate() bool {
	return l.General.Updated != "No"
}
