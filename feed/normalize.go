package feed

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"pfsync/models"
)

// ErrMissingID marks records the feed delivered without an external
// identifier. Such records are excluded from the batch and reported.
var ErrMissingID = errors.New("record has no listing id")

const feedTimeLayout = "2006-01-02 15:04:05"

// Normalize maps a raw feed record into the canonical Listing, applying
// the defaulting rules for absent fields and flattening every observed
// media and QR-code shape. Downstream code never re-checks for missing
// fields; this is the one place defaults happen.
func Normalize(raw RawRecord) (*models.Listing, error) {
	id := raw.ID()
	if id == "" {
		return nil, ErrMissingID
	}

	gli := raw.Map("general_listing_information")
	custom := raw.Map("custom_fields")
	addr := raw.Map("address_information")
	agent := raw.Map("listing_agent")

	publishedRaw := resolvePublishedAt(id, gli.Str("Last_Website_Published_Date_Time"), raw.Str("created_at"))

	status := gli.Str("status")
	if status == "" {
		status = "Live"
	}

	cls := Classify(custom.Str("offering_type"), custom.Str("completion_status"), status)

	timestamp := raw.Str("timestamp")
	if timestamp == "" {
		timestamp = time.Now().UTC().Format(feedTimeLayout)
	}

	mobile := agent.Str("listing_agent_mobil_phone")
	phone := agent.Str("listing_agent_phone")
	if phone == "" {
		phone = mobile
	}

	listing := &models.Listing{
		ID:             id,
		PublishedAtRaw: publishedRaw,
		PublishedAt:    parseFeedTime(publishedRaw),
		Timestamp:      timestamp,
		OfferingType:   valueOr(custom.Str("offering_type"), "RS"),
		PropertyType:   valueOr(gli.Str("property_type"), "apartment"),
		ListingType:    cls.Category,
		Address: models.AddressInfo{
			City:    addr.Str("city"),
			Address: addr.Str("address"),
		},
		General: models.GeneralInfo{
			Title:       valueOr(gli.Str("listing_title"), "No Title"),
			Updated:     valueOr(gli.Str("updated"), "No"),
			Price:       valueOr(gli.Str("listingprice"), "0"),
			ListingType: cls.Category,
			Currency:    valueOr(gli.Str("currency_iso_code"), "AED"),
			Status:      status,
			TotalArea:   valueOr(gli.Str("totalarea"), "0"),
			Description: stripHTML(gli.Str("description")),
			Bedrooms:    valueOr(gli.Str("bedrooms"), "0"),
			Bathrooms:   valueOr(gli.Str("fullbathrooms"), "0"),
		},
		Agent: models.ListingAgent{
			Email:       agent.Str("listing_agent_email"),
			FirstName:   agent.Str("listing_agent_firstname"),
			LastName:    agent.Str("listing_agent_lastname"),
			MobilePhone: mobile,
			Phone:       phone,
		},
		Custom:         normalizeCustomFields(custom),
		Media:          flattenImages(raw.Value("listing_media", "images", "image")),
		QRCode:         flattenQR(custom.Value("qr_code")),
		Classification: cls,
	}
	listing.Custom.QRCode = listing.QRCode

	return listing, nil
}

// resolvePublishedAt prefers the general-info publish timestamp over the
// root created_at attribute. Which is authoritative when both are present
// and disagree is unspecified upstream, so a disagreement is logged
// instead of silently resolved.
func resolvePublishedAt(id, fromInfo, fromAttr string) string {
	if fromInfo != "" && fromAttr != "" && fromInfo != fromAttr {
		log.Printf("Warning: listing %s: publish timestamps disagree (info=%q attr=%q), using info", id, fromInfo, fromAttr)
	}
	if fromInfo != "" {
		return fromInfo
	}
	return fromAttr
}

func normalizeCustomFields(custom RawRecord) models.CustomFields {
	known := map[string]bool{
		"property_record_id": true, "permit_number": true, "offering_type": true,
		"price_on_application": true, "payment_method": true, "city": true,
		"community": true, "sub_community": true, "property_name": true,
		"propertyfinder_region": true, "unitnumber": true, "private_amenities": true,
		"plot_size": true, "developer": true, "completion_status": true,
		"parking": true, "furnished": true, "project_name": true,
		"title_deed": true, "availability_date": true, "qr_code": true,
	}

	out := models.CustomFields{
		PropertyRecordID:   custom.Str("property_record_id"),
		PermitNumber:       custom.Str("permit_number"),
		OfferingType:       custom.Str("offering_type"),
		PriceOnApplication: valueOr(custom.Str("price_on_application"), "No"),
		PaymentMethod:      custom.Str("payment_method"),
		City:               custom.Str("city"),
		Community:          custom.Str("community"),
		SubCommunity:       custom.Str("sub_community"),
		PropertyName:       custom.Str("property_name"),
		Region:             custom.Str("propertyfinder_region"),
		UnitNumber:         custom.Str("unitnumber"),
		Amenities:          custom.Str("private_amenities"),
		PlotSize:           valueOr(custom.Str("plot_size"), "0"),
		Developer:          custom.Str("developer"),
		CompletionStatus:   valueOr(custom.Str("completion_status"), "completed"),
		Parking:            valueOr(custom.Str("parking"), "0"),
		Furnished:          valueOr(custom.Str("furnished"), "No"),
		ProjectName:        custom.Str("project_name"),
		TitleDeed:          custom.Str("title_deed"),
		AvailabilityDate:   custom.Str("availability_date"),
	}

	for key, v := range custom {
		if known[key] {
			continue
		}
		if s := textOf(v); s != "" {
			if out.Extra == nil {
				out.Extra = make(map[string]string)
			}
			out.Extra[key] = s
		}
	}

	return out
}

// flattenImages collapses every image nesting the feed has been seen to
// produce into a flat ordered list of title/url pairs: plain url strings,
// {title,url} maps, urls wrapped in text-node maps, and single images
// carrying a list of urls.
func flattenImages(v any) []models.Image {
	switch t := v.(type) {
	case []any:
		var out []models.Image
		for _, item := range t {
			out = append(out, flattenImage(item)...)
		}
		return out
	case map[string]any, string:
		return flattenImage(t)
	}
	return nil
}

func flattenImage(v any) []models.Image {
	switch img := v.(type) {
	case string:
		return []models.Image{{URL: strings.TrimSpace(img)}}
	case map[string]any:
		title := textOf(img["title"])
		switch u := img["url"].(type) {
		case string:
			return []models.Image{{Title: title, URL: strings.TrimSpace(u)}}
		case []any:
			var out []models.Image
			for _, item := range u {
				itemTitle := title
				if m, ok := item.(map[string]any); ok {
					if t := textOf(m["title"]); t != "" {
						itemTitle = t
					}
				}
				if url := textOf(item); url != "" {
					out = append(out, models.Image{Title: itemTitle, URL: url})
				}
			}
			return out
		case map[string]any:
			if t := textOf(u["title"]); t != "" {
				title = t
			}
			if url := textOf(u); url != "" {
				return []models.Image{{Title: title, URL: url}}
			}
		}
		if url := textOf(img); url != "" {
			return []models.Image{{Title: title, URL: url}}
		}
	}
	return nil
}

// flattenQR extracts a plain URL string from any of the four QR-code
// shapes the feed produces: a direct string, {url: string}, a url wrapped
// in a text-node map, or a list of urls (first entry wins).
func flattenQR(v any) string {
	switch qr := v.(type) {
	case string:
		return strings.TrimSpace(qr)
	case map[string]any:
		switch u := qr["url"].(type) {
		case string:
			return strings.TrimSpace(u)
		case map[string]any:
			return textOf(u)
		case []any:
			if len(u) > 0 {
				return textOf(u[0])
			}
		}
		return textOf(qr)
	}
	return ""
}

// parseFeedTime reads the feed's naive "2006-01-02 15:04:05" timestamps
// as UTC; ISO-shaped values are accepted too. Unparseable or empty input
// yields nil, never "now": a missing publish date must stay
// distinguishable from a real one.
func parseFeedTime(ts string) *time.Time {
	ts = strings.TrimSpace(ts)
	if ts == "" {
		return nil
	}
	for _, layout := range []string{feedTimeLayout, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.ParseInLocation(layout, ts, time.UTC); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func stripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return strings.TrimSpace(doc.Text())
}

func valueOr(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
