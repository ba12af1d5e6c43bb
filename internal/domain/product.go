package domain

import "strings"

// RawProduct holds the fields extracted from markup before normalization.
// Every field is optional; extraction fills what the selectors find and
// leaves the rest empty.
type RawProduct struct {
	Title       string
	Price       string // as text, not yet parsed
	ImageURL    string
	ProductURL  string
	ExternalID  string
	Sizes       []string
	Gender      string
	Description string
}

// Merge overlays non-empty fields of detail over l. Listing data is the
// base, detail-page data wins. Returns the merged record.
func (l RawProduct) Merge(detail RawProduct) RawProduct {
	out := l
	if detail.Title != "" {
		out.Title = detail.Title
	}
	if detail.Price != "" {
		out.Price = detail.Price
	}
	if detail.ImageURL != "" {
		out.ImageURL = detail.ImageURL
	}
	if detail.ProductURL != "" {
		out.ProductURL = detail.ProductURL
	}
	if detail.ExternalID != "" {
		out.ExternalID = detail.ExternalID
	}
	if len(detail.Sizes) > 0 {
		out.Sizes = detail.Sizes
	}
	if detail.Gender != "" {
		out.Gender = detail.Gender
	}
	if detail.Description != "" {
		out.Description = detail.Description
	}
	return out
}

// Product is the canonical persisted record. (Source, ProductURL) is the
// natural key; ID is derived deterministically from it so re-scraping the
// same product always maps to the same row.
type Product struct {
	ID           string
	Source       string
	ExternalID   string
	ProductURL   string
	MerchantName string
	Brand        string
	Title        string
	Price        *float64
	Currency     string
	ImageURL     string
	Gender       string
	Size         string // comma-joined
	SecondHand   bool
	Country      string
	Embedding    Vector // nil when embedding failed or was skipped
	Metadata     map[string]any
}

// UpsertResult reports what happened to one persistence call. Inserted
// and Updated come from the database; Failed counts products lost to
// failed batches.
type UpsertResult struct {
	Inserted    int
	Updated     int
	Failed      int
	BatchErrors []error
}

// JoinSizes renders raw size values as the persisted comma-joined string.
func JoinSizes(sizes []string) string {
	clean := make([]string, 0, len(sizes))
	for _, s := range sizes {
		if s = strings.TrimSpace(s); s != "" {
			clean = append(clean, s)
		}
	}
	return strings.Join(clean, ", ")
}
