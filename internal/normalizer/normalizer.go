// Package normalizer maps extracted fields and an optional embedding into
// the canonical product record. Normalization is deterministic: the same
// raw fields always produce the same stable identifier, which is what
// makes the downstream upsert idempotent.
package normalizer

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/wearly-labs/stylefeed/internal/domain"
)

// idHashLen is how many hex characters of the digest end up in the id.
const idHashLen = 16

// Normalize builds a Product from raw fields, an optional embedding and
// the site's static metadata. Products missing any hard-required field
// (product_url, image_url, title) are rejected with a NormalizationError
// and dropped by the caller; a nil embedding is acceptable.
func Normalize(raw domain.RawProduct, emb domain.Vector, site domain.Site) (domain.Product, error) {
	switch {
	case site.Source == "":
		return domain.Product{}, &domain.NormalizationError{Field: "source"}
	case raw.ProductURL == "":
		return domain.Product{}, &domain.NormalizationError{Field: "product_url"}
	case raw.ImageURL == "":
		return domain.Product{}, &domain.NormalizationError{Field: "image_url"}
	case raw.Title == "":
		return domain.Product{}, &domain.NormalizationError{Field: "title"}
	}

	p := domain.Product{
		ID:           StableID(site.Source, raw.ProductURL),
		Source:       site.Source,
		ExternalID:   raw.ExternalID,
		ProductURL:   raw.ProductURL,
		MerchantName: site.MerchantName,
		Brand:        site.Brand,
		Title:        raw.Title,
		Price:        ParsePrice(raw.Price),
		Currency:     site.Currency,
		ImageURL:     raw.ImageURL,
		Gender:       inferGender(raw),
		Size:         domain.JoinSizes(raw.Sizes),
		SecondHand:   site.SecondHand,
		Country:      site.Country,
		Embedding:    emb,
	}

	p.Metadata = buildMetadata(raw, site)
	return p, nil
}

// StableID derives the persisted identifier from the natural key. The
// digest is truncated, prefixed with the source for readability.
func StableID(source, productURL string) string {
	sum := md5.Sum([]byte(source + ":" + productURL))
	return source + "_" + hex.EncodeToString(sum[:])[:idHashLen]
}

var priceNumRegex = regexp.MustCompile(`[\d.]+`)

// ParsePrice extracts a numeric price from listing text. European decimal
// commas ("139,00") become dots; commas next to dots are treated as
// thousands separators ("1,299.00"). Unparseable text yields nil, never
// an error: a product without a readable price is still worth storing.
func ParsePrice(text string) *float64 {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	hasComma := strings.Contains(text, ",")
	hasDot := strings.Contains(text, ".")
	switch {
	case hasComma && !hasDot:
		text = strings.ReplaceAll(text, ",", ".")
	case hasComma && hasDot:
		text = strings.ReplaceAll(text, ",", "")
	}

	m := priceNumRegex.FindString(text)
	if m == "" {
		return nil
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return nil
	}
	return &v
}

var (
	womenRegex = regexp.MustCompile(`(?i)\b(women|woman|female|femme|damen)\b`)
	menRegex   = regexp.MustCompile(`(?i)\b(men|man|male|homme|herren)\b`)
)

// inferGender uses the explicit hint when present, then falls back to
// keyword matching on the product URL and title. Women patterns are
// checked first since "women" contains "men". Absent is a valid outcome.
func inferGender(raw domain.RawProduct) string {
	if g := normalizeGenderHint(raw.Gender); g != "" {
		return g
	}
	for _, text := range []string{raw.ProductURL, raw.Title} {
		if womenRegex.MatchString(text) {
			return "women"
		}
		if menRegex.MatchString(text) {
			return "men"
		}
	}
	return ""
}

func normalizeGenderHint(hint string) string {
	if hint == "" {
		return ""
	}
	if womenRegex.MatchString(hint) {
		return "women"
	}
	if menRegex.MatchString(hint) {
		return "men"
	}
	return ""
}

// buildMetadata packs fields outside the fixed schema into the opaque
// metadata blob.
func buildMetadata(raw domain.RawProduct, site domain.Site) map[string]any {
	meta := map[string]any{}
	if raw.Description != "" {
		meta["description"] = raw.Description
	}
	if site.MerchantName != "" {
		meta["merchant_name"] = site.MerchantName
	}
	if site.Country != "" {
		meta["country"] = site.Country
	}
	if site.Currency != "" {
		meta["original_currency"] = site.Currency
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}

// Describe renders a one-line summary for debug logging.
func Describe(p domain.Product) string {
	price := "-"
	if p.Price != nil {
		price = fmt.Sprintf("%.2f %s", *p.Price, p.Currency)
	}
	return fmt.Sprintf("%s %q (%s)", p.ID, p.Title, price)
}
