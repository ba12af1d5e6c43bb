// Package extractor applies a site's CSS selectors to fetched content.
// Extraction is best-effort per field: a selector that matches nothing
// yields an absent field, never an error. Only a category page with zero
// product containers fails outright.
package extractor

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/wearly-labs/stylefeed/internal/domain"
)

// Fallback selectors for fields the site config leaves unset.
const (
	defaultTitleSel       = "h1, .product-title, .title"
	defaultPriceSel       = ".price, [data-price]"
	defaultImageSel       = "img"
	defaultLinkSel        = "a"
	defaultSizesSel       = ".size-option, [data-size]"
	defaultDescriptionSel = ".product-description, .description, [data-description]"
)

// Listing extracts one RawProduct per product container on a category
// page. Containers without a resolvable product link are skipped. Zero
// containers means the selectors do not match this page at all and is an
// error; N containers with missing fields is not.
func Listing(html, baseURL string, sel domain.Selectors) ([]domain.RawProduct, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse category page: %w", err)
	}

	containers := doc.Find(sel.Products)
	if containers.Length() == 0 {
		return nil, fmt.Errorf("%s: %w", sel.Products, domain.ErrNoProducts)
	}

	var products []domain.RawProduct
	containers.Each(func(_ int, c *goquery.Selection) {
		link := c.Find(orDefault(sel.ProductURL, defaultLinkSel)).First()
		href, ok := link.Attr("href")
		if !ok || href == "" {
			return
		}

		productURL := absoluteURL(baseURL, href)
		raw := domain.RawProduct{
			ProductURL: productURL,
			ExternalID: externalID(productURL),
			Title:      cleanText(c.Find(orDefault(sel.Title, defaultTitleSel)).First().Text()),
			Price:      cleanText(c.Find(orDefault(sel.Price, defaultPriceSel)).First().Text()),
			ImageURL:   imageURL(c, orDefault(sel.ImageURL, defaultImageSel), baseURL),
		}
		products = append(products, raw)
	})

	return products, nil
}

// Detail extracts an enriched RawProduct from a product-detail page.
// Every field is optional; the result is merged over the listing record
// by the caller.
func Detail(html, pageURL string, sel domain.Selectors) domain.RawProduct {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return domain.RawProduct{ProductURL: pageURL, ExternalID: externalID(pageURL)}
	}

	raw := domain.RawProduct{
		ProductURL:  pageURL,
		ExternalID:  externalID(pageURL),
		Title:       cleanText(doc.Find(orDefault(sel.Title, defaultTitleSel)).First().Text()),
		ImageURL:    imageURL(doc.Selection, orDefault(sel.ImageURL, defaultImageSel), pageURL),
		Description: cleanText(doc.Find(defaultDescriptionSel).First().Text()),
	}

	raw.Price = cleanText(doc.Find(orDefault(sel.Price, defaultPriceSel)).First().Text())
	if raw.Price == "" {
		raw.Price = priceFromPage(doc)
	}

	doc.Find(orDefault(sel.Sizes, defaultSizesSel)).Each(func(_ int, s *goquery.Selection) {
		if v := cleanText(s.Text()); v != "" {
			raw.Sizes = append(raw.Sizes, v)
		}
	})

	if sel.Gender != "" {
		raw.Gender = cleanText(doc.Find(sel.Gender).First().Text())
	}

	return raw
}

func orDefault(sel, fallback string) string {
	if sel == "" {
		return fallback
	}
	return sel
}

// imageURL resolves the first image under root, preferring src over the
// lazy-load data-src attribute.
func imageURL(root *goquery.Selection, sel, baseURL string) string {
	img := root.Find(sel).First()
	src, ok := img.Attr("src")
	if !ok || src == "" {
		src, _ = img.Attr("data-src")
	}
	if src == "" {
		return ""
	}
	return absoluteURL(baseURL, src)
}

// absoluteURL resolves href against base, handling protocol-relative and
// path-relative forms.
func absoluteURL(baseURL, href string) string {
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

var (
	scriptPriceRegex = regexp.MustCompile(`"price":\s*"([^"]+)"`)
	whitespaceRegex  = regexp.MustCompile(`\s+`)
	numericRegex     = regexp.MustCompile(`\d+`)
)

// priceFromPage scans script JSON blobs and data-price attributes when no
// price selector matched. Shopify themes often carry the price only in an
// embedded product JSON.
func priceFromPage(doc *goquery.Document) string {
	price := ""
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if m := scriptPriceRegex.FindStringSubmatch(s.Text()); m != nil {
			price = m[1]
			return false
		}
		return true
	})
	if price != "" {
		return price
	}

	if v, ok := doc.Find("[data-price]").First().Attr("data-price"); ok {
		return cleanText(v)
	}
	return ""
}

// externalID derives a per-site product identifier from a Shopify-style
// /products/<handle> path: the numeric part of the handle when present,
// the handle otherwise, and the dash-joined path as a last resort.
func externalID(productURL string) string {
	u, err := url.Parse(productURL)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, p := range parts {
		if p == "products" && i+1 < len(parts) {
			handle := parts[i+1]
			if m := numericRegex.FindString(handle); m != "" {
				return m
			}
			return handle
		}
	}
	if len(parts) > 0 && parts[0] != "" {
		return strings.Join(parts, "-")
	}
	return ""
}

func cleanText(s string) string {
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(s, " "))
}
