package config

import (
	"errors"
	"testing"

	"github.com/wearly-labs/stylefeed/internal/domain"
)

const validCatalog = `
scuffers:
  source: scuffers
  merchant_name: Scuffers
  brand: Scuffers
  base_url: https://scuffers.example.com
  mode: browser
  categories:
    - name: all
      url: https://scuffers.example.com/collections/all
  selectors:
    products: .product-block__inner
    title: .product-block__title
    price: .product-block__price
    image_url: img
    product_url: a[href*="/products/"]
  pagination:
    type: button
    selector: button.load-more
  second_hand: false
  country: es
  currency: EUR
`

func TestLoadSites_Valid(t *testing.T) {
	path := writeConfig(t, validCatalog)

	sites, err := LoadSites(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	site, ok := sites["scuffers"]
	if !ok {
		t.Fatal("expected site scuffers in catalog")
	}
	if site.Mode != domain.ModeBrowser {
		t.Errorf("expected browser mode, got %q", site.Mode)
	}
	if site.Pagination == nil || site.Pagination.MaxPages != 20 {
		t.Errorf("expected default max_pages 20, got %+v", site.Pagination)
	}
	if site.Currency != "EUR" || site.Country != "es" {
		t.Errorf("unexpected static metadata: %q %q", site.Currency, site.Country)
	}
}

func TestLoadSites_Defaults(t *testing.T) {
	path := writeConfig(t, `
plain:
  source: plain
  base_url: https://plain.example.com
  selectors:
    products: .product-item
`)

	sites, err := LoadSites(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	site := sites["plain"]
	if site.Mode != domain.ModeHTML {
		t.Errorf("expected default html mode, got %q", site.Mode)
	}
	if site.Currency != "EUR" {
		t.Errorf("expected default currency EUR, got %q", site.Currency)
	}
	if site.Country != "eu" {
		t.Errorf("expected default country eu, got %q", site.Country)
	}
}

func TestLoadSites_MissingSource(t *testing.T) {
	path := writeConfig(t, `
broken:
  base_url: https://broken.example.com
  selectors:
    products: .product
`)

	_, err := LoadSites(path)

	var cfgErr *domain.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if cfgErr.Site != "broken" || cfgErr.Field != "source" {
		t.Errorf("unexpected error target: %+v", cfgErr)
	}
}

func TestLoadSites_EmptySelectors(t *testing.T) {
	path := writeConfig(t, `
broken:
  source: broken
  base_url: https://broken.example.com
`)

	_, err := LoadSites(path)

	var cfgErr *domain.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if cfgErr.Field != "selectors" {
		t.Errorf("expected selectors field, got %q", cfgErr.Field)
	}
}

func TestLoadSites_UnknownPaginationType(t *testing.T) {
	path := writeConfig(t, `
broken:
  source: broken
  base_url: https://broken.example.com
  selectors:
    products: .product
  pagination:
    type: teleport
`)

	_, err := LoadSites(path)

	var cfgErr *domain.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if cfgErr.Field != "pagination.type" {
		t.Errorf("expected pagination.type field, got %q", cfgErr.Field)
	}
}
