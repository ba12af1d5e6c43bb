package domain

import (
	"reflect"
	"testing"
)

func TestMerge_DetailWins(t *testing.T) {
	listing := RawProduct{
		Title:      "Raw Jacket",
		Price:      "139,00 EUR",
		ImageURL:   "https://cdn.example.com/a.jpg",
		ProductURL: "https://shop.example.com/products/raw-jacket",
	}
	detail := RawProduct{
		Title: "New Navy Raw Jacket",
		Sizes: []string{"S", "M"},
	}

	merged := listing.Merge(detail)

	if merged.Title != "New Navy Raw Jacket" {
		t.Errorf("expected detail title to win, got %q", merged.Title)
	}
	if merged.Price != "139,00 EUR" {
		t.Errorf("expected listing price to survive, got %q", merged.Price)
	}
	if merged.ImageURL != listing.ImageURL {
		t.Errorf("expected listing image to survive, got %q", merged.ImageURL)
	}
	if len(merged.Sizes) != 2 {
		t.Errorf("expected detail sizes, got %v", merged.Sizes)
	}
}

func TestMerge_EmptyDetailKeepsListing(t *testing.T) {
	listing := RawProduct{Title: "Hoodie", ProductURL: "https://shop.example.com/p/1"}

	merged := listing.Merge(RawProduct{})

	if !reflect.DeepEqual(merged, listing) {
		t.Errorf("expected unchanged listing, got %+v", merged)
	}
}

func TestJoinSizes(t *testing.T) {
	got := JoinSizes([]string{" S ", "", "M", "XL"})
	if got != "S, M, XL" {
		t.Errorf("expected %q, got %q", "S, M, XL", got)
	}
	if JoinSizes(nil) != "" {
		t.Error("expected empty string for nil sizes")
	}
}
