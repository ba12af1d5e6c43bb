package domain

// Fetch modes for a site.
const (
	ModeHTML    = "html"
	ModeBrowser = "browser"
)

// Pagination strategy types for browser-mode sites.
const (
	PaginationButton         = "button"
	PaginationInfiniteScroll = "infinite_scroll"
	PaginationURLBased       = "url_based"
)

// Category is one listing page of a site.
type Category struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Selectors maps product fields to CSS queries.
// Every selector is optional except Products; a missing selector means
// the field is simply never extracted for that site.
type Selectors struct {
	Products   string `yaml:"products"`
	Title      string `yaml:"title"`
	Price      string `yaml:"price"`
	ImageURL   string `yaml:"image_url"`
	ProductURL string `yaml:"product_url"`
	Sizes      string `yaml:"sizes"`
	Gender     string `yaml:"gender"`
}

// Pagination describes how a browser-mode site loads additional products.
type Pagination struct {
	Type     string `yaml:"type"` // button, infinite_scroll, url_based
	Selector string `yaml:"selector"`
	MaxPages int    `yaml:"max_pages"`
}

// Site is the declarative configuration of one brand site.
// Immutable once loaded; the loader validates it.
type Site struct {
	Source       string      `yaml:"source"`
	MerchantName string      `yaml:"merchant_name"`
	Brand        string      `yaml:"brand"`
	BaseURL      string      `yaml:"base_url"`
	Mode         string      `yaml:"mode"` // html (default) or browser
	Categories   []Category  `yaml:"categories"`
	Selectors    Selectors   `yaml:"selectors"`
	Pagination   *Pagination `yaml:"pagination"`
	SecondHand   bool        `yaml:"second_hand"`
	Country      string      `yaml:"country"`
	Currency     string      `yaml:"currency"`
}
