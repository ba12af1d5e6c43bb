package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/wearly-labs/stylefeed/internal/domain"
)

// LoadSites reads the site catalog: a YAML mapping from site key to its
// declarative configuration. Any malformed site fails the whole load with
// a ConfigError naming the site and field; a broken catalog entry must be
// caught before any scraping starts.
func LoadSites(path string) (map[string]domain.Site, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read site catalog %s: %w", path, err)
	}

	data = expandEnvVars(data)

	var sites map[string]domain.Site
	if err := yaml.Unmarshal(data, &sites); err != nil {
		return nil, fmt.Errorf("failed to parse site catalog: %w", err)
	}
	if len(sites) == 0 {
		return nil, fmt.Errorf("site catalog %s is empty", path)
	}

	for name, site := range sites {
		applySiteDefaults(&site)
		if err := validateSite(name, site); err != nil {
			return nil, err
		}
		sites[name] = site
	}

	return sites, nil
}

func applySiteDefaults(s *domain.Site) {
	if s.Mode == "" {
		s.Mode = domain.ModeHTML
	}
	if s.Currency == "" {
		s.Currency = "EUR"
	}
	if s.Country == "" {
		s.Country = "eu"
	}
	if s.Pagination != nil && s.Pagination.MaxPages <= 0 {
		s.Pagination.MaxPages = 20
	}
}

func validateSite(name string, s domain.Site) error {
	if s.Source == "" {
		return &domain.ConfigError{Site: name, Field: "source", Msg: "is required"}
	}
	if s.BaseURL == "" && len(s.Categories) == 0 {
		return &domain.ConfigError{Site: name, Field: "base_url", Msg: "either base_url or categories is required"}
	}
	for i, c := range s.Categories {
		if c.URL == "" {
			return &domain.ConfigError{
				Site:  name,
				Field: fmt.Sprintf("categories[%d].url", i),
				Msg:   "is required",
			}
		}
	}
	if s.Selectors == (domain.Selectors{}) {
		return &domain.ConfigError{Site: name, Field: "selectors", Msg: "must not be empty"}
	}
	if s.Selectors.Products == "" {
		return &domain.ConfigError{Site: name, Field: "selectors.products", Msg: "is required"}
	}
	switch s.Mode {
	case domain.ModeHTML, domain.ModeBrowser:
	default:
		return &domain.ConfigError{Site: name, Field: "mode", Msg: fmt.Sprintf("unknown mode %q", s.Mode)}
	}
	if s.Pagination != nil {
		switch s.Pagination.Type {
		case domain.PaginationButton, domain.PaginationInfiniteScroll, domain.PaginationURLBased:
		default:
			return &domain.ConfigError{
				Site:  name,
				Field: "pagination.type",
				Msg:   fmt.Sprintf("unknown pagination type %q", s.Pagination.Type),
			}
		}
	}
	return nil
}
