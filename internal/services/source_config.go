package services

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Source kinds and pagination modes. Pagination is configured per
// source, never auto-detected.
const (
	SourceKindHTML = "html"
	SourceKindAPI  = "api"

	PaginationPageParam = "page-param"
	PaginationNextLink  = "next-link"
)

// Default politeness delays between requests. Sources override these
// per config; scraping targets tolerate roughly one request per second.
const (
	defaultPageDelayMs   = 800
	defaultDetailDelayMs = 1200
)

// SeriesConfig is one series as the source site knows it. SiteID is the
// source's internal identifier (numeric ID or slug), which rarely
// matches the catalog code.
type SeriesConfig struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	SiteID     string `json:"site_id"`
	MaxSetBase int    `json:"max_set_base"`
	MasterSet  int    `json:"master_set"`
	BannerURL  string `json:"banner_url,omitempty"`
}

// SourceConfig describes one third-party card database: URL layout,
// pagination mode, CSS selectors, delays. These records are external
// data (data/sources.json); selectors rot with site redesigns and get
// fixed there, not in code.
type SourceConfig struct {
	Name    string `json:"name"`
	TCG     string `json:"tcg"`      // catalog slug, e.g. "onepiece"
	TCGName string `json:"tcg_name"` // display name for lazy game creation
	Kind    string `json:"kind"`     // "html" or "api"
	BaseURL string `json:"base_url"`

	// ListPath is the listing URL template. Placeholders: {series} for
	// the series site ID, {lang} for the language code, {page} for the
	// page number (page-param mode only).
	ListPath   string `json:"list_path"`
	Pagination string `json:"pagination"`

	// HTML source selectors
	ItemSelector  string `json:"item_selector,omitempty"`  // detail-page anchors in a listing
	NextSelector  string `json:"next_selector,omitempty"`  // the pagination control ("click" target)
	TotalSelector string `json:"total_selector,omitempty"` // element holding the expected item count
	ImageSelector string `json:"image_selector,omitempty"` // detail-page image fallback
	AttrSelector  string `json:"attr_selector,omitempty"`  // dt/dd container with card attributes

	// Referer to send when downloading images, for sources with
	// hotlink protection
	ImageReferer string `json:"image_referer,omitempty"`

	PageDelayMs   int `json:"page_delay_ms,omitempty"`
	DetailDelayMs int `json:"detail_delay_ms,omitempty"`

	Languages []string       `json:"languages"`
	Series    []SeriesConfig `json:"series"`
}

// PageDelay and DetailDelay fall back to the defaults when the record
// leaves them zero.
func (c *SourceConfig) PageDelay() int {
	if c.PageDelayMs > 0 {
		return c.PageDelayMs
	}
	return defaultPageDelayMs
}

func (c *SourceConfig) DetailDelay() int {
	if c.DetailDelayMs > 0 {
		return c.DetailDelayMs
	}
	return defaultDetailDelayMs
}

// ListURL expands the listing template for a series/language/page.
func (c *SourceConfig) ListURL(series SeriesConfig, lang string, page int) string {
	path := c.ListPath
	path = strings.ReplaceAll(path, "{series}", series.SiteID)
	path = strings.ReplaceAll(path, "{lang}", lang)
	path = strings.ReplaceAll(path, "{page}", fmt.Sprintf("%d", page))
	return c.BaseURL + path
}

// FindSeries returns the config record for a catalog series code.
func (c *SourceConfig) FindSeries(code string) (SeriesConfig, bool) {
	for _, s := range c.Series {
		if strings.EqualFold(s.Code, code) {
			return s, true
		}
	}
	return SeriesConfig{}, false
}

// HasLanguage reports whether the source publishes the given language.
func (c *SourceConfig) HasLanguage(lang string) bool {
	for _, l := range c.Languages {
		if l == lang {
			return true
		}
	}
	return false
}

// LoadSourceConfigs reads and validates the source records.
func LoadSourceConfigs(path string) ([]SourceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source configs: %w", err)
	}

	var configs []SourceConfig
	if err := json.Unmarshal(data, &configs); err != nil {
		return nil, fmt.Errorf("failed to parse source configs: %w", err)
	}

	for i := range configs {
		if err := validateSourceConfig(&configs[i]); err != nil {
			return nil, fmt.Errorf("source %q: %w", configs[i].Name, err)
		}
	}
	return configs, nil
}

// FindSourceConfig returns the first source for a TCG slug.
func FindSourceConfig(configs []SourceConfig, tcg string) (SourceConfig, bool) {
	for _, c := range configs {
		if c.TCG == tcg {
			return c, true
		}
	}
	return SourceConfig{}, false
}

func validateSourceConfig(c *SourceConfig) error {
	if c.TCG == "" {
		return fmt.Errorf("missing tcg slug")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("missing base_url")
	}
	switch c.Kind {
	case SourceKindHTML, SourceKindAPI:
	default:
		return fmt.Errorf("unknown kind %q", c.Kind)
	}
	switch c.Pagination {
	case PaginationPageParam, PaginationNextLink:
	case "":
		// API sources paginate by offset and leave this empty
		if c.Kind != SourceKindAPI {
			return fmt.Errorf("missing pagination mode")
		}
	default:
		return fmt.Errorf("unknown pagination mode %q", c.Pagination)
	}
	if c.Kind == SourceKindHTML && c.ItemSelector == "" {
		return fmt.Errorf("html source needs an item_selector")
	}
	if c.Pagination == PaginationNextLink && c.NextSelector == "" {
		return fmt.Errorf("next-link pagination needs a next_selector")
	}
	return nil
}
