package services

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadSourceConfigs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.json")
	payload := `[
  {
    "name": "cardotaku",
    "tcg": "onepiece",
    "tcg_name": "One Piece Card Game",
    "kind": "html",
    "base_url": "https://example.com",
    "list_path": "/{lang}/collections/{series}",
    "pagination": "next-link",
    "item_selector": ".grid a",
    "next_selector": "a.next",
    "languages": ["en", "fr"],
    "series": [{"code": "OP02", "site_id": "op-02-paramount-war"}]
  },
  {
    "name": "tcgdex",
    "tcg": "pokemon",
    "kind": "api",
    "base_url": "https://api.example.com",
    "list_path": "/v2/{lang}/sets/{series}/cards?page={page}",
    "languages": ["en"],
    "series": [{"code": "SV01", "site_id": "sv01"}]
  }
]`
	if err := os.WriteFile(path, []byte(payload), 0644); err != nil {
		t.Fatal(err)
	}

	configs, err := LoadSourceConfigs(path)
	if err != nil {
		t.Fatalf("LoadSourceConfigs() error = %v", err)
	}
	if len(configs) != 2 {
		t.Fatalf("LoadSourceConfigs() returned %d configs, want 2", len(configs))
	}
	if configs[0].Name != "cardotaku" || configs[0].Kind != SourceKindHTML {
		t.Errorf("configs[0] = %+v", configs[0])
	}
	// delays left zero in the file fall back to defaults
	if configs[0].PageDelay() != defaultPageDelayMs || configs[0].DetailDelay() != defaultDetailDelayMs {
		t.Errorf("delays = %d/%d, want defaults", configs[0].PageDelay(), configs[0].DetailDelay())
	}
}

func TestLoadSourceConfigs_MissingFile(t *testing.T) {
	if _, err := LoadSourceConfigs(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("LoadSourceConfigs() error = nil for missing file, want error")
	}
}

func TestValidateSourceConfig(t *testing.T) {
	valid := func() SourceConfig {
		return SourceConfig{
			Name:         "site",
			TCG:          "onepiece",
			Kind:         SourceKindHTML,
			BaseURL:      "https://example.com",
			ListPath:     "/{lang}/collections/{series}",
			Pagination:   PaginationNextLink,
			ItemSelector: ".grid a",
			NextSelector: "a.next",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*SourceConfig)
		wantErr string
	}{
		{"valid html source", func(c *SourceConfig) {}, ""},
		{"valid api source without pagination", func(c *SourceConfig) {
			c.Kind = SourceKindAPI
			c.Pagination = ""
			c.ItemSelector = ""
			c.NextSelector = ""
		}, ""},
		{"missing tcg", func(c *SourceConfig) { c.TCG = "" }, "missing tcg"},
		{"missing base url", func(c *SourceConfig) { c.BaseURL = "" }, "missing base_url"},
		{"unknown kind", func(c *SourceConfig) { c.Kind = "rss" }, "unknown kind"},
		{"html without pagination", func(c *SourceConfig) { c.Pagination = "" }, "missing pagination"},
		{"unknown pagination", func(c *SourceConfig) { c.Pagination = "scroll" }, "unknown pagination"},
		{"html without item selector", func(c *SourceConfig) { c.ItemSelector = "" }, "item_selector"},
		{"next-link without next selector", func(c *SourceConfig) { c.NextSelector = "" }, "next_selector"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := validateSourceConfig(&cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("validateSourceConfig() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("validateSourceConfig() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestSourceConfig_ListURL(t *testing.T) {
	cfg := SourceConfig{
		BaseURL:  "https://example.com",
		ListPath: "/{lang}/sets/{series}?page={page}",
	}
	got := cfg.ListURL(SeriesConfig{Code: "OP02", SiteID: "op-02-paramount-war"}, "fr", 3)
	want := "https://example.com/fr/sets/op-02-paramount-war?page=3"
	if got != want {
		t.Errorf("ListURL() = %q, want %q", got, want)
	}
}

func TestSourceConfig_FindSeries(t *testing.T) {
	cfg := SourceConfig{Series: []SeriesConfig{
		{Code: "OP02", SiteID: "op-02-paramount-war"},
		{Code: "P", SiteID: "promo"},
	}}

	series, ok := cfg.FindSeries("op02")
	if !ok || series.SiteID != "op-02-paramount-war" {
		t.Errorf("FindSeries(op02) = %+v, %v, want case-insensitive match", series, ok)
	}
	if _, ok := cfg.FindSeries("OP09"); ok {
		t.Error("FindSeries(OP09) = true, want false")
	}
}

func TestSourceConfig_HasLanguage(t *testing.T) {
	cfg := SourceConfig{Languages: []string{"en", "fr", "jp"}}
	if !cfg.HasLanguage("fr") {
		t.Error("HasLanguage(fr) = false")
	}
	if cfg.HasLanguage("de") {
		t.Error("HasLanguage(de) = true")
	}
}

func TestFindSourceConfig(t *testing.T) {
	configs := []SourceConfig{
		{Name: "cardotaku", TCG: "onepiece"},
		{Name: "tcgdex", TCG: "pokemon"},
	}
	cfg, ok := FindSourceConfig(configs, "pokemon")
	if !ok || cfg.Name != "tcgdex" {
		t.Errorf("FindSourceConfig() = %+v, %v", cfg, ok)
	}
	if _, ok := FindSourceConfig(configs, "digimon"); ok {
		t.Error("FindSourceConfig() = true for unknown tcg")
	}
}
