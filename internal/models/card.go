package models

import (
	"time"

	"gorm.io/datatypes"
)

type Language string

const (
	LangEnglish  Language = "en"
	LangFrench   Language = "fr"
	LangJapanese Language = "jp"
	LangChinese  Language = "zh"
	LangGerman   Language = "de"
	LangSpanish  Language = "es"
	LangItalian  Language = "it"
)

type Card struct {
	ID       uint   `json:"id" gorm:"primaryKey;autoIncrement"`
	SeriesID uint   `json:"series_id" gorm:"not null;uniqueIndex:idx_cards_series_number_lang;index"`
	Series   Series `json:"-" gorm:"foreignKey:SeriesID"`
	// Number may carry a variant suffix ("004-ALT") or a slash-form
	// promo code ("1/P3"); stored exactly as parsed, never padded.
	Number     string         `json:"number" gorm:"not null;uniqueIndex:idx_cards_series_number_lang"`
	Name       string         `json:"name" gorm:"index"`
	Language   Language       `json:"language" gorm:"not null;uniqueIndex:idx_cards_series_number_lang;default:'en'"`
	Rarity     string         `json:"rarity"`
	ImageURL   string         `json:"image_url"`
	Attributes datatypes.JSON `json:"attributes"` // per-TCG fields: cost/power/domains/illustrator/...
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

type CardSearchResult struct {
	Cards      []Card `json:"cards"`
	TotalCount int    `json:"total_count"`
	HasMore    bool   `json:"has_more"`
}
