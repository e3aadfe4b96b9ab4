package models

import (
	"time"
)

type Series struct {
	ID         uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	TCGGameID  uint      `json:"tcg_game_id" gorm:"not null;uniqueIndex:idx_series_game_code;index"`
	TCGGame    TCGGame   `json:"-" gorm:"foreignKey:TCGGameID"`
	Code       string    `json:"code" gorm:"not null;uniqueIndex:idx_series_game_code"`
	Name       string    `json:"name"`
	MaxSetBase int       `json:"max_set_base"` // non-promo card count
	MasterSet  int       `json:"master_set"`   // count including foil/promo variants
	ImageURL   string    `json:"image_url"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SeriesSummary is the API listing shape: a series plus aggregate
// card counts computed at query time.
type SeriesSummary struct {
	Series
	CardCount     int `json:"card_count"`
	MissingImages int `json:"missing_images"`
}
