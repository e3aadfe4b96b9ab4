package models

import (
	"time"
)

// UserCollection rows are owned by the UI layer. The ingestion
// pipeline never writes this table; the API is the only writer here.
type UserCollection struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID    string    `json:"user_id" gorm:"not null;uniqueIndex:idx_collection_user_card;index"`
	CardID    uint      `json:"card_id" gorm:"not null;uniqueIndex:idx_collection_user_card"`
	Card      Card      `json:"card" gorm:"foreignKey:CardID"`
	Quantity  int       `json:"quantity" gorm:"default:1"`
	Notes     string    `json:"notes"`
	AddedAt   time.Time `json:"added_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CollectionStats struct {
	TotalCards  int `json:"total_cards"`
	UniqueCards int `json:"unique_cards"`
}

type AddToCollectionRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	CardID   uint   `json:"card_id" binding:"required"`
	Quantity int    `json:"quantity"`
	Notes    string `json:"notes"`
}

type UpdateCollectionRequest struct {
	Quantity *int    `json:"quantity"`
	Notes    *string `json:"notes"`
}
