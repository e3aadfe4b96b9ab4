package models

import (
	"time"
)

type TCGGame struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Slug      string    `json:"slug" gorm:"not null;uniqueIndex"`
	Name      string    `json:"name" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (TCGGame) TableName() string {
	return "tcg_games"
}
