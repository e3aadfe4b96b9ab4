package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Vinke1/collectorverse-tcg-sub002/internal/database"
	"github.com/Vinke1/collectorverse-tcg-sub002/internal/models"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type CardHandler struct{}

func NewCardHandler() *CardHandler {
	return &CardHandler{}
}

// ListCards returns catalog cards with optional filters: tcg, series,
// language, rarity, q (name substring) and missing_image=true.
func (h *CardHandler) ListCards(c *gin.Context) {
	db := database.GetDB()

	limit := queryInt(c, "limit", defaultPageSize)
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := queryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	query := db.Model(&models.Card{})
	joined := false
	joinSeries := func() {
		if !joined {
			query = query.
				Joins("JOIN series ON series.id = cards.series_id").
				Joins("JOIN tcg_games ON tcg_games.id = series.tcg_game_id")
			joined = true
		}
	}

	if tcg := c.Query("tcg"); tcg != "" {
		joinSeries()
		query = query.Where("tcg_games.slug = ?", tcg)
	}
	if series := c.Query("series"); series != "" {
		joinSeries()
		query = query.Where("UPPER(series.code) = UPPER(?)", series)
	}
	if lang := c.Query("language"); lang != "" {
		query = query.Where("cards.language = ?", lang)
	}
	if rarity := c.Query("rarity"); rarity != "" {
		query = query.Where("cards.rarity = ?", rarity)
	}
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		query = query.Where("cards.name LIKE ?", "%"+q+"%")
	}
	if c.Query("missing_image") == "true" {
		query = query.Where("cards.image_url = ''")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var cards []models.Card
	if err := query.Order("cards.series_id, cards.number, cards.language").
		Limit(limit).Offset(offset).Find(&cards).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, models.CardSearchResult{
		Cards:      cards,
		TotalCount: int(total),
		HasMore:    offset+len(cards) < int(total),
	})
}

func (h *CardHandler) GetCard(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	db := database.GetDB()
	var card models.Card
	if err := db.First(&card, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "card not found"})
		return
	}

	c.JSON(http.StatusOK, card)
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
