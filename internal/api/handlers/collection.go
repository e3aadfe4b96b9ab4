package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Vinke1/collectorverse-tcg-sub002/internal/database"
	"github.com/Vinke1/collectorverse-tcg-sub002/internal/metrics"
	"github.com/Vinke1/collectorverse-tcg-sub002/internal/models"
)

type CollectionHandler struct{}

func NewCollectionHandler() *CollectionHandler {
	return &CollectionHandler{}
}

// Maximum quantity allowed per collection entry
const maxQuantity = 9999

func (h *CollectionHandler) GetCollection(c *gin.Context) {
	db := database.GetDB()

	var entries []models.UserCollection
	query := db.Preload("Card").Order("added_at DESC")

	if userID := c.Query("user_id"); userID != "" {
		query = query.Where("user_id = ?", userID)
	}
	if tcg := c.Query("tcg"); tcg != "" {
		query = query.
			Joins("JOIN cards ON cards.id = user_collections.card_id").
			Joins("JOIN series ON series.id = cards.series_id").
			Joins("JOIN tcg_games ON tcg_games.id = series.tcg_game_id").
			Where("tcg_games.slug = ?", tcg)
	}

	if err := query.Find(&entries).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, entries)
}

func (h *CollectionHandler) AddToCollection(c *gin.Context) {
	var req models.AddToCollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	db := database.GetDB()

	var card models.Card
	if err := db.First(&card, req.CardID).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "card not found"})
		return
	}

	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "quantity must be positive"})
		return
	}
	if quantity > maxQuantity {
		c.JSON(http.StatusBadRequest, gin.H{"error": "quantity exceeds maximum allowed (9999)"})
		return
	}

	// One entry per user and card: adding again grows the stack
	var existing models.UserCollection
	err := db.Where("user_id = ? AND card_id = ?", req.UserID, req.CardID).
		First(&existing).Error

	if err == nil {
		existing.Quantity += quantity
		if req.Notes != "" {
			existing.Notes = req.Notes
		}
		if err := db.Save(&existing).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		db.Preload("Card").First(&existing, existing.ID)
		c.JSON(http.StatusOK, existing)
		return
	}

	entry := models.UserCollection{
		UserID:   req.UserID,
		CardID:   req.CardID,
		Quantity: quantity,
		Notes:    req.Notes,
		AddedAt:  time.Now(),
	}

	if err := db.Create(&entry).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	db.Preload("Card").First(&entry, entry.ID)
	c.JSON(http.StatusCreated, entry)
}

func (h *CollectionHandler) UpdateCollectionEntry(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	var req models.UpdateCollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	db := database.GetDB()

	var entry models.UserCollection
	if err := db.First(&entry, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
		return
	}

	if req.Quantity != nil {
		if *req.Quantity < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "quantity must be positive"})
			return
		}
		if *req.Quantity > maxQuantity {
			c.JSON(http.StatusBadRequest, gin.H{"error": "quantity exceeds maximum allowed (9999)"})
			return
		}
		entry.Quantity = *req.Quantity
	}
	if req.Notes != nil {
		entry.Notes = *req.Notes
	}

	if err := db.Save(&entry).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	db.Preload("Card").First(&entry, entry.ID)
	c.JSON(http.StatusOK, entry)
}

func (h *CollectionHandler) DeleteCollectionEntry(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	db := database.GetDB()

	result := db.Delete(&models.UserCollection{}, id)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": result.Error.Error()})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

func (h *CollectionHandler) GetStats(c *gin.Context) {
	db := database.GetDB()
	userID := c.Query("user_id")

	var stats models.CollectionStats

	query := db.Model(&models.UserCollection{})
	if userID != "" {
		query = query.Where("user_id = ?", userID)
	}

	query.Select("COALESCE(SUM(quantity), 0)").Scan(&stats.TotalCards)

	var uniqueCount int64
	countQuery := db.Model(&models.UserCollection{})
	if userID != "" {
		countQuery = countQuery.Where("user_id = ?", userID)
	}
	countQuery.Distinct("card_id").Count(&uniqueCount)
	stats.UniqueCards = int(uniqueCount)

	// the gauge tracks the whole table, not one user's slice
	if userID == "" {
		metrics.CollectionCardsTotal.Set(float64(stats.TotalCards))
	}

	c.JSON(http.StatusOK, stats)
}
