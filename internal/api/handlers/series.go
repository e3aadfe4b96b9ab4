package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Vinke1/collectorverse-tcg-sub002/internal/database"
	"github.com/Vinke1/collectorverse-tcg-sub002/internal/models"
	"github.com/Vinke1/collectorverse-tcg-sub002/internal/services"
)

type SeriesHandler struct {
	auditService *services.AuditService
}

func NewSeriesHandler(audit *services.AuditService) *SeriesHandler {
	return &SeriesHandler{auditService: audit}
}

// ListSeries returns all series with per-series card counts, optionally
// filtered by tcg slug.
func (h *SeriesHandler) ListSeries(c *gin.Context) {
	db := database.GetDB()

	query := db.Table("series").
		Select(`series.*,
			COUNT(cards.id) AS card_count,
			COALESCE(SUM(CASE WHEN cards.image_url = '' THEN 1 ELSE 0 END), 0) AS missing_images`).
		Joins("LEFT JOIN cards ON cards.series_id = series.id").
		Group("series.id")

	if tcg := c.Query("tcg"); tcg != "" {
		query = query.
			Joins("JOIN tcg_games ON tcg_games.id = series.tcg_game_id").
			Where("tcg_games.slug = ?", tcg)
	}

	var summaries []models.SeriesSummary
	if err := query.Order("series.code").Scan(&summaries).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, summaries)
}

func (h *SeriesHandler) ListTCGs(c *gin.Context) {
	db := database.GetDB()

	var games []models.TCGGame
	if err := db.Order("name").Find(&games).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, games)
}

// GetImageAudit serves the most recent missing-image report, running a
// scan on demand when the background worker has not produced one yet.
func (h *SeriesHandler) GetImageAudit(c *gin.Context) {
	if h.auditService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit service not available"})
		return
	}

	report := h.auditService.LastReport()
	if report == nil {
		var err error
		report, err = h.auditService.RunOnce(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	c.JSON(http.StatusOK, report)
}
