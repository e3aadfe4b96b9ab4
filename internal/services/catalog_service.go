package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Vinke1/collectorverse-tcg-sub002/internal/metrics"
	"github.com/Vinke1/collectorverse-tcg-sub002/internal/models"
)

// upsertBatchSize is the chunk size for bulk writes and for paginated
// reconciliation reads. Large ID-list filters in one call are avoided.
const upsertBatchSize = 200

// CatalogService owns all writes to tcg_games, series and cards.
type CatalogService struct {
	db *gorm.DB

	// series resolved during this run, keyed by gameID/code
	seriesCache map[string]uint
}

func NewCatalogService(db *gorm.DB) *CatalogService {
	return &CatalogService{
		db:          db,
		seriesCache: make(map[string]uint),
	}
}

// ResolveGame returns the TCG row for a slug, creating it when absent.
func (s *CatalogService) ResolveGame(ctx context.Context, slug, name string) (*models.TCGGame, error) {
	if name == "" {
		name = slug
	}
	game := models.TCGGame{Slug: slug, Name: name}
	err := s.db.WithContext(ctx).
		Where("slug = ?", slug).
		Assign(models.TCGGame{Name: name}).
		FirstOrCreate(&game).Error
	if err != nil {
		return nil, stageErrorf(DatabaseFailure, "failed to resolve game %s: %v", slug, err)
	}
	return &game, nil
}

// ResolveSeries returns the series row for (game, code), creating it
// with whatever metadata is available when absent. Resolved IDs are
// cached for the rest of the run.
func (s *CatalogService) ResolveSeries(ctx context.Context, gameID uint, cfg SeriesConfig) (*models.Series, error) {
	cacheKey := fmt.Sprintf("%d/%s", gameID, cfg.Code)
	if id, ok := s.seriesCache[cacheKey]; ok {
		return &models.Series{ID: id, TCGGameID: gameID, Code: cfg.Code}, nil
	}

	series := models.Series{
		TCGGameID:  gameID,
		Code:       cfg.Code,
		Name:       cfg.Name,
		MaxSetBase: cfg.MaxSetBase,
		MasterSet:  cfg.MasterSet,
	}
	err := s.db.WithContext(ctx).
		Where("tcg_game_id = ? AND code = ?", gameID, cfg.Code).
		FirstOrCreate(&series).Error
	if err != nil {
		return nil, stageErrorf(DatabaseFailure, "failed to resolve series %s: %v", cfg.Code, err)
	}

	s.seriesCache[cacheKey] = series.ID
	return &series, nil
}

// LookupSeries is the read-only companion of ResolveSeries, used by dry
// runs to consult the catalog without creating rows. Returns (nil, nil)
// when the series was never ingested.
func (s *CatalogService) LookupSeries(ctx context.Context, tcgSlug, code string) (*models.Series, error) {
	var series models.Series
	err := s.db.WithContext(ctx).
		Joins("JOIN tcg_games ON tcg_games.id = series.tcg_game_id").
		Where("tcg_games.slug = ? AND series.code = ?", tcgSlug, code).
		First(&series).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, stageErrorf(DatabaseFailure, "failed to look up series %s/%s: %v", tcgSlug, code, err)
	}
	return &series, nil
}

// UpsertCard writes one card row, keyed on (series_id, number,
// language). On conflict the mutable fields are updated in place; a
// duplicate row is never created. Empty incoming fields never clobber
// values an earlier pass already wrote (an image-less re-ingest keeps
// the stored image URL). Returns whether the row was created.
func (s *CatalogService) UpsertCard(ctx context.Context, card *models.Card) (bool, error) {
	existing, err := s.GetCardByKey(ctx, card.SeriesID, card.Number, card.Language)
	if err != nil {
		return false, err
	}

	assign := []string{"updated_at"}
	if card.Name != "" {
		assign = append(assign, "name")
	}
	if card.Rarity != "" {
		assign = append(assign, "rarity")
	}
	if len(card.Attributes) > 0 {
		assign = append(assign, "attributes")
	}
	if card.ImageURL != "" {
		assign = append(assign, "image_url")
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "series_id"}, {Name: "number"}, {Name: "language"}},
		DoUpdates: clause.AssignmentColumns(assign),
	}).Create(card).Error
	if err != nil {
		return false, stageErrorf(DatabaseFailure, "failed to upsert card %s/%s: %v", card.Number, card.Language, err)
	}

	if existing == nil {
		metrics.CardUpsertsTotal.WithLabelValues("created").Inc()
		return true, nil
	}
	// the conflict path does not report the row id back
	card.ID = existing.ID
	metrics.CardUpsertsTotal.WithLabelValues("updated").Inc()
	return false, nil
}

// UpsertCards bulk-writes card rows in fixed-size batches. Image URLs
// are left untouched: bulk writes come from data-only passes and must
// not clear artwork a previous pass stored.
func (s *CatalogService) UpsertCards(ctx context.Context, cards []models.Card) error {
	for start := 0; start < len(cards); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(cards) {
			end = len(cards)
		}
		batch := cards[start:end]

		err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "series_id"}, {Name: "number"}, {Name: "language"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "rarity", "attributes", "updated_at"}),
		}).Create(&batch).Error
		if err != nil {
			return stageErrorf(DatabaseFailure, "failed to bulk upsert cards: %v", err)
		}
	}
	return nil
}

// GetCardByKey looks up a card by its conflict key. Returns (nil, nil)
// when absent.
func (s *CatalogService) GetCardByKey(ctx context.Context, seriesID uint, number string, lang models.Language) (*models.Card, error) {
	var card models.Card
	err := s.db.WithContext(ctx).
		Where("series_id = ? AND number = ? AND language = ?", seriesID, number, lang).
		First(&card).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, stageErrorf(DatabaseFailure, "failed to look up card %d/%s/%s: %v", seriesID, number, lang, err)
	}
	return &card, nil
}

// SiblingImageURL finds a stored image for another language of the same
// (series, number), preferring English artwork. Returns ("", "", nil)
// when no sibling has an image yet.
func (s *CatalogService) SiblingImageURL(ctx context.Context, seriesID uint, number string, exclude models.Language) (string, models.Language, error) {
	var card models.Card
	err := s.db.WithContext(ctx).
		Where("series_id = ? AND number = ? AND language <> ? AND image_url <> ''", seriesID, number, exclude).
		Order("CASE WHEN language = 'en' THEN 0 ELSE 1 END").
		First(&card).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", nil
		}
		return "", "", stageErrorf(DatabaseFailure, "failed sibling lookup for %d/%s: %v", seriesID, number, err)
	}
	return card.ImageURL, card.Language, nil
}

// UpdateCardImage points a card row at its stored image.
func (s *CatalogService) UpdateCardImage(ctx context.Context, cardID uint, imageURL string) error {
	err := s.db.WithContext(ctx).
		Model(&models.Card{}).
		Where("id = ?", cardID).
		Update("image_url", imageURL).Error
	if err != nil {
		return stageErrorf(DatabaseFailure, "failed to update card %d image: %v", cardID, err)
	}
	return nil
}

// UpdateSeriesImage points a series row at its stored banner.
func (s *CatalogService) UpdateSeriesImage(ctx context.Context, seriesID uint, imageURL string) error {
	err := s.db.WithContext(ctx).
		Model(&models.Series{}).
		Where("id = ?", seriesID).
		Update("image_url", imageURL).Error
	if err != nil {
		return stageErrorf(DatabaseFailure, "failed to update series %d image: %v", seriesID, err)
	}
	return nil
}

// CardsMissingImage pages through the rows of one series that still
// lack artwork. Backfill passes call this in fixed-size batches instead
// of filtering by one giant ID list.
func (s *CatalogService) CardsMissingImage(ctx context.Context, seriesID uint, limit, offset int) ([]models.Card, error) {
	if limit <= 0 {
		limit = upsertBatchSize
	}
	var cards []models.Card
	err := s.db.WithContext(ctx).
		Where("series_id = ? AND image_url = ''", seriesID).
		Order("number").
		Limit(limit).
		Offset(offset).
		Find(&cards).Error
	if err != nil {
		return nil, stageErrorf(DatabaseFailure, "failed to list cards missing images: %v", err)
	}
	return cards, nil
}

// MissingImageCount is one row of the audit report.
type MissingImageCount struct {
	TCGSlug    string `json:"tcg_slug"`
	SeriesCode string `json:"series_code"`
	Missing    int    `json:"missing"`
}

// MissingImageCounts reports, per series, how many cards still lack a
// stored image. Series with complete artwork do not appear.
func (s *CatalogService) MissingImageCounts(ctx context.Context) ([]MissingImageCount, error) {
	var counts []MissingImageCount
	err := s.db.WithContext(ctx).
		Table("cards").
		Select("tcg_games.slug AS tcg_slug, series.code AS series_code, COUNT(*) AS missing").
		Joins("JOIN series ON series.id = cards.series_id").
		Joins("JOIN tcg_games ON tcg_games.id = series.tcg_game_id").
		Where("cards.image_url = ''").
		Group("tcg_games.slug, series.code").
		Order("tcg_games.slug, series.code").
		Scan(&counts).Error
	if err != nil {
		return nil, stageErrorf(DatabaseFailure, "failed to count missing images: %v", err)
	}
	return counts, nil
}

// CountCards returns the total card rows, for the database size gauge.
func (s *CatalogService) CountCards(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Card{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
