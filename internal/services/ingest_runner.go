package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/Vinke1/collectorverse-tcg-sub002/internal/metrics"
	"github.com/Vinke1/collectorverse-tcg-sub002/internal/models"
)

// IngestOptions mirrors the ingest CLI flags.
type IngestOptions struct {
	Series          string // restrict to one series code
	Language        string // restrict to one language
	Limit           int    // cap on attempted items, 0 = unlimited
	DryRun          bool
	ContinueOnError bool
	SkipImages      bool
	CheckpointDir   string
}

// RunResult is the per-run summary printed when ingestion ends.
type RunResult struct {
	Attempted        int
	Created          int
	Updated          int
	BulkUpserted     int
	Skipped          int // already in the checkpoint
	ParseSkipped     int
	NotFound         int
	Errors           int
	ImagesDownloaded int
	ImagesCopied     int
	ErrorsByStage    map[FailureKind]int
	Truncated        []string // series/lang listings that ended early
	UnknownRarities  []string
	CheckpointGone   bool
}

// IngestRunner drives one ingestion run, sequentially: list candidates,
// parse identifiers, normalize, materialize images, upsert, checkpoint.
// One item at a time; the checkpoint file is the only recovery
// mechanism, and at most one run per series should be active.
type IngestRunner struct {
	cfg        SourceConfig
	source     CardSource
	normalizer *Normalizer
	images     *ImagePipeline
	catalog    *CatalogService
	opts       IngestOptions

	checkpoint *Checkpoint
	result     *RunResult
}

func NewIngestRunner(cfg SourceConfig, source CardSource, normalizer *Normalizer, images *ImagePipeline, catalog *CatalogService, opts IngestOptions) *IngestRunner {
	return &IngestRunner{
		cfg:        cfg,
		source:     source,
		normalizer: normalizer,
		images:     images,
		catalog:    catalog,
		opts:       opts,
	}
}

// Run executes the ingestion and returns the summary. The returned
// error is non-nil only when the run aborted (database failure without
// -continue-on-error, or context cancellation); per-item failures are
// counted, logged and survived.
func (r *IngestRunner) Run(ctx context.Context) (*RunResult, error) {
	start := time.Now()
	r.result = &RunResult{ErrorsByStage: make(map[FailureKind]int)}

	r.checkpoint = LoadCheckpoint(r.checkpointPath())

	var game *models.TCGGame
	if !r.opts.DryRun {
		var err error
		game, err = r.catalog.ResolveGame(ctx, r.cfg.TCG, r.cfg.TCGName)
		if err != nil {
			return r.result, err
		}
	}

	runErr := r.runSeries(ctx, game)

	if !r.opts.DryRun {
		if runErr != nil || r.limitReached() {
			// aborted or limit-capped: leave a resumable checkpoint so
			// the next run picks up where this one stopped
			if err := r.checkpoint.Flush(); err != nil {
				log.Printf("[Ingest] checkpoint flush failed: %v", err)
			}
		} else {
			gone, err := r.checkpoint.Finish()
			if err != nil {
				log.Printf("[Ingest] checkpoint finish failed: %v", err)
			}
			r.result.CheckpointGone = gone
		}
	}

	r.result.UnknownRarities = r.normalizer.UnknownRarities()
	metrics.IngestRunDuration.Observe(time.Since(start).Seconds())
	return r.result, runErr
}

func (r *IngestRunner) runSeries(ctx context.Context, game *models.TCGGame) error {
	for _, seriesCfg := range r.cfg.Series {
		if r.opts.Series != "" && !strings.EqualFold(seriesCfg.Code, r.opts.Series) {
			continue
		}
		for _, lang := range r.cfg.Languages {
			if r.opts.Language != "" && lang != r.opts.Language {
				continue
			}
			if r.limitReached() {
				return nil
			}
			if err := r.runListing(ctx, game, seriesCfg, lang); err != nil {
				return err
			}
		}
	}
	return nil
}

// runListing ingests one series/language target. Item failures are
// counted and skipped; only database failures without
// -continue-on-error abort.
func (r *IngestRunner) runListing(ctx context.Context, game *models.TCGGame, seriesCfg SeriesConfig, lang string) error {
	target := seriesCfg.Code + "/" + lang
	log.Printf("[Ingest] %s: listing %s", r.cfg.Name, target)

	refs, err := r.source.ListCards(ctx, seriesCfg, lang)
	if errors.Is(err, ErrListingTruncated) {
		log.Printf("[Ingest] %s: %v", target, err)
		r.result.Truncated = append(r.result.Truncated, target)
	} else if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("[Ingest] %s: listing failed: %v", target, err)
		r.countError(FetchFailure)
		if !r.opts.DryRun {
			r.checkpoint.MarkError()
		}
		return nil
	}
	log.Printf("[Ingest] %s: %d candidates", target, len(refs))

	var series *models.Series
	if r.opts.DryRun {
		// read-only: a dry run reports copy-vs-download decisions
		// against whatever earlier real runs already cataloged
		series, err = r.catalog.LookupSeries(ctx, r.cfg.TCG, seriesCfg.Code)
		if err != nil {
			log.Printf("[Ingest] %s: series lookup failed: %v", target, err)
		}
	} else {
		series, err = r.catalog.ResolveSeries(ctx, game.ID, seriesCfg)
		if err != nil {
			return r.databaseFailed(err)
		}
	}

	var bulk []models.Card
	var bulkKeys []string

	for i, ref := range refs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if r.limitReached() {
			break
		}

		key := seriesCfg.Code + "/" + lang + "/" + ref.Key()
		if r.checkpoint.IsProcessed(key) {
			r.result.Skipped++
			continue
		}

		log.Printf("[%d/%d] %s", i+1, len(refs), ref.Key())
		r.result.Attempted++

		card, outcome, err := r.processItem(ctx, series, seriesCfg, lang, ref)
		switch {
		case errors.Is(err, ErrNotFound):
			if !r.opts.DryRun {
				r.checkpoint.MarkNotFound(key)
			}
			r.result.NotFound++
			metrics.IngestItemsTotal.WithLabelValues(r.cfg.TCG, "not_found").Inc()
			continue
		case err != nil:
			kind := FailureKindOf(err)
			log.Printf("[Ingest] %s: %v", ref.Key(), err)
			r.countError(kind)
			if !r.opts.DryRun {
				r.checkpoint.MarkError()
			}
			if kind == DatabaseFailure && !r.opts.ContinueOnError {
				return err
			}
			continue
		case outcome == itemUnparseable:
			// logged and skipped; intentionally not checkpointed so a
			// parser update picks these up on the next run
			r.result.ParseSkipped++
			metrics.IngestStageErrorsTotal.WithLabelValues(string(ParseFailure)).Inc()
			continue
		case outcome == itemImageFailed:
			// the row was written image-less; the item stays out of the
			// processed set so the next run retries the artwork
			if !r.opts.DryRun {
				r.checkpoint.MarkError()
			}
			continue
		}

		if r.opts.SkipImages && !r.opts.DryRun && card != nil {
			// data-only pass: batch the writes, checkpoint on flush
			bulk = append(bulk, *card)
			bulkKeys = append(bulkKeys, key)
			if len(bulk) >= upsertBatchSize {
				if err := r.flushBulk(ctx, &bulk, &bulkKeys); err != nil {
					return err
				}
			}
			continue
		}

		if !r.opts.DryRun {
			r.checkpoint.MarkSuccess(key)
		}
		metrics.IngestItemsTotal.WithLabelValues(r.cfg.TCG, "success").Inc()
	}

	if err := r.flushBulk(ctx, &bulk, &bulkKeys); err != nil {
		return err
	}

	if err := r.ensureBanner(ctx, series, seriesCfg); err != nil {
		log.Printf("[Ingest] %s: banner failed: %v", target, err)
		r.countError(FailureKindOf(err))
		if !r.opts.DryRun {
			r.checkpoint.MarkError()
		}
	}

	return nil
}

type itemOutcome int

const (
	itemOK itemOutcome = iota
	itemUnparseable
	itemImageFailed // row upserted, artwork fetch or transcode failed
)

// processItem runs the per-item pipeline. The returned card is non-nil
// in data-only mode, where the caller batches the database writes.
func (r *IngestRunner) processItem(ctx context.Context, series *models.Series, seriesCfg SeriesConfig, lang string, ref CardRef) (*models.Card, itemOutcome, error) {
	id, ok := ParseCardSlug(ref.Slug, lang)
	if !ok {
		log.Printf("[Ingest] skipping unparseable slug %q", ref.Slug)
		return nil, itemUnparseable, nil
	}

	if err := r.source.ResolveDetail(ctx, &ref, lang); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, itemOK, ErrNotFound
		}
		return nil, itemOK, stageErrorf(FetchFailure, "detail fetch failed: %v", err)
	}

	// listing/detail data wins over what the slug encodes; the slug is
	// the fallback
	rawRarity := ref.Rarity
	if rawRarity == "" {
		rawRarity = id.RarityCode
	}
	rawName := ref.Name
	if rawName == "" {
		rawName = id.Name
	}

	rarity := r.normalizer.NormalizeRarity(r.cfg.TCG, rawRarity)
	name := r.normalizer.CorrectName(r.cfg.TCG, rawName)

	language := id.Language
	if language == "" {
		language = lang
	}

	var attributes datatypes.JSON
	if len(ref.Attributes) > 0 {
		data, err := json.Marshal(ref.Attributes)
		if err == nil {
			attributes = datatypes.JSON(data)
		}
	}

	// The parsed series takes precedence: promo cards surface inside
	// other series' listings under their own code.
	targetSeries := series
	if !strings.EqualFold(id.SeriesCode, seriesCfg.Code) {
		if r.opts.DryRun {
			known, lookupErr := r.catalog.LookupSeries(ctx, r.cfg.TCG, id.SeriesCode)
			if lookupErr != nil {
				log.Printf("[Ingest] series lookup failed for %s: %v", id.SeriesCode, lookupErr)
			}
			targetSeries = known
		} else {
			promoCfg, found := r.cfg.FindSeries(id.SeriesCode)
			if !found {
				promoCfg = SeriesConfig{Code: id.SeriesCode}
			}
			var err error
			targetSeries, err = r.catalog.ResolveSeries(ctx, series.TCGGameID, promoCfg)
			if err != nil {
				return nil, itemOK, err
			}
		}
	}

	card := models.Card{
		Number:     id.CatalogNumber(),
		Name:       name,
		Language:   models.Language(language),
		Rarity:     rarity,
		Attributes: attributes,
	}
	if targetSeries != nil {
		card.SeriesID = targetSeries.ID
	}

	if r.opts.DryRun {
		log.Printf("[DryRun] would upsert %s/%s/%s (%s, rarity %q)",
			id.SeriesCode, card.Number, language, name, rarity)
		if !r.opts.SkipImages && ref.ImageURL != "" {
			_, mode, _ := r.images.EnsureCardImage(ctx, ImageTask{
				TCG:        r.cfg.TCG,
				SeriesID:   card.SeriesID,
				SeriesCode: id.SeriesCode,
				Language:   language,
				Number:     card.Number,
				SourceURL:  ref.ImageURL,
				Referer:    r.cfg.ImageReferer,
			})
			r.countImageMode(mode)
		}
		return nil, itemOK, nil
	}

	if r.opts.SkipImages {
		return &card, itemOK, nil
	}

	// image first: a storage failure must leave the row unwritten
	// rather than pointing at a missing object
	existing, err := r.catalog.GetCardByKey(ctx, card.SeriesID, card.Number, card.Language)
	if err != nil {
		return nil, itemOK, err
	}

	outcome := itemOK
	if existing == nil || existing.ImageURL == "" {
		imageURL, mode, imgErr := r.images.EnsureCardImage(ctx, ImageTask{
			TCG:        r.cfg.TCG,
			SeriesID:   card.SeriesID,
			SeriesCode: id.SeriesCode,
			Language:   language,
			Number:     card.Number,
			SourceURL:  ref.ImageURL,
			Referer:    r.cfg.ImageReferer,
		})
		switch {
		case errors.Is(imgErr, ErrNotFound):
			// source has no artwork; the row is still worth writing
			log.Printf("[Ingest] no image at source for %s/%s", id.SeriesCode, card.Number)
		case imgErr != nil && FailureKindOf(imgErr) == StorageFailure:
			return nil, itemOK, imgErr
		case imgErr != nil:
			// fetch/transcode trouble: write the row with the image
			// field untouched and count the error
			log.Printf("[Ingest] image failed for %s/%s: %v", id.SeriesCode, card.Number, imgErr)
			r.countError(FailureKindOf(imgErr))
			outcome = itemImageFailed
		default:
			card.ImageURL = imageURL
			r.countImageMode(mode)
		}
	}

	created, err := r.catalog.UpsertCard(ctx, &card)
	if err != nil {
		return nil, itemOK, err
	}
	if created {
		r.result.Created++
	} else {
		r.result.Updated++
	}
	return nil, outcome, nil
}

func (r *IngestRunner) ensureBanner(ctx context.Context, series *models.Series, seriesCfg SeriesConfig) error {
	if seriesCfg.BannerURL == "" {
		return nil
	}
	if r.opts.DryRun {
		_, err := r.images.EnsureSeriesBanner(ctx, r.cfg.TCG, seriesCfg.Code, seriesCfg.BannerURL, r.cfg.ImageReferer)
		return err
	}
	if series == nil || series.ImageURL != "" {
		return nil
	}
	bannerURL, err := r.images.EnsureSeriesBanner(ctx, r.cfg.TCG, seriesCfg.Code, seriesCfg.BannerURL, r.cfg.ImageReferer)
	if err != nil || bannerURL == "" {
		return err
	}
	return r.catalog.UpdateSeriesImage(ctx, series.ID, bannerURL)
}

// flushBulk writes the pending batch and only then marks its items in
// the checkpoint: a crash mid-batch must leave them unmarked so the
// next run retries them.
func (r *IngestRunner) flushBulk(ctx context.Context, bulk *[]models.Card, keys *[]string) error {
	if len(*bulk) == 0 {
		return nil
	}
	err := r.catalog.UpsertCards(ctx, *bulk)
	if err == nil {
		r.result.BulkUpserted += len(*bulk)
		for _, key := range *keys {
			r.checkpoint.MarkSuccess(key)
			metrics.IngestItemsTotal.WithLabelValues(r.cfg.TCG, "success").Inc()
		}
	}
	*bulk = (*bulk)[:0]
	*keys = (*keys)[:0]
	if err != nil {
		return r.databaseFailed(err)
	}
	return nil
}

func (r *IngestRunner) databaseFailed(err error) error {
	r.countError(DatabaseFailure)
	r.checkpoint.MarkError()
	if r.opts.ContinueOnError {
		log.Printf("[Ingest] database failure (continuing): %v", err)
		return nil
	}
	return err
}

func (r *IngestRunner) countError(kind FailureKind) {
	r.result.Errors++
	r.result.ErrorsByStage[kind]++
	metrics.IngestStageErrorsTotal.WithLabelValues(string(kind)).Inc()
	metrics.IngestItemsTotal.WithLabelValues(r.cfg.TCG, "error").Inc()
}

func (r *IngestRunner) countImageMode(mode string) {
	switch mode {
	case ImageModeDownloaded:
		r.result.ImagesDownloaded++
	case ImageModeCopied:
		r.result.ImagesCopied++
	}
}

func (r *IngestRunner) limitReached() bool {
	return r.opts.Limit > 0 && r.result.Attempted >= r.opts.Limit
}

// checkpointPath derives one checkpoint file per run scope, so a re-run
// with the same flags resumes the same file.
func (r *IngestRunner) checkpointPath() string {
	scope := func(s string) string {
		if s == "" {
			return "all"
		}
		return s
	}
	name := fmt.Sprintf("ingest-%s-%s-%s.json", r.cfg.TCG, scope(r.opts.Series), scope(r.opts.Language))
	return filepath.Join(r.opts.CheckpointDir, name)
}
