package services

import (
	"context"
	"fmt"
	"log"
	"path"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Vinke1/collectorverse-tcg-sub002/internal/metrics"
	"github.com/Vinke1/collectorverse-tcg-sub002/internal/models"
)

// Image materialization modes, reported per item and counted in metrics.
const (
	ImageModeDownloaded = "downloaded"
	ImageModeCopied     = "copied"
	ImageModeSkipped    = "skipped"
)

// SiblingLookup finds an existing stored image for another language of
// the same (series, number). Implemented by the catalog service.
type SiblingLookup interface {
	SiblingImageURL(ctx context.Context, seriesID uint, number string, exclude models.Language) (string, models.Language, error)
}

// ImageTask is one unit of image work: a source reference and the
// target storage key.
type ImageTask struct {
	TCG        string // bucket
	SeriesID   uint
	SeriesCode string
	Language   string
	Number     string // catalog number incl. variant suffix
	SourceURL  string
	Referer    string
	Fit        FitPolicy
}

// ImagePipeline materializes card artwork at deterministic storage
// paths. When a sibling language of the same card already has a stored
// image, the object is copied instead of re-downloaded: for TCGs that
// share artwork across localizations this skips most of the network
// cost of a language pass.
type ImagePipeline struct {
	store    ObjectStore
	client   *FetchClient
	catalog  SiblingLookup
	siblings *lru.Cache[string, string] // "seriesID/number" -> "lang|url" ("" = no sibling)
	dryRun   bool
}

func NewImagePipeline(store ObjectStore, client *FetchClient, catalog SiblingLookup, dryRun bool) *ImagePipeline {
	siblings, err := lru.New[string, string](1024)
	if err != nil {
		// only reachable with a non-positive size
		panic(err)
	}
	return &ImagePipeline{
		store:    store,
		client:   client,
		catalog:  catalog,
		siblings: siblings,
		dryRun:   dryRun,
	}
}

// EnsureCardImage makes the card's image exist at its deterministic
// path and returns the public URL plus the mode taken. In dry-run mode
// the decision is made and reported but nothing is fetched or written.
func (p *ImagePipeline) EnsureCardImage(ctx context.Context, task ImageTask) (string, string, error) {
	siblingURL, siblingLang := p.findSibling(ctx, task)

	if siblingURL != "" {
		ext := strings.TrimPrefix(path.Ext(siblingURL), ".")
		srcPath := CardImagePath(task.SeriesCode, string(siblingLang), task.Number, ext)
		dstPath := CardImagePath(task.SeriesCode, task.Language, task.Number, ext)

		if p.dryRun {
			// the sibling may itself be a would-be download from this
			// dry run, so the object is not required on disk
			log.Printf("[DryRun] would copy %s/%s -> %s", task.TCG, srcPath, dstPath)
			return p.store.PublicURL(task.TCG, dstPath), ImageModeCopied, nil
		}

		exists, err := p.store.Exists(ctx, task.TCG, srcPath)
		if err != nil {
			return "", "", stageErrorf(StorageFailure, "failed to check sibling object %s: %v", srcPath, err)
		}
		if exists {
			if err := p.store.Copy(ctx, task.TCG, srcPath, dstPath); err != nil {
				return "", "", stageErrorf(StorageFailure, "failed to copy sibling object: %v", err)
			}
			metrics.ImagesMaterializedTotal.WithLabelValues(ImageModeCopied).Inc()
			return p.store.PublicURL(task.TCG, dstPath), ImageModeCopied, nil
		}
	}

	if task.SourceURL == "" {
		// no artwork reachable; the row stays image-less until a
		// backfill pass finds one
		return "", ImageModeSkipped, nil
	}

	fit := task.Fit
	if fit == "" {
		fit = FitCover
	}

	if p.dryRun {
		ext := "jpg"
		if fit == FitContain {
			ext = "png"
		}
		dstPath := CardImagePath(task.SeriesCode, task.Language, task.Number, ext)
		log.Printf("[DryRun] would download %s -> %s/%s", task.SourceURL, task.TCG, dstPath)
		url := p.store.PublicURL(task.TCG, dstPath)
		p.rememberSibling(task, url)
		return url, ImageModeDownloaded, nil
	}

	data, contentType, err := p.client.Download(ctx, task.SourceURL, task.Referer)
	if err != nil {
		return "", "", stageErrorf(FetchFailure, "failed to download image %s: %v", task.SourceURL, err)
	}
	if data == nil {
		return "", "", ErrNotFound
	}

	start := time.Now()
	encoded, ext, err := TranscodeCardImage(data, contentType, fit)
	if err != nil {
		return "", "", stageErrorf(TranscodeFailure, "failed to transcode image %s: %v", task.SourceURL, err)
	}
	metrics.ImageTranscodeDuration.Observe(time.Since(start).Seconds())

	dstPath := CardImagePath(task.SeriesCode, task.Language, task.Number, ext)
	if err := p.store.Put(ctx, task.TCG, dstPath, encoded); err != nil {
		return "", "", stageErrorf(StorageFailure, "failed to store image %s: %v", dstPath, err)
	}

	metrics.ImagesMaterializedTotal.WithLabelValues(ImageModeDownloaded).Inc()
	url := p.store.PublicURL(task.TCG, dstPath)
	p.rememberSibling(task, url)
	return url, ImageModeDownloaded, nil
}

// EnsureSeriesBanner stores a series banner image under the bucket's
// series/ prefix. Banners come in all shapes, so they are letterboxed,
// not cropped.
func (p *ImagePipeline) EnsureSeriesBanner(ctx context.Context, tcg, seriesCode, sourceURL, referer string) (string, error) {
	if sourceURL == "" {
		return "", nil
	}
	if p.dryRun {
		log.Printf("[DryRun] would store banner for %s/%s", tcg, seriesCode)
		return "", nil
	}

	data, contentType, err := p.client.Download(ctx, sourceURL, referer)
	if err != nil {
		return "", stageErrorf(FetchFailure, "failed to download banner %s: %v", sourceURL, err)
	}
	if data == nil {
		return "", ErrNotFound
	}

	encoded, ext, err := TranscodeCardImage(data, contentType, FitContain)
	if err != nil {
		return "", stageErrorf(TranscodeFailure, "failed to transcode banner %s: %v", sourceURL, err)
	}

	bannerPath := SeriesBannerPath(seriesCode, ext)
	if err := p.store.Put(ctx, tcg, bannerPath, encoded); err != nil {
		return "", stageErrorf(StorageFailure, "failed to store banner %s: %v", bannerPath, err)
	}
	return p.store.PublicURL(tcg, bannerPath), nil
}

// findSibling returns the stored image URL of another language of the
// same card, "" when there is none. Lookups are cached per
// (series, number) since a language pass asks about the same cards the
// previous pass just wrote.
func (p *ImagePipeline) findSibling(ctx context.Context, task ImageTask) (string, models.Language) {
	if p.catalog == nil || task.SeriesID == 0 {
		return "", ""
	}

	cacheKey := siblingKey(task.SeriesID, task.Number)
	if cached, ok := p.siblings.Get(cacheKey); ok {
		if cached == "" {
			return "", ""
		}
		// cached as "lang|url"
		parts := strings.SplitN(cached, "|", 2)
		if parts[0] == task.Language {
			return "", ""
		}
		return parts[1], models.Language(parts[0])
	}

	url, lang, err := p.catalog.SiblingImageURL(ctx, task.SeriesID, task.Number, models.Language(task.Language))
	if err != nil {
		log.Printf("[ImagePipeline] sibling lookup failed for %s/%s: %v", task.SeriesCode, task.Number, err)
		return "", ""
	}
	if url == "" {
		p.siblings.Add(cacheKey, "")
		return "", ""
	}
	p.siblings.Add(cacheKey, string(lang)+"|"+url)
	return url, lang
}

// rememberSibling records a freshly stored image so the remaining
// language passes of this run decide copy instead of re-download. A
// cached miss from before the object existed is overwritten here.
func (p *ImagePipeline) rememberSibling(task ImageTask, url string) {
	if task.SeriesID == 0 {
		return
	}
	p.siblings.Add(siblingKey(task.SeriesID, task.Number), task.Language+"|"+url)
}

func siblingKey(seriesID uint, number string) string {
	return fmt.Sprintf("%d/%s", seriesID, number)
}

// CardImagePath is the deterministic object path for a card image:
// {seriesCode}/{language}/{paddedNumber}[-{variantTag}].{ext}. Only the
// numeric part is padded; variant suffixes and promo slashes survive
// as-is.
func CardImagePath(seriesCode, language, catalogNumber, ext string) string {
	number := catalogNumber
	suffix := ""
	if i := strings.Index(catalogNumber, "-"); i >= 0 {
		number, suffix = catalogNumber[:i], catalogNumber[i:]
	}
	return seriesCode + "/" + language + "/" + FormatCardNumber(number) + suffix + "." + ext
}

// SeriesBannerPath is the deterministic object path for a series
// banner.
func SeriesBannerPath(seriesCode, ext string) string {
	return "series/" + seriesCode + "." + ext
}
