package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/Vinke1/collectorverse-tcg-sub002/internal/metrics"
)

var (
	// ErrNotFound marks a detail page or API record missing at the
	// source. Counted separately from errors.
	ErrNotFound = errors.New("not found at source")

	// ErrListingTruncated marks a listing that produced zero new
	// candidates while the source's total count said more remained.
	// Pagination stops and the shortfall is reported, not retried.
	ErrListingTruncated = errors.New("listing ended before expected total")
)

// CardRef is one candidate item discovered on a listing page: the slug
// carrying the identifier, the detail-page URL, and whatever the
// listing itself already exposed.
type CardRef struct {
	Slug       string
	DetailURL  string
	ImageURL   string
	Name       string
	Rarity     string
	Attributes map[string]interface{}
}

// Key is the checkpoint/de-duplication key for this item.
func (r CardRef) Key() string {
	if r.Slug != "" {
		return r.Slug
	}
	return r.DetailURL
}

// CardSource lists the candidate cards of one series/language and
// resolves their detail data. Implementations: HTMLSource for scraped
// sites, APISource for JSON card databases.
type CardSource interface {
	// ListCards returns the ordered, de-duplicated candidates for a
	// series/language. A non-nil ref slice may accompany
	// ErrListingTruncated when pagination stopped early.
	ListCards(ctx context.Context, series SeriesConfig, lang string) ([]CardRef, error)

	// ResolveDetail fills the ref's image URL and attributes from its
	// detail page. Returns ErrNotFound when the source dropped the page.
	ResolveDetail(ctx context.Context, ref *CardRef, lang string) error
}

// NewCardSource builds the right source implementation for a config
// record.
func NewCardSource(cfg SourceConfig) CardSource {
	if cfg.Kind == SourceKindAPI {
		return NewAPISource(cfg)
	}
	return NewHTMLSource(cfg)
}

// ---- HTML sources ----

// HTMLSource scrapes listing and detail pages. Listing pagination runs
// in the mode the config names: page-param increments a page number in
// the URL, next-link follows the pagination control found in the
// currently rendered document (for sites where the next page target
// only exists in the DOM).
type HTMLSource struct {
	cfg     SourceConfig
	pages   *FetchClient
	details *FetchClient
}

func NewHTMLSource(cfg SourceConfig) *HTMLSource {
	return &HTMLSource{
		cfg:     cfg,
		pages:   NewFetchClient(cfg.Name, time.Duration(cfg.PageDelay())*time.Millisecond),
		details: NewFetchClient(cfg.Name, time.Duration(cfg.DetailDelay())*time.Millisecond),
	}
}

func (s *HTMLSource) ListCards(ctx context.Context, series SeriesConfig, lang string) ([]CardRef, error) {
	seen := make(map[string]bool)
	var refs []CardRef
	expected := 0

	collect := func(doc *goquery.Document, pageURL string) int {
		if total := s.extractTotal(doc); total > 0 && expected == 0 {
			expected = total
		}
		added := 0
		for _, ref := range s.extractItems(doc, pageURL) {
			if seen[ref.Key()] {
				continue
			}
			seen[ref.Key()] = true
			refs = append(refs, ref)
			added++
		}
		return added
	}

	switch s.cfg.Pagination {
	case PaginationNextLink:
		pageURL := s.cfg.ListURL(series, lang, 1)
		for pageURL != "" {
			doc, err := s.pages.GetDocument(ctx, pageURL)
			if err != nil {
				return refs, fmt.Errorf("failed to fetch listing %s: %w", pageURL, err)
			}
			if doc == nil {
				break
			}
			metrics.FetchPagesTotal.WithLabelValues(s.cfg.Name).Inc()

			if collect(doc, pageURL) == 0 {
				if expected > len(refs) {
					return refs, fmt.Errorf("%w: got %d of %d for %s/%s", ErrListingTruncated, len(refs), expected, series.Code, lang)
				}
				return refs, nil
			}

			next, ok := doc.Find(s.cfg.NextSelector).First().Attr("href")
			if !ok || strings.TrimSpace(next) == "" {
				break
			}
			pageURL = resolveURL(pageURL, next)
		}

	default: // page-param
		for page := 1; ; page++ {
			pageURL := s.cfg.ListURL(series, lang, page)
			doc, err := s.pages.GetDocument(ctx, pageURL)
			if err != nil {
				return refs, fmt.Errorf("failed to fetch listing %s: %w", pageURL, err)
			}
			if doc == nil {
				// past the last page
				break
			}
			metrics.FetchPagesTotal.WithLabelValues(s.cfg.Name).Inc()

			if collect(doc, pageURL) == 0 {
				if expected > len(refs) {
					return refs, fmt.Errorf("%w: got %d of %d for %s/%s", ErrListingTruncated, len(refs), expected, series.Code, lang)
				}
				break
			}
			if expected > 0 && len(refs) >= expected {
				break
			}
		}
	}

	return refs, nil
}

func (s *HTMLSource) ResolveDetail(ctx context.Context, ref *CardRef, lang string) error {
	if ref.DetailURL == "" {
		return nil
	}
	doc, err := s.details.GetDocument(ctx, ref.DetailURL)
	if err != nil {
		return fmt.Errorf("failed to fetch detail %s: %w", ref.DetailURL, err)
	}
	if doc == nil {
		return ErrNotFound
	}

	if img := s.resolveImageURL(doc, ref.DetailURL, lang); img != "" {
		ref.ImageURL = img
	}
	if attrs := s.extractAttributes(doc); len(attrs) > 0 {
		if ref.Attributes == nil {
			ref.Attributes = make(map[string]interface{})
		}
		for k, v := range attrs {
			ref.Attributes[k] = v
		}
	}
	return nil
}

// extractItems pulls the candidate anchors out of one listing page.
func (s *HTMLSource) extractItems(doc *goquery.Document, pageURL string) []CardRef {
	var refs []CardRef
	doc.Find(s.cfg.ItemSelector).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		detailURL := resolveURL(pageURL, href)
		ref := CardRef{
			Slug:      slugFromURL(detailURL),
			DetailURL: detailURL,
		}
		if img, ok := sel.Find("img").First().Attr("src"); ok {
			ref.ImageURL = resolveURL(pageURL, img)
		}
		if alt, ok := sel.Find("img").First().Attr("alt"); ok {
			ref.Name = strings.TrimSpace(alt)
		}
		refs = append(refs, ref)
	})
	return refs
}

var digitsPattern = regexp.MustCompile(`\d+`)

// extractTotal reads the expected item count from the configured
// element ("142 cards" and similar).
func (s *HTMLSource) extractTotal(doc *goquery.Document) int {
	if s.cfg.TotalSelector == "" {
		return 0
	}
	text := strings.TrimSpace(doc.Find(s.cfg.TotalSelector).First().Text())
	m := digitsPattern.FindString(text)
	if m == "" {
		return 0
	}
	total, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return total
}

// resolveImageURL prefers the JSON-LD image array, filtered by the
// language segment in the URL, over the og:image meta tag. The
// structured block disambiguates multi-language artwork on shared
// pages; og:image is whatever the site chose to share.
func (s *HTMLSource) resolveImageURL(doc *goquery.Document, pageURL, lang string) string {
	var candidates []string
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		var block struct {
			Image interface{} `json:"image"`
		}
		if err := json.Unmarshal([]byte(sel.Text()), &block); err != nil {
			return
		}
		switch img := block.Image.(type) {
		case string:
			candidates = append(candidates, img)
		case []interface{}:
			for _, v := range img {
				if u, ok := v.(string); ok {
					candidates = append(candidates, u)
				}
			}
		}
	})

	for _, u := range candidates {
		if strings.Contains(u, "/"+lang+"/") || strings.Contains(u, "-"+lang+".") {
			return resolveURL(pageURL, u)
		}
	}
	if len(candidates) > 0 {
		return resolveURL(pageURL, candidates[0])
	}

	if og, ok := doc.Find(`meta[property="og:image"]`).First().Attr("content"); ok && og != "" {
		return resolveURL(pageURL, og)
	}
	if s.cfg.ImageSelector != "" {
		if src, ok := doc.Find(s.cfg.ImageSelector).First().Attr("src"); ok && src != "" {
			return resolveURL(pageURL, src)
		}
	}
	return ""
}

// extractAttributes reads dt/dd pairs under the configured container.
func (s *HTMLSource) extractAttributes(doc *goquery.Document) map[string]interface{} {
	if s.cfg.AttrSelector == "" {
		return nil
	}
	attrs := make(map[string]interface{})
	doc.Find(s.cfg.AttrSelector).Each(func(_ int, dl *goquery.Selection) {
		keys := dl.Find("dt")
		values := dl.Find("dd")
		keys.Each(func(i int, dt *goquery.Selection) {
			if i >= values.Length() {
				return
			}
			key := attributeKey(dt.Text())
			value := strings.TrimSpace(values.Eq(i).Text())
			if key != "" && value != "" {
				attrs[key] = value
			}
		})
	})
	return attrs
}

func attributeKey(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.TrimSuffix(key, ":")
	return strings.ReplaceAll(key, " ", "_")
}

// slugFromURL takes the last path segment, extension stripped, as the
// identifier slug.
func slugFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	seg := path.Base(u.Path)
	if seg == "." || seg == "/" {
		return ""
	}
	if ext := path.Ext(seg); ext != "" {
		seg = strings.TrimSuffix(seg, ext)
	}
	return seg
}

func resolveURL(base, href string) string {
	bu, err := url.Parse(base)
	if err != nil {
		return href
	}
	hu, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return bu.ResolveReference(hu).String()
}

// ---- API sources ----

// APISource ingests from JSON card databases. Listings paginate by page
// number until the response reports no more; items usually arrive with
// image and attributes inline, so detail resolution is often a no-op.
type APISource struct {
	cfg    SourceConfig
	client *FetchClient
}

func NewAPISource(cfg SourceConfig) *APISource {
	return &APISource{
		cfg:    cfg,
		client: NewFetchClient(cfg.Name, time.Duration(cfg.PageDelay())*time.Millisecond),
	}
}

type apiListResponse struct {
	Items []apiCardItem `json:"items"`
	Meta  apiListMeta   `json:"meta"`
}

type apiListMeta struct {
	Total   int  `json:"total"`
	HasMore bool `json:"hasMore"`
}

type apiCardItem struct {
	ID         string                 `json:"id"`
	LocalID    string                 `json:"localId"`
	Name       string                 `json:"name"`
	Rarity     string                 `json:"rarity"`
	Image      string                 `json:"image"`
	DetailURL  string                 `json:"url"`
	Attributes map[string]interface{} `json:"attributes"`
}

func (s *APISource) ListCards(ctx context.Context, series SeriesConfig, lang string) ([]CardRef, error) {
	seen := make(map[string]bool)
	var refs []CardRef
	expected := 0

	for page := 1; ; page++ {
		pageURL := s.cfg.ListURL(series, lang, page)
		var resp apiListResponse
		found, err := s.client.GetJSON(ctx, pageURL, &resp)
		if err != nil {
			return refs, fmt.Errorf("failed to fetch listing %s: %w", pageURL, err)
		}
		if !found {
			break
		}
		metrics.FetchPagesTotal.WithLabelValues(s.cfg.Name).Inc()

		if resp.Meta.Total > 0 && expected == 0 {
			expected = resp.Meta.Total
		}

		added := 0
		for _, item := range resp.Items {
			ref := convertAPIItem(item)
			if ref.Key() == "" || seen[ref.Key()] {
				continue
			}
			seen[ref.Key()] = true
			refs = append(refs, ref)
			added++
		}

		if added == 0 {
			if expected > len(refs) {
				return refs, fmt.Errorf("%w: got %d of %d for %s/%s", ErrListingTruncated, len(refs), expected, series.Code, lang)
			}
			break
		}
		if !resp.Meta.HasMore {
			break
		}
	}

	return refs, nil
}

func (s *APISource) ResolveDetail(ctx context.Context, ref *CardRef, lang string) error {
	// listing items already carry image and attributes; only follow a
	// detail URL when the image is still missing
	if ref.ImageURL != "" || ref.DetailURL == "" {
		return nil
	}

	var item apiCardItem
	found, err := s.client.GetJSON(ctx, ref.DetailURL, &item)
	if err != nil {
		return fmt.Errorf("failed to fetch card detail %s: %w", ref.DetailURL, err)
	}
	if !found {
		return ErrNotFound
	}

	detail := convertAPIItem(item)
	if detail.ImageURL != "" {
		ref.ImageURL = detail.ImageURL
	}
	if detail.Name != "" && ref.Name == "" {
		ref.Name = detail.Name
	}
	if detail.Rarity != "" && ref.Rarity == "" {
		ref.Rarity = detail.Rarity
	}
	if len(detail.Attributes) > 0 {
		if ref.Attributes == nil {
			ref.Attributes = make(map[string]interface{})
		}
		for k, v := range detail.Attributes {
			ref.Attributes[k] = v
		}
	}
	return nil
}

func convertAPIItem(item apiCardItem) CardRef {
	slug := item.ID
	if slug == "" {
		slug = item.LocalID
	}
	return CardRef{
		Slug:       slug,
		DetailURL:  item.DetailURL,
		ImageURL:   item.Image,
		Name:       item.Name,
		Rarity:     item.Rarity,
		Attributes: item.Attributes,
	}
}
