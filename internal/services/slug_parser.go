package services

import (
	"regexp"
	"strings"
	"unicode"
)

// CardIdentifier is the structured form of a source site's card slug or
// image filename.
type CardIdentifier struct {
	SeriesCode string `json:"series_code"` // e.g. "OP02"
	Number     string `json:"number"`      // e.g. "004"; promo forms like "1/P3" kept verbatim
	RarityCode string `json:"rarity_code"` // e.g. "SR", empty when the slug carries none
	VariantTag string `json:"variant_tag"` // "ALT", "FA", "FT", "PARALLEL", "SP", "V2" or empty
	Name       string `json:"name"`
	Language   string `json:"language"`
}

// CatalogNumber is the number as stored in the catalog: the collector
// number plus the variant suffix when present ("004-ALT"). Never padded.
func (id CardIdentifier) CatalogNumber() string {
	if id.VariantTag != "" {
		return id.Number + "-" + id.VariantTag
	}
	return id.Number
}

const languageAlternation = `en|fr|jp|zh|de|es|it|pt|ko`

// Slug patterns tried in priority order; the first whose regexp matches
// AND whose extractor accepts wins. An extractor returning false sends
// the slug to the next pattern, which keeps token validation (e.g. "is
// this really a rarity code") inside the cascade instead of guessing.
var slugPatterns = []struct {
	name    string
	re      *regexp.Regexp
	extract func(m []string, langHint string) (CardIdentifier, bool)
}{
	{
		// en-op02-004-sr-prb01-alternative-art-edward-newgate
		name: "lang-series-number-rarity-name",
		re:   regexp.MustCompile(`^(` + languageAlternation + `)-([a-z]{1,8}\d[a-z0-9.]*)-(\d{1,4})-([a-z]{1,4})-(.+)$`),
		extract: func(m []string, _ string) (CardIdentifier, bool) {
			if !raritySlugTokens[m[4]] {
				return CardIdentifier{}, false
			}
			return CardIdentifier{
				SeriesCode: strings.ToUpper(m[2]),
				Number:     m[3],
				RarityCode: strings.ToUpper(m[4]),
				VariantTag: detectVariantTag(m[5]),
				Name:       nameFromFragment(m[5]),
				Language:   m[1],
			}, true
		},
	},
	{
		// en-op02-004-edward-newgate (no rarity token)
		name: "lang-series-number-name",
		re:   regexp.MustCompile(`^(` + languageAlternation + `)-([a-z]{1,8}\d[a-z0-9.]*)-(\d{1,4})-(.+)$`),
		extract: func(m []string, _ string) (CardIdentifier, bool) {
			id := CardIdentifier{
				SeriesCode: strings.ToUpper(m[2]),
				Number:     m[3],
				Language:   m[1],
			}
			// A trailing bare rarity token ("en-op02-004-sr", typical
			// of image filenames) is a rarity, not a name
			if raritySlugTokens[m[4]] {
				id.RarityCode = strings.ToUpper(m[4])
				return id, true
			}
			id.VariantTag = detectVariantTag(m[4])
			id.Name = nameFromFragment(m[4])
			return id, true
		},
	},
	{
		// p-fr-029-luffy: promo series puts the series letter first
		name: "promo-lang-number-name",
		re:   regexp.MustCompile(`^(p)-(` + languageAlternation + `)-(\d{1,4})(?:-(.+))?$`),
		extract: func(m []string, _ string) (CardIdentifier, bool) {
			return CardIdentifier{
				SeriesCode: strings.ToUpper(m[1]),
				Number:     m[3],
				VariantTag: detectVariantTag(m[4]),
				Name:       nameFromFragment(m[4]),
				Language:   m[2],
			}, true
		},
	},
	{
		// op02-004-sr-edward-newgate (language from context)
		name: "series-number-rarity-name",
		re:   regexp.MustCompile(`^([a-z]{1,8}\d[a-z0-9.]*)-(\d{1,4})-([a-z]{1,4})-(.+)$`),
		extract: func(m []string, langHint string) (CardIdentifier, bool) {
			if !raritySlugTokens[m[3]] {
				return CardIdentifier{}, false
			}
			return CardIdentifier{
				SeriesCode: strings.ToUpper(m[1]),
				Number:     m[2],
				RarityCode: strings.ToUpper(m[3]),
				VariantTag: detectVariantTag(m[4]),
				Name:       nameFromFragment(m[4]),
				Language:   langHint,
			}, true
		},
	},
	{
		// op02-004-edward-newgate
		name: "series-number-name",
		re:   regexp.MustCompile(`^([a-z]{1,8}\d[a-z0-9.]*)-(\d{1,4})-(.+)$`),
		extract: func(m []string, langHint string) (CardIdentifier, bool) {
			id := CardIdentifier{
				SeriesCode: strings.ToUpper(m[1]),
				Number:     m[2],
				Language:   langHint,
			}
			if raritySlugTokens[m[3]] {
				id.RarityCode = strings.ToUpper(m[3])
				return id, true
			}
			id.VariantTag = detectVariantTag(m[3])
			id.Name = nameFromFragment(m[3])
			return id, true
		},
	},
	{
		// op02-004 (bare identifier, e.g. from an image filename)
		name: "series-number",
		re:   regexp.MustCompile(`^([a-z]{1,8}\d[a-z0-9.]*)-(\d{1,4})$`),
		extract: func(m []string, langHint string) (CardIdentifier, bool) {
			return CardIdentifier{
				SeriesCode: strings.ToUpper(m[1]),
				Number:     m[2],
				Language:   langHint,
			}, true
		},
	},
}

// raritySlugTokens is the set of short rarity codes that appear as their
// own slug segment. Anything else in that position is part of the name.
var raritySlugTokens = map[string]bool{
	"c":   true,
	"uc":  true,
	"r":   true,
	"rr":  true,
	"sr":  true,
	"ssr": true,
	"sec": true,
	"l":   true,
	"p":   true,
	"pr":  true,
	"sp":  true,
	"ar":  true,
	"tr":  true,
	"ur":  true,
}

// Variant keywords ordered from longest/most specific to shortest.
// This ensures we match "foil-textured" before just "foil".
// Unseen keyword combinations fall through to "no variant".
var variantKeywords = []struct {
	keyword string
	tag     string
}{
	{"alternative-art", "ALT"},
	{"alternate-art", "ALT"},
	{"foil-textured", "FT"},
	{"textured-foil", "FT"},
	{"full-art", "FA"},
	{"version-2", "V2"},
	{"parallel", "PARALLEL"},
	{"special", "SP"},
}

// ParseCardSlug runs the slug through the pattern cascade and returns
// the first accepted match. ok is false when no pattern claims the slug;
// callers log and skip rather than guess.
func ParseCardSlug(slug string, langHint string) (CardIdentifier, bool) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return CardIdentifier{}, false
	}

	for _, p := range slugPatterns {
		m := p.re.FindStringSubmatch(slug)
		if m == nil {
			continue
		}
		if id, ok := p.extract(m, langHint); ok {
			return id, true
		}
	}

	return CardIdentifier{}, false
}

func detectVariantTag(fragment string) string {
	if fragment == "" {
		return ""
	}
	for _, vk := range variantKeywords {
		if strings.Contains(fragment, vk.keyword) {
			return vk.tag
		}
	}
	return ""
}

// setCodeTokenPattern matches tokens like "prb01" that name a promo
// booster or sub-set inside the trailing name fragment.
var setCodeTokenPattern = regexp.MustCompile(`^[a-z]{1,8}\d[a-z0-9]*$`)

// nameFromFragment recovers a display name from the trailing slug
// fragment: variant keywords and leading set-code tokens are stripped,
// the rest is title-cased ("prb01-alternative-art-edward-newgate" ->
// "Edward Newgate").
func nameFromFragment(fragment string) string {
	if fragment == "" {
		return ""
	}
	for _, vk := range variantKeywords {
		fragment = strings.ReplaceAll(fragment, vk.keyword, "")
	}

	tokens := strings.Split(fragment, "-")
	words := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		// Leading set-code tokens are noise, but digits later on can
		// be part of the name itself
		if len(words) == 0 && setCodeTokenPattern.MatchString(tok) {
			continue
		}
		words = append(words, titleWord(tok))
	}
	return strings.Join(words, " ")
}

func titleWord(w string) string {
	runes := []rune(w)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// IsPromoNumber reports whether a collector number is in slash-form
// promo notation ("1/P3") rather than a plain number.
func IsPromoNumber(number string) bool {
	return strings.Contains(number, "/")
}

// FormatCardNumber zero-pads a plain collector number to three digits
// for storage path construction. Promo-format numbers pass through
// unchanged. Database matching always uses the unpadded form.
func FormatCardNumber(number string) string {
	if IsPromoNumber(number) {
		return number
	}
	trimmed := strings.TrimSpace(number)
	if trimmed == "" {
		return trimmed
	}
	for _, r := range trimmed {
		if !unicode.IsDigit(r) {
			return trimmed
		}
	}
	for len(trimmed) < 3 {
		trimmed = "0" + trimmed
	}
	return trimmed
}
