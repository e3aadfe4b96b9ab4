package services

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// NormalizationTable holds one TCG's rarity vocabulary and name
// corrections. The tables are external data (data/normalization.json):
// they describe volatile facts about third-party sites, not logic, and
// get updated without touching pipeline code.
type NormalizationTable struct {
	RarityAliases   map[string]string `json:"rarity_aliases"`
	NameCorrections []NameCorrection  `json:"name_corrections"`
}

// NameCorrection is one exact-substring replacement, applied
// case-insensitively. The list order matters: some corrections are
// substrings of others.
type NameCorrection struct {
	Find    string `json:"find"`
	Replace string `json:"replace"`
}

// Normalizer maps source-site rarity strings to the catalog's canonical
// vocabulary and repairs known transliteration defects in card names.
type Normalizer struct {
	tables map[string]NormalizationTable

	// rarity strings seen with no alias entry, reported in the run
	// summary so the table can be extended
	unknownRarities map[string]bool
}

func NewNormalizer(tables map[string]NormalizationTable) *Normalizer {
	return &Normalizer{
		tables:          tables,
		unknownRarities: make(map[string]bool),
	}
}

// LoadNormalizationTables reads the per-TCG alias tables from a JSON
// file keyed by TCG slug.
func LoadNormalizationTables(path string) (map[string]NormalizationTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read normalization tables: %w", err)
	}

	var tables map[string]NormalizationTable
	if err := json.Unmarshal(data, &tables); err != nil {
		return nil, fmt.Errorf("failed to parse normalization tables: %w", err)
	}
	return tables, nil
}

// NormalizeRarity maps a free-text rarity string to the canonical value
// for the given TCG. Unrecognized strings pass through unchanged so an
// unseen rarity never blocks ingestion; the gap is closed by updating
// the alias table, not by failing the run.
func (n *Normalizer) NormalizeRarity(tcg, raw string) string {
	if raw == "" {
		return raw
	}
	table, ok := n.tables[tcg]
	if !ok {
		n.unknownRarities[tcg+":"+raw] = true
		return raw
	}
	if canonical, ok := table.RarityAliases[rarityAliasKey(raw)]; ok {
		return canonical
	}
	n.unknownRarities[tcg+":"+raw] = true
	return raw
}

// CorrectName applies the TCG's ordered substring corrections to a card
// name. This deliberately stays a dumb find/replace list aimed at known
// upstream defects (concatenated honorifics, missing middle initials),
// not a general normalizer.
func (n *Normalizer) CorrectName(tcg, name string) string {
	table, ok := n.tables[tcg]
	if !ok {
		return name
	}
	for _, c := range table.NameCorrections {
		name = replaceAllFold(name, c.Find, c.Replace)
	}
	return name
}

// UnknownRarities returns the "tcg:rarity" keys encountered without an
// alias entry, sorted for stable summary output.
func (n *Normalizer) UnknownRarities() []string {
	keys := make([]string, 0, len(n.unknownRarities))
	for k := range n.unknownRarities {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// rarityAliasKey folds case and the -/_ separators so "Super Rare",
// "super-rare" and "SUPER_RARE" hit the same alias entry.
func rarityAliasKey(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, "-", " ")
	key = strings.ReplaceAll(key, "_", " ")
	for strings.Contains(key, "  ") {
		key = strings.ReplaceAll(key, "  ", " ")
	}
	return key
}

// replaceAllFold replaces every case-insensitive occurrence of find
// inside s. The replacement text is inserted as given. The scan walks
// rune boundaries, so folds that change byte width (the Kelvin sign
// folding to a one-byte k) cannot throw off the offsets.
func replaceAllFold(s, find, replace string) string {
	if find == "" {
		return s
	}

	var b strings.Builder
	start := 0 // start of the pending unreplaced tail
	i := 0
	for i < len(s) {
		matched := foldMatch(s[i:], find)
		if matched < 0 {
			_, w := utf8.DecodeRuneInString(s[i:])
			i += w
			continue
		}
		b.WriteString(s[start:i])
		b.WriteString(replace)
		i += matched
		start = i
	}
	if start == 0 {
		return s
	}
	b.WriteString(s[start:])
	return b.String()
}

// foldMatch reports how many bytes of s the pattern matches under
// simple case folding, -1 when s does not start with find.
func foldMatch(s, find string) int {
	n := 0
	for _, fr := range find {
		sr, w := utf8.DecodeRuneInString(s[n:])
		if w == 0 || !foldEqual(sr, fr) {
			return -1
		}
		n += w
	}
	return n
}

// foldEqual walks the SimpleFold orbit of a looking for b.
func foldEqual(a, b rune) bool {
	if a == b {
		return true
	}
	for r := unicode.SimpleFold(a); r != a; r = unicode.SimpleFold(r) {
		if r == b {
			return true
		}
	}
	return false
}
