package analysis

import (
	"context"
	"sort"
	"strings"

	"github.com/deepshield/deepshield-api/models"
)

// keywordScore is the confidence reported for any blacklist hit
const keywordScore = 0.95

// DefaultKeywords is the built in blacklist keyed by language
var DefaultKeywords = map[string][]string{
	"en": {"abuse", "hate", "violence", "explicit"},
	"es": {"abuso", "odio", "violencia", "explícito"},
	"fr": {"abus", "haine", "violence", "explicite"},
}

// KeywordAnalyzer flags text containing blacklisted words. Matching is a
// case-insensitive substring search.
type KeywordAnalyzer struct {
	lists map[string][]string
}

// NewKeywordAnalyzer builds an analyzer over lists, or DefaultKeywords when
// lists is nil
func NewKeywordAnalyzer(lists map[string][]string) *KeywordAnalyzer {
	if lists == nil {
		lists = DefaultKeywords
	}
	normalized := make(map[string][]string, len(lists))
	for lang, words := range lists {
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				normalized[strings.ToLower(lang)] = append(normalized[strings.ToLower(lang)], w)
			}
		}
	}
	return &KeywordAnalyzer{lists: normalized}
}

// Analyze checks m.Text against the list for m.Language, or every list when
// the language is unknown
func (k *KeywordAnalyzer) Analyze(_ context.Context, m Media) (models.Verdict, error) {
	text := m.Text
	if text == "" && strings.HasPrefix(m.ContentType, "text/") {
		text = string(m.Data)
	}
	if strings.TrimSpace(text) == "" {
		return models.Verdict{}, ErrUnsupportedMedia
	}

	matched := k.match(strings.ToLower(text), strings.ToLower(m.Language))
	verdict := models.Verdict{
		SubjectType:    models.SubjectText,
		Classification: "clean",
	}
	if len(matched) == 0 {
		return verdict, nil
	}
	verdict.Flagged = true
	verdict.Score = keywordScore
	verdict.Classification = "toxic"
	for _, w := range matched {
		verdict.Reasons = append(verdict.Reasons, "keyword: "+w)
	}
	return verdict, nil
}

func (k *KeywordAnalyzer) match(text, lang string) []string {
	lists := k.lists
	if words, ok := k.lists[lang]; ok {
		lists = map[string][]string{lang: words}
	}
	seen := map[string]bool{}
	var out []string
	for _, words := range lists {
		for _, w := range words {
			if !seen[w] && strings.Contains(text, w) {
				seen[w] = true
				out = append(out, w)
			}
		}
	}
	sort.Strings(out)
	return out
}
