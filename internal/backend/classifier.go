package backend

import (
	"strings"
	"unicode"
)

// Classifier assesses message complexity. The default language comes from
// configuration; anything else is multilingual.
type Classifier struct {
	defaultLanguage string
}

func NewClassifier(defaultLanguage string) *Classifier {
	if defaultLanguage == "" {
		defaultLanguage = "en"
	}
	return &Classifier{defaultLanguage: defaultLanguage}
}

var simpleIntents = map[string]bool{
	"menu_inquiry":  true,
	"price_check":   true,
	"hours_inquiry": true,
}

var simpleKeywords = []string{"menu", "price", "cost", "hours", "open", "close"}

var complexMarkers = []string{
	"but", "except", "without", "instead", "modify", "change",
	"allergic", "intolerant", "special", "complaint",
}

// Classify applies the signals in precedence order: a non-default language
// overrides everything, then simple intents/keywords, then complexity
// markers, and moderate otherwise.
func (c *Classifier) Classify(text, language, intent string) Complexity {
	if c.isNonDefaultLanguage(text, language) {
		return ComplexityMultilingual
	}

	lower := strings.ToLower(text)
	if simpleIntents[intent] {
		return ComplexitySimple
	}
	for _, keyword := range simpleKeywords {
		if strings.Contains(lower, keyword) {
			return ComplexitySimple
		}
	}
	for _, marker := range complexMarkers {
		if containsWord(lower, marker) {
			return ComplexityComplex
		}
	}
	return ComplexityModerate
}

// isNonDefaultLanguage trusts an explicit language tag first and falls back
// to a script check for text the channel did not tag.
func (c *Classifier) isNonDefaultLanguage(text, language string) bool {
	if language != "" {
		return !strings.EqualFold(language, c.defaultLanguage) &&
			!strings.HasPrefix(strings.ToLower(language), strings.ToLower(c.defaultLanguage)+"-")
	}
	return hasNonLatinScript(text)
}

// hasNonLatinScript reports whether the text carries letters outside the
// Latin script (e.g. Cyrillic, CJK). Latvian/Estonian diacritics are Latin
// and do not trigger this; those arrive with an explicit language tag.
func hasNonLatinScript(text string) bool {
	for _, r := range text {
		if unicode.IsLetter(r) && !unicode.Is(unicode.Latin, r) {
			return true
		}
	}
	return false
}

// containsWord matches whole words so markers like "but" ignore "butter".
func containsWord(text, word string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		beforeOK := start == 0 || !isWordRune(rune(text[start-1]))
		afterOK := end == len(text) || !isWordRune(rune(text[end]))
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
