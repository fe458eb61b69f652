package categorize

import (
	"regexp"
	"strings"
)

const maxLearnedKeywords = 5

var nonWord = regexp.MustCompile(`\W+`)

var stopwords = map[string]bool{
	"the":  true,
	"and":  true,
	"for":  true,
	"with": true,
	"from": true,
	"this": true,
	"that": true,
	"are":  true,
	"was":  true,
}

// ExtractKeywords returns up to five lowercase tokens of description and
// counterparty that are longer than two characters and not stopwords.
func ExtractKeywords(description, counterparty string) []string {
	text := strings.ToLower(description + " " + counterparty)

	keywords := make([]string, 0, maxLearnedKeywords)
	for _, word := range nonWord.Split(text, -1) {
		if len(word) <= 2 || stopwords[word] {
			continue
		}
		keywords = append(keywords, word)
		if len(keywords) == maxLearnedKeywords {
			break
		}
	}
	return keywords
}
