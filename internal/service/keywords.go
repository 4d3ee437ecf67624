package service

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const maxKeywords = 10

var nonWordPattern = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`the a an and or but in on at to for of with
		by is are was were be been being have has had
		do does did will would could should may might must
		i you he she it we they me him her us them
		my your his its our their this that these those over`) {
		stopWords[w] = struct{}{}
	}
}

// ExtractKeywords picks up to ten distinct keywords from text: lowercased alphabetic words
// longer than three letters that are not stop words, in first-seen order.
func ExtractKeywords(text string) []string {
	if text == "" {
		return []string{}
	}
	clean := nonWordPattern.ReplaceAllString(strings.ToLower(text), " ")

	keywords := make([]string, 0, maxKeywords)
	seen := make(map[string]struct{})
	for _, word := range strings.Fields(clean) {
		if utf8.RuneCountInString(word) <= 3 || !isAlpha(word) {
			continue
		}
		if _, stop := stopWords[word]; stop {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		keywords = append(keywords, word)
		if len(keywords) == maxKeywords {
			break
		}
	}
	return keywords
}
