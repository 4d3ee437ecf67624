package service

import (
	"regexp"
	"strings"
)

// OtherCategory collects hashtags that match no topic category.
const OtherCategory = "other"

var (
	hashtagPattern      = regexp.MustCompile(`#([\p{L}\p{N}_]+)`)
	hashtagStripPattern = regexp.MustCompile(`#[\p{L}\p{N}_]+`)
)

type hashtagCategory struct {
	name     string
	keywords []string
}

// hashtagCategories is ordered: a hashtag belongs to the first category it matches.
var hashtagCategories = []hashtagCategory{
	{"food", []string{"food", "foodie", "recipe", "cooking", "restaurant", "cafe", "dinner", "lunch", "breakfast"}},
	{"travel", []string{"travel", "vacation", "trip", "explore", "wanderlust", "adventure", "destination"}},
	{"fashion", []string{"fashion", "style", "outfit", "ootd", "clothing", "accessories", "shoes"}},
	{"beauty", []string{"beauty", "makeup", "skincare", "cosmetics", "hair", "nails"}},
	{"fitness", []string{"fitness", "workout", "gym", "health", "exercise", "training", "yoga"}},
	{"lifestyle", []string{"lifestyle", "daily", "life", "home", "decor", "inspiration"}},
	{"business", []string{"business", "entrepreneur", "startup", "work", "career", "professional"}},
	{"technology", []string{"tech", "technology", "gadget", "app", "software", "digital"}},
	{"art", []string{"art", "artist", "creative", "design", "photography", "drawing", "painting"}},
	{"music", []string{"music", "song", "artist", "concert", "album", "musician"}},
	{"education", []string{"education", "learning", "study", "school", "university", "knowledge"}},
	{"entertainment", []string{"entertainment", "movie", "tv", "show", "celebrity", "fun"}},
}

// ExtractHashtags returns the lowercased hashtags in text without the leading '#',
// de-duplicated in first-seen order.
func ExtractHashtags(text string) []string {
	if text == "" {
		return []string{}
	}
	matches := hashtagPattern.FindAllStringSubmatch(strings.ToLower(text), -1)
	tags := make([]string, 0, len(matches))
	for _, m := range matches {
		tags = append(tags, m[1])
	}
	return uniqueStrings(tags)
}

// StripHashtags removes every hashtag from text and trims the result.
func StripHashtags(text string) string {
	return strings.TrimSpace(hashtagStripPattern.ReplaceAllString(text, ""))
}

// CategorizeHashtags groups hashtags by topic category. A hashtag matches a category when
// it is a substring of one of the category's keywords or contains one. Unmatched hashtags
// go under OtherCategory. Empty input yields an empty map.
func CategorizeHashtags(hashtags []string) map[string][]string {
	out := make(map[string][]string)
	for _, tag := range hashtags {
		name := categoryFor(strings.ToLower(tag))
		out[name] = append(out[name], tag)
	}
	return out
}

func categoryFor(tag string) string {
	if tag == "" {
		return OtherCategory
	}
	for _, c := range hashtagCategories {
		for _, kw := range c.keywords {
			if strings.Contains(kw, tag) || strings.Contains(tag, kw) {
				return c.name
			}
		}
	}
	return OtherCategory
}

// CategoryTopics lists the category names present in categories, in table order with
// OtherCategory last.
func CategoryTopics(categories map[string][]string) []string {
	topics := make([]string, 0, len(categories))
	for _, c := range hashtagCategories {
		if len(categories[c.name]) > 0 {
			topics = append(topics, c.name)
		}
	}
	if len(categories[OtherCategory]) > 0 {
		topics = append(topics, OtherCategory)
	}
	return topics
}
