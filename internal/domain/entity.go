package domain

import "strings"

// EntityCategory is the kind of real-world thing an entity names.
type EntityCategory string

const (
	CategoryProduct  EntityCategory = "PRODUCT"
	CategoryLocation EntityCategory = "LOCATION"
	CategoryPerson   EntityCategory = "PERSON"
	CategoryConcept  EntityCategory = "CONCEPT"
	CategoryBrand    EntityCategory = "BRAND"
	CategoryEvent    EntityCategory = "EVENT"
)

// EntityCategories lists every recognized category.
var EntityCategories = []EntityCategory{
	CategoryProduct,
	CategoryLocation,
	CategoryPerson,
	CategoryConcept,
	CategoryBrand,
	CategoryEvent,
}

// ParseEntityCategory maps a case-insensitive category name to an EntityCategory.
// Returns false when the name is not a recognized category.
func ParseEntityCategory(s string) (EntityCategory, bool) {
	c := EntityCategory(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range EntityCategories {
		if c == known {
			return c, true
		}
	}
	return "", false
}

// EntitySource records where an entity was observed.
type EntitySource string

const (
	SourceCaption EntitySource = "caption"
	SourceHashtag EntitySource = "hashtag"
	SourceVision  EntitySource = "vision"
	SourceAudio   EntitySource = "audio"
	SourceOCR     EntitySource = "ocr"
)

// Entity is a named thing mentioned in or visible within a content item.
type Entity struct {
	Name       string         `json:"name"`
	Category   EntityCategory `json:"category"`
	Confidence float64        `json:"confidence"`
	Source     EntitySource   `json:"source"`
	Context    string         `json:"context,omitempty"`
}

// EntityKey is the deduplication identity of an entity.
type EntityKey struct {
	Name     string
	Category EntityCategory
}

// Key returns the identity used for deduplication: lowercased trimmed name plus category.
// Source and context do not take part in identity.
func (e Entity) Key() EntityKey {
	return EntityKey{
		Name:     strings.ToLower(strings.TrimSpace(e.Name)),
		Category: e.Category,
	}
}

// DedupeEntities drops every entity whose key was already seen, keeping first occurrences in order.
func DedupeEntities(entities []Entity) []Entity {
	seen := make(map[EntityKey]struct{}, len(entities))
	out := make([]Entity, 0, len(entities))
	for _, e := range entities {
		k := e.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, e)
	}
	return out
}
