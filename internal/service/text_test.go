package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/timmy/reelsense/internal/domain"
)

// fakeChat answers entity prompts by the quoted text they carry.
type fakeChat struct {
	replies map[string]string
	err     error
	prompts []string
}

func (f *fakeChat) Complete(ctx context.Context, system, user string) (string, error) {
	f.prompts = append(f.prompts, user)
	if f.err != nil {
		return "", f.err
	}
	for text, reply := range f.replies {
		if strings.Contains(user, fmt.Sprintf("Text: %q", text)) {
			return reply, nil
		}
	}
	return "[]", nil
}

func TestExtractHashtags(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"Amazing pizza at Joe's! #Food #restaurant #food", []string{"food", "restaurant"}},
		{"no tags here", []string{}},
		{"", []string{}},
		{"#café_2024 time", []string{"café_2024"}},
	}
	for _, tt := range tests {
		if got := ExtractHashtags(tt.text); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ExtractHashtags(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestExtractHashtags_CaseInsensitive(t *testing.T) {
	for _, text := range []string{
		"Amazing pizza at Joe's! #Food #restaurant #food",
		"#OOTD #ootd #Ootd",
		"#café_2024 time #Naples",
		"no tags here",
	} {
		lower := ExtractHashtags(text)
		if upper := ExtractHashtags(strings.ToUpper(text)); !reflect.DeepEqual(lower, upper) {
			t.Errorf("ExtractHashtags(%q) = %v, upper-cased = %v", text, lower, upper)
		}
	}
}

func TestCategorizeHashtags(t *testing.T) {
	got := CategorizeHashtags([]string{"food", "restaurant", "ootd", "xyzzy", "gymlife"})
	want := map[string][]string{
		"food":        {"food", "restaurant"},
		"fashion":     {"ootd"},
		"fitness":     {"gymlife"},
		OtherCategory: {"xyzzy"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("CategorizeHashtags() = %v, want %v", got, want)
	}

	if got := CategorizeHashtags(nil); len(got) != 0 {
		t.Errorf("CategorizeHashtags(nil) = %v, want empty", got)
	}

	t.Run("first matching category wins", func(t *testing.T) {
		// "artist" is listed under both art and music.
		got := CategorizeHashtags([]string{"artist"})
		if _, ok := got["art"]; !ok {
			t.Errorf("CategorizeHashtags(artist) = %v, want art", got)
		}
	})

	t.Run("topics follow table order", func(t *testing.T) {
		topics := CategoryTopics(CategorizeHashtags([]string{"xyzzy", "travel", "food"}))
		if !reflect.DeepEqual(topics, []string{"food", "travel", OtherCategory}) {
			t.Errorf("CategoryTopics() = %v", topics)
		}
	})
}

func TestExtractKeywords(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"stop words and short words", "The best pizza in the whole city, with friends!", []string{"best", "pizza", "whole", "city", "friends"}},
		{"apostrophes split words", "Amazing pizza at Joe's!", []string{"amazing", "pizza"}},
		{"digits are not keywords", "route 66 diner", []string{"route", "diner"}},
		{"duplicates collapse", "Pizza pizza PIZZA", []string{"pizza"}},
		{"empty", "", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractKeywords(tt.text); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractKeywords() = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("capped at ten", func(t *testing.T) {
		got := ExtractKeywords("alpha bravo charlie delta echo foxtrot golf hotel india juliet kilo lima")
		if len(got) != maxKeywords {
			t.Errorf("len = %d, want %d", len(got), maxKeywords)
		}
	})
}

func TestParseEntityResponse(t *testing.T) {
	const original = "Amazing pizza at Joe's!"

	t.Run("json array inside prose", func(t *testing.T) {
		reply := `Here you go: [
			{"name": "Joe's", "category": "location", "confidence": 0.9, "context": "pizza at Joe's"},
			{"name": "Pizza", "category": "PRODUCT", "confidence": "0.8"},
			{"name": "Weak", "category": "CONCEPT", "confidence": 0.6},
			{"name": "Alien", "category": "SPACESHIP", "confidence": 0.9},
			{"name": "Broken", "category": "BRAND", "confidence": 1.5},
			{"category": "BRAND", "confidence": 0.9}
		] thanks`
		got := ParseEntityResponse(reply, domain.SourceCaption, original)
		want := []domain.Entity{
			{Name: "Joe's", Category: domain.CategoryLocation, Confidence: 0.9, Source: domain.SourceCaption, Context: "pizza at Joe's"},
			{Name: "Pizza", Category: domain.CategoryProduct, Confidence: 0.8, Source: domain.SourceCaption, Context: original},
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("ParseEntityResponse() = %+v, want %+v", got, want)
		}
	})

	t.Run("line fallback", func(t *testing.T) {
		reply := "Product: Margherita Pizza (0.85)\n# Brand: Ignored (0.9)\nLocation: Naples (0.6)\nPerson: Nobody (0.4)"
		got := ParseEntityResponse(reply, domain.SourceHashtag, original)
		if len(got) != 2 {
			t.Fatalf("got %d entities, want 2: %+v", len(got), got)
		}
		if got[0].Name != "Margherita Pizza" || got[0].Category != domain.CategoryProduct || got[0].Confidence != 0.85 {
			t.Errorf("got[0] = %+v", got[0])
		}
		if got[1].Name != "Naples" || got[1].Source != domain.SourceHashtag {
			t.Errorf("got[1] = %+v", got[1])
		}
	})

	t.Run("line fallback rejects confidence above one", func(t *testing.T) {
		reply := "Brand: Apple (95)\nProduct: iPhone (1.4)\nLocation: Cupertino (1.0)"
		got := ParseEntityResponse(reply, domain.SourceCaption, original)
		if len(got) != 1 || got[0].Name != "Cupertino" || got[0].Confidence != 1.0 {
			t.Fatalf("got %+v, want only Cupertino at 1.0", got)
		}
		for _, e := range MergeEntities(got) {
			if e.Confidence < 0 || e.Confidence > 1 {
				t.Errorf("merged %q confidence %v outside [0,1]", e.Name, e.Confidence)
			}
		}
	})

	t.Run("undecodable json falls back", func(t *testing.T) {
		reply := "[not json]\nBrand: Acme (0.9)"
		got := ParseEntityResponse(reply, domain.SourceCaption, original)
		if len(got) != 1 || got[0].Name != "Acme" {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("garbage yields nothing", func(t *testing.T) {
		if got := ParseEntityResponse("I cannot help with that.", domain.SourceCaption, original); len(got) != 0 {
			t.Errorf("got %+v, want none", got)
		}
	})

	t.Run("context defaults to truncated text", func(t *testing.T) {
		long := strings.Repeat("é", 150)
		got := ParseEntityResponse(`[{"name":"X","category":"EVENT","confidence":0.7}]`, domain.SourceCaption, long)
		if len(got) != 1 || got[0].Context != strings.Repeat("é", 100) {
			t.Errorf("got %+v", got)
		}
	})
}

func TestTextProcessor_ProcessText(t *testing.T) {
	ctx := context.Background()
	caption := "Amazing pizza at Joe's! #food #restaurant"

	t.Run("caption with hashtags", func(t *testing.T) {
		chat := &fakeChat{replies: map[string]string{
			"Amazing pizza at Joe's!": `[{"name":"Pizza","category":"PRODUCT","confidence":0.9},{"name":"Joe's","category":"LOCATION","confidence":0.85}]`,
			"#food":                   `[{"name":"pizza","category":"PRODUCT","confidence":0.7}]`,
			"#restaurant":             `[{"name":"Restaurant","category":"CONCEPT","confidence":0.75}]`,
		}}
		got := NewTextProcessor(chat).ProcessText(ctx, caption, nil)

		if len(chat.prompts) != 3 {
			t.Errorf("chat calls = %d, want 3", len(chat.prompts))
		}
		if !reflect.DeepEqual(got.Topics, []string{"food"}) {
			t.Errorf("Topics = %v, want [food]", got.Topics)
		}
		if !reflect.DeepEqual(got.Keywords, []string{"amazing", "pizza"}) {
			t.Errorf("Keywords = %v", got.Keywords)
		}

		var names []string
		for _, e := range got.Entities {
			names = append(names, e.Name)
		}
		if !reflect.DeepEqual(names, []string{"Pizza", "Joe's", "Restaurant"}) {
			t.Errorf("entities = %v", names)
		}
		if got.Entities[2].Source != domain.SourceHashtag {
			t.Errorf("Restaurant source = %s, want hashtag", got.Entities[2].Source)
		}
	})

	t.Run("extra hashtags are analyzed separately", func(t *testing.T) {
		chat := &fakeChat{}
		got := NewTextProcessor(chat).ProcessText(ctx, caption, []string{"#food", "travel"})
		// caption text, #food, #restaurant, then only #travel.
		if len(chat.prompts) != 4 {
			t.Errorf("chat calls = %d, want 4", len(chat.prompts))
		}
		if !reflect.DeepEqual(got.Topics, []string{"food", "travel"}) {
			t.Errorf("Topics = %v", got.Topics)
		}
	})

	t.Run("backend failure keeps heuristics", func(t *testing.T) {
		chat := &fakeChat{err: errors.New("unavailable")}
		got := NewTextProcessor(chat).ProcessText(ctx, caption, nil)
		if len(got.Entities) != 0 {
			t.Errorf("Entities = %v, want none", got.Entities)
		}
		if len(got.Keywords) == 0 || len(got.Topics) == 0 {
			t.Errorf("keywords/topics should survive a backend failure: %+v", got)
		}
	})

	t.Run("empty caption", func(t *testing.T) {
		chat := &fakeChat{}
		got := NewTextProcessor(chat).ProcessText(ctx, "   ", nil)
		if len(chat.prompts) != 0 {
			t.Errorf("chat calls = %d, want 0", len(chat.prompts))
		}
		if got.Entities == nil || got.Topics == nil || got.Keywords == nil {
			t.Errorf("expected non-nil empty slices: %+v", got)
		}
	})
}
