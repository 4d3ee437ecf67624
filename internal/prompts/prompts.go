package prompts

import (
	"fmt"
	"strings"
)

// ============================================================================
// Vision Prompts
// ============================================================================

// VisionFramePrompt asks a vision model for a line-oriented description of one video frame.
// The response is parsed by keyword sniffing, so the model is asked to name objects and
// text on their own labelled lines.
const VisionFramePrompt = `Analyze this image frame and extract the following information:
1. Objects and items visible in the frame
2. Any text overlays, captions, or readable text
3. Scene description and context
4. People, faces, or human activities
5. Brands, logos, or commercial elements
6. Location indicators or environmental context

Provide the response in a structured format with confidence levels for each detection.`

// ============================================================================
// Entity Extraction Prompts
// ============================================================================

// EntitySystemPrompt sets the role for entity extraction.
const EntitySystemPrompt = "You are an expert at extracting structured information from social media content. Respond only with valid JSON."

// EntityUserPrompt builds the extraction request for a piece of text.
// Parameters:
//   - sourceKind: what the text is ("caption", "hashtag").
//   - text: the text to analyze.
//   - categories: allowed entity category names.
//   - threshold: minimum confidence the model should report.
//   - maxEntities: upper bound on returned entities.
//
// Returns:
//   - string: user prompt.
func EntityUserPrompt(sourceKind, text string, categories []string, threshold float64, maxEntities int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the following social media %s text and extract entities with their categories and confidence scores.\n\n", sourceKind)
	fmt.Fprintf(&b, "Text: %q\n\n", text)
	b.WriteString("Extract entities in the following categories:\n")
	for _, c := range categories {
		fmt.Fprintf(&b, "- %s: %s\n", c, categoryHints[c])
	}
	b.WriteString("\nFor each entity, provide:\n")
	b.WriteString("1. Entity name (normalized form)\n")
	b.WriteString("2. Category (from the list above)\n")
	b.WriteString("3. Confidence score (0.0-1.0)\n")
	b.WriteString("4. Context (the surrounding text where it was found)\n\n")
	b.WriteString("Format your response as a JSON array of objects with fields: name, category, confidence, context.\n")
	fmt.Fprintf(&b, "Only include entities you are confident about (confidence > %.1f).\n", threshold)
	fmt.Fprintf(&b, "Limit to maximum %d entities per text.", maxEntities)
	return b.String()
}

var categoryHints = map[string]string{
	"PRODUCT":  "Specific products, brands, items mentioned",
	"LOCATION": "Places, cities, countries, venues, restaurants",
	"PERSON":   "People mentioned (excluding generic terms)",
	"CONCEPT":  "Abstract concepts, topics, themes",
	"BRAND":    "Company names, brand names",
	"EVENT":    "Events, occasions, activities",
}
