package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// ContentRecord is the persisted form of a ContentAnalysis.
// List-valued fields are stored as JSON columns so they can be searched and decoded independently.
type ContentRecord struct {
	ID               string         `gorm:"type:text;primaryKey" json:"id"`
	ContentID        string         `gorm:"type:text;not null;uniqueIndex" json:"content_id"`
	SourceURL        string         `gorm:"type:text" json:"source_url,omitempty"`
	Caption          string         `gorm:"type:text" json:"caption,omitempty"`
	Transcript       string         `gorm:"type:text" json:"transcript,omitempty"`
	Topics           datatypes.JSON `json:"topics"`
	Keywords         datatypes.JSON `json:"keywords"`
	Entities         datatypes.JSON `json:"entities"`
	ConfidenceScores datatypes.JSON `json:"confidence_scores"`
	Analysis         datatypes.JSON `json:"-"`
	Overall          float64        `gorm:"index" json:"overall"`
	Error            string         `gorm:"type:text" json:"error,omitempty"`
	MediaKey         string         `gorm:"type:text" json:"media_key,omitempty"`
	ProcessedAt      time.Time      `gorm:"index" json:"processed_at"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// TableName returns the database table name for ContentRecord.
func (ContentRecord) TableName() string {
	return "content_analyses"
}

// NewContentRecord flattens an analysis into a persistable record.
// Parameters:
//   - id: record primary key.
//   - post: the saved post the analysis belongs to (may be nil).
//   - analysis: merged analysis result.
//
// Returns:
//   - *ContentRecord: record ready to be saved.
//   - error: non-nil if any JSON column fails to encode.
func NewContentRecord(id string, post *SavedPost, analysis *ContentAnalysis) (*ContentRecord, error) {
	rec := &ContentRecord{
		ID:          id,
		ContentID:   analysis.ContentID,
		Overall:     analysis.ConfidenceScores.Overall(),
		Error:       analysis.Error,
		ProcessedAt: analysis.ProcessedAt,
	}
	if post != nil {
		rec.SourceURL = post.URL
		rec.Caption = post.Caption
	}
	if analysis.Audio != nil {
		rec.Transcript = analysis.Audio.Transcript
	}

	var topics, keywords []string
	if analysis.Text != nil {
		topics = analysis.Text.Topics
		keywords = analysis.Text.Keywords
	}

	var err error
	if rec.Topics, err = marshalJSON(nonNilStrings(topics)); err != nil {
		return nil, fmt.Errorf("encode topics: %w", err)
	}
	if rec.Keywords, err = marshalJSON(nonNilStrings(keywords)); err != nil {
		return nil, fmt.Errorf("encode keywords: %w", err)
	}
	entities := analysis.Entities
	if entities == nil {
		entities = []Entity{}
	}
	if rec.Entities, err = marshalJSON(entities); err != nil {
		return nil, fmt.Errorf("encode entities: %w", err)
	}
	if rec.ConfidenceScores, err = marshalJSON(analysis.ConfidenceScores); err != nil {
		return nil, fmt.Errorf("encode confidence scores: %w", err)
	}
	if rec.Analysis, err = marshalJSON(analysis); err != nil {
		return nil, fmt.Errorf("encode analysis: %w", err)
	}
	return rec, nil
}

// ToAnalysis decodes the full analysis stored with the record.
func (r *ContentRecord) ToAnalysis() (*ContentAnalysis, error) {
	var analysis ContentAnalysis
	if len(r.Analysis) == 0 {
		return nil, fmt.Errorf("record %s has no stored analysis", r.ContentID)
	}
	if err := json.Unmarshal(r.Analysis, &analysis); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}
	return &analysis, nil
}

func marshalJSON(v interface{}) (datatypes.JSON, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
