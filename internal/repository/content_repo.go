package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/timmy/reelsense/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultListLimit = 20

// ContentRepository stores analyzed content.
type ContentRepository struct {
	db *gorm.DB
}

// NewContentRepository creates a new ContentRepository.
// Parameters:
//   - db: GORM database handle used for queries.
//
// Returns:
//   - *ContentRepository: repository instance bound to db.
func NewContentRepository(db *gorm.DB) *ContentRepository {
	return &ContentRepository{db: db}
}

// Save creates or replaces the record for rec.ContentID. Re-analyzing a content item
// overwrites the previous result but keeps the original primary key.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - rec: record to persist.
//
// Returns:
//   - error: non-nil if the upsert fails.
func (r *ContentRepository) Save(ctx context.Context, rec *domain.ContentRecord) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "content_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"source_url", "caption", "transcript", "topics", "keywords", "entities",
			"confidence_scores", "analysis", "overall", "error", "media_key",
			"processed_at", "updated_at",
		}),
	}).Create(rec).Error
	if err != nil {
		return fmt.Errorf("failed to save content %s: %w", rec.ContentID, err)
	}
	return nil
}

// GetByContentID retrieves a record by content id.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - contentID: content item id.
//
// Returns:
//   - *domain.ContentRecord: record if found.
//   - error: wraps domain.ErrNotFound when no record exists.
func (r *ContentRepository) GetByContentID(ctx context.Context, contentID string) (*domain.ContentRecord, error) {
	var rec domain.ContentRecord
	if err := r.db.WithContext(ctx).First(&rec, "content_id = ?", contentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: content %s", domain.ErrNotFound, contentID)
		}
		return nil, err
	}
	return &rec, nil
}

// ExistsByContentID checks whether contentID has already been analyzed.
func (r *ContentRepository) ExistsByContentID(ctx context.Context, contentID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.ContentRecord{}).
		Where("content_id = ?", contentID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// SearchByCategory lists records whose topics include category, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - category: topic category such as "food" or "travel".
//   - limit: maximum number of records; <= 0 uses 20.
//   - offset: number of records to skip.
//
// Returns:
//   - []domain.ContentRecord: matching records.
//   - error: non-nil if the query fails.
func (r *ContentRepository) SearchByCategory(ctx context.Context, category string, limit, offset int) ([]domain.ContentRecord, error) {
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" {
		return []domain.ContentRecord{}, nil
	}

	var records []domain.ContentRecord
	if err := r.db.WithContext(ctx).
		Where("CAST(topics AS TEXT) LIKE ?", jsonElementPattern(category)).
		Order("processed_at DESC").
		Limit(limitOrDefault(limit)).
		Offset(offset).
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to search by category: %w", err)
	}
	return records, nil
}

// SearchByKeywords lists records whose keywords include any of keywords, newest first.
func (r *ContentRepository) SearchByKeywords(ctx context.Context, keywords []string, limit, offset int) ([]domain.ContentRecord, error) {
	var conds []string
	var args []interface{}
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		conds = append(conds, "CAST(keywords AS TEXT) LIKE ?")
		args = append(args, jsonElementPattern(kw))
	}
	if len(conds) == 0 {
		return []domain.ContentRecord{}, nil
	}

	var records []domain.ContentRecord
	if err := r.db.WithContext(ctx).
		Where(strings.Join(conds, " OR "), args...).
		Order("processed_at DESC").
		Limit(limitOrDefault(limit)).
		Offset(offset).
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to search by keywords: %w", err)
	}
	return records, nil
}

// ListRecent lists the most recently processed records.
func (r *ContentRepository) ListRecent(ctx context.Context, limit, offset int) ([]domain.ContentRecord, error) {
	var records []domain.ContentRecord
	if err := r.db.WithContext(ctx).
		Order("processed_at DESC").
		Limit(limitOrDefault(limit)).
		Offset(offset).
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list recent content: %w", err)
	}
	return records, nil
}

// Count returns the number of stored records.
func (r *ContentRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.ContentRecord{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Delete removes the record for contentID.
func (r *ContentRepository) Delete(ctx context.Context, contentID string) error {
	return r.db.WithContext(ctx).Delete(&domain.ContentRecord{}, "content_id = ?", contentID).Error
}

// jsonElementPattern matches a quoted string element inside a JSON array column.
func jsonElementPattern(value string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(value)
	return `%"` + escaped + `"%`
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}
