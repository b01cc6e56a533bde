package repo

import (
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/assistant-core/internal/domain"
)

// GetRun fetches the run record for (subjectID, runKey).
func GetRun(db *gorm.DB, subjectID, runKey string) (*domain.RunRecord, error) {
	var r domain.RunRecord
	if err := db.Where("subject_id = ? AND run_key = ?", subjectID, runKey).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRunsBySubject returns the most recent runs of a subject, newest first.
// limit <= 0 means no limit.
func ListRunsBySubject(db *gorm.DB, subjectID string, limit int) ([]domain.RunRecord, error) {
	var out []domain.RunRecord
	q := db.Where("subject_id = ?", subjectID).Order("started_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// IncrementRunAttempts bumps the attempts counter of (subjectID, runKey) in
// a single statement so concurrent increments are never lost. updated_at is
// stamped with now so list ETags change with the counter.
func IncrementRunAttempts(db *gorm.DB, subjectID, runKey string, now time.Time) error {
	return db.Model(&domain.RunRecord{}).
		Where("subject_id = ? AND run_key = ?", subjectID, runKey).
		UpdateColumns(map[string]any{
			"attempts":   gorm.Expr("attempts + ?", 1),
			"updated_at": now,
		}).Error
}
