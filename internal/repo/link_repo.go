package repo

import (
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/assistant-core/internal/domain"
)

// GetLinkCode fetches a link code by its code.
func GetLinkCode(db *gorm.DB, code string) (*domain.LinkCode, error) {
	var lc domain.LinkCode
	if err := db.Where("code = ?", code).First(&lc).Error; err != nil {
		return nil, err
	}
	return &lc, nil
}

// LatestPendingLinkCode returns the newest pending, unexpired code issued by
// (provider, providerUserID).
func LatestPendingLinkCode(db *gorm.DB, provider, providerUserID string, now time.Time) (*domain.LinkCode, error) {
	var lc domain.LinkCode
	err := db.
		Where("provider = ? AND provider_user_id = ? AND status = ? AND expires_at > ?",
			provider, providerUserID, domain.LinkPending, now).
		Order("created_at DESC, code DESC").
		First(&lc).Error
	if err != nil {
		return nil, err
	}
	return &lc, nil
}

// RevokePendingLinkCodes revokes every pending code issued by
// (provider, providerUserID) and returns how many were revoked.
func RevokePendingLinkCodes(db *gorm.DB, provider, providerUserID string) (int64, error) {
	res := db.Model(&domain.LinkCode{}).
		Where("provider = ? AND provider_user_id = ? AND status = ?", provider, providerUserID, domain.LinkPending).
		Updates(map[string]any{"status": domain.LinkRevoked, "updated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}
