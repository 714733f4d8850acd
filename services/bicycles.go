package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/Kousuke-irie/bicycle-market/apperr"
	"github.com/Kousuke-irie/bicycle-market/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BicycleInput 出品内容。Submit が true なら審査待ちとして登録する
type BicycleInput struct {
	Title          string
	Description    string
	Price          decimal.Decimal
	ImageURL       string
	ConditionID    *uint
	BrandID        *uint
	BicycleModelID *uint
	TransmissionID *uint
	FrameSize      string
	Year           int
	Submit         bool
}

func (in BicycleInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return apperr.ValidationField("title", "請填寫標題")
	}
	return checkAmount("price", "價格", in.Price)
}

// validateForReview 審査に出すには画像と状態が必要
func validateForReview(b *models.Bicycle) error {
	if b.ImageURL == "" || b.ImageURL == "[]" {
		return apperr.ValidationField("image_url", "送審前請至少上傳一張照片")
	}
	if b.ConditionID == nil {
		return apperr.ValidationField("condition_id", "送審前請選擇車況")
	}
	return nil
}

func (m *Market) CreateBicycle(ctx context.Context, sellerID uint64, in BicycleInput) (*models.Bicycle, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	bike := &models.Bicycle{
		SellerID:       sellerID,
		Title:          strings.TrimSpace(in.Title),
		Description:    in.Description,
		Price:          in.Price,
		ImageURL:       in.ImageURL,
		ConditionID:    in.ConditionID,
		BrandID:        in.BrandID,
		BicycleModelID: in.BicycleModelID,
		TransmissionID: in.TransmissionID,
		FrameSize:      in.FrameSize,
		Year:           in.Year,
		Status:         models.BicycleDraft,
	}
	if in.Submit {
		if err := validateForReview(bike); err != nil {
			return nil, err
		}
		bike.Status = models.BicyclePending
	}
	if err := m.db.WithContext(ctx).Create(bike).Error; err != nil {
		return nil, fmt.Errorf("failed to save bicycle: %w", err)
	}
	return bike, nil
}

// UpdateBicycle 売れた・取り下げた出品は編集できない
func (m *Market) UpdateBicycle(ctx context.Context, bicycleID, actorID uint64, in BicycleInput) (*models.Bicycle, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	err := m.tx(ctx, func(tx *gorm.DB) error {
		bike, err := lockOwnBicycle(tx, bicycleID, actorID)
		if err != nil {
			return err
		}
		if bike.Status == models.BicycleSold || bike.Status == models.BicycleArchived {
			return apperr.Conflict("已售出或已下架的自行車無法編輯")
		}
		return tx.Model(&models.Bicycle{}).Where("id = ?", bike.ID).Updates(map[string]interface{}{
			"title":            strings.TrimSpace(in.Title),
			"description":      in.Description,
			"price":            in.Price,
			"image_url":        in.ImageURL,
			"condition_id":     in.ConditionID,
			"brand_id":         in.BrandID,
			"bicycle_model_id": in.BicycleModelID,
			"transmission_id":  in.TransmissionID,
			"frame_size":       in.FrameSize,
			"year":             in.Year,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return m.GetBicycle(ctx, bicycleID)
}

// SubmitBicycle draft → pending (管理者の審査待ち)
func (m *Market) SubmitBicycle(ctx context.Context, bicycleID, actorID uint64) (*models.Bicycle, error) {
	return m.transitionBicycle(ctx, bicycleID, func(tx *gorm.DB, bike *models.Bicycle) (models.BicycleStatus, error) {
		if bike.SellerID != actorID {
			return "", apperr.Unauthorized("只能操作自己的出品")
		}
		if bike.Status != models.BicycleDraft {
			return "", apperr.Conflict("只有草稿可以送審")
		}
		if err := validateForReview(bike); err != nil {
			return "", err
		}
		return models.BicyclePending, nil
	})
}

// ArchiveBicycle 出品を取り下げる。待回應の出価は失効させる
func (m *Market) ArchiveBicycle(ctx context.Context, bicycleID, actorID uint64) (*models.Bicycle, error) {
	return m.transitionBicycle(ctx, bicycleID, func(tx *gorm.DB, bike *models.Bicycle) (models.BicycleStatus, error) {
		if bike.SellerID != actorID {
			return "", apperr.Unauthorized("只能操作自己的出品")
		}
		switch bike.Status {
		case models.BicycleSold:
			return "", apperr.Conflict("已售出的自行車無法下架")
		case models.BicycleArchived:
			return "", apperr.Conflict("此自行車已下架")
		}
		if err := expirePendingOffers(tx, bike.ID, m.now()); err != nil {
			return "", err
		}
		return models.BicycleArchived, nil
	})
}

// ApproveBicycle 管理者が審査待ちの出品を公開する
func (m *Market) ApproveBicycle(ctx context.Context, bicycleID, adminID uint64) (*models.Bicycle, error) {
	return m.transitionBicycle(ctx, bicycleID, func(tx *gorm.DB, bike *models.Bicycle) (models.BicycleStatus, error) {
		if _, err := m.requireAdmin(tx, adminID); err != nil {
			return "", err
		}
		if bike.Status != models.BicyclePending {
			return "", apperr.Conflict("只有待審核的自行車可以核准")
		}
		return models.BicycleAvailable, nil
	})
}

// RejectBicycle 審査で差し戻す (draft に戻る)
func (m *Market) RejectBicycle(ctx context.Context, bicycleID, adminID uint64, reason string) (*models.Bicycle, error) {
	bike, err := m.transitionBicycle(ctx, bicycleID, func(tx *gorm.DB, bike *models.Bicycle) (models.BicycleStatus, error) {
		if _, err := m.requireAdmin(tx, adminID); err != nil {
			return "", err
		}
		if bike.Status != models.BicyclePending {
			return "", apperr.Conflict("只有待審核的自行車可以退回")
		}
		return models.BicycleDraft, nil
	})
	if err != nil {
		return nil, err
	}
	m.log.Info("bicycle %d rejected by admin %d: %s", bicycleID, adminID, reason)
	return bike, nil
}

func (m *Market) transitionBicycle(ctx context.Context, bicycleID uint64, decide func(tx *gorm.DB, bike *models.Bicycle) (models.BicycleStatus, error)) (*models.Bicycle, error) {
	err := m.tx(ctx, func(tx *gorm.DB) error {
		var bike models.Bicycle
		if err := forUpdate(tx).First(&bike, bicycleID).Error; err != nil {
			return apperr.FromDB(err, msgBicycleNotFound)
		}
		next, err := decide(tx, &bike)
		if err != nil {
			return err
		}
		return tx.Model(&models.Bicycle{}).Where("id = ?", bike.ID).Update("status", next).Error
	})
	if err != nil {
		return nil, err
	}
	return m.GetBicycle(ctx, bicycleID)
}

// publicUserColumns 出品者として見せてよい項目だけを読む
func publicUserColumns(db *gorm.DB) *gorm.DB {
	return db.Select("id", "username", "icon_url", "bio", "created_at")
}

func lockOwnBicycle(tx *gorm.DB, bicycleID, actorID uint64) (*models.Bicycle, error) {
	var bike models.Bicycle
	if err := forUpdate(tx).First(&bike, bicycleID).Error; err != nil {
		return nil, apperr.FromDB(err, msgBicycleNotFound)
	}
	if bike.SellerID != actorID {
		return nil, apperr.Unauthorized("只能操作自己的出品")
	}
	return &bike, nil
}

func (m *Market) GetBicycle(ctx context.Context, bicycleID uint64) (*models.Bicycle, error) {
	var bike models.Bicycle
	err := m.db.WithContext(ctx).
		Preload("Seller", publicUserColumns).Preload("Brand").Preload("BicycleModel").
		Preload("Transmission").Preload("Condition").
		First(&bike, bicycleID).Error
	if err != nil {
		return nil, apperr.FromDB(err, msgBicycleNotFound)
	}
	return &bike, nil
}

// ListAvailable 公開中の出品 (新しい順)
func (m *Market) ListAvailable(ctx context.Context, limit, offset int) ([]models.Bicycle, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var bikes []models.Bicycle
	err := m.db.WithContext(ctx).
		Where("status = ?", models.BicycleAvailable).
		Preload("Brand").Preload("Condition").
		Order("id DESC").Limit(limit).Offset(offset).
		Find(&bikes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list bicycles: %w", err)
	}
	if bikes == nil {
		bikes = []models.Bicycle{}
	}
	return bikes, nil
}

func (m *Market) ListBySeller(ctx context.Context, sellerID uint64) ([]models.Bicycle, error) {
	var bikes []models.Bicycle
	if err := m.db.WithContext(ctx).Where("seller_id = ?", sellerID).Order("id DESC").Find(&bikes).Error; err != nil {
		return nil, fmt.Errorf("failed to list bicycles: %w", err)
	}
	if bikes == nil {
		bikes = []models.Bicycle{}
	}
	return bikes, nil
}

// ListPendingReview 管理者の審査待ち一覧
func (m *Market) ListPendingReview(ctx context.Context) ([]models.Bicycle, error) {
	var bikes []models.Bicycle
	if err := m.db.WithContext(ctx).Where("status = ?", models.BicyclePending).Preload("Seller").Order("id").Find(&bikes).Error; err != nil {
		return nil, fmt.Errorf("failed to list bicycles: %w", err)
	}
	if bikes == nil {
		bikes = []models.Bicycle{}
	}
	return bikes, nil
}
