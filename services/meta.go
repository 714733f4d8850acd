package services

import (
	"context"
	"fmt"

	"github.com/Kousuke-irie/bicycle-market/models"
)

// ListBrands 車種つきのブランド一覧
func (m *Market) ListBrands(ctx context.Context) ([]models.Brand, error) {
	var brands []models.Brand
	if err := m.db.WithContext(ctx).Preload("Models").Order("id").Find(&brands).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch brands: %w", err)
	}
	return brands, nil
}

func (m *Market) ListConditions(ctx context.Context) ([]models.Condition, error) {
	var conditions []models.Condition
	if err := m.db.WithContext(ctx).Order("`rank`").Find(&conditions).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch conditions: %w", err)
	}
	return conditions, nil
}

func (m *Market) ListTransmissions(ctx context.Context) ([]models.Transmission, error) {
	var transmissions []models.Transmission
	if err := m.db.WithContext(ctx).Order("speeds, id").Find(&transmissions).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch transmissions: %w", err)
	}
	return transmissions, nil
}
