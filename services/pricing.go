package services

import (
	"fmt"

	"github.com/Kousuke-irie/bicycle-market/apperr"
	"github.com/Kousuke-irie/bicycle-market/config"
	"github.com/Kousuke-irie/bicycle-market/models"
	"github.com/shopspring/decimal"
)

// ShippingCost 配送料。自取は 0、代送は基本料 + 距離(km) × 単価
func ShippingCost(rules config.MarketConfig, method models.ShippingMethod, distance decimal.NullDecimal) (decimal.Decimal, error) {
	switch method {
	case models.ShippingSelfPickup:
		return decimal.Zero, nil
	case models.ShippingAssistedDelivery:
		if !distance.Valid || !distance.Decimal.IsPositive() {
			return decimal.Zero, apperr.ValidationField("shipping_distance", "選擇代送時必須填寫大於 0 的運送距離")
		}
		if err := checkScale("shipping_distance", "運送距離", distance.Decimal, maxDistance); err != nil {
			return decimal.Zero, err
		}
		base := decimal.NewFromInt(rules.ShippingBaseFee)
		rate := decimal.NewFromInt(rules.ShippingRatePerKm)
		return base.Add(distance.Decimal.Mul(rate)).Round(2), nil
	default:
		return decimal.Zero, apperr.ValidationField("shipping_method", "不支援的運送方式")
	}
}

// 金額・距離の列は小数 2 桁。上限は合計金額が decimal(12,2) に収まる範囲
var (
	maxAmount   = decimal.NewFromInt(1_000_000_000)
	maxDistance = decimal.NewFromInt(10_000)
)

// checkAmount 価格・出価の共通チェック。0 以下、小数 3 桁以上、上限超えは ValidationError
func checkAmount(field, label string, d decimal.Decimal) error {
	if !d.IsPositive() {
		return apperr.ValidationField(field, label+"必須大於 0")
	}
	return checkScale(field, label, d, maxAmount)
}

func checkScale(field, label string, d, limit decimal.Decimal) error {
	if !d.Equal(d.Truncate(2)) {
		return apperr.ValidationField(field, label+"最多只能有兩位小數")
	}
	if !d.LessThan(limit) {
		return apperr.ValidationField(field, fmt.Sprintf("%s必須小於 %s", label, limit.String()))
	}
	return nil
}

// normalizeDistance 自取のときは距離を持たせない
func normalizeDistance(method models.ShippingMethod, distance decimal.NullDecimal) decimal.NullDecimal {
	if method == models.ShippingSelfPickup {
		return decimal.NullDecimal{}
	}
	return distance
}

func validPaymentMethod(method models.PaymentMethod) bool {
	return method == models.PaymentBankTransfer
}
