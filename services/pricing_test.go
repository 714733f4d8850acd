package services

import (
	"errors"
	"testing"

	"github.com/Kousuke-irie/bicycle-market/apperr"
	"github.com/Kousuke-irie/bicycle-market/config"
	"github.com/Kousuke-irie/bicycle-market/models"
	"github.com/shopspring/decimal"
)

func TestShippingCost(t *testing.T) {
	t.Parallel()

	rules := config.Default().Market
	km := func(s string) decimal.NullDecimal { return decimal.NewNullDecimal(decimal.RequireFromString(s)) }

	tests := []struct {
		name     string
		method   models.ShippingMethod
		distance decimal.NullDecimal
		want     string
		wantKind string
	}{
		{name: "self_pickup_no_distance", method: models.ShippingSelfPickup, want: "0"},
		{name: "self_pickup_ignores_distance", method: models.ShippingSelfPickup, distance: km("42"), want: "0"},
		{name: "assisted_1km", method: models.ShippingAssistedDelivery, distance: km("1"), want: "110"},
		{name: "assisted_25km", method: models.ShippingAssistedDelivery, distance: km("25"), want: "350"},
		{name: "assisted_fractional", method: models.ShippingAssistedDelivery, distance: km("12.5"), want: "225"},
		{name: "assisted_zero", method: models.ShippingAssistedDelivery, distance: km("0"), wantKind: apperr.KindValidation},
		{name: "assisted_negative", method: models.ShippingAssistedDelivery, distance: km("-3"), wantKind: apperr.KindValidation},
		{name: "assisted_below_cent", method: models.ShippingAssistedDelivery, distance: km("0.001"), wantKind: apperr.KindValidation},
		{name: "assisted_too_far", method: models.ShippingAssistedDelivery, distance: km("10000"), wantKind: apperr.KindValidation},
		{name: "assisted_two_decimals", method: models.ShippingAssistedDelivery, distance: km("0.01"), want: "100.1"},
		{name: "assisted_missing", method: models.ShippingAssistedDelivery, wantKind: apperr.KindValidation},
		{name: "unknown_method", method: "drone", distance: km("3"), wantKind: apperr.KindValidation},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ShippingCost(rules, tt.method, tt.distance)
			if tt.wantKind != "" {
				assertKind(t, err, tt.wantKind)
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestShippingCostFollowsConfiguredRates(t *testing.T) {
	t.Parallel()

	rules := config.Default().Market
	rules.ShippingBaseFee = 200
	rules.ShippingRatePerKm = 15

	got, err := ShippingCost(rules, models.ShippingAssistedDelivery, decimal.NewNullDecimal(decimal.NewFromInt(4)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(decimal.NewFromInt(260)) {
		t.Fatalf("expected 260, got %s", got)
	}
}

func TestCheckAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		amount  string
		wantErr bool
	}{
		{amount: "15000"},
		{amount: "0.01"},
		{amount: "1500.50"},
		{amount: "999999999.99"},
		{amount: "0", wantErr: true},
		{amount: "-5", wantErr: true},
		{amount: "0.001", wantErr: true},
		{amount: "10.005", wantErr: true},
		{amount: "1000000000", wantErr: true},
		{amount: "99999999999999", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.amount, func(t *testing.T) {
			t.Parallel()

			err := checkAmount("price", "價格", decimal.RequireFromString(tt.amount))
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			assertKind(t, err, apperr.KindValidation)
			var e *apperr.Error
			if !errors.As(err, &e) || e.Fields["price"] == "" {
				t.Fatalf("expected a price field error, got %v", err)
			}
		})
	}
}
