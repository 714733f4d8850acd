package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Kousuke-irie/bicycle-market/apperr"
	"github.com/Kousuke-irie/bicycle-market/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const msgDuplicatePendingOffer = "您已經有一個待回應的出價"

type OfferInput struct {
	SenderID  uint64
	BicycleID uint64
	Amount    decimal.Decimal
	Content   string
}

// OfferResult 出価への回応結果。Order は承諾時のみ
type OfferResult struct {
	Offer    *models.Message `json:"offer"`
	Response *models.Message `json:"response_message"`
	Order    *models.Order   `json:"order,omitempty"`
}

func pendingOfferKey(senderID, bicycleID uint64) *string {
	key := fmt.Sprintf("%d:%d", senderID, bicycleID)
	return &key
}

// CreateOffer 買い手が価格を提示する。同じ自転車への待回應出価は 1 件まで
func (m *Market) CreateOffer(ctx context.Context, in OfferInput) (*models.Message, error) {
	if err := checkAmount("offer_amount", "出價金額", in.Amount); err != nil {
		return nil, err
	}

	var offer *models.Message
	err := m.tx(ctx, func(tx *gorm.DB) error {
		// 1. 自転車をロックして状態確認
		var bike models.Bicycle
		if err := forUpdate(tx).First(&bike, in.BicycleID).Error; err != nil {
			return apperr.FromDB(err, msgBicycleNotFound)
		}
		if bike.SellerID == in.SenderID {
			return apperr.Validation("不能對自己的自行車出價")
		}
		if bike.Status != models.BicycleAvailable {
			return apperr.Conflict(msgBicycleUnavailable)
		}

		// 2. 待回應の出価が既にないか
		var count int64
		if err := tx.Model(&models.Message{}).
			Where("sender_id = ? AND bicycle_id = ? AND is_offer = ? AND offer_status = ?",
				in.SenderID, in.BicycleID, true, models.OfferPending).
			Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check pending offers: %w", err)
		}
		if count > 0 {
			return apperr.Conflict(msgDuplicatePendingOffer)
		}

		content := strings.TrimSpace(in.Content)
		if content == "" {
			content = fmt.Sprintf("出價 NT$%s", formatAmount(in.Amount))
		}
		offer = &models.Message{
			SenderID:        in.SenderID,
			RecipientID:     bike.SellerID,
			BicycleID:       bike.ID,
			Content:         content,
			IsOffer:         true,
			OfferAmount:     decimal.NewNullDecimal(in.Amount),
			OfferStatus:     models.OfferPending,
			PendingOfferKey: pendingOfferKey(in.SenderID, bike.ID),
			CreatedAt:       m.now(),
		}
		// 3. ユニークインデックスでも二重出価を止める
		if err := tx.Create(offer).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperr.Conflict(msgDuplicatePendingOffer)
			}
			return fmt.Errorf("failed to create offer: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return offer, nil
}

// lockOfferForResponse 自転車→出価の順にロックし、賣家本人かつ待回應であることを確認する
func (m *Market) lockOfferForResponse(tx *gorm.DB, offerID, actorID uint64) (*models.Message, *models.Bicycle, error) {
	var probe models.Message
	if err := tx.Where("is_offer = ?", true).First(&probe, offerID).Error; err != nil {
		return nil, nil, apperr.FromDB(err, "找不到出價")
	}

	var bike models.Bicycle
	if err := forUpdate(tx).First(&bike, probe.BicycleID).Error; err != nil {
		return nil, nil, apperr.FromDB(err, msgBicycleNotFound)
	}
	var offer models.Message
	if err := forUpdate(tx).First(&offer, offerID).Error; err != nil {
		return nil, nil, apperr.FromDB(err, "找不到出價")
	}

	if bike.SellerID != actorID {
		return nil, nil, apperr.Unauthorized("只有賣家可以回應出價")
	}
	if offer.OfferStatus != models.OfferPending {
		return nil, nil, apperr.Conflict("此出價已被處理")
	}
	return &offer, &bike, nil
}

// respondTx 出価の状態を pending から一度だけ遷移させる
func (m *Market) respondTx(tx *gorm.DB, offer *models.Message, status models.OfferStatus) error {
	now := m.now()
	res := tx.Model(&models.Message{}).
		Where("id = ? AND offer_status = ?", offer.ID, models.OfferPending).
		Updates(map[string]interface{}{
			"offer_status":      status,
			"pending_offer_key": nil,
			"responded_at":      now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update offer: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict("此出價已被處理")
	}
	offer.OfferStatus = status
	offer.PendingOfferKey = nil
	offer.RespondedAt = timePtr(now)
	return nil
}

// AcceptOffer 出価を承諾し、同じトランザクションで自転車の確保と注文作成まで行う
func (m *Market) AcceptOffer(ctx context.Context, offerID, actorID uint64) (*OfferResult, error) {
	var result OfferResult
	err := m.tx(ctx, func(tx *gorm.DB) error {
		offer, bike, err := m.lockOfferForResponse(tx, offerID, actorID)
		if err != nil {
			return err
		}

		// 1. まだ売れていないか、賣家の入金口座が揃っているか
		if bike.Status != models.BicycleAvailable {
			return apperr.Conflict(msgBicycleUnavailable)
		}
		var seller models.User
		if err := tx.First(&seller, bike.SellerID).Error; err != nil {
			return apperr.FromDB(err, "找不到賣家")
		}
		if !seller.BankAccountComplete() {
			return apperr.ValidationField("bank_account", "請先完成銀行帳戶設定再接受出價")
		}

		// 2. 出価を accepted に
		if err := m.respondTx(tx, offer, models.OfferAccepted); err != nil {
			return err
		}

		// 3. 出価の条件で注文を作成 (自転車の確保・他の出価の失効もここ)
		order, err := m.createOrderTx(tx, orderTerms{
			buyerID:  offer.SenderID,
			bicycle:  bike,
			price:    offer.OfferAmount.Decimal,
			offerID:  &offer.ID,
			shipping: models.ShippingSelfPickup,
			payment:  models.PaymentBankTransfer,
		})
		if err != nil {
			return err
		}

		// 4. 返信メッセージ
		response := &models.Message{
			SenderID:    bike.SellerID,
			RecipientID: offer.SenderID,
			BicycleID:   bike.ID,
			Content: fmt.Sprintf("賣家已接受您的出價 NT$%s，訂單編號 %s，請於 %s 前完成付款。",
				formatAmount(offer.OfferAmount.Decimal), order.OrderNumber, order.Payment.Deadline.Format("2006/01/02 15:04")),
			OfferStatus: models.OfferNone,
			CreatedAt:   m.now(),
		}
		if err := tx.Create(response).Error; err != nil {
			return fmt.Errorf("failed to create response message: %w", err)
		}

		result = OfferResult{Offer: offer, Response: response, Order: order}
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.log.Info("offer %d accepted, order %s created", offerID, result.Order.OrderNumber)
	return &result, nil
}

// RejectOffer 出価を婉拒する
func (m *Market) RejectOffer(ctx context.Context, offerID, actorID uint64) (*OfferResult, error) {
	var result OfferResult
	err := m.tx(ctx, func(tx *gorm.DB) error {
		offer, bike, err := m.lockOfferForResponse(tx, offerID, actorID)
		if err != nil {
			return err
		}
		if err := m.respondTx(tx, offer, models.OfferRejected); err != nil {
			return err
		}

		response := &models.Message{
			SenderID:    bike.SellerID,
			RecipientID: offer.SenderID,
			BicycleID:   bike.ID,
			Content:     fmt.Sprintf("賣家婉拒了您的出價 NT$%s。", formatAmount(offer.OfferAmount.Decimal)),
			OfferStatus: models.OfferNone,
			CreatedAt:   m.now(),
		}
		if err := tx.Create(response).Error; err != nil {
			return fmt.Errorf("failed to create response message: %w", err)
		}

		result = OfferResult{Offer: offer, Response: response}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
