package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/Kousuke-irie/bicycle-market/apperr"
	"github.com/Kousuke-irie/bicycle-market/models"
)

type MessageInput struct {
	SenderID    uint64
	BicycleID   uint64
	RecipientID uint64 // 0 のときは賣家宛て
	Content     string
}

// Thread 自転車 × 相手ごとの会話の最新 1 件
type Thread struct {
	BicycleID   uint64         `json:"bicycle_id"`
	PartnerID   uint64         `json:"partner_id"`
	LastMessage models.Message `json:"last_message"`
}

// SendMessage 出品についてのメッセージ。どちらか一方は必ず賣家
func (m *Market) SendMessage(ctx context.Context, in MessageInput) (*models.Message, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, apperr.ValidationField("content", "訊息內容不可為空")
	}

	db := m.db.WithContext(ctx)
	var bike models.Bicycle
	if err := db.First(&bike, in.BicycleID).Error; err != nil {
		return nil, apperr.FromDB(err, msgBicycleNotFound)
	}

	recipientID := in.RecipientID
	if recipientID == 0 {
		recipientID = bike.SellerID
	}
	if recipientID == in.SenderID {
		return nil, apperr.Validation("不能傳訊息給自己")
	}
	if in.SenderID != bike.SellerID && recipientID != bike.SellerID {
		return nil, apperr.Unauthorized("只能與賣家討論此自行車")
	}

	var recipient models.User
	if err := db.First(&recipient, recipientID).Error; err != nil {
		return nil, apperr.FromDB(err, "找不到收件人")
	}

	msg := &models.Message{
		SenderID:    in.SenderID,
		RecipientID: recipientID,
		BicycleID:   bike.ID,
		Content:     content,
		OfferStatus: models.OfferNone,
		CreatedAt:   m.now(),
	}
	if err := db.Create(msg).Error; err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	return msg, nil
}

// ListConversation 2 人の間のある自転車についてのやり取り (古い順)
func (m *Market) ListConversation(ctx context.Context, userID, bicycleID, partnerID uint64) ([]models.Message, error) {
	var messages []models.Message
	err := m.db.WithContext(ctx).
		Where("bicycle_id = ?", bicycleID).
		Where("(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)",
			userID, partnerID, partnerID, userID).
		Order("id").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conversation: %w", err)
	}
	if messages == nil {
		messages = []models.Message{}
	}
	return messages, nil
}

// ListThreads 自分が関わる会話の一覧 (新しい順)
func (m *Market) ListThreads(ctx context.Context, userID uint64) ([]Thread, error) {
	var messages []models.Message
	err := m.db.WithContext(ctx).
		Where("sender_id = ? OR recipient_id = ?", userID, userID).
		Order("id DESC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}

	type threadKey struct{ bicycleID, partnerID uint64 }
	seen := make(map[threadKey]bool)
	threads := make([]Thread, 0)
	for _, msg := range messages {
		partner := msg.RecipientID
		if msg.RecipientID == userID {
			partner = msg.SenderID
		}
		key := threadKey{msg.BicycleID, partner}
		if seen[key] {
			continue
		}
		seen[key] = true
		threads = append(threads, Thread{BicycleID: msg.BicycleID, PartnerID: partner, LastMessage: msg})
	}
	return threads, nil
}
