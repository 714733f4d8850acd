package services

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Kousuke-irie/bicycle-market/apperr"
	"github.com/Kousuke-irie/bicycle-market/models"
	"github.com/Kousuke-irie/bicycle-market/storage"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	// ExpiredReason 期限切れで失敗にしたときの理由
	ExpiredReason = "Payment deadline expired"
	// CancelledReason 当事者が取り消したときの理由
	CancelledReason = "Order cancelled"
)

// ProofFile アップロードされた振込明細。サイズと形式の検証はハンドラー側で済んでいる
type ProofFile struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type ReviewInput struct {
	OrderID    uint64
	ReviewerID uint64
	Decision   models.ProofStatus // approved / rejected
	Notes      string
}

// UploadProof 振込明細を保存し、支払いを awaiting_confirmation にする
func (m *Market) UploadProof(ctx context.Context, orderID, actorID uint64, file ProofFile) (*models.Order, error) {
	// 1. 保存前に明らかに受け付けられないものを弾く
	order, err := loadOrder(m.db.WithContext(ctx), orderID)
	if err != nil {
		return nil, err
	}
	if err := m.checkUploadable(order, order.Payment, actorID); err != nil {
		return nil, err
	}

	// 2. ファイルを保存 (ロックは握らない)
	key := storage.ProofKey(order.OrderNumber, file.FileName)
	obj, err := m.store.Put(ctx, key, file.Body, storage.PutOptions{
		ContentType: file.ContentType,
		Metadata:    map[string]string{"order_number": order.OrderNumber},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store payment proof: %w", err)
	}
	size := obj.Size
	if size == 0 {
		size = file.Size
	}

	// 3. ロックを取って再確認してから記録する (期限切れ処理との競合対策)
	err = m.tx(ctx, func(tx *gorm.DB) error {
		order, payment, err := lockOrderAndPayment(tx, orderID)
		if err != nil {
			return err
		}
		if err := m.checkUploadable(order, payment, actorID); err != nil {
			return err
		}

		now := m.now()
		if current := payment.CurrentProof(); current != nil {
			if err := tx.Model(&models.PaymentProof{}).Where("id = ?", current.ID).Update("superseded_at", now).Error; err != nil {
				return fmt.Errorf("failed to supersede proof: %w", err)
			}
		}

		proof := models.PaymentProof{
			PaymentID:   payment.ID,
			StorageKey:  obj.Key,
			URL:         obj.URL,
			FileName:    file.FileName,
			ContentType: file.ContentType,
			Size:        size,
			Status:      models.ProofPending,
			Metadata:    datatypes.JSONMap{"uploaded_by": actorID, "order_number": order.OrderNumber},
			CreatedAt:   now,
		}
		if err := tx.Create(&proof).Error; err != nil {
			return fmt.Errorf("failed to save proof: %w", err)
		}

		if payment.Status != models.PaymentAwaitingConfirmation {
			return tx.Model(&models.Payment{}).Where("id = ?", payment.ID).
				Update("status", models.PaymentAwaitingConfirmation).Error
		}
		return nil
	})
	if err != nil {
		if derr := m.store.Delete(ctx, key); derr != nil {
			m.log.Warn("failed to delete orphan proof %s: %v", key, derr)
		}
		return nil, err
	}

	m.log.Info("payment proof uploaded for order %s", order.OrderNumber)
	return loadOrder(m.db.WithContext(ctx), orderID)
}

func (m *Market) checkUploadable(order *models.Order, payment *models.Payment, actorID uint64) error {
	if order.BuyerID != actorID {
		return apperr.Unauthorized("只有買家可以上傳匯款證明")
	}
	if order.Status.Terminal() {
		return apperr.Conflict("訂單已結束，無法上傳匯款證明")
	}
	switch payment.Status {
	case models.PaymentFailed:
		return apperr.Conflict("付款已失敗，無法上傳匯款證明")
	case models.PaymentPaid, models.PaymentRefunded:
		return apperr.Conflict("此訂單已完成付款")
	}
	if payment.ProofStatus() == models.ProofPending {
		return apperr.Conflict("匯款證明審核中，請等待審核結果")
	}
	if !m.now().Before(m.uploadDeadline(payment)) {
		return apperr.Conflict("已超過付款期限，無法上傳匯款證明")
	}
	return nil
}

// uploadDeadline 再提出の締切。期限は延ばさないが、退回された場合は審査時刻から ReuploadWindow までは受け付ける
func (m *Market) uploadDeadline(payment *models.Payment) time.Time {
	current := payment.CurrentProof()
	if current == nil || current.Status != models.ProofRejected || current.ReviewedAt == nil {
		return payment.Deadline
	}
	if grace := current.ReviewedAt.Add(m.rules.ReuploadWindow); grace.After(payment.Deadline) {
		return grace
	}
	return payment.Deadline
}

// ReviewProof 管理員が最新の振込明細を審査する。承認で paid、退回なら awaiting_confirmation のまま
func (m *Market) ReviewProof(ctx context.Context, in ReviewInput) (*models.Order, error) {
	switch in.Decision {
	case models.ProofApproved:
	case models.ProofRejected:
		if strings.TrimSpace(in.Notes) == "" {
			return nil, apperr.ValidationField("notes", "退回匯款證明時請填寫原因")
		}
	default:
		return nil, apperr.ValidationField("decision", "審核結果必須為 approved 或 rejected")
	}

	err := m.tx(ctx, func(tx *gorm.DB) error {
		if _, err := m.requireAdmin(tx, in.ReviewerID); err != nil {
			return err
		}
		order, payment, err := lockOrderAndPayment(tx, in.OrderID)
		if err != nil {
			return err
		}

		current := payment.CurrentProof()
		if current == nil {
			return apperr.Conflict("沒有可審核的匯款證明")
		}
		if current.Status != models.ProofPending {
			return apperr.Conflict("此匯款證明已審核")
		}
		if payment.Status != models.PaymentAwaitingConfirmation {
			return apperr.Conflict("目前的付款狀態無法審核匯款證明")
		}

		now := m.now()
		if err := tx.Model(&models.PaymentProof{}).Where("id = ?", current.ID).Updates(map[string]interface{}{
			"status":       in.Decision,
			"reviewed_at":  now,
			"reviewer_id":  in.ReviewerID,
			"review_notes": in.Notes,
		}).Error; err != nil {
			return fmt.Errorf("failed to record review: %w", err)
		}

		if in.Decision == models.ProofRejected {
			return nil
		}

		updates := map[string]interface{}{"status": models.PaymentPaid}
		if payment.PaidAt == nil {
			updates["paid_at"] = now
		}
		if err := tx.Model(&models.Payment{}).Where("id = ?", payment.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to mark payment paid: %w", err)
		}
		if order.Status == models.OrderPending {
			return tx.Model(&models.Order{}).Where("id = ?", order.ID).Update("status", models.OrderProcessing).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.log.Info("proof for order %d reviewed by %d: %s", in.OrderID, in.ReviewerID, in.Decision)
	return loadOrder(m.db.WithContext(ctx), in.OrderID)
}

// MarkPaymentFailed 何度呼んでも failed_at は最初の一回だけ記録される
func (m *Market) MarkPaymentFailed(ctx context.Context, orderID uint64, reason string) (*models.Order, error) {
	err := m.tx(ctx, func(tx *gorm.DB) error {
		order, payment, err := lockOrderAndPayment(tx, orderID)
		if err != nil {
			return err
		}
		_, err = m.markFailedTx(tx, order, payment, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	return loadOrder(m.db.WithContext(ctx), orderID)
}

// markFailedTx 支払いを failed、注文を cancelled にして自転車を戻す。既に failed なら何もしない
func (m *Market) markFailedTx(tx *gorm.DB, order *models.Order, payment *models.Payment, reason string) (bool, error) {
	switch payment.Status {
	case models.PaymentFailed:
		return false, nil
	case models.PaymentPaid, models.PaymentRefunded:
		return false, apperr.Conflict("已付款的訂單無法標記為付款失敗")
	}

	now := m.now()
	updates := map[string]interface{}{
		"status":         models.PaymentFailed,
		"failure_reason": reason,
	}
	if payment.FailedAt == nil {
		updates["failed_at"] = now
	}
	if err := tx.Model(&models.Payment{}).Where("id = ?", payment.ID).Updates(updates).Error; err != nil {
		return false, fmt.Errorf("failed to mark payment failed: %w", err)
	}

	if !order.Status.Terminal() {
		if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Updates(map[string]interface{}{
			"status":       models.OrderCancelled,
			"cancelled_at": now,
		}).Error; err != nil {
			return false, fmt.Errorf("failed to cancel order: %w", err)
		}
	}
	if err := releaseBicycle(tx, order.BicycleID); err != nil {
		return false, err
	}

	m.log.Info("payment for order %s failed: %s", order.OrderNumber, reason)
	return true, nil
}

// ListAwaitingReview 審査待ちの振込明細がある注文 (古い順)
func (m *Market) ListAwaitingReview(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	err := m.db.WithContext(ctx).
		Joins("JOIN payments ON payments.order_id = orders.id").
		Where("payments.status = ?", models.PaymentAwaitingConfirmation).
		Preload("Payment").
		Preload("Payment.Proofs", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Bicycle").
		Preload("Buyer").
		Order("orders.id").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list awaiting payments: %w", err)
	}

	awaiting := make([]models.Order, 0, len(orders))
	for _, o := range orders {
		if o.Payment != nil && o.Payment.ProofStatus() == models.ProofPending {
			awaiting = append(awaiting, o)
		}
	}
	return awaiting, nil
}

// ProofURL 非公開ストレージの場合は期限付き URL を発行する
func (m *Market) ProofURL(ctx context.Context, proof models.PaymentProof) (string, error) {
	if proof.URL != "" {
		return proof.URL, nil
	}
	return m.store.URL(ctx, proof.StorageKey)
}
