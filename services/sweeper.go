package services

import (
	"context"
	"fmt"
	"time"

	"github.com/Kousuke-irie/bicycle-market/models"
	"gorm.io/gorm"
)

// SweepResult 期限切れ処理 1 回分の集計
type SweepResult struct {
	Transitioned int  `json:"transitioned"`
	Errors       int  `json:"errors"`
	Batches      int  `json:"batches"`
	Capped       bool `json:"capped"` // 上限回数で打ち切った
}

// SweepExpired 期限を過ぎた pending の支払い (と退回後に放置されたもの) をバッチごとに failed にする。
// 1件ごとに別トランザクションで処理し、失敗した行はログに残して以降のバッチから外す。
func (m *Market) SweepExpired(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	batchSize := m.sweep.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	maxIterations := m.sweep.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 50
	}
	skipped := make([]uint64, 0)

	for {
		if res.Batches >= maxIterations {
			res.Capped = true
			m.log.Warn("sweep stopped after %d batches, candidates may remain", res.Batches)
			break
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		// 1. 対象の注文IDを取得。awaiting_confirmation は退回済みで再提出の猶予も過ぎたものだけ
		now := m.now()
		var orderIDs []uint64
		q := m.db.WithContext(ctx).Model(&models.Payment{}).
			Where("payments.expires_at < ?", now).
			Where("payments.status = ? OR (payments.status = ? AND EXISTS (?))",
				models.PaymentPending, models.PaymentAwaitingConfirmation,
				m.db.Model(&models.PaymentProof{}).Select("1").
					Where("payment_proofs.payment_id = payments.id AND payment_proofs.superseded_at IS NULL").
					Where("payment_proofs.status = ? AND payment_proofs.reviewed_at < ?", models.ProofRejected, now.Add(-m.rules.ReuploadWindow)))
		if len(skipped) > 0 {
			q = q.Where("payments.order_id NOT IN ?", skipped)
		}
		if err := q.Order("payments.expires_at").Limit(batchSize).Pluck("payments.order_id", &orderIDs).Error; err != nil {
			return res, fmt.Errorf("failed to select expired payments: %w", err)
		}
		res.Batches++
		if len(orderIDs) == 0 {
			break
		}

		// 2. 1件ずつ処理。エラーは記録して次へ
		transitioned := 0
		for _, orderID := range orderIDs {
			changed, err := m.expireOne(ctx, orderID)
			if err != nil {
				res.Errors++
				skipped = append(skipped, orderID)
				m.log.Error("failed to expire payment for order %d: %v", orderID, err)
				continue
			}
			if changed {
				transitioned++
			}
		}
		res.Transitioned += transitioned

		if transitioned == 0 {
			break
		}
	}

	m.log.Info("sweep finished: %d expired, %d errors, %d batches", res.Transitioned, res.Errors, res.Batches)
	return res, nil
}

// expireOne ロックを取り直してから状態を再確認する
func (m *Market) expireOne(ctx context.Context, orderID uint64) (bool, error) {
	var changed bool
	err := m.tx(ctx, func(tx *gorm.DB) error {
		order, payment, err := lockOrderAndPayment(tx, orderID)
		if err != nil {
			return err
		}
		if !m.expired(payment) {
			return nil
		}
		changed, err = m.markFailedTx(tx, order, payment, ExpiredReason)
		return err
	})
	return changed, err
}

// expired ロック後の再確認。pending は期限切れ、awaiting_confirmation は退回後に再提出されず猶予も過ぎたもの
func (m *Market) expired(payment *models.Payment) bool {
	now := m.now()
	if !payment.ExpiresAt.Before(now) {
		return false
	}
	switch payment.Status {
	case models.PaymentPending:
		return true
	case models.PaymentAwaitingConfirmation:
		return payment.ProofStatus() == models.ProofRejected && !now.Before(m.uploadDeadline(payment))
	}
	return false
}

// RunSweeper interval ごとに SweepExpired を回す。ctx が終わるまで戻らない
func (m *Market) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = m.sweep.Interval
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.log.Info("sweeper started (interval %s)", interval)
	for {
		select {
		case <-ctx.Done():
			m.log.Info("sweeper stopped")
			return nil
		case <-ticker.C:
			if _, err := m.SweepExpired(ctx); err != nil && ctx.Err() == nil {
				m.log.Error("sweep failed: %v", err)
			}
		}
	}
}
