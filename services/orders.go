package services

import (
	"context"
	"fmt"
	"time"

	"github.com/Kousuke-irie/bicycle-market/apperr"
	"github.com/Kousuke-irie/bicycle-market/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	msgBicycleUnavailable = "Bicycle is not available for purchase"
	msgOrderNotFound      = "找不到訂單"
	msgBicycleNotFound    = "找不到自行車"
)

type CreateOrderInput struct {
	BuyerID          uint64
	BicycleID        uint64
	ShippingMethod   models.ShippingMethod
	ShippingDistance decimal.NullDecimal
	PaymentMethod    models.PaymentMethod
}

// orderTerms 直接購入と出価承諾で共通の注文条件
type orderTerms struct {
	buyerID  uint64
	bicycle  *models.Bicycle
	price    decimal.Decimal
	offerID  *uint64
	shipping models.ShippingMethod
	distance decimal.NullDecimal
	payment  models.PaymentMethod
}

// CreateOrder 出品価格でそのまま購入する
func (m *Market) CreateOrder(ctx context.Context, in CreateOrderInput) (*models.Order, error) {
	if in.PaymentMethod == "" {
		in.PaymentMethod = models.PaymentBankTransfer
	}
	if !validPaymentMethod(in.PaymentMethod) {
		return nil, apperr.ValidationField("payment_method", "不支援的付款方式")
	}

	var order *models.Order
	err := m.tx(ctx, func(tx *gorm.DB) error {
		// 1. 自転車をロックして購入可能か確認
		var bike models.Bicycle
		if err := forUpdate(tx).First(&bike, in.BicycleID).Error; err != nil {
			return apperr.FromDB(err, msgBicycleNotFound)
		}
		if bike.Status != models.BicycleAvailable {
			return apperr.Conflict(msgBicycleUnavailable)
		}
		if bike.SellerID == in.BuyerID {
			return apperr.Validation("不能購買自己的自行車")
		}

		// 2. 注文と支払いを作成
		var err error
		order, err = m.createOrderTx(tx, orderTerms{
			buyerID:  in.BuyerID,
			bicycle:  &bike,
			price:    bike.Price,
			shipping: in.ShippingMethod,
			distance: in.ShippingDistance,
			payment:  in.PaymentMethod,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	m.log.Info("order %s created for bicycle %d", order.OrderNumber, order.BicycleID)
	return order, nil
}

// createOrderTx 自転車の確保・他の出価の失効・注文と支払いの作成を同じトランザクションで行う
func (m *Market) createOrderTx(tx *gorm.DB, t orderTerms) (*models.Order, error) {
	cost, err := ShippingCost(m.rules, t.shipping, t.distance)
	if err != nil {
		return nil, err
	}
	now := m.now()

	// 1. available のときだけ sold にする (二重購入防止)
	res := tx.Model(&models.Bicycle{}).
		Where("id = ? AND status = ?", t.bicycle.ID, models.BicycleAvailable).
		Update("status", models.BicycleSold)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to reserve bicycle: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.Conflict(msgBicycleUnavailable)
	}
	t.bicycle.Status = models.BicycleSold

	// 2. 残っている待回應の出価は失効
	if err := expirePendingOffers(tx, t.bicycle.ID, now); err != nil {
		return nil, err
	}

	// 3. 注文番号 (最終的な一意性はユニークインデックスが保証する)
	number, err := GenerateOrderNumber(now, m.rules.OrderNumberMaxAttempts, func(candidate string) (bool, error) {
		var count int64
		err := tx.Model(&models.Order{}).Where("order_number = ?", candidate).Count(&count).Error
		return count > 0, err
	})
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		OrderNumber:      number,
		BuyerID:          t.buyerID,
		SellerID:         t.bicycle.SellerID,
		BicycleID:        t.bicycle.ID,
		OfferID:          t.offerID,
		TotalPrice:       t.price,
		ShippingMethod:   t.shipping,
		ShippingDistance: normalizeDistance(t.shipping, t.distance),
		ShippingCost:     cost,
		Status:           models.OrderPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	deadline := now.Add(m.rules.PaymentWindow)
	order.PaymentInstructions, order.CompanyAccountInfo = renderPaymentText(m.company, number, order.AmountDue(), t.payment, deadline)
	if err := tx.Create(order).Error; err != nil {
		return nil, apperr.FromDB(err, "")
	}

	// 4. 支払い。期限はここで一度だけ決める
	payment := &models.Payment{
		OrderID:   order.ID,
		Method:    t.payment,
		Status:    models.PaymentPending,
		Amount:    order.AmountDue(),
		Deadline:  deadline,
		ExpiresAt: deadline,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.Create(payment).Error; err != nil {
		return nil, apperr.FromDB(err, "")
	}

	order.Payment = payment
	order.Bicycle = t.bicycle
	return order, nil
}

func expirePendingOffers(tx *gorm.DB, bicycleID uint64, now time.Time) error {
	err := tx.Model(&models.Message{}).
		Where("bicycle_id = ? AND is_offer = ? AND offer_status = ?", bicycleID, true, models.OfferPending).
		Updates(map[string]interface{}{
			"offer_status":      models.OfferExpired,
			"pending_offer_key": nil,
			"responded_at":      now,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to expire pending offers: %w", err)
	}
	return nil
}

func loadOrder(db *gorm.DB, orderID uint64) (*models.Order, error) {
	var order models.Order
	err := db.
		Preload("Payment").
		Preload("Payment.Proofs", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Bicycle").
		First(&order, orderID).Error
	if err != nil {
		return nil, apperr.FromDB(err, msgOrderNotFound)
	}
	return &order, nil
}

// lockOrderAndPayment 注文→支払いの順でロックする。ロック順はどの操作でも同じにする
func lockOrderAndPayment(tx *gorm.DB, orderID uint64) (*models.Order, *models.Payment, error) {
	var order models.Order
	if err := forUpdate(tx).First(&order, orderID).Error; err != nil {
		return nil, nil, apperr.FromDB(err, msgOrderNotFound)
	}
	var payment models.Payment
	if err := forUpdate(tx).Where("order_id = ?", order.ID).First(&payment).Error; err != nil {
		return nil, nil, apperr.FromDB(err, "找不到付款資料")
	}
	if err := tx.Where("payment_id = ?", payment.ID).Order("id").Find(&payment.Proofs).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to load payment proofs: %w", err)
	}
	order.Payment = &payment
	return &order, &payment, nil
}

// GetOrder 取引の当事者と管理者だけが見られる
func (m *Market) GetOrder(ctx context.Context, orderID, actorID uint64) (*models.Order, error) {
	db := m.db.WithContext(ctx)
	order, err := loadOrder(db, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != actorID && order.SellerID != actorID {
		if _, err := m.requireAdmin(db, actorID); err != nil {
			return nil, apperr.Unauthorized("您無權查看此訂單")
		}
	}
	return order, nil
}

// ListOrdersForUser role は "buyer" / "seller"。空なら両方
func (m *Market) ListOrdersForUser(ctx context.Context, userID uint64, role string) ([]models.Order, error) {
	q := m.db.WithContext(ctx).Preload("Payment").Preload("Bicycle")
	switch role {
	case "buyer":
		q = q.Where("buyer_id = ?", userID)
	case "seller":
		q = q.Where("seller_id = ?", userID)
	case "":
		q = q.Where("buyer_id = ? OR seller_id = ?", userID, userID)
	default:
		return nil, apperr.ValidationField("role", "role 必須為 buyer 或 seller")
	}

	var orders []models.Order
	if err := q.Order("id DESC").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	if orders == nil {
		orders = []models.Order{}
	}
	return orders, nil
}

// UpdateShipping 付款前に限り買家が運送方式を変更できる。付款期限は変えない
func (m *Market) UpdateShipping(ctx context.Context, orderID, actorID uint64, method models.ShippingMethod, distance decimal.NullDecimal) (*models.Order, error) {
	err := m.tx(ctx, func(tx *gorm.DB) error {
		order, payment, err := lockOrderAndPayment(tx, orderID)
		if err != nil {
			return err
		}
		if order.BuyerID != actorID {
			return apperr.Unauthorized("只有買家可以變更運送方式")
		}
		if order.Status != models.OrderPending || payment.Status != models.PaymentPending {
			return apperr.Conflict("付款處理中的訂單無法變更運送方式")
		}

		cost, err := ShippingCost(m.rules, method, distance)
		if err != nil {
			return err
		}
		order.ShippingMethod = method
		order.ShippingDistance = normalizeDistance(method, distance)
		order.ShippingCost = cost
		instructions, accountInfo := renderPaymentText(m.company, order.OrderNumber, order.AmountDue(), payment.Method, payment.Deadline)

		if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Updates(map[string]interface{}{
			"shipping_method":      order.ShippingMethod,
			"shipping_distance":    order.ShippingDistance,
			"shipping_cost":        order.ShippingCost,
			"payment_instructions": instructions,
			"company_account_info": accountInfo,
		}).Error; err != nil {
			return fmt.Errorf("failed to update shipping: %w", err)
		}
		return tx.Model(&models.Payment{}).Where("id = ?", payment.ID).Update("amount", order.AmountDue()).Error
	})
	if err != nil {
		return nil, err
	}
	return loadOrder(m.db.WithContext(ctx), orderID)
}

// UpdateOrderStatus processing→shipped は賣家、shipped→delivered は買家
func (m *Market) UpdateOrderStatus(ctx context.Context, orderID, actorID uint64, next models.OrderStatus) (*models.Order, error) {
	if next != models.OrderShipped && next != models.OrderDelivered {
		return nil, apperr.ValidationField("status", "只能將訂單狀態更新為 shipped 或 delivered")
	}

	err := m.tx(ctx, func(tx *gorm.DB) error {
		order, payment, err := lockOrderAndPayment(tx, orderID)
		if err != nil {
			return err
		}

		switch {
		case order.Status == models.OrderProcessing && next == models.OrderShipped:
			if order.SellerID != actorID {
				return apperr.Unauthorized("只有賣家可以標記出貨")
			}
			if payment.Status != models.PaymentPaid {
				return apperr.Conflict("訂單尚未付款，無法出貨")
			}
		case order.Status == models.OrderShipped && next == models.OrderDelivered:
			if order.BuyerID != actorID {
				return apperr.Unauthorized("只有買家可以確認收貨")
			}
		default:
			return apperr.Conflict(fmt.Sprintf("無法將訂單狀態從 %s 變更為 %s", order.Status, next))
		}

		return tx.Model(&models.Order{}).Where("id = ?", order.ID).Update("status", next).Error
	})
	if err != nil {
		return nil, err
	}
	return loadOrder(m.db.WithContext(ctx), orderID)
}

// CompleteOrder 付款済みかつ出貨済み (shipped / delivered) のときだけ完了できる
func (m *Market) CompleteOrder(ctx context.Context, orderID, actorID uint64) (*models.Order, error) {
	err := m.tx(ctx, func(tx *gorm.DB) error {
		order, payment, err := lockOrderAndPayment(tx, orderID)
		if err != nil {
			return err
		}
		if order.BuyerID != actorID {
			if _, err := m.requireAdmin(tx, actorID); err != nil {
				return apperr.Unauthorized("只有買家或管理員可以完成訂單")
			}
		}
		if !canComplete(order, payment) {
			return apperr.Conflict("訂單尚未付款或尚未出貨，無法完成")
		}
		return tx.Model(&models.Order{}).Where("id = ?", order.ID).Updates(map[string]interface{}{
			"status":       models.OrderCompleted,
			"completed_at": m.now(),
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return loadOrder(m.db.WithContext(ctx), orderID)
}

func canComplete(order *models.Order, payment *models.Payment) bool {
	return payment.Status == models.PaymentPaid &&
		(order.Status == models.OrderShipped || order.Status == models.OrderDelivered)
}

// CancelOrder 付款前の注文を取り消し、自転車を再出品状態に戻す
func (m *Market) CancelOrder(ctx context.Context, orderID, actorID uint64) (*models.Order, error) {
	err := m.tx(ctx, func(tx *gorm.DB) error {
		order, payment, err := lockOrderAndPayment(tx, orderID)
		if err != nil {
			return err
		}
		if order.BuyerID != actorID && order.SellerID != actorID {
			if _, err := m.requireAdmin(tx, actorID); err != nil {
				return apperr.Unauthorized("您無權取消此訂單")
			}
		}
		if order.Status.Terminal() {
			return apperr.Conflict("訂單已結束，無法取消")
		}
		if payment.Status == models.PaymentPaid || payment.Status == models.PaymentRefunded {
			return apperr.Conflict("訂單已付款，請聯絡客服辦理退款")
		}
		if payment.ProofStatus() == models.ProofPending {
			return apperr.Conflict("匯款證明審核中，無法取消訂單")
		}
		_, err = m.markFailedTx(tx, order, payment, CancelledReason)
		return err
	})
	if err != nil {
		return nil, err
	}
	return loadOrder(m.db.WithContext(ctx), orderID)
}

// RefundOrder 管理員による返金。出貨前なら自転車を再出品状態に戻す
func (m *Market) RefundOrder(ctx context.Context, orderID, adminID uint64, reason string) (*models.Order, error) {
	err := m.tx(ctx, func(tx *gorm.DB) error {
		if _, err := m.requireAdmin(tx, adminID); err != nil {
			return err
		}
		order, payment, err := lockOrderAndPayment(tx, orderID)
		if err != nil {
			return err
		}
		if payment.Status != models.PaymentPaid || order.Status == models.OrderRefunded {
			return apperr.Conflict("只有已付款的訂單可以退款")
		}

		now := m.now()
		if err := tx.Model(&models.Payment{}).Where("id = ?", payment.ID).Updates(map[string]interface{}{
			"status":        models.PaymentRefunded,
			"refunded_at":   now,
			"refund_reason": reason,
		}).Error; err != nil {
			return fmt.Errorf("failed to refund payment: %w", err)
		}
		if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Update("status", models.OrderRefunded).Error; err != nil {
			return fmt.Errorf("failed to refund order: %w", err)
		}
		if order.Status == models.OrderProcessing {
			return releaseBicycle(tx, order.BicycleID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.log.Info("order %d refunded by admin %d", orderID, adminID)
	return loadOrder(m.db.WithContext(ctx), orderID)
}

// releaseBicycle 注文で確保した自転車を available に戻す
func releaseBicycle(tx *gorm.DB, bicycleID uint64) error {
	err := tx.Model(&models.Bicycle{}).
		Where("id = ? AND status = ?", bicycleID, models.BicycleSold).
		Update("status", models.BicycleAvailable).Error
	if err != nil {
		return fmt.Errorf("failed to release bicycle: %w", err)
	}
	return nil
}
