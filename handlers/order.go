package handlers

import (
	"net/http"

	"github.com/Kousuke-irie/bicycle-market/models"
	"github.com/Kousuke-irie/bicycle-market/services"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type CreateOrderRequest struct {
	BicycleID        uint64                `json:"bicycle_id" binding:"required"`
	ShippingMethod   models.ShippingMethod `json:"shipping_method" binding:"required"`
	ShippingDistance decimal.NullDecimal   `json:"shipping_distance"`
	PaymentMethod    models.PaymentMethod  `json:"payment_method"`
}

// CreateOrderHandler 出品価格での購入。振込案内つきの注文を返す
func CreateOrderHandler(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format or missing fields")
		return
	}

	order, err := Market.CreateOrder(c.Request.Context(), services.CreateOrderInput{
		BuyerID:          me(c).ID,
		BicycleID:        req.BicycleID,
		ShippingMethod:   req.ShippingMethod,
		ShippingDistance: req.ShippingDistance,
		PaymentMethod:    req.PaymentMethod,
	})
	if err != nil {
		fail(c, err)
		return
	}
	Manager.Push(order.SellerID, EventOrderUpdate, order)
	respond(c, http.StatusCreated, gin.H{"order": order})
}

func GetOrderHandler(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	order, err := Market.GetOrder(c.Request.Context(), id, me(c).ID)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"order": order})
}

// GetMyOrdersHandler ?role=buyer|seller (省略時は両方)
func GetMyOrdersHandler(c *gin.Context) {
	orders, err := Market.ListOrdersForUser(c.Request.Context(), me(c).ID, c.Query("role"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"orders": orders})
}

type UpdateShippingRequest struct {
	ShippingMethod   models.ShippingMethod `json:"shipping_method" binding:"required"`
	ShippingDistance decimal.NullDecimal   `json:"shipping_distance"`
}

func UpdateShippingHandler(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req UpdateShippingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request")
		return
	}
	order, err := Market.UpdateShipping(c.Request.Context(), id, me(c).ID, req.ShippingMethod, req.ShippingDistance)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"order": order})
}

// UpdateOrderStatusHandler ステータスを更新（発送、受け取り）
func UpdateOrderStatusHandler(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		NewStatus models.OrderStatus `json:"new_status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid status")
		return
	}
	order, err := Market.UpdateOrderStatus(c.Request.Context(), id, me(c).ID, req.NewStatus)
	if err != nil {
		fail(c, err)
		return
	}
	pushToCounterparty(order, me(c).ID)
	respond(c, http.StatusOK, gin.H{"order": order})
}

func CompleteOrderHandler(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	order, err := Market.CompleteOrder(c.Request.Context(), id, me(c).ID)
	if err != nil {
		fail(c, err)
		return
	}
	pushToCounterparty(order, me(c).ID)
	respond(c, http.StatusOK, gin.H{"order": order})
}

// CancelOrderHandler 付款前の取引をキャンセル
func CancelOrderHandler(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	order, err := Market.CancelOrder(c.Request.Context(), id, me(c).ID)
	if err != nil {
		fail(c, err)
		return
	}
	pushToCounterparty(order, me(c).ID)
	respond(c, http.StatusOK, gin.H{"order": order})
}

// pushToCounterparty 操作した側ではない当事者に知らせる。管理者の操作なら両方
func pushToCounterparty(order *models.Order, actorID uint64) {
	if order.BuyerID != actorID {
		Manager.Push(order.BuyerID, EventOrderUpdate, order)
	}
	if order.SellerID != actorID {
		Manager.Push(order.SellerID, EventOrderUpdate, order)
	}
}
