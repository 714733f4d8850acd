package handlers

import (
	"net/http"

	"github.com/Kousuke-irie/bicycle-market/models"
	"github.com/Kousuke-irie/bicycle-market/services"
	"github.com/gin-gonic/gin"
)

// GetAwaitingPaymentsHandler 振込明細の審査待ち一覧
func GetAwaitingPaymentsHandler(c *gin.Context) {
	orders, err := Market.ListAwaitingReview(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"orders": orders})
}

type ReviewProofRequest struct {
	Decision models.ProofStatus `json:"decision" binding:"required"` // approved / rejected
	Notes    string             `json:"notes"`
}

func ReviewProofHandler(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req ReviewProofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request")
		return
	}

	order, err := Market.ReviewProof(c.Request.Context(), services.ReviewInput{
		OrderID:    id,
		ReviewerID: me(c).ID,
		Decision:   req.Decision,
		Notes:      req.Notes,
	})
	if err != nil {
		fail(c, err)
		return
	}
	pushToCounterparty(order, me(c).ID)
	respond(c, http.StatusOK, gin.H{"order": order})
}

func RefundOrderHandler(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Refund reason is required")
		return
	}
	order, err := Market.RefundOrder(c.Request.Context(), id, me(c).ID, req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	pushToCounterparty(order, me(c).ID)
	respond(c, http.StatusOK, gin.H{"order": order})
}

// GetPendingBicyclesHandler 出品審査待ち一覧
func GetPendingBicyclesHandler(c *gin.Context) {
	bikes, err := Market.ListPendingReview(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"bicycles": bikes})
}

func ApproveBicycleHandler(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	bike, err := Market.ApproveBicycle(c.Request.Context(), id, me(c).ID)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"bicycle": bike})
}

func RejectBicycleHandler(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)

	bike, err := Market.RejectBicycle(c.Request.Context(), id, me(c).ID, req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"bicycle": bike})
}

// RunSweepHandler 期限切れ支払いの掃除を今すぐ実行する
func RunSweepHandler(c *gin.Context) {
	result, err := Market.SweepExpired(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, result)
}
