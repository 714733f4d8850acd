package handlers

import (
	"net/http"

	"github.com/Kousuke-irie/bicycle-market/gemini"
	"github.com/Kousuke-irie/bicycle-market/services"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type PostMessageRequest struct {
	Content     string `json:"content" binding:"required"`
	RecipientID uint64 `json:"recipient_id"` // 省略時は賣家宛て
}

// PostMessageHandler メッセージをDB保存し、WSで送信
func PostMessageHandler(c *gin.Context) {
	bicycleID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request")
		return
	}

	msg, err := Market.SendMessage(c.Request.Context(), services.MessageInput{
		SenderID:    me(c).ID,
		BicycleID:   bicycleID,
		RecipientID: req.RecipientID,
		Content:     req.Content,
	})
	if err != nil {
		fail(c, err)
		return
	}

	// 相手がオンラインならWSで即時送信
	Manager.Push(msg.RecipientID, EventChatMessage, msg)
	respond(c, http.StatusCreated, gin.H{"message": msg})
}

type PostOfferRequest struct {
	OfferAmount decimal.Decimal `json:"offer_amount"`
	Content     string          `json:"content"`
}

// PostOfferHandler 出価 (値下げ交渉) を送る
func PostOfferHandler(c *gin.Context) {
	bicycleID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req PostOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request")
		return
	}

	offer, err := Market.CreateOffer(c.Request.Context(), services.OfferInput{
		SenderID:  me(c).ID,
		BicycleID: bicycleID,
		Amount:    req.OfferAmount,
		Content:   req.Content,
	})
	if err != nil {
		fail(c, err)
		return
	}
	Manager.Push(offer.RecipientID, EventOffer, offer)
	respond(c, http.StatusCreated, gin.H{"offer": offer})
}

func AcceptOfferHandler(c *gin.Context) {
	offerID, ok := paramID(c, "id")
	if !ok {
		return
	}
	result, err := Market.AcceptOffer(c.Request.Context(), offerID, me(c).ID)
	if err != nil {
		fail(c, err)
		return
	}
	Manager.Push(result.Offer.SenderID, EventOfferResponse, result)
	respond(c, http.StatusOK, result)
}

func RejectOfferHandler(c *gin.Context) {
	offerID, ok := paramID(c, "id")
	if !ok {
		return
	}
	result, err := Market.RejectOffer(c.Request.Context(), offerID, me(c).ID)
	if err != nil {
		fail(c, err)
		return
	}
	Manager.Push(result.Offer.SenderID, EventOfferResponse, result)
	respond(c, http.StatusOK, result)
}

// GetChatThreadsHandler 会話一覧 (自転車 × 相手ごとの最新メッセージ)
func GetChatThreadsHandler(c *gin.Context) {
	threads, err := Market.ListThreads(c.Request.Context(), me(c).ID)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"threads": threads})
}

// GetChatHistoryHandler 特定の相手とのチャット履歴取得
func GetChatHistoryHandler(c *gin.Context) {
	bicycleID, ok := paramID(c, "bicycle_id")
	if !ok {
		return
	}
	partnerID, ok := paramID(c, "partner_id")
	if !ok {
		return
	}
	messages, err := Market.ListConversation(c.Request.Context(), me(c).ID, bicycleID, partnerID)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"messages": messages})
}

type DraftMessageRequest struct {
	BicycleID   uint64              `json:"bicycle_id" binding:"required"`
	Intent      string              `json:"intent" binding:"required"`
	OfferAmount decimal.NullDecimal `json:"offer_amount"`
}

// DraftMessageHandler AI に交渉メッセージの文案を書かせる。送信はしない
func DraftMessageHandler(c *gin.Context) {
	if AI == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": gin.H{"kind": "internal", "message": "AI assistant is not configured"}})
		return
	}
	var req DraftMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request")
		return
	}

	bike, err := Market.GetBicycle(c.Request.Context(), req.BicycleID)
	if err != nil {
		fail(c, err)
		return
	}
	in := gemini.Negotiation{
		BicycleTitle: bike.Title,
		ListPrice:    bike.Price.StringFixed(0),
		Intent:       req.Intent,
		AsSeller:     bike.SellerID == me(c).ID,
	}
	if req.OfferAmount.Valid {
		in.OfferAmount = req.OfferAmount.Decimal.StringFixed(0)
	}

	draft, err := AI.DraftNegotiationMessage(c.Request.Context(), in)
	if err != nil {
		log.Error("AI draft failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": gin.H{"kind": "internal", "message": "AI draft failed"}})
		return
	}
	respond(c, http.StatusOK, gin.H{"draft": draft})
}
