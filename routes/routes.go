package routes

import (
	"net/http"

	"github.com/Kousuke-irie/bicycle-market/handlers"
	"github.com/gin-gonic/gin"
)

// SetupRoutes auth は認証ミドルウェア、admin はその後ろに置く管理者チェック
func SetupRoutes(r *gin.Engine, auth, admin gin.HandlerFunc) {
	// 疎通確認用
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Connectivity Test Succeeded"})
	})

	// 認証
	r.POST("/login", handlers.LoginHandler)

	// ▼▼▼ メタデータ関連 API ▼▼▼
	meta := r.Group("/meta")
	{
		meta.GET("/brands", handlers.GetBrandsHandler)
		meta.GET("/conditions", handlers.GetConditionsHandler)
		meta.GET("/transmissions", handlers.GetTransmissionsHandler)
	}

	// 出品 (閲覧はログイン不要)
	r.GET("/bicycles", handlers.ListBicyclesHandler)
	r.GET("/bicycles/:id", handlers.GetBicycleHandler)
	r.GET("/users/:id", handlers.GetUserByIDHandler)

	authed := r.Group("/", auth)
	{
		authed.GET("/users/me", handlers.GetMeHandler)
		authed.PUT("/users/me", handlers.UpdateProfileHandler)

		bikes := authed.Group("/bicycles")
		{
			bikes.POST("", handlers.CreateBicycleHandler)
			bikes.PUT("/:id", handlers.UpdateBicycleHandler)
			bikes.POST("/:id/submit", handlers.SubmitBicycleHandler)
			bikes.POST("/:id/archive", handlers.ArchiveBicycleHandler)
			bikes.POST("/analyze", handlers.AnalyzeBicycleHandler)
			bikes.POST("/images", handlers.UploadBicycleImageHandler)
			bikes.POST("/:id/messages", handlers.PostMessageHandler)
			bikes.POST("/:id/offers", handlers.PostOfferHandler)
		}

		authed.POST("/offers/:id/accept", handlers.AcceptOfferHandler)
		authed.POST("/offers/:id/reject", handlers.RejectOfferHandler)
		authed.POST("/messages/draft", handlers.DraftMessageHandler)

		// 自分の情報
		my := authed.Group("/my")
		{
			my.GET("/bicycles", handlers.GetMyBicyclesHandler)
			my.GET("/orders", handlers.GetMyOrdersHandler)
			my.GET("/threads", handlers.GetChatThreadsHandler)
			my.GET("/threads/:bicycle_id/:partner_id", handlers.GetChatHistoryHandler)
		}

		// ▼▼▼  取引関連 API ▼▼▼
		orders := authed.Group("/orders")
		{
			orders.POST("", handlers.CreateOrderHandler)
			orders.GET("/:id", handlers.GetOrderHandler)
			orders.PUT("/:id/shipping", handlers.UpdateShippingHandler)
			orders.PUT("/:id/status", handlers.UpdateOrderStatusHandler)
			orders.POST("/:id/complete", handlers.CompleteOrderHandler)
			orders.POST("/:id/cancel", handlers.CancelOrderHandler)
			orders.POST("/:id/payment-proofs", handlers.UploadProofHandler)
			orders.GET("/:id/payment-proofs/current", handlers.GetProofURLHandler)
		}

		// WebSocket エンドポイント
		authed.GET("/ws", handlers.WSHandler)

		adminGroup := authed.Group("/admin", admin)
		{
			adminGroup.GET("/payments/awaiting", handlers.GetAwaitingPaymentsHandler)
			adminGroup.POST("/orders/:id/proof-review", handlers.ReviewProofHandler)
			adminGroup.POST("/orders/:id/refund", handlers.RefundOrderHandler)
			adminGroup.GET("/bicycles/pending", handlers.GetPendingBicyclesHandler)
			adminGroup.POST("/bicycles/:id/approve", handlers.ApproveBicycleHandler)
			adminGroup.POST("/bicycles/:id/reject", handlers.RejectBicycleHandler)
			adminGroup.POST("/sweeps", handlers.RunSweepHandler)
		}
	}
}
