package handlers

import (
	"net/http"

	"github.com/Kousuke-irie/bicycle-market/services"
	"github.com/gin-gonic/gin"
)

type LoginRequest struct {
	IDToken string `json:"id_token" binding:"required"`
}

// LoginHandler Firebase の ID トークンでログインし、ユーザーを作成・更新する
func LoginHandler(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format")
		return
	}
	if Verifier == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": gin.H{"kind": "internal", "message": "Login is not configured"}})
		return
	}

	// 1. Firebaseでトークンを検証
	token, err := Verifier.VerifyIDToken(c.Request.Context(), req.IDToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": gin.H{"kind": "unauthorized", "message": "Invalid token"}})
		return
	}

	// 2. Upsert
	user, err := Market.UpsertIdentity(c.Request.Context(), services.Identity{
		UID:     token.UID,
		Email:   token.Email,
		Name:    token.Name,
		Picture: token.Picture,
	})
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"user": user})
}

// UpdateProfileRequest 省略した項目は変更しない
type UpdateProfileRequest struct {
	Username          *string `json:"username"`
	Bio               *string `json:"bio"`
	IconURL           *string `json:"icon_url"`
	BankName          *string `json:"bank_name"`
	BankCode          *string `json:"bank_code"`
	BankBranch        *string `json:"bank_branch"`
	BankAccountName   *string `json:"bank_account_name"`
	BankAccountNumber *string `json:"bank_account_number"`
}

func GetMeHandler(c *gin.Context) {
	respond(c, http.StatusOK, gin.H{"user": me(c)})
}

// UpdateProfileHandler プロフィールと振込先口座の更新
func UpdateProfileHandler(c *gin.Context) {
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request")
		return
	}

	user, err := Market.UpdateProfile(c.Request.Context(), me(c).ID, services.ProfileInput{
		Username:          req.Username,
		Bio:               req.Bio,
		IconURL:           req.IconURL,
		BankName:          req.BankName,
		BankCode:          req.BankCode,
		BankBranch:        req.BankBranch,
		BankAccountName:   req.BankAccountName,
		BankAccountNumber: req.BankAccountNumber,
	})
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"user": user})
}

// GetUserByIDHandler 公開プロフィール。メールや口座は返さない
func GetUserByIDHandler(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	user, err := Market.GetUser(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"user": gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"icon_url":   user.IconURL,
		"bio":        user.Bio,
		"created_at": user.CreatedAt,
	}})
}
