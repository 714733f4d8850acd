package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/Kousuke-irie/bicycle-market/apperr"
	"github.com/Kousuke-irie/bicycle-market/firebase"
	"github.com/Kousuke-irie/bicycle-market/logger"
	"github.com/Kousuke-irie/bicycle-market/models"
	"github.com/gin-gonic/gin"
)

var log = logger.New("auth")

const userKey = "currentUser"

// UserLookup 認証済みユーザーを DB から引く
type UserLookup interface {
	GetUser(ctx context.Context, userID uint64) (*models.User, error)
	FindByFirebaseUID(ctx context.Context, uid string) (*models.User, error)
}

// Auth Bearer トークン (ブラウザの WebSocket は ?token=) からユーザーを特定する。
// trustHeader が true のときだけ X-User-ID ヘッダー (?user_id=) も受け付ける
func Auth(verifier firebase.TokenVerifier, users UserLookup, trustHeader bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := resolveUser(c, verifier, users, trustHeader)
		if err != nil {
			abort(c, http.StatusUnauthorized, err.Message)
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

func resolveUser(c *gin.Context, verifier firebase.TokenVerifier, users UserLookup, trustHeader bool) (*models.User, *apperr.Error) {
	ctx := c.Request.Context()

	if token := bearerToken(c); token != "" && verifier != nil {
		t, err := verifier.VerifyIDToken(ctx, token)
		if err != nil {
			log.Warn("invalid token: %v", err)
			return nil, apperr.Unauthorized("Invalid token")
		}
		user, err := users.FindByFirebaseUID(ctx, t.UID)
		if err != nil {
			return nil, apperr.Unauthorized("User not registered, please login first")
		}
		return user, nil
	}

	if trustHeader {
		raw := c.GetHeader("X-User-ID")
		if raw == "" {
			raw = c.Query("user_id")
		}
		if raw != "" {
			id, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				return nil, apperr.Unauthorized("Invalid User ID format in header")
			}
			user, err := users.GetUser(ctx, id)
			if err != nil {
				return nil, apperr.Unauthorized("User not found")
			}
			return user, nil
		}
	}
	return nil, apperr.Unauthorized("Authentication required")
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return c.Query("token")
}

// RequireAdmin Auth の後ろに置く
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil || !user.IsAdmin() {
			abort(c, http.StatusForbidden, "Admin only")
			return
		}
		c.Next()
	}
}

// CurrentUser Auth が入れたユーザー。未認証なら nil
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}

// SetUser テストや内部処理用
func SetUser(c *gin.Context, user *models.User) { c.Set(userKey, user) }

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   gin.H{"kind": apperr.KindUnauthorized, "message": msg},
	})
}
