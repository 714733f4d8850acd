package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/Kousuke-irie/bicycle-market/apperr"
	"github.com/Kousuke-irie/bicycle-market/config"
	"github.com/Kousuke-irie/bicycle-market/firebase"
	"github.com/Kousuke-irie/bicycle-market/gemini"
	"github.com/Kousuke-irie/bicycle-market/logger"
	"github.com/Kousuke-irie/bicycle-market/middleware"
	"github.com/Kousuke-irie/bicycle-market/models"
	"github.com/Kousuke-irie/bicycle-market/services"
	"github.com/gin-gonic/gin"
)

var log = logger.New("handlers")

// Assistant 出品・交渉の AI 補助。未設定なら AI 系 API は 503 を返す
type Assistant interface {
	AnalyzeBicycleImage(ctx context.Context, image []byte, format string, catalog gemini.Catalog) (*gemini.ListingSuggestion, error)
	DraftNegotiationMessage(ctx context.Context, in gemini.Negotiation) (string, error)
}

// 起動時に main で一度だけ設定する
var (
	Market   *services.Market
	Verifier firebase.TokenVerifier
	AI       Assistant
	Rules    config.MarketConfig
)

// respond 成功レスポンスの共通形
func respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

// fail 業務エラーはそのまま、想定外のエラーはログに残して汎用メッセージにする
func fail(c *gin.Context, err error) {
	var e *apperr.Error
	kind := apperr.Kind(err)
	body := gin.H{"kind": kind}

	if kind == apperr.KindInternal {
		log.Error("%s %s: %v", c.Request.Method, c.FullPath(), err)
		body["message"] = "系統發生錯誤，請稍後再試"
	} else if errors.As(err, &e) {
		body["message"] = e.Message
		if len(e.Fields) > 0 {
			body["fields"] = e.Fields
		}
	}
	c.JSON(apperr.HTTPStatus(err), gin.H{"success": false, "error": body})
}

// badRequest リクエストの形式不正
func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   gin.H{"kind": apperr.KindValidation, "message": msg},
	})
}

func paramID(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "Invalid "+name)
		return 0, false
	}
	return id, true
}

// me Auth middleware の後ろでのみ使う
func me(c *gin.Context) *models.User {
	return middleware.CurrentUser(c)
}
