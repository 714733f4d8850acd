package handlers

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/Kousuke-irie/bicycle-market/gemini"
	"github.com/Kousuke-irie/bicycle-market/services"
	"github.com/Kousuke-irie/bicycle-market/storage"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// BicycleRequest 出品の作成・更新。submit が true なら審査に出す
type BicycleRequest struct {
	Title          string          `json:"title" binding:"required"`
	Description    string          `json:"description"`
	Price          decimal.Decimal `json:"price"`
	ImageURL       string          `json:"image_url"` // アップロード済みの URL (JSON 配列)
	ConditionID    *uint           `json:"condition_id"`
	BrandID        *uint           `json:"brand_id"`
	BicycleModelID *uint           `json:"bicycle_model_id"`
	TransmissionID *uint           `json:"transmission_id"`
	FrameSize      string          `json:"frame_size"`
	Year           int             `json:"year"`
	Submit         bool            `json:"submit"`
}

func (r BicycleRequest) input() services.BicycleInput {
	return services.BicycleInput{
		Title:          r.Title,
		Description:    r.Description,
		Price:          r.Price,
		ImageURL:       r.ImageURL,
		ConditionID:    r.ConditionID,
		BrandID:        r.BrandID,
		BicycleModelID: r.BicycleModelID,
		TransmissionID: r.TransmissionID,
		FrameSize:      r.FrameSize,
		Year:           r.Year,
		Submit:         r.Submit,
	}
}

// CreateBicycleHandler 出品API
func CreateBicycleHandler(c *gin.Context) {
	var req BicycleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format or missing fields")
		return
	}
	bike, err := Market.CreateBicycle(c.Request.Context(), me(c).ID, req.input())
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, gin.H{"bicycle": bike})
}

func UpdateBicycleHandler(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req BicycleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format or missing fields")
		return
	}
	bike, err := Market.UpdateBicycle(c.Request.Context(), id, me(c).ID, req.input())
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"bicycle": bike})
}

func GetBicycleHandler(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	bike, err := Market.GetBicycle(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"bicycle": bike})
}

// ListBicyclesHandler 公開中の出品一覧 (?limit=&offset=)
func ListBicyclesHandler(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	if offset < 0 {
		offset = 0
	}
	bikes, err := Market.ListAvailable(c.Request.Context(), limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"bicycles": bikes})
}

// GetMyBicyclesHandler 自分の出品 (下書き・審査待ちを含む)
func GetMyBicyclesHandler(c *gin.Context) {
	bikes, err := Market.ListBySeller(c.Request.Context(), me(c).ID)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"bicycles": bikes})
}

func SubmitBicycleHandler(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	bike, err := Market.SubmitBicycle(c.Request.Context(), id, me(c).ID)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"bicycle": bike})
}

func ArchiveBicycleHandler(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	bike, err := Market.ArchiveBicycle(c.Request.Context(), id, me(c).ID)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"bicycle": bike})
}

// UploadBicycleImageHandler 出品画像を公開領域に保存して URL を返す
func UploadBicycleImageHandler(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		badRequest(c, "Image is required")
		return
	}
	if Rules.ProofMaxBytes > 0 && file.Size > Rules.ProofMaxBytes {
		badRequest(c, "File is too large")
		return
	}

	src, err := file.Open()
	if err != nil {
		fail(c, err)
		return
	}
	defer src.Close()

	contentType, err := sniffContentType(src)
	if err != nil {
		fail(c, err)
		return
	}
	if !strings.HasPrefix(contentType, "image/") {
		badRequest(c, "Only image files are allowed")
		return
	}

	obj, err := Market.Store().Put(c.Request.Context(), storage.ImageKey(me(c).ID, file.Filename), src, storage.PutOptions{
		ContentType: contentType,
		Public:      true,
	})
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, gin.H{"image_url": obj.URL})
}

// AnalyzeBicycleHandler 画像を受け取って AI の出品下書きを返す
func AnalyzeBicycleHandler(c *gin.Context) {
	if AI == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": gin.H{"kind": "internal", "message": "AI assistant is not configured"}})
		return
	}

	// 1. 画像をメモリに読む
	file, err := c.FormFile("image")
	if err != nil {
		badRequest(c, "Image is required")
		return
	}
	src, err := file.Open()
	if err != nil {
		fail(c, err)
		return
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		fail(c, err)
		return
	}
	contentType, _, _ := strings.Cut(mimetype.Detect(data).String(), ";")
	if !strings.HasPrefix(contentType, "image/") {
		badRequest(c, "Only image files are allowed")
		return
	}

	// 2. 選択肢になる参照データ
	catalog, err := buildCatalog(c)
	if err != nil {
		fail(c, err)
		return
	}

	// 3. Gemini で解析
	suggestion, err := AI.AnalyzeBicycleImage(c.Request.Context(), data, strings.TrimPrefix(contentType, "image/"), catalog)
	if err != nil {
		log.Error("AI analysis failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": gin.H{"kind": "internal", "message": "AI analysis failed"}})
		return
	}
	respond(c, http.StatusOK, gin.H{"suggestion": suggestion})
}

func buildCatalog(c *gin.Context) (gemini.Catalog, error) {
	ctx := c.Request.Context()
	var catalog gemini.Catalog

	brands, err := Market.ListBrands(ctx)
	if err != nil {
		return catalog, err
	}
	for _, b := range brands {
		catalog.Brands = append(catalog.Brands, gemini.CatalogEntry{ID: b.ID, Name: b.Name})
	}
	conditions, err := Market.ListConditions(ctx)
	if err != nil {
		return catalog, err
	}
	for _, cond := range conditions {
		catalog.Conditions = append(catalog.Conditions, gemini.CatalogEntry{ID: cond.ID, Name: cond.Name})
	}
	transmissions, err := Market.ListTransmissions(ctx)
	if err != nil {
		return catalog, err
	}
	for _, t := range transmissions {
		catalog.Transmissions = append(catalog.Transmissions, gemini.CatalogEntry{ID: t.ID, Name: t.Name})
	}
	return catalog, nil
}
