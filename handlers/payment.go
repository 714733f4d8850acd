package handlers

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/Kousuke-irie/bicycle-market/apperr"
	"github.com/Kousuke-irie/bicycle-market/services"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
)

// UploadProofHandler 振込明細 (multipart の file) を受け取り、審査待ちにする
func UploadProofHandler(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	// 1. ファイルの形式とサイズ
	file, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "Proof file is required")
		return
	}
	src, err := file.Open()
	if err != nil {
		fail(c, err)
		return
	}
	defer src.Close()

	// 申告された Content-Type ではなく中身で判定する
	contentType, err := sniffContentType(src)
	if err != nil {
		fail(c, err)
		return
	}
	if err := checkProofFile(contentType, file.Size); err != nil {
		fail(c, err)
		return
	}

	// 2. 保存と状態遷移
	order, err := Market.UploadProof(c.Request.Context(), id, me(c).ID, services.ProofFile{
		FileName:    file.Filename,
		ContentType: contentType,
		Size:        file.Size,
		Body:        src,
	})
	if err != nil {
		fail(c, err)
		return
	}
	Manager.Push(order.SellerID, EventOrderUpdate, order)
	respond(c, http.StatusCreated, gin.H{"order": order})
}

// sniffContentType 先頭のバイトから形式を判定し、読み出し位置を先頭に戻す
func sniffContentType(f multipart.File) (string, error) {
	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		return "", fmt.Errorf("failed to detect content type: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to rewind upload: %w", err)
	}
	contentType, _, _ := strings.Cut(mtype.String(), ";")
	return contentType, nil
}

func checkProofFile(contentType string, size int64) error {
	if size <= 0 {
		return apperr.ValidationField("file", "檔案內容為空")
	}
	if Rules.ProofMaxBytes > 0 && size > Rules.ProofMaxBytes {
		return apperr.ValidationField("file", fmt.Sprintf("檔案大小不可超過 %d MB", Rules.ProofMaxBytes>>20))
	}
	for _, allowed := range Rules.ProofContentTypes {
		if contentType == allowed {
			return nil
		}
	}
	return apperr.ValidationField("file", "僅接受 "+strings.Join(Rules.ProofContentTypes, ", ")+" 格式")
}

// GetProofURLHandler 現在の振込明細を見るための URL
func GetProofURLHandler(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	order, err := Market.GetOrder(c.Request.Context(), id, me(c).ID)
	if err != nil {
		fail(c, err)
		return
	}
	if order.Payment == nil || order.Payment.CurrentProof() == nil {
		fail(c, apperr.NotFound("尚未上傳付款證明"))
		return
	}
	url, err := Market.ProofURL(c.Request.Context(), *order.Payment.CurrentProof())
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"url": url})
}
