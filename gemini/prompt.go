package gemini

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CatalogEntry AI に選ばせる参照データ
type CatalogEntry struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

type Catalog struct {
	Brands        []CatalogEntry `json:"brands"`
	Conditions    []CatalogEntry `json:"conditions"`
	Transmissions []CatalogEntry `json:"transmissions"`
}

// ListingSuggestion AI が返す出品の下書き。候補に無い ID は nil にする
type ListingSuggestion struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	Price          int64  `json:"price"`
	FrameSize      string `json:"frame_size"`
	BrandID        *uint  `json:"brand_id"`
	ConditionID    *uint  `json:"condition_id"`
	TransmissionID *uint  `json:"transmission_id"`
}

// Negotiation 文案作成に渡す文脈
type Negotiation struct {
	BicycleTitle string
	ListPrice    string
	OfferAmount  string // 空なら金額なし
	Intent       string
	AsSeller     bool
}

func buildListingPrompt(catalogJSON string) string {
	return fmt.Sprintf(`
	你是二手自行車交易平台的刊登助理。
	請分析上傳的自行車照片，並以 JSON 格式輸出以下資訊。

	- title: 簡潔的刊登標題 (30 字以內，包含品牌與車種)
	- description: 100〜200 字的商品說明，描述車況、顏色、用途
	- price: 推測的二手售價 (新台幣，整數)
	- frame_size: 車架尺寸 (例如 "S", "M", "52cm")，無法判斷時為空字串
	- brand_id, condition_id, transmission_id: 只能從下列清單中選擇 ID，無法判斷時為 null
	可用清單:
	%s

	輸出範例:
	{
		"title": "Giant TCR 公路車 M 號",
		"description": "使用約兩年，定期保養...",
		"price": 28000,
		"frame_size": "M",
		"brand_id": 1,
		"condition_id": 3,
		"transmission_id": 7
	}
	`, catalogJSON)
}

func buildDraftPrompt(in Negotiation) string {
	role := "買家"
	if in.AsSeller {
		role = "賣家"
	}
	amount := "未指定金額"
	if in.OfferAmount != "" {
		amount = "NT$" + in.OfferAmount
	}

	return fmt.Sprintf(`
	你是二手自行車交易平台的訊息代筆助理，代替%s撰寫要傳給對方的訊息。

	【重要規則】
	1. 不要自己回答或決定接受、拒絕，只產生要傳送的訊息內容。
	2. 只輸出訊息本文，不要加入說明或「以下是文案」之類的文字。

	【自行車】%s (刊登價格 NT$%s)
	【出價金額】%s
	【使用者的意圖】
	"%s"

	【注意事項】
	- 使用禮貌、誠懇的繁體中文。
	- 議價時若有具體金額請寫入訊息，沒有金額時請委婉詢問是否可以議價。
	`, role, in.BicycleTitle, in.ListPrice, amount, in.Intent)
}

// parseSuggestion AI の JSON を読み取り、候補に無い ID を落とす
func parseSuggestion(raw string, catalog Catalog) (*ListingSuggestion, error) {
	var s ListingSuggestion
	if err := json.Unmarshal([]byte(stripFence(raw)), &s); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	s.Title = strings.TrimSpace(s.Title)
	if s.Price < 0 {
		s.Price = 0
	}
	s.BrandID = knownID(s.BrandID, catalog.Brands)
	s.ConditionID = knownID(s.ConditionID, catalog.Conditions)
	s.TransmissionID = knownID(s.TransmissionID, catalog.Transmissions)
	return &s, nil
}

// stripFence マークダウンのコードブロックが含まれる場合の除去
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func knownID(id *uint, entries []CatalogEntry) *uint {
	if id == nil {
		return nil
	}
	for _, e := range entries {
		if e.ID == *id {
			return id
		}
	}
	return nil
}

// cleanDraft 前後の引用符や空白を落とす
func cleanDraft(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"「」")
	return strings.TrimSpace(s)
}
