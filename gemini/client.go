package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Kousuke-irie/bicycle-market/config"
	"github.com/Kousuke-irie/bicycle-market/logger"
	"google.golang.org/api/option"
)

var log = logger.New("gemini")

// ErrEmptyResponse AI が何も返さなかった
var ErrEmptyResponse = errors.New("no response from AI")

// Client Vertex AI の Gemini クライアント
type Client struct {
	genai *genai.Client
	model string
}

// NewClient 認証ファイルが無ければデフォルトの認証で接続する
func NewClient(ctx context.Context, cfg config.GeminiConfig) (*Client, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	} else {
		log.Warn("gemini credentials file is not set. Trying default authentication...")
	}

	client, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Location, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Client{genai: client, model: cfg.Model}, nil
}

func (c *Client) Close() error { return c.genai.Close() }

// AnalyzeBicycleImage 写真から出品内容の下書きを作る
func (c *Client) AnalyzeBicycleImage(ctx context.Context, image []byte, format string, catalog Catalog) (*ListingSuggestion, error) {
	model := c.genai.GenerativeModel(c.model)
	// 期待するレスポンスのフォーマットを強制する
	model.ResponseMIMEType = "application/json"

	catalogJSON, err := json.Marshal(catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal catalog: %w", err)
	}
	if format == "" {
		format = "jpeg"
	}

	resp, err := model.GenerateContent(ctx,
		genai.Text(buildListingPrompt(string(catalogJSON))),
		genai.ImageData(format, image),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}
	text, err := firstText(resp)
	if err != nil {
		return nil, err
	}
	return parseSuggestion(text, catalog)
}

// DraftNegotiationMessage 出価・値下げ交渉のメッセージ文案を作る
func (c *Client) DraftNegotiationMessage(ctx context.Context, in Negotiation) (string, error) {
	model := c.genai.GenerativeModel(c.model)

	resp, err := model.GenerateContent(ctx, genai.Text(buildDraftPrompt(in)))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	text, err := firstText(resp)
	if err != nil {
		return "", err
	}
	return cleanDraft(text), nil
}

func firstText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyResponse
	}
	text, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return "", fmt.Errorf("unexpected response format")
	}
	return string(text), nil
}
