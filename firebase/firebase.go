package firebase

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/Kousuke-irie/bicycle-market/logger"
	"google.golang.org/api/option"
)

var log = logger.New("firebase")

// Token 検証済みの ID トークンから取り出す情報
type Token struct {
	UID     string
	Email   string
	Name    string
	Picture string
}

// TokenVerifier ID トークンを検証する。テストでは差し替える
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*Token, error)
}

// AuthClient はFirebase Authのクライアントを保持する
type AuthClient struct {
	client *auth.Client
}

// InitFirebase Firebaseの初期化を実行
func InitFirebase(ctx context.Context, credentialsFile string) (*AuthClient, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to init firebase app: %w", err)
	}

	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to init firebase auth: %w", err)
	}
	log.Info("Firebase Auth client initialized!")
	return &AuthClient{client: client}, nil
}

func (a *AuthClient) VerifyIDToken(ctx context.Context, idToken string) (*Token, error) {
	t, err := a.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, err
	}
	return &Token{
		UID:     t.UID,
		Email:   claim(t.Claims, "email"),
		Name:    claim(t.Claims, "name"),
		Picture: claim(t.Claims, "picture"),
	}, nil
}

func claim(claims map[string]interface{}, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}
