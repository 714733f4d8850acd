package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Kousuke-irie/bicycle-market/apperr"
	"github.com/Kousuke-irie/bicycle-market/firebase"
	"github.com/Kousuke-irie/bicycle-market/models"
	"github.com/gin-gonic/gin"
)

type stubVerifier map[string]string // token -> uid

func (s stubVerifier) VerifyIDToken(_ context.Context, token string) (*firebase.Token, error) {
	uid, ok := s[token]
	if !ok {
		return nil, errors.New("bad token")
	}
	return &firebase.Token{UID: uid}, nil
}

type stubUsers []*models.User

func (s stubUsers) GetUser(_ context.Context, id uint64) (*models.User, error) {
	for _, u := range s {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, apperr.NotFound("user not found")
}

func (s stubUsers) FindByFirebaseUID(_ context.Context, uid string) (*models.User, error) {
	for _, u := range s {
		if u.FirebaseUID == uid {
			return u, nil
		}
	}
	return nil, apperr.NotFound("user not found")
}

func init() { gin.SetMode(gin.TestMode) }

func newRouter(trustHeader bool) *gin.Engine {
	users := stubUsers{
		{ID: 1, FirebaseUID: "uid-rider", Role: models.RoleUser},
		{ID: 2, FirebaseUID: "uid-admin", Role: models.RoleAdmin},
	}
	verifier := stubVerifier{"good-rider": "uid-rider", "good-admin": "uid-admin", "orphan": "uid-unknown"}

	r := gin.New()
	authed := r.Group("/", Auth(verifier, users, trustHeader))
	authed.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": CurrentUser(c).ID})
	})
	authed.GET("/admin", RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestAuth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		trustHeader bool
		path        string
		header      map[string]string
		wantStatus  int
	}{
		{name: "no_credentials", path: "/me", wantStatus: http.StatusUnauthorized},
		{name: "bearer_ok", path: "/me", header: map[string]string{"Authorization": "Bearer good-rider"}, wantStatus: http.StatusOK},
		{name: "bearer_invalid", path: "/me", header: map[string]string{"Authorization": "Bearer nope"}, wantStatus: http.StatusUnauthorized},
		{name: "bearer_unregistered", path: "/me", header: map[string]string{"Authorization": "Bearer orphan"}, wantStatus: http.StatusUnauthorized},
		{name: "query_token_for_ws", path: "/me?token=good-rider", wantStatus: http.StatusOK},
		{name: "header_ignored_without_trust", path: "/me", header: map[string]string{"X-User-ID": "1"}, wantStatus: http.StatusUnauthorized},
		{name: "header_trusted", trustHeader: true, path: "/me", header: map[string]string{"X-User-ID": "1"}, wantStatus: http.StatusOK},
		{name: "header_bad_format", trustHeader: true, path: "/me", header: map[string]string{"X-User-ID": "abc"}, wantStatus: http.StatusUnauthorized},
		{name: "header_unknown_user", trustHeader: true, path: "/me", header: map[string]string{"X-User-ID": "99"}, wantStatus: http.StatusUnauthorized},
		{name: "admin_forbidden_for_rider", path: "/admin", header: map[string]string{"Authorization": "Bearer good-rider"}, wantStatus: http.StatusForbidden},
		{name: "admin_ok", path: "/admin", header: map[string]string{"Authorization": "Bearer good-admin"}, wantStatus: http.StatusNoContent},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := newRouter(tt.trustHeader)
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("got %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}
