package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Kousuke-irie/bicycle-market/apperr"
	"github.com/Kousuke-irie/bicycle-market/models"
	"gorm.io/gorm"
)

const defaultIconURL = "https://www.gravatar.com/avatar/00000000000000000000000000000000?d=mp&f=y"

// Identity 検証済み ID トークンから取り出した情報
type Identity struct {
	UID     string
	Email   string
	Name    string
	Picture string
}

// ProfileInput nil の項目は変更しない
type ProfileInput struct {
	Username          *string
	Bio               *string
	IconURL           *string
	BankName          *string
	BankCode          *string
	BankBranch        *string
	BankAccountName   *string
	BankAccountNumber *string
}

// UpsertIdentity ログインごとに呼ばれる。UID → メールの順で既存ユーザーを探す
func (m *Market) UpsertIdentity(ctx context.Context, id Identity) (*models.User, error) {
	name := id.Name
	if name == "" && id.Email != "" {
		name = strings.Split(id.Email, "@")[0]
	}
	picture := id.Picture
	if picture == "" {
		picture = defaultIconURL
	}

	var user models.User
	err := m.tx(ctx, func(tx *gorm.DB) error {
		// 1. UID で検索
		err := tx.Where("firebase_uid = ?", id.UID).First(&user).Error
		if err == nil {
			updates := map[string]interface{}{"email": id.Email}
			if user.Username == "" {
				updates["username"] = name
			}
			return tx.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("database error during UID check: %w", err)
		}

		// 2. メールで検索 (UID 未紐付け)
		err = tx.Where("email = ?", id.Email).First(&user).Error
		if err == nil {
			updates := map[string]interface{}{"firebase_uid": id.UID}
			if user.Username == "" {
				updates["username"] = name
			}
			return tx.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("database error during email check: %w", err)
		}

		// 3. 新規作成
		user = models.User{FirebaseUID: id.UID, Email: id.Email, Username: name, IconURL: picture, Role: models.RoleUser}
		return tx.Create(&user).Error
	})
	if err != nil {
		return nil, apperr.FromDB(err, "")
	}
	return m.GetUser(ctx, user.ID)
}

func (m *Market) GetUser(ctx context.Context, userID uint64) (*models.User, error) {
	var user models.User
	if err := m.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return nil, apperr.FromDB(err, "找不到使用者")
	}
	return &user, nil
}

// FindByFirebaseUID 認証ミドルウェアから使う
func (m *Market) FindByFirebaseUID(ctx context.Context, uid string) (*models.User, error) {
	var user models.User
	if err := m.db.WithContext(ctx).Where("firebase_uid = ?", uid).First(&user).Error; err != nil {
		return nil, apperr.FromDB(err, "找不到使用者，請重新登入")
	}
	return &user, nil
}

// UpdateProfile プロフィールと振込先口座
func (m *Market) UpdateProfile(ctx context.Context, userID uint64, in ProfileInput) (*models.User, error) {
	updates := map[string]interface{}{}
	set := func(col string, v *string) {
		if v != nil {
			updates[col] = strings.TrimSpace(*v)
		}
	}
	set("username", in.Username)
	set("bio", in.Bio)
	set("icon_url", in.IconURL)
	set("bank_name", in.BankName)
	set("bank_code", in.BankCode)
	set("bank_branch", in.BankBranch)
	set("bank_account_name", in.BankAccountName)
	set("bank_account_number", in.BankAccountNumber)

	if code, ok := updates["bank_code"].(string); ok && code != "" && !isDigits(code) {
		return nil, apperr.ValidationField("bank_code", "銀行代碼只能包含數字")
	}
	if number, ok := updates["bank_account_number"].(string); ok && number != "" && !isDigits(strings.ReplaceAll(number, "-", "")) {
		return nil, apperr.ValidationField("bank_account_number", "帳號只能包含數字與連字號")
	}

	if _, err := m.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	if len(updates) > 0 {
		if err := m.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to update user: %w", err)
		}
	}
	return m.GetUser(ctx, userID)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
