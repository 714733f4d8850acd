package services

import (
	"context"
	"time"

	"github.com/Kousuke-irie/bicycle-market/apperr"
	"github.com/Kousuke-irie/bicycle-market/config"
	"github.com/Kousuke-irie/bicycle-market/logger"
	"github.com/Kousuke-irie/bicycle-market/models"
	"github.com/Kousuke-irie/bicycle-market/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Market 出品・出価・注文・支払いの業務ルールをまとめたサービス
type Market struct {
	db      *gorm.DB
	rules   config.MarketConfig
	company config.CompanyAccount
	sweep   config.SweeperConfig
	store   storage.Store
	now     func() time.Time
	log     *logger.Logger
}

type Option func(*Market)

// WithClock 現在時刻の取得元を差し替える (テスト用)
func WithClock(now func() time.Time) Option {
	return func(m *Market) { m.now = now }
}

func WithLogger(l *logger.Logger) Option {
	return func(m *Market) { m.log = l }
}

func New(db *gorm.DB, cfg *config.Config, store storage.Store, opts ...Option) *Market {
	m := &Market{
		db:      db,
		rules:   cfg.Market,
		company: cfg.Company,
		sweep:   cfg.Sweeper,
		store:   store,
		now:     time.Now,
		log:     logger.New("market"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store アップロード先 (ハンドラーから出品画像の保存にも使う)
func (m *Market) Store() storage.Store { return m.store }

func (m *Market) tx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return m.db.WithContext(ctx).Transaction(fn)
}

// forUpdate SELECT ... FOR UPDATE (SQLite ではドライバが無視する)
func forUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (m *Market) requireAdmin(db *gorm.DB, userID uint64) (*models.User, error) {
	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		return nil, apperr.FromDB(err, "找不到使用者")
	}
	if !user.IsAdmin() {
		return nil, apperr.Unauthorized("此操作僅限管理員")
	}
	return &user, nil
}

// timePtr 同じ時刻を複数の列に入れるときに使う
func timePtr(t time.Time) *time.Time { return &t }
