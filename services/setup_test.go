package services

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Kousuke-irie/bicycle-market/apperr"
	"github.com/Kousuke-irie/bicycle-market/config"
	"github.com/Kousuke-irie/bicycle-market/database"
	"github.com/Kousuke-irie/bicycle-market/models"
	"github.com/Kousuke-irie/bicycle-market/storage"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	db     *gorm.DB
	cfg    *config.Config
	clock  *fakeClock
	store  *storage.DiskStore
	market *Market

	seller *models.User
	buyer  *models.User
	buyer2 *models.User
	admin  *models.User
}

var testStart = time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)

// newFixture インメモリ SQLite に賣家・買家 2 人・管理者を用意する
func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	store, err := storage.NewDiskStore(t.TempDir(), "/uploads")
	if err != nil {
		t.Fatalf("disk store: %v", err)
	}

	f := &fixture{db: db, cfg: config.Default(), clock: &fakeClock{now: testStart}, store: store}
	f.market = New(db, f.cfg, store, WithClock(f.clock.Now))

	f.seller = f.createUser(t, "seller", true, models.RoleUser)
	f.buyer = f.createUser(t, "buyer", false, models.RoleUser)
	f.buyer2 = f.createUser(t, "buyer2", false, models.RoleUser)
	f.admin = f.createUser(t, "admin", false, models.RoleAdmin)
	return f
}

// rebuild 設定を変えた Market を同じ DB と時計で作り直す
func (f *fixture) rebuild(mutate func(cfg *config.Config)) {
	mutate(f.cfg)
	f.market = New(f.db, f.cfg, f.store, WithClock(f.clock.Now))
}

func (f *fixture) createUser(t *testing.T, name string, withBank bool, role string) *models.User {
	t.Helper()
	u := &models.User{
		FirebaseUID: "uid-" + name,
		Email:       name + "@example.com",
		Username:    name,
		Role:        role,
	}
	if withBank {
		u.BankName = "台灣銀行"
		u.BankCode = "004"
		u.BankBranch = "營業部"
		u.BankAccountName = name
		u.BankAccountNumber = "123456789012"
	}
	if err := f.db.Create(u).Error; err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

func (f *fixture) createBicycle(t *testing.T, price int64) *models.Bicycle {
	t.Helper()
	b := &models.Bicycle{
		SellerID: f.seller.ID,
		Title:    fmt.Sprintf("Giant TCR %d", price),
		Price:    decimal.NewFromInt(price),
		ImageURL: `["/uploads/bike.jpg"]`,
		Status:   models.BicycleAvailable,
	}
	if err := f.db.Create(b).Error; err != nil {
		t.Fatalf("create bicycle: %v", err)
	}
	return b
}

func (f *fixture) createOrder(t *testing.T, buyerID, bicycleID uint64) *models.Order {
	t.Helper()
	order, err := f.market.CreateOrder(context.Background(), CreateOrderInput{
		BuyerID:        buyerID,
		BicycleID:      bicycleID,
		ShippingMethod: models.ShippingSelfPickup,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
}

func (f *fixture) uploadProof(t *testing.T, orderID, buyerID uint64, name string) *models.Order {
	t.Helper()
	order, err := f.market.UploadProof(context.Background(), orderID, buyerID, proofFile(name))
	if err != nil {
		t.Fatalf("upload proof: %v", err)
	}
	return order
}

func (f *fixture) reload(t *testing.T, orderID uint64) *models.Order {
	t.Helper()
	order, err := loadOrder(f.db, orderID)
	if err != nil {
		t.Fatalf("reload order: %v", err)
	}
	return order
}

func (f *fixture) bicycleStatus(t *testing.T, id uint64) models.BicycleStatus {
	t.Helper()
	var b models.Bicycle
	if err := f.db.First(&b, id).Error; err != nil {
		t.Fatalf("load bicycle: %v", err)
	}
	return b.Status
}

func proofFile(name string) ProofFile {
	body := []byte("%PDF-1.4 transfer receipt")
	return ProofFile{FileName: name, ContentType: "application/pdf", Size: int64(len(body)), Body: bytes.NewReader(body)}
}

func assertKind(t *testing.T, err error, want string) {
	t.Helper()
	if got := apperr.Kind(err); got != want {
		t.Fatalf("expected %s error, got %q (%v)", want, got, err)
	}
}
