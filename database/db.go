package database

import (
	"fmt"

	"github.com/Kousuke-irie/bicycle-market/config"
	"github.com/Kousuke-irie/bicycle-market/logger"
	"github.com/Kousuke-irie/bicycle-market/models"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DBClient はGORMのクライアントを保持する
var DBClient *gorm.DB

var log = logger.New("database")

// InitDB 接続・マイグレーション・初期データ投入をまとめて行う
func InitDB(cfg config.DatabaseConfig) error {
	db, err := Open(cfg)
	if err != nil {
		return err
	}
	if err := Migrate(db); err != nil {
		return err
	}
	if cfg.Seed {
		if err := SeedData(db); err != nil {
			return fmt.Errorf("failed to seed data: %w", err)
		}
	}
	DBClient = db
	return nil
}

// Open ドライバを選んで接続する。重複キーは gorm.ErrDuplicatedKey に変換させる
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "mysql":
		dialector = mysql.Open(cfg.MySQLDSN())
	case "sqlite":
		path := cfg.SQLitePath
		if cfg.DSN != "" {
			path = cfg.DSN
		}
		dialector = sqlite.Open(path)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// SQLite は書き込みが1本しか通らないので接続を1つに絞る
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql.DB: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// Migrate テーブル定義を最新化する
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	log.Info("Database migration completed")
	return nil
}

// SeedData 参照データ (ブランド・車種・変速機・状態) を投入する。何度実行しても重複しない
func SeedData(db *gorm.DB) error {
	brands := []struct {
		Name   string
		Models []string
	}{
		{Name: "Giant", Models: []string{"TCR", "Defy", "Escape", "Talon"}},
		{Name: "Merida", Models: []string{"Scultura", "Reacto", "Crossway", "Big.Nine"}},
		{Name: "Trek", Models: []string{"Domane", "Emonda", "FX", "Marlin"}},
		{Name: "Specialized", Models: []string{"Tarmac", "Roubaix", "Sirrus", "Rockhopper"}},
		{Name: "Bianchi", Models: []string{"Oltre", "Via Nirone", "Roma"}},
		{Name: "Brompton", Models: []string{"C Line", "P Line"}},
		{Name: "Cannondale", Models: []string{"SuperSix", "Synapse", "Quick"}},
		{Name: "その他", Models: []string{"不明"}},
	}

	// 1. ブランドと車種
	for _, b := range brands {
		brand := models.Brand{Name: b.Name}
		if err := db.Where(models.Brand{Name: b.Name}).FirstOrCreate(&brand).Error; err != nil {
			return fmt.Errorf("failed to seed brand %s: %w", b.Name, err)
		}
		for _, name := range b.Models {
			m := models.BicycleModel{BrandID: brand.ID, Name: name}
			if err := db.Where(models.BicycleModel{BrandID: brand.ID, Name: name}).FirstOrCreate(&m).Error; err != nil {
				return fmt.Errorf("failed to seed model %s: %w", name, err)
			}
		}
	}

	// 2. 変速機
	transmissions := []models.Transmission{
		{Name: "シングルスピード", Speeds: 1},
		{Name: "内装3段", Speeds: 3},
		{Name: "Shimano Tourney 7速", Speeds: 7},
		{Name: "Shimano Claris 2x8速", Speeds: 16},
		{Name: "Shimano Sora 2x9速", Speeds: 18},
		{Name: "Shimano Tiagra 2x10速", Speeds: 20},
		{Name: "Shimano 105 2x11速", Speeds: 22},
		{Name: "Shimano Ultegra 2x11速", Speeds: 22},
		{Name: "SRAM Rival 2x12速", Speeds: 24},
	}
	for _, tr := range transmissions {
		if err := db.Where(models.Transmission{Name: tr.Name}).FirstOrCreate(&tr).Error; err != nil {
			return fmt.Errorf("failed to seed transmission %s: %w", tr.Name, err)
		}
	}

	// 3. 車体の状態
	conditions := []models.Condition{
		{Name: "新品、未使用", Rank: 1},
		{Name: "未使用に近い", Rank: 2},
		{Name: "目立った傷や汚れなし", Rank: 3},
		{Name: "やや傷や汚れあり", Rank: 4},
		{Name: "傷や汚れあり", Rank: 5},
		{Name: "要整備", Rank: 6},
	}
	for _, cond := range conditions {
		if err := db.Where(models.Condition{Name: cond.Name}).FirstOrCreate(&cond).Error; err != nil {
			return fmt.Errorf("failed to seed condition %s: %w", cond.Name, err)
		}
	}
	return nil
}
