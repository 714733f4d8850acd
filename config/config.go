package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config アプリ全体の設定。起動時に一度だけ読み込む
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Gemini   GeminiConfig   `mapstructure:"gemini"`
	Market   MarketConfig   `mapstructure:"market"`
	Company  CompanyAccount `mapstructure:"company"`
	Sweeper  SweeperConfig  `mapstructure:"sweeper"`
}

type AppConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	UploadDir      string   `mapstructure:"upload_dir"`
}

type DatabaseConfig struct {
	Driver                 string `mapstructure:"driver"` // "mysql" or "sqlite"
	DSN                    string `mapstructure:"dsn"`
	Host                   string `mapstructure:"host"`
	Port                   int    `mapstructure:"port"`
	User                   string `mapstructure:"user"`
	Password               string `mapstructure:"password"`
	Name                   string `mapstructure:"name"`
	CloudSQLConnectionName string `mapstructure:"cloud_sql_connection_name"`
	SQLitePath             string `mapstructure:"sqlite_path"`
	Seed                   bool   `mapstructure:"seed"`
}

type AuthConfig struct {
	FirebaseCredentialsFile string `mapstructure:"firebase_credentials_file"`
	// ローカル開発用: X-User-ID ヘッダーをそのまま信用する
	TrustUserHeader bool `mapstructure:"trust_user_header"`
}

type StorageConfig struct {
	Backend         string        `mapstructure:"backend"` // "gcs" or "local"
	Bucket          string        `mapstructure:"bucket"`
	CredentialsFile string        `mapstructure:"credentials_file"`
	LocalDir        string        `mapstructure:"local_dir"`
	PublicBaseURL   string        `mapstructure:"public_base_url"`
	SignedURLTTL    time.Duration `mapstructure:"signed_url_ttl"`
}

type GeminiConfig struct {
	ProjectID       string `mapstructure:"project_id"`
	Location        string `mapstructure:"location"`
	Model           string `mapstructure:"model"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// MarketConfig 取引ルールの数値。金額は新台幣の整数
type MarketConfig struct {
	ShippingBaseFee        int64         `mapstructure:"shipping_base_fee"`
	ShippingRatePerKm      int64         `mapstructure:"shipping_rate_per_km"`
	PaymentWindow          time.Duration `mapstructure:"payment_window"`
	ReuploadWindow         time.Duration `mapstructure:"reupload_window"` // 退回後の再提出猶予。期限後に退回されたときに効く
	OrderNumberMaxAttempts int           `mapstructure:"order_number_max_attempts"`
	ProofMaxBytes          int64         `mapstructure:"proof_max_bytes"`
	ProofContentTypes      []string      `mapstructure:"proof_content_types"`
}

// CompanyAccount 振込先として案内する会社口座
type CompanyAccount struct {
	BankName      string `mapstructure:"bank_name"`
	BankCode      string `mapstructure:"bank_code"`
	BranchName    string `mapstructure:"branch_name"`
	AccountName   string `mapstructure:"account_name"`
	AccountNumber string `mapstructure:"account_number"`
}

type SweeperConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Interval      time.Duration `mapstructure:"interval"`
	BatchSize     int           `mapstructure:"batch_size"`
	MaxIterations int           `mapstructure:"max_iterations"`
}

// Load .env → config.yaml → 環境変数 (BIKEMARKET_*) の順で読み込む
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using config file and environment only")
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("BIKEMARKET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default 設定ファイルなしの既定値 (テストでも使う)
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", 8082)
	v.SetDefault("app.allowed_origins", []string{"*"})
	v.SetDefault("app.upload_dir", "./uploads")

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.sqlite_path", "./bicycle_market.db")
	v.SetDefault("database.seed", true)

	v.SetDefault("auth.firebase_credentials_file", "serviceAccountKey.json")
	v.SetDefault("auth.trust_user_header", false)

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_dir", "./uploads")
	v.SetDefault("storage.public_base_url", "/uploads")
	v.SetDefault("storage.signed_url_ttl", "15m")

	v.SetDefault("gemini.location", "us-central1")
	v.SetDefault("gemini.model", "gemini-2.0-flash-001")

	v.SetDefault("market.shipping_base_fee", 100)
	v.SetDefault("market.shipping_rate_per_km", 10)
	v.SetDefault("market.payment_window", "72h")
	v.SetDefault("market.reupload_window", "24h")
	v.SetDefault("market.order_number_max_attempts", 10)
	v.SetDefault("market.proof_max_bytes", 10<<20)
	v.SetDefault("market.proof_content_types", []string{"image/jpeg", "image/png", "application/pdf"})

	v.SetDefault("company.bank_name", "台灣銀行")
	v.SetDefault("company.bank_code", "004")
	v.SetDefault("company.branch_name", "營業部")
	v.SetDefault("company.account_name", "單車二手市集股份有限公司")
	v.SetDefault("company.account_number", "000-000-000000")

	v.SetDefault("sweeper.enabled", true)
	v.SetDefault("sweeper.interval", "10m")
	v.SetDefault("sweeper.batch_size", 100)
	v.SetDefault("sweeper.max_iterations", 50)
}

// Validate 起動できない設定を早めに弾く
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Storage.Backend {
	case "gcs":
		if c.Storage.Bucket == "" {
			return errors.New("storage.bucket is required for the gcs backend")
		}
	case "local":
	default:
		return fmt.Errorf("unsupported storage backend %q", c.Storage.Backend)
	}
	if c.Market.PaymentWindow <= 0 {
		return errors.New("market.payment_window must be positive")
	}
	if c.Market.ReuploadWindow < 0 {
		return errors.New("market.reupload_window must not be negative")
	}
	if c.Market.OrderNumberMaxAttempts <= 0 {
		return errors.New("market.order_number_max_attempts must be positive")
	}
	if c.Sweeper.BatchSize <= 0 || c.Sweeper.MaxIterations <= 0 {
		return errors.New("sweeper.batch_size and sweeper.max_iterations must be positive")
	}
	return nil
}

// MySQLDSN Cloud SQL のソケット接続名があればそちらを優先する
func (d DatabaseConfig) MySQLDSN() string {
	if d.DSN != "" {
		return d.DSN
	}
	if d.CloudSQLConnectionName != "" {
		return fmt.Sprintf("%s:%s@unix(/cloudsql/%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			d.User, d.Password, d.CloudSQLConnectionName, d.Name)
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		d.User, d.Password, d.Host, d.Port, d.Name)
}
