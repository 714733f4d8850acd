package config

import (
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Market.ShippingBaseFee != 100 || cfg.Market.ShippingRatePerKm != 10 {
		t.Fatalf("unexpected shipping defaults: %+v", cfg.Market)
	}
	if cfg.Market.PaymentWindow != 72*time.Hour {
		t.Fatalf("expected 72h payment window, got %s", cfg.Market.PaymentWindow)
	}
	if cfg.Market.ReuploadWindow != 24*time.Hour {
		t.Fatalf("expected 24h reupload window, got %s", cfg.Market.ReuploadWindow)
	}
	if cfg.Sweeper.BatchSize != 100 {
		t.Fatalf("expected batch size 100, got %d", cfg.Sweeper.BatchSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "ok", mutate: func(c *Config) {}},
		{name: "bad_driver", mutate: func(c *Config) { c.Database.Driver = "postgres" }, wantErr: true},
		{name: "gcs_without_bucket", mutate: func(c *Config) { c.Storage.Backend = "gcs" }, wantErr: true},
		{name: "gcs_with_bucket", mutate: func(c *Config) { c.Storage.Backend = "gcs"; c.Storage.Bucket = "proofs" }},
		{name: "zero_window", mutate: func(c *Config) { c.Market.PaymentWindow = 0 }, wantErr: true},
		{name: "negative_reupload", mutate: func(c *Config) { c.Market.ReuploadWindow = -time.Hour }, wantErr: true},
		{name: "zero_attempts", mutate: func(c *Config) { c.Market.OrderNumberMaxAttempts = 0 }, wantErr: true},
		{name: "zero_batch", mutate: func(c *Config) { c.Sweeper.BatchSize = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("wantErr=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestMySQLDSN(t *testing.T) {
	t.Parallel()

	d := DatabaseConfig{User: "u", Password: "p", Name: "market", Host: "db", Port: 3306}
	if got, want := d.MySQLDSN(), "u:p@tcp(db:3306)/market?charset=utf8mb4&parseTime=True&loc=Local"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	d.CloudSQLConnectionName = "proj:asia-east1:market"
	if got, want := d.MySQLDSN(), "u:p@unix(/cloudsql/proj:asia-east1:market)/market?charset=utf8mb4&parseTime=True&loc=Local"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	d.DSN = "explicit"
	if got := d.MySQLDSN(); got != "explicit" {
		t.Fatalf("explicit DSN should win, got %q", got)
	}
}
