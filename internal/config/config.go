package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Scrape       ScrapeConfig       `mapstructure:"scrape"`
	Snapshot     SnapshotConfig     `mapstructure:"snapshot"`
	Marketplaces MarketplacesConfig `mapstructure:"marketplaces"`
	Treatments   TreatmentsConfig   `mapstructure:"treatments"`
	Archive      ArchiveConfig      `mapstructure:"archive"`
	Events       EventsConfig       `mapstructure:"events"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type ScrapeConfig struct {
	Workers       int           `mapstructure:"workers"`
	Interval      time.Duration `mapstructure:"interval"`
	ItemTimeout   time.Duration `mapstructure:"item_timeout"`
	BackfillLimit int           `mapstructure:"backfill_limit"`
}

type SnapshotConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	Window          time.Duration `mapstructure:"window"`
	Currency        string        `mapstructure:"currency"`
	FloorSampleSize int           `mapstructure:"floor_sample_size"`
	MinDeltaVolume  int           `mapstructure:"min_delta_volume"`
	DeltaClampPct   float64       `mapstructure:"delta_clamp_pct"`
}

type MarketplacesConfig struct {
	EBay    MarketplaceConfig `mapstructure:"ebay"`
	Blokpax MarketplaceConfig `mapstructure:"blokpax"`
	OpenSea MarketplaceConfig `mapstructure:"opensea"`
}

type MarketplaceConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

type TreatmentsConfig struct {
	// Aliases maps free-text marketplace variant names (lowercased) to the
	// canonical treatment string. Unresolved names pass through literally.
	Aliases map[string]string `mapstructure:"aliases"`
}

type ArchiveConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
}

type EventsConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/cardpulse.db")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("scrape.workers", 4)
	v.SetDefault("scrape.interval", 6*time.Hour)
	v.SetDefault("scrape.item_timeout", 45*time.Second)
	v.SetDefault("scrape.backfill_limit", 0)
	v.SetDefault("snapshot.interval", 12*time.Hour)
	v.SetDefault("snapshot.window", 24*time.Hour)
	v.SetDefault("snapshot.currency", "USD")
	v.SetDefault("snapshot.floor_sample_size", 4)
	v.SetDefault("snapshot.min_delta_volume", 2)
	v.SetDefault("snapshot.delta_clamp_pct", 100.0)
	v.SetDefault("marketplaces.ebay.enabled", true)
	v.SetDefault("marketplaces.ebay.base_url", "https://api.ebay.com")
	v.SetDefault("marketplaces.blokpax.enabled", true)
	v.SetDefault("marketplaces.blokpax.base_url", "https://api.blokpax.com")
	v.SetDefault("marketplaces.opensea.enabled", false)
	v.SetDefault("marketplaces.opensea.base_url", "https://api.opensea.io")
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.endpoint", "localhost:9000")
	v.SetDefault("archive.use_ssl", false)
	v.SetDefault("archive.bucket", "cardpulse-raw")
	v.SetDefault("events.webhook_url", "")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.dsn", "DATABASE_DSN")
	v.BindEnv("marketplaces.ebay.api_key", "EBAY_API_KEY")
	v.BindEnv("marketplaces.blokpax.api_key", "BLOKPAX_API_KEY")
	v.BindEnv("marketplaces.opensea.api_key", "OPENSEA_API_KEY")
	v.BindEnv("archive.endpoint", "ARCHIVE_ENDPOINT")
	v.BindEnv("archive.access_key", "ARCHIVE_ACCESS_KEY")
	v.BindEnv("archive.secret_key", "ARCHIVE_SECRET_KEY")
	v.BindEnv("events.webhook_url", "EVENTS_WEBHOOK_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
