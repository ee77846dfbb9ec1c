package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// VendorConfig holds this service's own client credentials for one OAuth
// vendor, plus base URL overrides used by tests and staging environments.
type VendorConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	AuthBaseURL  string `mapstructure:"auth_base_url"`
	APIBaseURL   string `mapstructure:"api_base_url"`
	// APIKey is the developer key some vendors require on data calls in
	// addition to the user's bearer token (microinverter vendor).
	APIKey string `mapstructure:"api_key"`
}

// Config is the full server configuration, loaded from yaml file and
// environment variables.
type Config struct {
	HTTPPort    string `mapstructure:"HTTP_PORT"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	LogPretty   bool   `mapstructure:"LOG_PRETTY"`
	OtelService string `mapstructure:"OTEL_SERVICE_NAME"`

	// Storage selects the repository backend: "mongo" or "memory".
	Storage     string `mapstructure:"STORAGE"`
	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDBName string `mapstructure:"MONGO_DB_NAME"`

	// RedisAddr, when non-empty, switches the credential cache from the
	// in-process TTL cache to redis (multi-instance deployments).
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	Tesla     VendorConfig `mapstructure:"tesla"`
	Enphase   VendorConfig `mapstructure:"enphase"`
	Wallbox   VendorConfig `mapstructure:"wallbox"`
	SolarEdge VendorConfig `mapstructure:"solaredge"`
}

// Load reads configuration from config.yaml, environment variables and
// defaults, in increasing precedence of env over file.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/heliowatt/")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)
	v.SetDefault("OTEL_SERVICE_NAME", "heliowatt-core")
	v.SetDefault("STORAGE", "mongo")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017/heliowatt")
	v.SetDefault("MONGO_DB_NAME", "heliowatt")

	v.SetDefault("tesla.auth_base_url", "https://auth.tesla.com")
	v.SetDefault("tesla.api_base_url", "https://owner-api.teslamotors.com")
	v.SetDefault("enphase.auth_base_url", "https://api.enphaseenergy.com")
	v.SetDefault("enphase.api_base_url", "https://api.enphaseenergy.com/api/v4")
	v.SetDefault("wallbox.api_base_url", "https://api.wall-box.com")
	v.SetDefault("solaredge.api_base_url", "https://monitoringapi.solaredge.com")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No file is fine; env vars and defaults apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	return &cfg, nil
}
