// Package config holds the helioctl CLI configuration: the server endpoint
// and the session token used to authenticate against it.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// AppName is the CLI binary name, also used for the config directory.
const AppName = "helioctl"

// CfgFile is populated by the root command's --config flag.
var CfgFile string

// Config is the persisted CLI state.
type Config struct {
	// Endpoint is the heliowatt server base URL, e.g. http://localhost:8080.
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
	// SessionToken authenticates the CLI against the server. The token is
	// issued by the identity layer, not by helioctl itself.
	SessionToken string `yaml:"session_token" mapstructure:"session_token"`
}

// Global is the loaded configuration, valid after InitConfig.
var Global Config

// InitConfig loads the configuration file and environment overrides.
// Environment variables use the HELIOCTL_ prefix.
func InitConfig() error {
	v := viper.New()
	if CfgFile != "" {
		v.SetConfigFile(CfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home directory: %w", err)
		}
		v.AddConfigPath(filepath.Join(home, "."+AppName))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix("HELIOCTL")
	v.AutomaticEnv()
	v.SetDefault("endpoint", "http://localhost:8080")

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine on first run; env and defaults still apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return v.Unmarshal(&Global)
}

// Save writes the current configuration back to the default location.
func Save() error {
	path := CfgFile
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home directory: %w", err)
		}
		dir := filepath.Join(home, "."+AppName)
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	out, err := yaml.Marshal(&Global)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, out, 0o600)
}
