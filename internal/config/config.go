package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	HTTPAddr       string `mapstructure:"http_addr"`
	PostgresURL    string `mapstructure:"postgres_url"`
	AuthToken      string `mapstructure:"auth_token"`
	InitialSeedNav string `mapstructure:"initial_seed_nav"`
	BaselineUnits  string `mapstructure:"baseline_units"`
	DebugLogging   bool   `mapstructure:"debug_logging"`
	LogFile        string `mapstructure:"log_file"`
}

const (
	DefaultHTTPAddr       = ":8080"
	DefaultInitialSeedNav = "100"
	DefaultBaselineUnits  = "1000"
	DefaultLogFile        = "fundledger.log"
)

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"http_addr":        DefaultHTTPAddr,
		"initial_seed_nav": DefaultInitialSeedNav,
		"baseline_units":   DefaultBaselineUnits,
		"log_file":         DefaultLogFile,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	loadEnvironmentVariables(v, &cfg)

	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	if cfg.PostgresURL == "" {
		return errors.New("missing postgres_url in configuration")
	}
	if cfg.HTTPAddr == "" {
		return errors.New("missing http_addr in configuration")
	}
	if cfg.InitialSeedNav == "" {
		return errors.New("missing initial_seed_nav in configuration")
	}
	if cfg.BaselineUnits == "" {
		return errors.New("missing baseline_units in configuration")
	}
	return nil
}

func loadEnvironmentVariables(v *viper.Viper, cfg *Config) {
	v.AutomaticEnv()
	v.SetEnvPrefix("FUNDLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if envURL := v.GetString("POSTGRES_URL"); envURL != "" {
		cfg.PostgresURL = envURL
	}
	if envToken := v.GetString("AUTH_TOKEN"); envToken != "" {
		cfg.AuthToken = envToken
	}
	if envAddr := v.GetString("HTTP_ADDR"); envAddr != "" {
		cfg.HTTPAddr = envAddr
	}
}
