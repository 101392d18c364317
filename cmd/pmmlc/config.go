package main

import (
	"fmt"

	"github.com/spf13/viper"
)

// config is pmmlc's project-level configuration, read from pmmlc.yml (or
// PMMLC_* environment variables).
type config struct {
	Server   serverConfig   `mapstructure:"server"`
	Watch    watchConfig    `mapstructure:"watch"`
	Cache    cacheConfig    `mapstructure:"cache"`
	Function functionConfig `mapstructure:"function"`
}

type serverConfig struct {
	Port      int    `mapstructure:"port"`
	SecretKey string `mapstructure:"secret_key"`
}

type watchConfig struct {
	Port int `mapstructure:"port"`
}

type cacheConfig struct {
	SQLitePath string `mapstructure:"sqlite_path"`
	RedisAddr  string `mapstructure:"redis_addr"`
}

type functionConfig struct {
	Name      string `mapstructure:"name"`
	Lowercase bool   `mapstructure:"lowercase"`
}

func loadConfig() (*config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.secret_key", "pmmlc-dev-secret")
	v.SetDefault("watch.port", 8090)
	v.SetDefault("cache.sqlite_path", "pmmlc-cache.db")
	v.SetDefault("function.name", "score")
	v.SetDefault("function.lowercase", true)

	v.SetConfigName("pmmlc")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix("PMMLC")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read pmmlc.yml: %w", err)
		}
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse pmmlc.yml: %w", err)
	}
	return &cfg, nil
}
