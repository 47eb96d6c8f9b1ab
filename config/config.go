package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	MongoURI string        `mapstructure:"mongo_uri"`
	MongoDB  string        `mapstructure:"mongo_db"`
	Port     string        `mapstructure:"port"`
	Eth      EthConfig     `mapstructure:"eth"`
	Watcher  WatcherConfig `mapstructure:"watcher"`
	Sweeper  SweeperConfig `mapstructure:"sweeper"`
	LogLevel string        `mapstructure:"log_level"`
}

type EthConfig struct {
	RPC     string `mapstructure:"rpc"`
	ChainID int64  `mapstructure:"chain_id"`
	MainNet bool   `mapstructure:"main_net"`
}

type WatcherConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxBackoff   time.Duration `mapstructure:"max_backoff"`
}

type SweeperConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// ENV overrides YAML
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("port", "8080")
	v.SetDefault("mongo_db", "walletlink_service")
	v.SetDefault("log_level", "info")
	v.SetDefault("watcher.poll_interval", 5*time.Second)
	v.SetDefault("watcher.max_backoff", time.Minute)
	v.SetDefault("sweeper.interval", 30*time.Second)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
