package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	DB         DBConfig         `mapstructure:"db"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Oracle     OracleConfig     `mapstructure:"oracle"`
	Trading    TradingConfig    `mapstructure:"trading"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	Cron       CronConfig       `mapstructure:"cron"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type OracleConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	CacheMaxAge time.Duration `mapstructure:"cache_max_age"`
	Symbols     []string      `mapstructure:"symbols"`
}

type TradingConfig struct {
	MinStake float64 `mapstructure:"min_stake"`
	MaxStake float64 `mapstructure:"max_stake"`
}

type SettlementConfig struct {
	// RandomizedOutcomes selects the policy-driven outcome strategy; when
	// false, scheduled trades resolve by price comparison instead.
	RandomizedOutcomes bool `mapstructure:"randomized_outcomes"`
	SweepBatchSize     int  `mapstructure:"sweep_batch_size"`
}

type CronConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	SettlementSweep string `mapstructure:"settlement_sweep"`
	PriceRefresh    string `mapstructure:"price_refresh"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("oracle.base_url", "https://api.binance.com")
	v.SetDefault("oracle.timeout", "10s")
	v.SetDefault("oracle.cache_max_age", "10m")
	v.SetDefault("oracle.symbols", []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"})
	v.SetDefault("trading.min_stake", 1)
	v.SetDefault("trading.max_stake", 100000)
	v.SetDefault("settlement.randomized_outcomes", true)
	v.SetDefault("settlement.sweep_batch_size", 200)
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.settlement_sweep", "@every 60s")
	v.SetDefault("cron.price_refresh", "@every 5m")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
