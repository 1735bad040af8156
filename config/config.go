// Package config 加载运行配置：默认值 < 配置文件 < JOINERY_* 环境变量（含 .env）。
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StrategyCounter = "counter"
	StrategyRandom  = "random"

	envPrefix = "JOINERY"
)

// Config 运行配置
type Config struct {
	Alias     AliasConfig     `mapstructure:"alias"`
	Database  DatabaseConfig  `mapstructure:"database"`
	PlanCache PlanCacheConfig `mapstructure:"plan_cache"`
	Log       LogConfig       `mapstructure:"log"`
}

// AliasConfig 别名令牌生成策略
type AliasConfig struct {
	// Strategy counter（默认，可复现）或 random
	Strategy    string `mapstructure:"strategy"`
	MinWidth    int    `mapstructure:"min_width"`
	MaxAttempts int    `mapstructure:"max_attempts"`
}

// DatabaseConfig 数据库连接
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// PlanCacheConfig JOIN 计划缓存，MaxSize 为 0 时关闭
type PlanCacheConfig struct {
	MaxSize int `mapstructure:"max_size"`
}

// LogConfig 日志
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Prefix string `mapstructure:"prefix"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Alias:     AliasConfig{Strategy: StrategyCounter, MinWidth: 4, MaxAttempts: 8},
		Database:  DatabaseConfig{Driver: "sqlite", DSN: ":memory:", MaxOpenConns: 1},
		PlanCache: PlanCacheConfig{MaxSize: 256},
		Log:       LogConfig{Level: "info", Prefix: "[joinery]"},
	}
}

// Load 读取配置。
//
// path 为空时不读配置文件；envFiles 中不存在的 .env 文件被忽略。
// .env 中的变量不会覆盖进程中已存在的同名环境变量。
func Load(path string, envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading env file %s: %w", f, err)
		}
	}

	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验取值范围
func (c *Config) Validate() error {
	switch strings.ToLower(c.Alias.Strategy) {
	case StrategyCounter, StrategyRandom:
	default:
		return fmt.Errorf("alias.strategy: unknown strategy %q", c.Alias.Strategy)
	}
	if c.Alias.MinWidth < 1 {
		return fmt.Errorf("alias.min_width must be positive, got %d", c.Alias.MinWidth)
	}
	if c.PlanCache.MaxSize < 0 {
		return fmt.Errorf("plan_cache.max_size must not be negative, got %d", c.PlanCache.MaxSize)
	}
	return nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("alias.strategy", d.Alias.Strategy)
	v.SetDefault("alias.min_width", d.Alias.MinWidth)
	v.SetDefault("alias.max_attempts", d.Alias.MaxAttempts)

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("database.max_open_conns", d.Database.MaxOpenConns)

	v.SetDefault("plan_cache.max_size", d.PlanCache.MaxSize)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.prefix", d.Log.Prefix)
}
