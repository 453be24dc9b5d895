// Package system 进程级配置加载，config.yaml + .env 环境覆盖。
package system

import (
	"fmt"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"wplace/painter/model"
)

// AutoPurchase 自动购买策略。Type 为 "max_charges" 时按 TargetMax 补上限，
// "charges" 时把多余 droplets 全部换成余额；RetainDroplets 为保留不动的储备。
type AutoPurchase struct {
	Type           string `mapstructure:"type"`
	TargetMax      int    `mapstructure:"targetMax"`
	RetainDroplets int    `mapstructure:"retainDroplets"`
}

// Credentials 账号凭据（wplace 会话 cookie）
type Credentials struct {
	Token       string `mapstructure:"token"`
	CfClearance string `mapstructure:"cfClearance"`
}

// AccountConfig 单账号配置
type AccountConfig struct {
	Identifier      string         `mapstructure:"identifier"`
	Credentials     Credentials    `mapstructure:"credentials"`
	Template        model.Template `mapstructure:"template"`
	PreferredColors []string       `mapstructure:"preferredColors"`
	MinPaintCharges int            `mapstructure:"minPaintCharges"`
	AutoPurchase    *AutoPurchase  `mapstructure:"autoPurchase"`
}

// Config 进程配置
type Config struct {
	Accounts []AccountConfig `mapstructure:"accounts"`
	Proxy    string          `mapstructure:"proxy"`
	Listen   string          `mapstructure:"listen"`   // 状态 API 监听地址，空则不启动
	Browser  string          `mapstructure:"browser"`  // CDP websocket 端点
	LogLevel string          `mapstructure:"logLevel"` // debug/info/warn/error
	LogFile  string          `mapstructure:"logFile"`
}

var (
	cfg     *Config
	cfgOnce sync.Once
	cfgErr  error
)

// Init 加载配置，进程启动时调用一次
func Init(path string) error {
	cfgOnce.Do(func() {
		_ = godotenv.Load() // .env 不存在时忽略

		v := viper.New()
		v.SetConfigFile(path)
		v.SetEnvPrefix("WPLACE")
		v.AutomaticEnv()
		v.SetDefault("listen", "")
		v.SetDefault("logLevel", "info")

		if err := v.ReadInConfig(); err != nil {
			cfgErr = fmt.Errorf("read config: %w", err)
			return
		}
		var c Config
		if err := v.Unmarshal(&c); err != nil {
			cfgErr = fmt.Errorf("unmarshal config: %w", err)
			return
		}
		if err := validate(&c); err != nil {
			cfgErr = err
			return
		}
		cfg = &c
	})
	return cfgErr
}

func validate(c *Config) error {
	if len(c.Accounts) == 0 {
		return fmt.Errorf("no accounts configured")
	}
	seen := map[string]bool{}
	for i := range c.Accounts {
		a := &c.Accounts[i]
		if a.Identifier == "" {
			return fmt.Errorf("account #%d: identifier is required", i)
		}
		if seen[a.Identifier] {
			return fmt.Errorf("duplicated account identifier %q", a.Identifier)
		}
		seen[a.Identifier] = true
		if a.Credentials.Token == "" {
			return fmt.Errorf("account %s: credentials.token is required", a.Identifier)
		}
		if a.Template.File == "" {
			return fmt.Errorf("account %s: template.file is required", a.Identifier)
		}
		if a.MinPaintCharges <= 0 {
			a.MinPaintCharges = 10
		}
	}
	return nil
}

// GetConfig 取进程配置，Init 成功之后才可调用
func GetConfig() *Config {
	if cfg == nil {
		panic("system: config not initialized")
	}
	return cfg
}
