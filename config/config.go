// Package config 提供了统一的配置加载与管理能力.
// 支持 toml 配置文件、IFOREST_ 前缀环境变量覆盖、结构校验与热加载回调。
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/wyfcoding/iforest/logging"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config 全局顶级配置结构.
type Config struct {
	Service  string         `mapstructure:"service"  toml:"service"  validate:"required"`
	Version  string         `mapstructure:"version"  toml:"version"`
	Detector DetectorConfig `mapstructure:"detector" toml:"detector"`
	Log      LogConfig      `mapstructure:"log"      toml:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"  toml:"metrics"`
}

// DetectorConfig 定义孤立森林检测器的训练与判定参数.
type DetectorConfig struct {
	Name      string  `mapstructure:"name"      toml:"name"`
	Trees     int     `mapstructure:"trees"     toml:"trees"     validate:"min=1"`
	MaxDepth  int     `mapstructure:"max_depth" toml:"max_depth" validate:"min=0"`
	Seed      uint64  `mapstructure:"seed"      toml:"seed"`      // 0 表示按时间取种子
	Threshold float64 `mapstructure:"threshold" toml:"threshold"  validate:"min=0"` // 0 表示关闭异常判定
}

// LogConfig 定义日志输出与切割参数.
type LogConfig struct {
	Level      string `mapstructure:"level"       toml:"level"       validate:"omitempty,oneof=debug info warn error"`
	File       string `mapstructure:"file"        toml:"file"`
	MaxSize    int    `mapstructure:"max_size"    toml:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"     toml:"max_age"`
	Compress   bool   `mapstructure:"compress"    toml:"compress"`
}

// MetricsConfig 定义指标暴露参数.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" toml:"enabled"`
	Port    string `mapstructure:"port"    toml:"port"`
}

var (
	vInstance = viper.New()

	reloadMu sync.Mutex
	onReload []func(*Config)
)

// OnReload 注册配置热加载回调，Load 之后配置文件变更时触发.
func OnReload(hook func(*Config)) {
	reloadMu.Lock()
	defer reloadMu.Unlock()
	onReload = append(onReload, hook)
}

// setDefaults 写入各字段的缺省值，配置文件可以只覆盖关心的项.
func setDefaults(v *viper.Viper) {
	v.SetDefault("service", "iforest")
	v.SetDefault("detector.name", "default")
	v.SetDefault("detector.trees", 100)
	v.SetDefault("detector.max_depth", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("metrics.port", "9090")
}

// Load 从指定路径加载配置，支持环境变量覆盖（IFOREST_ 前缀，点号换下划线）.
// 校验通过后开启文件监听，变更时重新反序列化、重新校验并触发回调.
func Load(path string, conf *Config) error {
	setDefaults(vInstance)

	vInstance.SetConfigFile(path)
	vInstance.SetConfigType("toml")

	vInstance.SetEnvPrefix("IFOREST")
	vInstance.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vInstance.AutomaticEnv()

	if err := vInstance.ReadInConfig(); err != nil {
		return fmt.Errorf("read config error: %w", err)
	}

	if err := vInstance.Unmarshal(conf); err != nil {
		return fmt.Errorf("unmarshal config error: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(conf); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	vInstance.WatchConfig()
	vInstance.OnConfigChange(func(event fsnotify.Event) {
		slog.Info("detecting config change", "file", event.Name)
		const debounceTimeout = 500 * time.Millisecond
		time.Sleep(debounceTimeout)

		if unmarshalErr := vInstance.Unmarshal(conf); unmarshalErr != nil {
			slog.Error("reload config unmarshal failed", "error", unmarshalErr)

			return
		}

		// 配置中的日志级别变更自动生效
		logging.SetLevel(conf.Log.Level)

		if validateErr := validate.Struct(conf); validateErr != nil {
			slog.Error("reload config validation failed", "error", validateErr)

			return
		}
		slog.Info("config hot-reloaded and validated successfully")

		reloadMu.Lock()
		hooks := make([]func(*Config), len(onReload))
		copy(hooks, onReload)
		reloadMu.Unlock()
		for _, hook := range hooks {
			hook(conf)
		}
	})

	return nil
}

// Default 返回一份带缺省值的配置，供无配置文件的嵌入式使用场景.
func Default() *Config {
	return &Config{
		Service: "iforest",
		Detector: DetectorConfig{
			Name:     "default",
			Trees:    100,
			MaxDepth: 10,
		},
		Log:     LogConfig{Level: "info"},
		Metrics: MetricsConfig{Port: "9090"},
	}
}

// GetViper 返回底层 viper 实例，供需要读取额外键的调用方使用.
func GetViper() *viper.Viper {
	return vInstance
}
