// Package configs 管理应用程序配置，包括数据库、对象存储、消息队列以及文档流水线的配置信息.
// configs 包支持多种配置格式（YAML、JSON、TOML、dotenv），环境变量前缀为 DOCPIPE.
//
// 流水线组件在构造时接收配置快照（值拷贝），之后不再读取全局配置；
// 热重载只会重新应用日志级别.
//
// Example:
//
//	cfg, err := configs.InitConfig("./")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Println(cfg.Pipeline.ReconcileInterval)
package configs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/yeisme/docpipe/pkg/rule"
)

// AppVersion 应用版本，构建时可通过 -ldflags 覆盖.
var AppVersion = "0.1.0"

// EnvPrefix 环境变量前缀.
const EnvPrefix = "DOCPIPE"

type (
	// AppConfig 全局应用程序配置.
	AppConfig struct {
		Server         ServerConfig         `mapstructure:"server"`          // ServerConfig 服务器配置
		Log            LogConfig            `mapstructure:"log"`             // LogConfig 日志相关配置
		DB             DBConfig             `mapstructure:"db"`              // DBConfig 元数据库配置
		S3             S3Config             `mapstructure:"s3"`              // S3Config 对象存储配置
		MQ             MQConfig             `mapstructure:"mq"`              // MQConfig 消息队列配置
		KV             KVConfig             `mapstructure:"kv"`              // KVConfig 键值存储配置（租约、缓存）
		Metrics        MetricsConfig        `mapstructure:"metrics"`         // MetricsConfig 监控配置
		Tracing        TracingConfig        `mapstructure:"tracing"`         // TracingConfig 追踪配置
		RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`      // RateLimitConfig HTTP 限流
		CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"` // CircuitBreakerConfig HTTP 熔断
		Auth           AuthConfig           `mapstructure:"auth"`            // AuthConfig 身份头校验
		Events         EventsConfig         `mapstructure:"events"`          // EventsConfig 消息主题
		Pipeline       PipelineConfig       `mapstructure:"pipeline"`        // PipelineConfig 流水线阈值与调度
		Engine         EngineConfig         `mapstructure:"engine"`          // EngineConfig 外部摄取引擎
		Inference      InferenceConfig      `mapstructure:"inference"`       // InferenceConfig 外部推理引擎
	}
)

var (
	// globalConfig 全局配置实例.
	globalConfig AppConfig
	// appViper 全局 Viper 实例.
	appViper *viper.Viper
)

// InitConfig 加载应用程序配置，支持多种格式(yaml、json、toml、dotenv).
// 找不到配置文件时使用默认值与环境变量.
func InitConfig(path string) (*AppConfig, error) {
	v, err := load(path)
	if err != nil {
		return nil, err
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	appViper = v
	globalConfig = cfg

	reloadConfigs(v, cfg.Server.ReloadConfig)

	return &cfg, nil
}

// load 构建 viper 实例并读取配置文件.
func load(path string) (*viper.Viper, error) {
	v := viper.New()
	// 设置默认值
	setAllDefaults(v)

	if info, err := os.Stat(path); path != "" && err == nil && !info.IsDir() {
		// 是文件，使用SetConfigFile，Viper会自动检测类型
		v.SetConfigFile(path)
	} else {
		if path == "" {
			path = "."
		}

		v.SetConfigName("config")
		v.AddConfigPath(path)
		v.AddConfigPath(path + "/configs")

		exts := []string{"yaml", "yml", "json", "toml", "env", "dotenv"}

		for _, ext := range exts {
			cfg := filepath.Join(path, "config."+ext)
			if _, err := os.Stat(cfg); err == nil {
				v.SetConfigFile(cfg)

				break
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 配置文件缺失时允许仅用默认值与环境变量运行
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return v, nil
}

// Validate 使用 rule 标签校验配置.
func (c *AppConfig) Validate() error {
	if err := rule.ValidateStruct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// 租约必须覆盖整个注册调用，否则另一个副本会在 StartJob 期间重新认领
	if budget := c.Engine.RegistrationBudget(); c.Pipeline.ClaimLease <= budget {
		return fmt.Errorf("invalid config: pipeline.claim_lease %s must exceed engine timeout plus retry backoff %s",
			c.Pipeline.ClaimLease, budget)
	}

	return nil
}

// setAllDefaults 设置所有配置的默认值.
func setAllDefaults(v *viper.Viper) {
	var (
		serverConfig    ServerConfig
		logConfig       LogConfig
		dbConfig        DBConfig
		s3Config        S3Config
		mqConfig        MQConfig
		kvConfig        KVConfig
		metricsConfig   MetricsConfig
		tracingConfig   TracingConfig
		rateLimitConfig RateLimitConfig
		cbConfig        CircuitBreakerConfig
		authConfig      AuthConfig
		eventsConfig    EventsConfig
		pipelineConfig  PipelineConfig
		engineConfig    EngineConfig
		inferenceConfig InferenceConfig
	)

	serverConfig.setDefaults(v)
	logConfig.setDefaults(v)
	dbConfig.setDefaults(v)
	s3Config.setDefaults(v)
	mqConfig.setDefaults(v)
	kvConfig.setDefaults(v)
	metricsConfig.setDefaults(v)
	tracingConfig.setDefaults(v)
	rateLimitConfig.setDefaults(v)
	cbConfig.setDefaults(v)
	authConfig.setDefaults(v)
	eventsConfig.setDefaults(v)
	pipelineConfig.setDefaults(v)
	engineConfig.setDefaults(v)
	inferenceConfig.setDefaults(v)
}

// reloadListeners 在日志级别变化时被调用.
var reloadListeners []func(LogConfig)

// OnLogConfigChange 注册热重载回调，仅传递日志配置.
func OnLogConfigChange(fn func(LogConfig)) {
	reloadListeners = append(reloadListeners, fn)
}

func reloadConfigs(v *viper.Viper, isHotReload bool) {
	if !isHotReload || v.ConfigFileUsed() == "" {
		return
	}
	// 流水线组件持有构造时的快照，这里只刷新日志配置
	v.OnConfigChange(func(e fsnotify.Event) {
		var logCfg LogConfig
		if err := v.UnmarshalKey("log", &logCfg); err != nil {
			fmt.Fprintf(os.Stderr, "reload config %s: %v\n", e.Name, err)
			return
		}

		globalConfig.Log = logCfg

		for _, fn := range reloadListeners {
			fn(logCfg)
		}
	})
	v.WatchConfig()
}

// GetConfig 返回最近一次加载的配置（供 CLI 子命令读取）.
func GetConfig() *AppConfig {
	return &globalConfig
}

// GetViper 返回全局 viper 实例.
func GetViper() *viper.Viper {
	return appViper
}

// Default 返回只包含默认值的配置，便于测试和本地工具使用.
func Default() AppConfig {
	v := viper.New()
	setAllDefaults(v)

	var cfg AppConfig

	_ = v.Unmarshal(&cfg)

	return cfg
}
