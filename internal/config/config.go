package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构体（完全匹配 config/config.yaml）
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`   // 服务器配置
	Database DatabaseConfig `mapstructure:"database"` // PostgreSQL配置
	Resolver ResolverConfig `mapstructure:"resolver"` // 外部解析服务配置
	Breaker  BreakerConfig  `mapstructure:"breaker"`  // 熔断器参数
	Sync     SyncConfig     `mapstructure:"sync"`     // 同步与发现参数
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port int    `mapstructure:"port"` // 服务端口
	Mode string `mapstructure:"mode"` // Gin运行模式：debug/release/test
}

// DatabaseConfig PostgreSQL数据库配置
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`               // 连接DSN（URL形式）
	MaxOpenConns    int           `mapstructure:"max_open_conns"`    // 最大打开连接数
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`    // 最大空闲连接数
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"` // 连接最大存活时间
}

// ResolverConfig 外部解析服务（statsfeed 模糊匹配接口）配置
type ResolverConfig struct {
	BaseURL   string `mapstructure:"base_url"`   // API基础地址
	MatchPath string `mapstructure:"match_path"` // 匹配接口路径
	Timeout   int    `mapstructure:"timeout"`    // 请求超时（秒）
	APIKey    string `mapstructure:"api_key"`    // 认证Key（.env 覆盖）
	Proxy     string `mapstructure:"proxy"`      // 代理地址
}

// BreakerConfig 熔断器参数（保护同步路径的全部存储操作）
type BreakerConfig struct {
	FailureThreshold uint32        `mapstructure:"failure_threshold"` // 连续失败多少次后打开
	RecoveryTimeout  time.Duration `mapstructure:"recovery_timeout"`  // 打开后多久进入半开试探
	SuccessThreshold uint32        `mapstructure:"success_threshold"` // 半开下连续成功多少次后闭合
}

// SyncConfig 同步与发现参数
type SyncConfig struct {
	PageSize                   int     `mapstructure:"page_size"`                    // 待同步结果查询页大小
	SubBatchSize               int     `mapstructure:"sub_batch_size"`               // 每事务子批大小
	DiscoveryPageSize          int     `mapstructure:"discovery_page_size"`          // 未映射发现页大小
	SuspectConfidenceThreshold float64 `mapstructure:"suspect_confidence_threshold"` // 低置信度告警阈值
	SuspectStaleDays           int     `mapstructure:"suspect_stale_days"`           // 多少天未核验视为陈旧
}

// LoadConfig 加载配置文件（config/config.yaml），敏感项从 .env 覆盖（不提交 git）
func LoadConfig() (*Config, error) {
	// 1. 加载 .env（若存在），env 中的值会覆盖 config.yaml 中同名字段
	_ = godotenv.Load() // 忽略错误（.env 可不存在）

	// 2. 读取 config.yaml
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	setDefaults()
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	viper.SetTypeByDefaultValue(true)
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 3. 敏感字段：用 env 覆盖（优先级 env > yaml）
	overrideFromEnv(&cfg)
	return &cfg, nil
}

// setDefaults 未在 yaml 中出现的参数取默认值
func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("database.max_open_conns", 20)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "1h")
	viper.SetDefault("resolver.match_path", "/v1/match")
	viper.SetDefault("resolver.timeout", 10)
	viper.SetDefault("breaker.failure_threshold", 5)
	viper.SetDefault("breaker.recovery_timeout", "60s")
	viper.SetDefault("breaker.success_threshold", 3)
	viper.SetDefault("sync.page_size", 1000)
	viper.SetDefault("sync.sub_batch_size", 50)
	viper.SetDefault("sync.discovery_page_size", 500)
	viper.SetDefault("sync.suspect_confidence_threshold", 0.8)
	viper.SetDefault("sync.suspect_stale_days", 30)
}

// overrideFromEnv 用环境变量覆盖敏感配置
func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("RESOLVER_API_KEY"); v != "" {
		cfg.Resolver.APIKey = v
	}
	if v := os.Getenv("RESOLVER_PROXY"); v != "" {
		cfg.Resolver.Proxy = v
	}
}
