package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Cfg 是一个全局变量，用于存储所有应用程序的配置
var Cfg *Config

// Config 结构体定义了应用程序的所有配置项
// 它与 config.yaml 文件的结构完全对应
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
	Limits   LimitsConfig   `mapstructure:"limits"`
}

// ServerConfig 定义了服务器相关的配置
type ServerConfig struct {
	Mode           string     `mapstructure:"mode"`
	Address        string     `mapstructure:"address"`
	TrustedProxies []string   `mapstructure:"trustedProxies"`
	Cors           CorsConfig `mapstructure:"cors"`
}

// CorsConfig 定义了CORS相关的配置
type CorsConfig struct {
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

// DatabaseConfig 定义了数据库和缓存相关的配置
type DatabaseConfig struct {
	// Driver 取值 sqlite 或 postgres
	Driver string      `mapstructure:"driver"`
	DSN    string      `mapstructure:"dsn"`
	Redis  RedisConfig `mapstructure:"redis"`
}

// RedisConfig 定义了Redis的配置
// Redis是可选的：未启用时，广播和连接限流都退化为单实例的内存实现
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig 定义了会话令牌的签名密钥
// 为空时启动时随机生成，重启后旧令牌全部失效
type AuthConfig struct {
	Secret string `mapstructure:"secret"`
}

// LogConfig 定义了日志级别
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// LimitsConfig 汇总了所有限流参数
type LimitsConfig struct {
	VotesPerWindow             int           `mapstructure:"votesPerWindow"`
	VoteWindow                 time.Duration `mapstructure:"voteWindow"`
	SocketConnectionsPerMinute int           `mapstructure:"socketConnectionsPerMinute"`
	SocketRoomEventsPerMinute  int           `mapstructure:"socketRoomEventsPerMinute"`
	APIRequestsPerMinute       int           `mapstructure:"apiRequestsPerMinute"`
	VoteRequestsPerMinute      int           `mapstructure:"voteRequestsPerMinute"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.address", ":5000")
	v.SetDefault("server.cors.allowedOrigins", []string{"http://localhost:3000"})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "pollsafe.db")
	v.SetDefault("database.redis.enabled", false)
	v.SetDefault("database.redis.address", "localhost:6379")
	v.SetDefault("database.redis.db", 0)

	v.SetDefault("log.level", "info")

	v.SetDefault("limits.votesPerWindow", 2)
	v.SetDefault("limits.voteWindow", time.Hour)
	v.SetDefault("limits.socketConnectionsPerMinute", 30)
	v.SetDefault("limits.socketRoomEventsPerMinute", 60)
	v.SetDefault("limits.apiRequestsPerMinute", 120)
	v.SetDefault("limits.voteRequestsPerMinute", 30)
}

// LoadConfig 函数负责查找、加载和解析配置文件
// 找不到配置文件时使用默认值，环境变量始终可以覆盖，例如 SERVER_ADDRESS=:8080
func LoadConfig() (*Config, error) {
	// .env 只是开发时的便利，不存在不算错误
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	Cfg = &cfg

	return Cfg, nil
}
