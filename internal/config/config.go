package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

const (
	// DriverSQLite 使用本地 sqlite 文件存储计数器。
	DriverSQLite = "sqlite"
	// DriverMySQL 使用云托管提供的 MySQL。
	DriverMySQL = "mysql"
	// DriverMemory 仅在进程内保存计数，重启即丢失。
	DriverMemory = "memory"
)

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	ListenAddr     string       `yaml:"listen_addr"`
	Port           string       `yaml:"port"`
	GinMode        string       `yaml:"gin_mode"`
	LogLevel       string       `yaml:"log_level"`
	LogFormat      string       `yaml:"log_format"`
	SiteTitle      string       `yaml:"site_title"`
	DatabaseDriver string       `yaml:"database_driver"`
	DatabasePath   string       `yaml:"database_path"`
	MySQL          MySQLConfig  `yaml:"mysql"`
	WeChat         WeChatConfig `yaml:"wechat"`
}

// MySQLConfig 对应微信云托管注入的 MYSQL_* 环境变量。
type MySQLConfig struct {
	Address  string `yaml:"address"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// WeChatConfig 保存公众号凭证与接口地址。
type WeChatConfig struct {
	AppID       string `yaml:"app_id"`
	AppSecret   string `yaml:"app_secret"`
	APIBase     string `yaml:"api_base"`
	AttachToken bool   `yaml:"attach_token"`
}

// DSN 生成 gorm mysql 驱动使用的连接串。
func (m MySQLConfig) DSN() string {
	address := m.Address
	if address == "" {
		address = "127.0.0.1:3306"
	}
	user := m.Username
	if user == "" {
		user = "root"
	}
	database := m.Database
	if database == "" {
		database = "flask_demo"
	}
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?charset=utf8mb4&parseTime=true&loc=Local", user, m.Password, address, database)
}

// DSNMasked 返回隐藏密码后的连接串，用于日志输出。
func (m MySQLConfig) DSNMasked() string {
	masked := m
	if masked.Password != "" {
		masked.Password = "******"
	}
	return masked.DSN()
}

// Load 从环境变量读取应用配置，并为缺失项提供安全的默认值。
// 设置 CONFIG_FILE 时先读取该 YAML 文件，环境变量优先级更高。
func Load() (AppConfig, error) {
	var cfg AppConfig

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		fileCfg, err := LoadFile(path)
		if err != nil {
			return AppConfig{}, err
		}
		cfg = fileCfg
	}

	cfg.Port = envOr("PORT", cfg.Port)
	cfg.ListenAddr = envOr("LISTEN_ADDR", cfg.ListenAddr)
	cfg.GinMode = envOr("GIN_MODE", cfg.GinMode)
	cfg.LogLevel = envOr("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envOr("LOG_FORMAT", cfg.LogFormat)
	cfg.SiteTitle = envOr("SITE_TITLE", cfg.SiteTitle)
	cfg.DatabaseDriver = envOr("DATABASE_DRIVER", cfg.DatabaseDriver)
	cfg.DatabasePath = envOr("DATABASE_PATH", cfg.DatabasePath)

	cfg.MySQL.Address = envOr("MYSQL_ADDRESS", cfg.MySQL.Address)
	cfg.MySQL.Username = envOr("MYSQL_USERNAME", cfg.MySQL.Username)
	cfg.MySQL.Password = envOr("MYSQL_PASSWORD", cfg.MySQL.Password)
	cfg.MySQL.Database = envOr("MYSQL_DATABASE", cfg.MySQL.Database)

	cfg.WeChat.AppID = envOr("APPID", cfg.WeChat.AppID)
	cfg.WeChat.AppSecret = envOr("APPSECRET", cfg.WeChat.AppSecret)
	cfg.WeChat.APIBase = envOr("WECHAT_API_BASE", cfg.WeChat.APIBase)

	if raw := strings.TrimSpace(os.Getenv("WECHAT_ATTACH_TOKEN")); raw != "" {
		attach, err := strconv.ParseBool(raw)
		if err != nil {
			return AppConfig{}, fmt.Errorf("invalid WECHAT_ATTACH_TOKEN %q: %w", raw, err)
		}
		cfg.WeChat.AttachToken = attach
	}

	applyDefaults(&cfg)

	switch cfg.DatabaseDriver {
	case DriverSQLite, DriverMySQL, DriverMemory:
	default:
		return AppConfig{}, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}

	return cfg, nil
}

// LoadFile 读取 YAML 配置文件，不做默认值填充。
func LoadFile(path string) (AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return AppConfig{}, fmt.Errorf("read config file %s: %w", path, err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Port == "" {
		cfg.Port = "80"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = fmt.Sprintf(":%s", cfg.Port)
	}
	if cfg.GinMode == "" {
		cfg.GinMode = "release"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
	}
	if cfg.SiteTitle == "" {
		cfg.SiteTitle = "微信云托管"
	}
	cfg.DatabaseDriver = strings.ToLower(cfg.DatabaseDriver)
	if cfg.DatabaseDriver == "" {
		if cfg.MySQL.Address != "" {
			cfg.DatabaseDriver = DriverMySQL
		} else {
			cfg.DatabaseDriver = DriverSQLite
		}
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "wxcloudrun.db"
	}
	if cfg.MySQL.Username == "" {
		cfg.MySQL.Username = "root"
	}
	if cfg.MySQL.Database == "" {
		cfg.MySQL.Database = "flask_demo"
	}
	if cfg.WeChat.APIBase == "" {
		cfg.WeChat.APIBase = "https://api.weixin.qq.com"
	}
	cfg.WeChat.APIBase = strings.TrimRight(cfg.WeChat.APIBase, "/")
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return strings.TrimSpace(fallback)
}
