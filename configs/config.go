package configs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// 支持的登录方式
const (
	LoginTypeQRCode = "qrcode"
	LoginTypePhone  = "phone"
	LoginTypeCookie = "cookie"
	LoginTypeManual = "manual"
	LoginTypeNone   = "none"
)

// EnvPrefix 环境变量前缀，例如 BILI_KEYWORD
const EnvPrefix = "BILI"

// profileRoot 持久化浏览器目录的父目录
const profileRoot = "browser_data"

// Config 一次运行的全部配置。来源优先级：命令行 > 环境变量 > 配置文件 > 默认值
type Config struct {
	Platform  string
	Keyword   string
	LoginType string
	// LoginPhone 手机号登录时预填的号码
	LoginPhone string
	// Cookies cookie 登录方式使用的 "k=v; k2=v2" 串
	Cookies string

	Headless       bool
	SaveLoginState bool
	UserDataDir    string
	BinPath        string
	Proxy          string
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int

	MaxConcurrency       int
	ScrollBursts         int
	LoginMaxAttempts     int
	LoginInterval        time.Duration
	LoginRedirectWait    time.Duration
	FieldTimeout         time.Duration
	NavigationTimeout    time.Duration
	NavigationsPerSecond float64
	BlockedResources     []string
	EnableComments       bool

	CookiesPath string
	LogLevel    string
	LogFormat   string
}

// SetDefaults 注册默认值。环境变量只有在 key 已知时才会被 viper 读到，所以每个 key 都要有默认值。
func SetDefaults(v *viper.Viper) {
	v.SetDefault("platform", "bili")
	v.SetDefault("keyword", "")
	v.SetDefault("login_type", LoginTypeQRCode)
	v.SetDefault("login_phone", "")
	v.SetDefault("cookies", "")
	v.SetDefault("headless", false)
	v.SetDefault("save_login_state", true)
	v.SetDefault("user_data_dir", "%s_user_data_dir")
	v.SetDefault("bin_path", "")
	v.SetDefault("proxy", "")
	v.SetDefault("user_agent", "")
	v.SetDefault("viewport_width", 1920)
	v.SetDefault("viewport_height", 1080)
	v.SetDefault("max_concurrency", 5)
	v.SetDefault("scroll_bursts", 5)
	v.SetDefault("login_max_attempts", 600)
	v.SetDefault("login_interval", time.Second)
	v.SetDefault("login_redirect_wait", 5*time.Second)
	v.SetDefault("field_timeout", 5*time.Second)
	v.SetDefault("navigation_timeout", 30*time.Second)
	v.SetDefault("navigations_per_second", 0.0)
	v.SetDefault("blocked_resources", "")
	v.SetDefault("enable_comments", true)
	v.SetDefault("cookies_path", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// NewViper 创建带默认值和环境变量绑定的 viper 实例，path 为空时不读配置文件
func NewViper(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, errors.Wrapf(err, "config file %s", path)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, "failed to read config")
		}
	}
	return v, nil
}

// Load 读取配置文件与环境变量，不做校验，命令行覆盖之后再调用 Validate
func Load(path string) (*Config, error) {
	v, err := NewViper(path)
	if err != nil {
		return nil, err
	}
	return FromViper(v), nil
}

// FromViper 从 viper 中取出所有字段
func FromViper(v *viper.Viper) *Config {
	cfg := &Config{
		Platform:             v.GetString("platform"),
		Keyword:              strings.TrimSpace(v.GetString("keyword")),
		LoginType:            strings.ToLower(strings.TrimSpace(v.GetString("login_type"))),
		LoginPhone:           v.GetString("login_phone"),
		Cookies:              v.GetString("cookies"),
		Headless:             v.GetBool("headless"),
		SaveLoginState:       v.GetBool("save_login_state"),
		UserDataDir:          v.GetString("user_data_dir"),
		BinPath:              v.GetString("bin_path"),
		Proxy:                v.GetString("proxy"),
		UserAgent:            v.GetString("user_agent"),
		ViewportWidth:        v.GetInt("viewport_width"),
		ViewportHeight:       v.GetInt("viewport_height"),
		MaxConcurrency:       v.GetInt("max_concurrency"),
		ScrollBursts:         v.GetInt("scroll_bursts"),
		LoginMaxAttempts:     v.GetInt("login_max_attempts"),
		LoginInterval:        v.GetDuration("login_interval"),
		LoginRedirectWait:    v.GetDuration("login_redirect_wait"),
		FieldTimeout:         v.GetDuration("field_timeout"),
		NavigationTimeout:    v.GetDuration("navigation_timeout"),
		NavigationsPerSecond: v.GetFloat64("navigations_per_second"),
		BlockedResources:     splitSlice(v.GetStringSlice("blocked_resources")),
		EnableComments:       v.GetBool("enable_comments"),
		CookiesPath:          v.GetString("cookies_path"),
		LogLevel:             v.GetString("log_level"),
		LogFormat:            v.GetString("log_format"),
	}
	if cfg.BinPath == "" {
		cfg.BinPath = os.Getenv("ROD_BROWSER_BIN")
	}
	return cfg
}

// Validate 检查明显不合法的组合
func (c *Config) Validate() error {
	if c.Keyword == "" {
		return errors.New("keyword must be set")
	}
	switch c.LoginType {
	case LoginTypeQRCode, LoginTypePhone, LoginTypeCookie, LoginTypeManual, LoginTypeNone:
	default:
		return errors.Errorf("unsupported login_type %q, expected qrcode|phone|cookie|manual|none", c.LoginType)
	}
	if c.LoginType == LoginTypeCookie && strings.TrimSpace(c.Cookies) == "" {
		return errors.New("cookies must be set when login_type is cookie")
	}
	if c.MaxConcurrency < 1 {
		return errors.New("max_concurrency must be >= 1")
	}
	if c.LoginMaxAttempts < 1 {
		return errors.New("login_max_attempts must be >= 1")
	}
	if c.ScrollBursts < 0 {
		return errors.New("scroll_bursts must be >= 0")
	}
	if c.NavigationsPerSecond < 0 {
		return errors.New("navigations_per_second must be >= 0")
	}
	if c.ViewportWidth <= 0 || c.ViewportHeight <= 0 {
		return errors.New("viewport size must be > 0")
	}
	return nil
}

// ProfileDir 持久化模式下浏览器用户目录的绝对路径
func (c *Config) ProfileDir() (string, error) {
	name := c.UserDataDir
	if strings.Contains(name, "%s") {
		name = fmt.Sprintf(name, c.Platform)
	}
	if filepath.IsAbs(name) {
		return name, nil
	}
	return filepath.Abs(filepath.Join(profileRoot, name))
}

// splitSlice 配置文件里可以写列表，环境变量里写逗号分隔的串
func splitSlice(in []string) []string {
	var out []string
	for _, item := range in {
		out = append(out, SplitList(item)...)
	}
	return out
}

// SplitList 解析逗号分隔的列表，忽略空项
func SplitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
