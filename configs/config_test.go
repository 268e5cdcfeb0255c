package configs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ROD_BROWSER_BIN", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "bili", cfg.Platform)
	assert.Equal(t, LoginTypeQRCode, cfg.LoginType)
	assert.Equal(t, 5, cfg.MaxConcurrency)
	assert.Equal(t, 5, cfg.ScrollBursts)
	assert.Equal(t, 600, cfg.LoginMaxAttempts)
	assert.Equal(t, time.Second, cfg.LoginInterval)
	assert.Equal(t, 5*time.Second, cfg.LoginRedirectWait)
	assert.Equal(t, 5*time.Second, cfg.FieldTimeout)
	assert.Equal(t, 30*time.Second, cfg.NavigationTimeout)
	assert.Equal(t, 1920, cfg.ViewportWidth)
	assert.Equal(t, 1080, cfg.ViewportHeight)
	assert.True(t, cfg.EnableComments)
	assert.True(t, cfg.SaveLoginState)
	assert.Empty(t, cfg.BlockedResources)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
keyword: 编程
login_type: cookie
cookies: "SESSDATA=abc"
max_concurrency: 3
field_timeout: 2s
blocked_resources:
  - Image
  - Font
`), 0o644))

	t.Setenv("BILI_MAX_CONCURRENCY", "8")
	t.Setenv("BILI_ENABLE_COMMENTS", "false")
	t.Setenv("ROD_BROWSER_BIN", "/usr/bin/chromium")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "编程", cfg.Keyword)
	assert.Equal(t, LoginTypeCookie, cfg.LoginType)
	assert.Equal(t, 8, cfg.MaxConcurrency, "环境变量优先于配置文件")
	assert.Equal(t, 2*time.Second, cfg.FieldTimeout)
	assert.Equal(t, []string{"Image", "Font"}, cfg.BlockedResources)
	assert.False(t, cfg.EnableComments)
	assert.Equal(t, "/usr/bin/chromium", cfg.BinPath)
	assert.NoError(t, cfg.Validate())
}

func TestLoadBlockedResourcesFromEnv(t *testing.T) {
	t.Setenv("BILI_BLOCKED_RESOURCES", "Image, Media,,Font")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"Image", "Media", "Font"}, cfg.BlockedResources)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		cfg.Keyword = "golang"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "合法配置", mutate: func(c *Config) {}},
		{name: "关键词为空", mutate: func(c *Config) { c.Keyword = "" }, wantErr: true},
		{name: "未知登录方式", mutate: func(c *Config) { c.LoginType = "wechat" }, wantErr: true},
		{name: "跳过登录", mutate: func(c *Config) { c.LoginType = LoginTypeNone }},
		{name: "cookie 登录缺少 cookies", mutate: func(c *Config) { c.LoginType = LoginTypeCookie }, wantErr: true},
		{name: "并发为 0", mutate: func(c *Config) { c.MaxConcurrency = 0 }, wantErr: true},
		{name: "轮询次数为 0", mutate: func(c *Config) { c.LoginMaxAttempts = 0 }, wantErr: true},
		{name: "负的限速", mutate: func(c *Config) { c.NavigationsPerSecond = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}

func TestProfileDir(t *testing.T) {
	cfg := &Config{Platform: "bili", UserDataDir: "%s_user_data_dir"}
	dir, err := cfg.ProfileDir()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(dir))
	assert.Equal(t, filepath.Join(profileRoot, "bili_user_data_dir"), filepath.Join(filepath.Base(filepath.Dir(dir)), filepath.Base(dir)))

	cfg.UserDataDir = "/var/lib/bili"
	dir, err = cfg.ProfileDir()
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/bili", dir)
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, SplitList("  "))
	assert.Equal(t, []string{"a", "b"}, SplitList(" a ,, b "))
}
