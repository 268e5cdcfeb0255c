package cookies

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xpzouying/bilibili-crawler/crawler"
)

func TestLoadAndSaveCookies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cookies.json")
	c := NewLoadCookie(path)

	_, err := c.LoadCookies()
	assert.Error(t, err, "文件不存在时应该返回错误")

	data := []byte(`[{"name":"SESSDATA","value":"abc"}]`)
	require.NoError(t, c.SaveCookies(data))

	got, err := c.LoadCookies()
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestGetCookiesFilePath(t *testing.T) {
	t.Setenv("COOKIES_PATH", "/data/cookies.json")
	assert.Equal(t, "/data/cookies.json", GetCookiesFilePath())

	t.Setenv("COOKIES_PATH", "")
	assert.Equal(t, filepath.Join(os.TempDir(), defaultCookiesFile), GetCookiesFilePath())
}

func TestGetPlatformCookiesFilePath(t *testing.T) {
	assert.Equal(t, "/tmp/c_bili.json", GetPlatformCookiesFilePath("/tmp/c.json", "bili"))
	assert.Equal(t, "/tmp/c.json", GetPlatformCookiesFilePath("/tmp/c.json", ""))
}

func TestResetCookiesFiles(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "cookies.json")
	derived := GetPlatformCookiesFilePath(base, "bili")
	other := filepath.Join(dir, "other.json")

	for _, p := range []string{base, derived, other} {
		require.NoError(t, os.WriteFile(p, []byte("[]"), 0o644))
	}

	require.NoError(t, ResetCookiesFiles(base))

	assert.NoFileExists(t, base)
	assert.NoFileExists(t, derived)
	assert.FileExists(t, other)

	// 再次清理不存在的文件不报错
	assert.NoError(t, ResetCookiesFiles(base))
}

func TestParseCookieHeader(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []crawler.Cookie
	}{
		{
			name: "标准格式",
			raw:  "SESSDATA=abc; DedeUserID=42",
			want: []crawler.Cookie{
				{Name: "SESSDATA", Value: "abc", Domain: ".bilibili.com"},
				{Name: "DedeUserID", Value: "42", Domain: ".bilibili.com"},
			},
		},
		{
			name: "值里带等号",
			raw:  "token=a=b",
			want: []crawler.Cookie{{Name: "token", Value: "a=b", Domain: ".bilibili.com"}},
		},
		{
			name: "忽略无效片段",
			raw:  " ; =x; novalue; buvid3=1 ;",
			want: []crawler.Cookie{{Name: "buvid3", Value: "1", Domain: ".bilibili.com"}},
		},
		{name: "空串", raw: "", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseCookieHeader(tt.raw, ".bilibili.com"))
		})
	}
}

func TestConvertCookies(t *testing.T) {
	header, m := ConvertCookies([]crawler.Cookie{
		{Name: "b", Value: "2"},
		{Name: "a", Value: "1"},
		{Name: "b", Value: "3"},
	})

	assert.Equal(t, "a=1; b=3", header)
	assert.Equal(t, map[string]string{"a": "1", "b": "3"}, m)
}
