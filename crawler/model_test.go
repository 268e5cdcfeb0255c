package crawler

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestNewItemReference(t *testing.T) {
	const base = "https://search.bilibili.com/all?keyword=go"

	tests := []struct {
		name    string
		href    string
		want    ItemReference
		wantErr bool
	}{
		{
			name: "协议相对地址补全 https",
			href: "//www.bilibili.com/video/BV1xx411c7mD/",
			want: "https://www.bilibili.com/video/BV1xx411c7mD/",
		},
		{
			name: "绝对地址保持不变",
			href: "https://www.bilibili.com/video/BV1xx411c7mD",
			want: "https://www.bilibili.com/video/BV1xx411c7mD",
		},
		{
			name: "相对路径按搜索页解析",
			href: "/video/BV1xx411c7mD",
			want: "https://search.bilibili.com/video/BV1xx411c7mD",
		},
		{
			name: "前后空白被去掉",
			href: "  //www.bilibili.com/video/BV1  ",
			want: "https://www.bilibili.com/video/BV1",
		},
		{name: "空 href", href: "", wantErr: true},
		{name: "javascript 链接", href: "javascript:void(0)", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewItemReference(tt.href, base)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewItemReferenceRelativeWithoutBase(t *testing.T) {
	_, err := NewItemReference("/video/BV1", "")
	assert.Error(t, err)
}

func TestErrorMatchesKind(t *testing.T) {
	cause := errors.New("chrome not found")
	err := errors.Wrap(NewError(ErrLaunch, "open session", cause), "run")

	assert.True(t, errors.Is(err, ErrLaunch))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, ErrLoginTimeout))
	assert.Contains(t, err.Error(), "chrome not found")

	noCause := NewError(ErrEmptySearchResult, "search go", nil)
	assert.Equal(t, "search go: empty search result", noCause.Error())
}

func TestAuthStateString(t *testing.T) {
	assert.Equal(t, "authenticated", AuthAuthenticated.String())
	assert.Equal(t, "unauthenticated", AuthUnauthenticated.String())
	assert.Equal(t, "unknown", AuthUnknown.String())
}

func TestDisplayText(t *testing.T) {
	assert.Equal(t, "a b c", DisplayText("a\n b\t\tc ", 80))
	// 中文每个字占两列
	assert.Equal(t, "你好...", DisplayText("你好世界你好世界", 7))
	assert.Equal(t, "-", MetricText(nil))
	v := "12万"
	assert.Equal(t, "12万", MetricText(&v))
}
