package crawler

import (
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/sirupsen/logrus"
)

// commentDisplayWidth 日志里评论正文的最大显示宽度（按终端列宽计算）
const commentDisplayWidth = 80

// LogComment 默认的评论输出：一条结构化日志
func LogComment(item ItemReference, c CommentRecord) {
	logrus.WithFields(logrus.Fields{
		"item":       item,
		"author":     c.Author,
		"comment_id": c.ID,
	}).Info(DisplayText(c.Message, commentDisplayWidth))
}

// DisplayText 把多行文本压成一行并按显示宽度截断，中文按两列计
func DisplayText(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	return runewidth.Truncate(s, width, "...")
}

// MetricText 可选字段的展示值
func MetricText(v *string) string {
	if v == nil {
		return "-"
	}
	return *v
}
