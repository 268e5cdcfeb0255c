package browser

import "math/rand"

// DefaultUserAgents 未指定 UA 时从中随机挑一个
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36 Edg/119.0.0.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

// RandomUserAgent 随机返回一个常见桌面浏览器 UA
func RandomUserAgent() string {
	return DefaultUserAgents[rand.Intn(len(DefaultUserAgents))]
}

// ResolveUserAgent 配置里给了 UA 就用配置的
func ResolveUserAgent(configured string) string {
	if configured != "" {
		return configured
	}
	return RandomUserAgent()
}
