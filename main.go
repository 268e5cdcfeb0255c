package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/xpzouying/bilibili-crawler/bilibili"
	"github.com/xpzouying/bilibili-crawler/browser"
	"github.com/xpzouying/bilibili-crawler/configs"
	"github.com/xpzouying/bilibili-crawler/cookies"
	"github.com/xpzouying/bilibili-crawler/crawler"
)

func main() {
	var (
		configPath   string
		platform     string
		keyword      string
		loginType    string
		getComment   bool
		headless     bool
		binPath      string // 浏览器二进制文件路径
		saveLogin    bool
		concurrency  int
		resetCookies bool
	)
	flag.StringVar(&configPath, "config", "", "配置文件路径（可选，yaml/json/toml）")
	flag.StringVar(&platform, "platform", "bili", "平台，目前只支持 bili")
	flag.StringVar(&keyword, "keywords", "", "搜索关键词")
	flag.StringVar(&loginType, "lt", configs.LoginTypeQRCode, "登录方式 (qrcode | phone | cookie | manual | none)")
	flag.BoolVar(&getComment, "get_comment", true, "是否抓取一级评论")
	flag.BoolVar(&headless, "headless", false, "是否无头模式，首次扫码登录建议关闭")
	flag.StringVar(&binPath, "bin", "", "浏览器二进制文件路径（不传则使用 ROD_BROWSER_BIN 环境变量）")
	flag.BoolVar(&saveLogin, "save_login_state", true, "是否使用持久化浏览器目录保存登录态")
	flag.IntVar(&concurrency, "concurrency", int(crawler.DefaultWorkBudget), "同时打开的详情页数量上限")
	flag.BoolVar(&resetCookies, "reset-cookies", false, "启动前清理 cookies 文件并重新登录")
	flag.Parse()

	cfg, err := configs.Load(configPath)
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}

	// 只有显式传入的命令行参数才覆盖配置文件和环境变量
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "platform":
			cfg.Platform = platform
		case "keywords":
			cfg.Keyword = keyword
		case "lt":
			cfg.LoginType = loginType
		case "get_comment":
			cfg.EnableComments = getComment
		case "headless":
			cfg.Headless = headless
		case "bin":
			cfg.BinPath = binPath
		case "save_login_state":
			cfg.SaveLoginState = saveLogin
		case "concurrency":
			cfg.MaxConcurrency = concurrency
		}
	})

	setupLogger(cfg)

	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("invalid config: %v", err)
	}

	cookiesPath := cfg.CookiesPath
	if cookiesPath == "" {
		cookiesPath = cookies.GetPlatformCookiesFilePath("", cfg.Platform)
	}
	if resetCookies {
		if err := cookies.ResetCookiesFiles(cookiesPath); err != nil {
			logrus.Fatalf("failed to reset cookies: %v", err)
		}
		logrus.Info("cookies 已清理，将重新登录")
	}

	pipeline, err := newPipeline(cfg, cookiesPath)
	if err != nil {
		logrus.Fatalf("failed to build pipeline: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := pipeline.Run(ctx, cfg.Keyword)
	if res != nil {
		fmt.Printf("href_count: %d\n", len(res.Items))
	}
	if err != nil {
		logrus.Fatalf("crawl failed: %v", err)
	}

	fmt.Printf("抓取完成：\n- 关键词: %s\n- 视频条目: %d\n- 成功: %d\n- 失败: %d\n- 评论: %d\n",
		res.Keyword, len(res.Items), len(res.Snapshots), res.Failed, res.Comments)
}

func newPipeline(cfg *configs.Config, cookiesPath string) (*crawler.Pipeline[*browser.Session], error) {
	opts := browser.Options{
		Headless:          cfg.Headless,
		BinPath:           cfg.BinPath,
		Proxy:             cfg.Proxy,
		Profile:           browser.ProfileEphemeral,
		CookiesPath:       cookiesPath,
		UserAgent:         cfg.UserAgent,
		ViewportWidth:     cfg.ViewportWidth,
		ViewportHeight:    cfg.ViewportHeight,
		IndexURL:          bilibili.IndexURL,
		NavigationTimeout: cfg.NavigationTimeout,
	}
	if cfg.SaveLoginState {
		dir, err := cfg.ProfileDir()
		if err != nil {
			return nil, err
		}
		opts.Profile = browser.ProfilePersistent
		opts.UserDataDir = dir
	}

	p := &crawler.Pipeline[*browser.Session]{
		Sessions: &browser.Provider{Options: opts},
		Extractor: bilibili.NewExtractor(bilibili.ExtractorConfig{
			ScrollBursts:      cfg.ScrollBursts,
			FieldTimeout:      cfg.FieldTimeout,
			NavigationTimeout: cfg.NavigationTimeout,
			EnableComments:    cfg.EnableComments,
			BlockedResources:  cfg.BlockedResources,
		}),
		Budget:    crawler.WorkBudget(cfg.MaxConcurrency),
		OnComment: crawler.LogComment,
	}

	if cfg.LoginType != configs.LoginTypeNone {
		login, err := bilibili.NewLogin(bilibili.LoginConfig{
			Type:         cfg.LoginType,
			Phone:        cfg.LoginPhone,
			Cookies:      cfg.Cookies,
			MaxAttempts:  cfg.LoginMaxAttempts,
			Interval:     cfg.LoginInterval,
			RedirectWait: cfg.LoginRedirectWait,
		})
		if err != nil {
			return nil, err
		}
		p.Auth = login
	}

	if cfg.NavigationsPerSecond > 0 {
		p.Limiter = rate.NewLimiter(rate.Limit(cfg.NavigationsPerSecond), 1)
	}
	return p, nil
}

func setupLogger(cfg *configs.Config) {
	if cfg.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logrus.Warnf("unknown log level %q, using info", cfg.LogLevel)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if cfg.Headless && cfg.LoginType == configs.LoginTypeQRCode {
		logrus.Warn("当前以无头模式运行，首次登录时可能无法扫码，建议第一次使用时 headless=false")
	}
}
