package bilibili

const (
	IndexURL      = "https://www.bilibili.com"
	SearchBaseURL = "https://search.bilibili.com"

	// CommentEndpoint 分页评论接口路径
	CommentEndpoint = "x/v2/reply/wbi/main"

	// CookieDomain cookie 登录方式写入的域
	CookieDomain = ".bilibili.com"
)

// 首页顶栏的搜索框和搜索按钮
const (
	searchInputXPath  = `//*[@id="nav-searchform"]/div[1]/input`
	searchButtonXPath = `//*[@id="nav-searchform"]/div[2]`
)

// resultLinkSelector 搜索结果列表里的链接
const resultLinkSelector = "div.video-list a"

// videoPathMarker 只有路径里带 /video/ 的链接才是视频条目
const videoPathMarker = "/video/"

// 详情页工具栏上的四个互动数据
const (
	likesXPath     = `//span[@class="video-like-info video-toolbar-item-text"]`
	coinsXPath     = `//span[@class="video-coin-info video-toolbar-item-text"]`
	favoritesXPath = `//span[@class="video-fav-info video-toolbar-item-text"]`
	sharesXPath    = `//span[@class="video-share-info-text"]`
)

// 登录相关
const (
	loginEntrySelector = ".header-login-entry"
	phoneInputSelector = `input[placeholder*="手机号"]`
	sendCodeText       = "获取验证码"
)

// AuthMarkers 任一出现即视为已登录
var AuthMarkers = []string{"SESSDATA", "DedeUserID"}
