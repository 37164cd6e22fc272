// internal/device/apps.go
package device

import "strings"

// appPackages maps human app names (English and Chinese) to Android package
// names. The table is best-effort; LAUNCH also accepts a raw package name.
var appPackages = map[string]string{
	// Messaging / social
	"wechat":    "com.tencent.mm",
	"微信":        "com.tencent.mm",
	"qq":        "com.tencent.mobileqq",
	"weibo":     "com.sina.weibo",
	"微博":        "com.sina.weibo",
	"telegram":  "org.telegram.messenger",
	"whatsapp":  "com.whatsapp",
	"instagram": "com.instagram.android",
	"facebook":  "com.facebook.katana",
	"twitter":   "com.twitter.android",
	"x":         "com.twitter.android",
	"douyin":    "com.ss.android.ugc.aweme",
	"抖音":        "com.ss.android.ugc.aweme",
	"tiktok":    "com.zhiliaoapp.musically",
	"xiaohongshu": "com.xingin.xhs",
	"小红书":       "com.xingin.xhs",
	"bilibili":  "tv.danmaku.bili",
	"哔哩哔哩":      "tv.danmaku.bili",
	"zhihu":     "com.zhihu.android",
	"知乎":        "com.zhihu.android",

	// Shopping / payments
	"taobao":   "com.taobao.taobao",
	"淘宝":       "com.taobao.taobao",
	"jd":       "com.jingdong.app.mall",
	"京东":       "com.jingdong.app.mall",
	"pinduoduo": "com.xunmeng.pinduoduo",
	"拼多多":      "com.xunmeng.pinduoduo",
	"alipay":   "com.eg.android.AlipayGphone",
	"支付宝":      "com.eg.android.AlipayGphone",
	"meituan":  "com.sankuai.meituan",
	"美团":       "com.sankuai.meituan",
	"eleme":    "me.ele",
	"饿了么":      "me.ele",
	"amazon":   "com.amazon.mShop.android.shopping",

	// Media
	"youtube":  "com.google.android.youtube",
	"netease cloud music": "com.netease.cloudmusic",
	"网易云音乐":    "com.netease.cloudmusic",
	"qq music": "com.tencent.qqmusic",
	"spotify":  "com.spotify.music",
	"youku":    "com.youku.phone",
	"优酷":       "com.youku.phone",
	"iqiyi":    "com.qiyi.video",
	"爱奇艺":      "com.qiyi.video",

	// Maps / travel
	"amap":      "com.autonavi.minimap",
	"高德地图":      "com.autonavi.minimap",
	"baidu map": "com.baidu.BaiduMap",
	"百度地图":      "com.baidu.BaiduMap",
	"google maps": "com.google.android.apps.maps",
	"didi":      "com.sdu.didi.psnger",
	"滴滴出行":      "com.sdu.didi.psnger",
	"ctrip":     "ctrip.android.view",
	"携程":        "ctrip.android.view",

	// System / Google
	"settings":  "com.android.settings",
	"设置":        "com.android.settings",
	"camera":    "com.android.camera",
	"相机":        "com.android.camera",
	"gallery":   "com.android.gallery3d",
	"相册":        "com.android.gallery3d",
	"notes":     "com.miui.notes",
	"备忘录":       "com.miui.notes",
	"clock":     "com.android.deskclock",
	"时钟":        "com.android.deskclock",
	"calendar":  "com.android.calendar",
	"日历":        "com.android.calendar",
	"calculator": "com.android.calculator2",
	"计算器":       "com.android.calculator2",
	"contacts":  "com.android.contacts",
	"联系人":       "com.android.contacts",
	"messages":  "com.android.mms",
	"短信":        "com.android.mms",
	"phone":     "com.android.dialer",
	"电话":        "com.android.dialer",
	"files":     "com.android.documentsui",
	"文件管理":      "com.android.documentsui",
	"chrome":    "com.android.chrome",
	"gmail":     "com.google.android.gm",
	"play store": "com.android.vending",
	"browser":   "com.android.browser",
	"浏览器":       "com.android.browser",
}

// ResolvePackage maps a human app name onto a package name. Inputs that
// already look like package names pass through unchanged; otherwise the table
// is consulted exact-first, then by substring containment in either
// direction. Returns ("", false) when nothing matches.
func ResolvePackage(name string) (string, bool) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", false
	}
	// A dotted identifier is already a package name.
	if strings.Contains(trimmed, ".") && !strings.Contains(trimmed, " ") {
		return trimmed, true
	}

	key := strings.ToLower(trimmed)
	if pkg, ok := appPackages[key]; ok {
		return pkg, true
	}
	for alias, pkg := range appPackages {
		// Single-rune aliases ("x") only match exactly.
		if len(alias) < 2 || len(key) < 2 {
			continue
		}
		if strings.Contains(alias, key) || strings.Contains(key, alias) {
			return pkg, true
		}
	}
	return "", false
}

// KnownApps returns the alias table, primarily for prompt construction and
// diagnostics.
func KnownApps() map[string]string {
	out := make(map[string]string, len(appPackages))
	for k, v := range appPackages {
		out[k] = v
	}
	return out
}
