// internal/device/apps_test.go
package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePackage(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		input   string
		wantPkg string
		wantOK  bool
	}{
		{name: "exact english alias", input: "wechat", wantPkg: "com.tencent.mm", wantOK: true},
		{name: "exact chinese alias", input: "淘宝", wantPkg: "com.taobao.taobao", wantOK: true},
		{name: "case insensitive", input: "WeChat", wantPkg: "com.tencent.mm", wantOK: true},
		{name: "surrounding whitespace", input: "  settings  ", wantPkg: "com.android.settings", wantOK: true},
		{name: "raw package passthrough", input: "com.example.someapp", wantPkg: "com.example.someapp", wantOK: true},
		{name: "fuzzy prefix of alias", input: "wech", wantPkg: "com.tencent.mm", wantOK: true},
		{name: "alias inside longer input", input: "play store app", wantPkg: "com.android.vending", wantOK: true},
		{name: "single rune exact match", input: "x", wantPkg: "com.twitter.android", wantOK: true},
		{name: "single rune without exact entry", input: "q", wantOK: false},
		{name: "unknown app", input: "definitely-not-an-app", wantOK: false},
		{name: "empty input", input: "", wantOK: false},
		{name: "blank input", input: "   ", wantOK: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			pkg, ok := ResolvePackage(tc.input)
			require.Equal(t, tc.wantOK, ok)
			if tc.wantOK {
				assert.Equal(t, tc.wantPkg, pkg)
			}
		})
	}
}

func TestResolvePackageExactBeatsFuzzy(t *testing.T) {
	t.Parallel()

	// "qq" is a substring of the "qq music" alias but has its own entry.
	pkg, ok := ResolvePackage("qq")
	require.True(t, ok)
	assert.Equal(t, "com.tencent.mobileqq", pkg)
}

func TestKnownAppsReturnsCopy(t *testing.T) {
	t.Parallel()

	apps := KnownApps()
	require.NotEmpty(t, apps)
	assert.Equal(t, "com.tencent.mm", apps["wechat"])

	// Mutating the copy must not leak into the resolver.
	apps["wechat"] = "com.evil.hijack"
	pkg, ok := ResolvePackage("wechat")
	require.True(t, ok)
	assert.Equal(t, "com.tencent.mm", pkg)
}
