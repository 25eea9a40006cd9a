package browser

import (
	"context"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetbot/internal/ports"
)

func TestChromeFlags(t *testing.T) {
	t.Parallel()

	flags := chromeFlags(Config{Headless: true})
	assert.Equal(t, true, flags["headless"])
	assert.Equal(t, true, flags["use-fake-ui-for-media-stream"])
	assert.Equal(t, "no-user-gesture-required", flags["autoplay-policy"])

	assert.Equal(t, false, chromeFlags(Config{})["headless"])
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{}.withDefaults()
	assert.Equal(t, 1920, cfg.WindowWidth)
	assert.Equal(t, 1080, cfg.WindowHeight)
	assert.Equal(t, 20*time.Second, cfg.ActionTimeout)

	opts := allocatorOptions(Config{ExecPath: "/usr/bin/chromium", UserDataDir: t.TempDir()}.withDefaults())
	assert.Greater(t, len(opts), len(chromeFlags(Config{})))
}

func TestElementScriptQuotesXPath(t *testing.T) {
	t.Parallel()

	script := elementScript(`/html/body/div[@id="x"]`, "false", "return true;")
	assert.Contains(t, script, `"/html/body/div[@id=\"x\"]"`)
	assert.Contains(t, script, "if (!el) { return false; }")
	assert.True(t, strings.HasSuffix(script, "})()"))
}

const fixturePage = `<html><body>
<input placeholder="Your name">
<button aria-label="Turn off microphone (ctrl + d)">mic</button>
<button aria-label="Join now" disabled><span>Join now</span></button>
<button style="display:none" aria-label="Leave call">leave</button>
<div><button><span>Ask to join</span></button></div>
</body></html>`

func TestSurfaceAgainstChrome(t *testing.T) {
	if testing.Short() {
		t.Skip("browser test skipped in short mode")
	}
	execPath := findChrome()
	if execPath == "" {
		t.Skip("chrome not installed")
	}

	provider := NewProvider(Config{ExecPath: execPath, Headless: true, ActionTimeout: 10 * time.Second}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	surface, err := provider.Open(ctx)
	require.NoError(t, err)
	defer surface.Close()

	require.NoError(t, surface.Navigate(ctx, "data:text/html,"+url.PathEscape(fixturePage)))

	content, err := surface.PageContent(ctx)
	require.NoError(t, err)
	assert.Contains(t, content, "Ask to join")

	mics, err := surface.FindElements(ctx, ports.CSS("button[aria-label*='microphone' i][aria-label*='on' i]"))
	require.NoError(t, err)
	require.Len(t, mics, 1)
	assert.True(t, mics[0].IsVisible(ctx))
	assert.True(t, mics[0].IsEnabled(ctx))
	assert.Equal(t, "Turn off microphone (ctrl + d)", mics[0].Attribute(ctx, "aria-label"))
	require.NoError(t, mics[0].ForceClick(ctx))

	joins, err := surface.FindElements(ctx, ports.CSS("button[aria-label*='Join']"))
	require.NoError(t, err)
	require.Len(t, joins, 1)
	assert.False(t, joins[0].IsEnabled(ctx))

	leave, err := surface.FindElements(ctx, ports.CSS(`button[aria-label*="Leave call"]`))
	require.NoError(t, err)
	require.Len(t, leave, 1)
	assert.False(t, leave[0].IsVisible(ctx))

	ask, err := surface.FindElements(ctx, ports.XPath("//span[contains(text(), 'Ask to join')]/parent::button"))
	require.NoError(t, err)
	require.Len(t, ask, 1)
	require.NoError(t, ask[0].Click(ctx))

	names, err := surface.FindElements(ctx, ports.CSS(`input[placeholder="Your name"]`))
	require.NoError(t, err)
	require.Len(t, names, 1)
	require.NoError(t, names[0].Clear(ctx))
	require.NoError(t, names[0].Type(ctx, "Echo"))
	var typed string
	require.NoError(t, surface.ExecuteScript(ctx, `document.querySelector("input").value`, &typed))
	assert.Equal(t, "Echo", typed)

	none, err := surface.FindElements(ctx, ports.CSS("div[data-meeting-title]"))
	require.NoError(t, err)
	assert.Empty(t, none)

	shot := filepath.Join(t.TempDir(), "shots", "screenshot_test.png")
	require.NoError(t, surface.Screenshot(ctx, shot))
	info, err := os.Stat(shot)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func findChrome() string {
	if path := os.Getenv("MEETBOT_CHROME_PATH"); path != "" {
		return path
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	return ""
}
