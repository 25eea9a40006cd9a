package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"meetbot/internal/ports"
)

// Surface is a ports.ControlSurface backed by one Chrome tab.
type Surface struct {
	tab           context.Context
	actionTimeout time.Duration

	closeOnce sync.Once
	cancel    func()
}

var _ ports.ControlSurface = (*Surface)(nil)

// run executes actions on the tab, bounded by the action timeout and by ctx.
func (s *Surface) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.tab, s.actionTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (s *Surface) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, chromedp.Navigate(url))
}

func (s *Surface) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := s.run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

func (s *Surface) PageContent(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// FindElements returns the current matches without waiting for any.
func (s *Surface) FindElements(ctx context.Context, sel ports.Selector) ([]ports.Element, error) {
	by := chromedp.ByQueryAll
	if sel.Kind == ports.SelectorXPath {
		by = chromedp.BySearch
	}

	var nodes []*cdp.Node
	if err := s.run(ctx, chromedp.Nodes(sel.Expr, &nodes, by, chromedp.AtLeast(0))); err != nil {
		return nil, fmt.Errorf("find %s: %w", sel, err)
	}
	out := make([]ports.Element, 0, len(nodes))
	for _, node := range nodes {
		out = append(out, &element{surface: s, node: node, xpath: node.FullXPath()})
	}
	return out, nil
}

func (s *Surface) ExecuteScript(ctx context.Context, script string, out any) error {
	return s.run(ctx, chromedp.Evaluate(script, out))
}

func (s *Surface) Screenshot(ctx context.Context, path string) error {
	var buf []byte
	if err := s.run(ctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return fmt.Errorf("capture screenshot: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create screenshot directory: %w", err)
		}
	}
	return os.WriteFile(path, buf, 0o644)
}

// Close shuts down the tab and the browser process.
func (s *Surface) Close() error {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
	return nil
}

// element addresses a DOM node by its full XPath so page scripts can reach
// it after the query returned.
type element struct {
	surface *Surface
	node    *cdp.Node
	xpath   string
}

const (
	visibleBody = `const r = el.getBoundingClientRect(); const st = window.getComputedStyle(el);
return r.width > 0 && r.height > 0 && st.visibility !== "hidden" && st.display !== "none";`
	enabledBody = `return !el.disabled && el.getAttribute("aria-disabled") !== "true";`
	clickBody   = `el.scrollIntoView({block: "center"}); el.click(); return true;`
	clearBody   = `el.value = ""; el.dispatchEvent(new Event("input", {bubbles: true})); return true;`
)

// elementScript wraps body in a function that resolves el from xpath and
// returns missing when the node is gone.
func elementScript(xpath, missing, body string) string {
	quoted, _ := json.Marshal(xpath)
	return fmt.Sprintf(`(function() {
const el = document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
if (!el) { return %s; }
%s
})()`, quoted, missing, body)
}

func (e *element) eval(ctx context.Context, missing, body string, out any) error {
	return e.surface.run(ctx, chromedp.Evaluate(elementScript(e.xpath, missing, body), out))
}

func (e *element) IsVisible(ctx context.Context) bool {
	var visible bool
	if err := e.eval(ctx, "false", visibleBody, &visible); err != nil {
		return false
	}
	return visible
}

func (e *element) IsEnabled(ctx context.Context) bool {
	var enabled bool
	if err := e.eval(ctx, "false", enabledBody, &enabled); err != nil {
		return false
	}
	return enabled
}

func (e *element) Attribute(ctx context.Context, name string) string {
	quoted, _ := json.Marshal(name)
	var value string
	if err := e.eval(ctx, `""`, fmt.Sprintf(`return el.getAttribute(%s) || "";`, quoted), &value); err != nil {
		return ""
	}
	return value
}

func (e *element) Click(ctx context.Context) error {
	return e.surface.run(ctx, chromedp.MouseClickNode(e.node))
}

func (e *element) ForceClick(ctx context.Context) error {
	return e.script(ctx, clickBody)
}

func (e *element) Clear(ctx context.Context) error {
	return e.script(ctx, clearBody)
}

func (e *element) script(ctx context.Context, body string) error {
	var ok bool
	if err := e.eval(ctx, "false", body, &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("element %s is no longer attached", e.xpath)
	}
	return nil
}

func (e *element) Type(ctx context.Context, text string) error {
	return e.surface.run(ctx, chromedp.KeyEventNode(e.node, text))
}
