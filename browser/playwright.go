package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Launch args match what the listing source tolerates best headless.
var launchArgs = []string{
	"--no-sandbox",
	"--disable-dev-shm-usage",
	"--disable-gpu",
	"--disable-extensions",
	"--disable-background-networking",
	"--disable-sync",
	"--disable-default-apps",
	"--disable-blink-features=AutomationControlled",
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
}

// Install downloads the playwright driver and browsers.
func Install() error {
	if err := playwright.Install(); err != nil {
		return fmt.Errorf("%w: %v", ErrInfrastructure, err)
	}

	return nil
}

type PlaywrightOptions struct {
	Headless bool
	Proxies  []string
}

type playwrightDriver struct {
	pw      *playwright.Playwright
	browser playwright.Browser

	mu      sync.Mutex
	uaIndex int
}

// NewPlaywright launches a chromium instance. Launch failure is fatal for
// the run and reported as ErrInfrastructure.
func NewPlaywright(opts PlaywrightOptions) (Driver, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInfrastructure, err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     launchArgs,
	}

	if len(opts.Proxies) > 0 {
		launchOpts.Proxy = &playwright.Proxy{Server: opts.Proxies[0]}
	}

	br, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		_ = pw.Stop()

		return nil, fmt.Errorf("%w: %v", ErrInfrastructure, err)
	}

	return &playwrightDriver{pw: pw, browser: br}, nil
}

// nextUserAgent rotates through the pool. Contexts are created concurrently
// when failed resets replace pool slots, so the counter is guarded.
func (d *playwrightDriver) nextUserAgent() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	ua := userAgents[d.uaIndex%len(userAgents)]
	d.uaIndex++

	return ua
}

func (d *playwrightDriver) NewContext(_ context.Context) (Context, error) {
	bctx, err := d.browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:         playwright.String(d.nextUserAgent()),
		Viewport:          &playwright.Size{Width: 1024, Height: 768},
		IgnoreHttpsErrors: playwright.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInfrastructure, err)
	}

	return &playwrightContext{bctx: bctx}, nil
}

func (d *playwrightDriver) Close() error {
	if err := d.browser.Close(); err != nil {
		return err
	}

	return d.pw.Stop()
}

type playwrightContext struct {
	bctx playwright.BrowserContext
}

func (c *playwrightContext) NewPage(_ context.Context) (Page, error) {
	page, err := c.bctx.NewPage()
	if err != nil {
		return nil, classify(err)
	}

	return &playwrightPage{page: page}, nil
}

func (c *playwrightContext) Reset(_ context.Context) error {
	pages := c.bctx.Pages()
	for i := 1; i < len(pages); i++ {
		_ = pages[i].Close()
	}

	return c.bctx.ClearCookies()
}

func (c *playwrightContext) Close() error {
	return c.bctx.Close()
}

type playwrightPage struct {
	page playwright.Page
}

func (p *playwrightPage) Navigate(_ context.Context, u string) error {
	_, err := p.page.Goto(u, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(15000),
	})
	if err != nil {
		return classify(err)
	}

	return nil
}

func (p *playwrightPage) WaitVisible(_ context.Context, selector string, timeout time.Duration) error {
	//nolint:staticcheck // TODO replace with the new playwright API
	_, err := p.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return classify(err)
	}

	return nil
}

func (p *playwrightPage) Query(_ context.Context, selector string) (Element, error) {
	//nolint:staticcheck // TODO replace with the new playwright API
	el, err := p.page.QuerySelector(selector)
	if err != nil {
		return nil, classify(err)
	}

	if el == nil {
		return nil, nil
	}

	return &playwrightElement{el: el}, nil
}

func (p *playwrightPage) QueryAll(_ context.Context, selector string) ([]Element, error) {
	//nolint:staticcheck // TODO replace with the new playwright API
	els, err := p.page.QuerySelectorAll(selector)
	if err != nil {
		return nil, classify(err)
	}

	ans := make([]Element, len(els))
	for i := range els {
		ans[i] = &playwrightElement{el: els[i]}
	}

	return ans, nil
}

func (p *playwrightPage) ScrollBy(_ context.Context, selector string, pixels int) error {
	expr := fmt.Sprintf(`document.querySelector(%q)?.scrollBy(0, %d)`, selector, pixels)

	_, err := p.page.Evaluate(expr)
	if err != nil {
		return classify(err)
	}

	return nil
}

func (p *playwrightPage) URL() string {
	return p.page.URL()
}

func (p *playwrightPage) Close() error {
	return p.page.Close()
}

type playwrightElement struct {
	el playwright.ElementHandle
}

func (e *playwrightElement) Text(_ context.Context) (string, error) {
	text, err := e.el.InnerText()
	if err != nil {
		return "", classify(err)
	}

	return text, nil
}

func (e *playwrightElement) Attr(_ context.Context, name string) (string, error) {
	val, err := e.el.GetAttribute(name)
	if err != nil {
		return "", classify(err)
	}

	return val, nil
}

func (e *playwrightElement) Click(_ context.Context) error {
	err := e.el.Click(playwright.ElementHandleClickOptions{
		Timeout: playwright.Float(2000),
	})
	if err != nil {
		return classify(err)
	}

	return nil
}

func (e *playwrightElement) ScrollIntoView(_ context.Context) error {
	err := e.el.ScrollIntoViewIfNeeded(playwright.ElementHandleScrollIntoViewIfNeededOptions{
		Timeout: playwright.Float(1000),
	})
	if err != nil {
		return classify(err)
	}

	return nil
}

func (e *playwrightElement) Query(_ context.Context, selector string) (Element, error) {
	el, err := e.el.QuerySelector(selector)
	if err != nil {
		return nil, classify(err)
	}

	if el == nil {
		return nil, nil
	}

	return &playwrightElement{el: el}, nil
}

// classify maps driver errors onto the package taxonomy. Dead handles show
// up as "target closed" style messages.
func classify(err error) error {
	msg := err.Error()

	for _, needle := range []string{
		"Target closed",
		"Target page, context or browser has been closed",
		"Execution context was destroyed",
		"Element is not attached",
	} {
		if strings.Contains(msg, needle) {
			return fmt.Errorf("%w: %v", ErrContextInvalid, err)
		}
	}

	return err
}
