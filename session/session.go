// Package session obtains an authenticated wenku8 identity. The login
// form is driven through a headless browser; the rest of the pipeline
// only ever sees the resulting cookie set.
package session

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"

	"wenku8-archiver/fetch"
)

// Provider yields a cookie set valid for one run. Failure to
// authenticate is fatal for the whole batch.
type Provider interface {
	Login(ctx context.Context, username, password string) ([]*http.Cookie, error)
}

// Browser logs in through a headless Chrome instance.
type Browser struct {
	LoginURL string
	Timeout  time.Duration
}

func NewBrowser(baseURL string) *Browser {
	return &Browser{
		LoginURL: strings.TrimSuffix(baseURL, "/") + "/login.php",
		Timeout:  60 * time.Second,
	}
}

func (b *Browser) Login(ctx context.Context, username, password string) ([]*http.Cookie, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("no-sandbox", true),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()
	runCtx, runCancel := context.WithTimeout(browserCtx, b.Timeout)
	defer runCancel()

	var pageHTML string
	var raw []*http.Cookie
	err := chromedp.Run(runCtx,
		chromedp.Navigate(b.LoginURL),
		chromedp.WaitVisible(`input[name="username"]`, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="username"]`, username, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="password"]`, password, chromedp.ByQuery),
		chromedp.Click(`input[name="submit"]`, chromedp.ByQuery),
		chromedp.Sleep(3*time.Second),
		chromedp.OuterHTML("html", &pageHTML, chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			cookies, err := storage.GetCookies().Do(ctx)
			if err != nil {
				return err
			}
			for _, c := range cookies {
				raw = append(raw, &http.Cookie{
					Name:   c.Name,
					Value:  c.Value,
					Domain: c.Domain,
					Path:   c.Path,
				})
			}
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to drive login page: %w", err)
	}

	// The site greets a logged-in user by name; anything else is a
	// rejected login.
	if !strings.Contains(pageHTML, "欢迎您") {
		return nil, fmt.Errorf("login as %s: %w", username, fetch.ErrAuth)
	}

	return raw, nil
}

// Static is a pre-baked cookie set, used by tests and by callers that
// already hold a valid session.
type Static []*http.Cookie

func (s Static) Login(context.Context, string, string) ([]*http.Cookie, error) {
	return s, nil
}
