package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

const userAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:133.0) Gecko/20100101 Firefox/133.0"

// Client performs all HTTP retrieval over the authenticated session.
// Transient failures (timeout, 5xx, 429, connection reset) are retried
// with backoff; definitive failures surface as *AssetUnavailableError.
type Client struct {
	http *resty.Client
}

func NewClient(timeout time.Duration, cookies []*http.Cookie) *Client {
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetCookies(cookies)
	client.SetRetryCount(3).
		SetRetryWaitTime(2 * time.Second).
		SetRetryMaxWaitTime(15 * time.Second).
		SetRetryAfter(func(client *resty.Client, resp *resty.Response) (time.Duration, error) {
			if resp.StatusCode() == http.StatusTooManyRequests {
				if retryAfter := resp.Header().Get("Retry-After"); retryAfter != "" {
					if seconds, err := time.ParseDuration(retryAfter + "s"); err == nil {
						return seconds, nil
					}
					if t, err := http.ParseTime(retryAfter); err == nil {
						return time.Until(t), nil
					}
				}
				return 3 * time.Second, nil
			}
			return 0, nil
		}).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= http.StatusInternalServerError ||
				r.StatusCode() == http.StatusTooManyRequests
		})
	return &Client{http: client}
}

func (c *Client) request(ctx context.Context) *resty.Request {
	return c.http.R().
		SetContext(ctx).
		SetLogger(disableLogger{}).
		SetHeader("Accept-Charset", "utf-8").
		SetHeader("User-Agent", userAgent)
}

// Get retrieves raw bytes for a reference. Idempotent from the caller's
// perspective; retries happen inside.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	resp, err := c.request(ctx).SetHeaders(headers).Get(url)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &AssetUnavailableError{Ref: url, Err: err}
	}
	switch {
	case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
		return nil, fmt.Errorf("get %s: %w", url, ErrAuth)
	case !resp.IsSuccess():
		return nil, &AssetUnavailableError{Ref: url, Status: resp.StatusCode()}
	}
	return resp.Body(), nil
}

// GetHTML retrieves a page and decodes it from the site's GBK family
// encoding to UTF-8.
func (c *Client) GetHTML(ctx context.Context, url string, headers map[string]string) (string, error) {
	body, err := c.Get(ctx, url, headers)
	if err != nil {
		return "", err
	}
	decoded, err := DecodeGB18030(body)
	if err != nil {
		return "", &AssetUnavailableError{Ref: url, Err: err}
	}
	return decoded, nil
}

// Head probes a reference for its incremental marker without downloading
// the body. A missing or failed probe yields an empty marker, which the
// store treats as "always fetch".
func (c *Client) Head(ctx context.Context, url string, headers map[string]string) (Marker, error) {
	resp, err := c.request(ctx).SetHeaders(headers).Head(url)
	if err != nil {
		if ctx.Err() != nil {
			return Marker{}, ctx.Err()
		}
		return Marker{}, nil
	}
	if !resp.IsSuccess() {
		return Marker{}, nil
	}
	length, _ := strconv.ParseInt(resp.Header().Get("Content-Length"), 10, 64)
	return Marker{
		ETag:          resp.Header().Get("ETag"),
		LastModified:  resp.Header().Get("Last-Modified"),
		ContentLength: length,
	}, nil
}

// Marker is the cheap change indicator for a remote asset.
type Marker struct {
	ETag          string
	LastModified  string
	ContentLength int64
}

// String canonicalizes the marker for record comparison. The strongest
// available indicator wins; an empty string means the asset cannot be
// verified and must be fetched on every run.
func (m Marker) String() string {
	switch {
	case m.ETag != "":
		return "etag:" + m.ETag
	case m.LastModified != "":
		return "modified:" + m.LastModified
	case m.ContentLength > 0:
		return "length:" + strconv.FormatInt(m.ContentLength, 10)
	}
	return ""
}

// DecodeGB18030 converts site bytes to UTF-8. GB18030 is a superset of
// GBK, which wenku8 serves for every page.
func DecodeGB18030(data []byte) (string, error) {
	reader := transform.NewReader(bytes.NewReader(data), simplifiedchinese.GB18030.NewDecoder())
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

// EncodeGB18030 converts a UTF-8 string to site bytes, used for search
// query parameters.
func EncodeGB18030(s string) ([]byte, error) {
	reader := transform.NewReader(bytes.NewReader([]byte(s)), simplifiedchinese.GB18030.NewEncoder())
	return io.ReadAll(reader)
}

type disableLogger struct{}

func (d disableLogger) Errorf(string, ...interface{}) {}
func (d disableLogger) Warnf(string, ...interface{})  {}
func (d disableLogger) Debugf(string, ...interface{}) {}
