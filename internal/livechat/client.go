package livechat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	logx "roomcast/pkg/logx"
)

const (
	DefaultEndpoint  = "https://api.live.bilibili.com"
	DefaultTimeout   = 60 * time.Second
	DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/104.0.0.0 Safari/537.36"

	sendPath = "/msg/send"

	// Fixed presentation fields of a plain chat line.
	formBubble   = "0"
	formColor    = "16777215"
	formMode     = "1"
	formFontSize = "25"

	maxBodyLog = 200
)

// Client posts chat messages. The zero value is not usable; use New.
type Client struct {
	endpoint  string
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
	now       func() time.Time
	log       logx.Logger
}

type Option func(*Client)

// WithEndpoint overrides the API base URL (scheme and host, no path).
func WithEndpoint(u string) Option {
	return func(c *Client) {
		if s := strings.TrimRight(strings.TrimSpace(u), "/"); s != "" {
			c.endpoint = s
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if s := strings.TrimSpace(ua); s != "" {
			c.userAgent = s
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithHTTPClient replaces the HTTP client, e.g. for tests or proxies.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRateLimit caps sends per second on top of the dispatcher delay.
// perSec <= 0 disables the limiter.
func WithRateLimit(perSec float64) Option {
	return func(c *Client) {
		if perSec > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
		} else {
			c.limiter = nil
		}
	}
}

func WithLogger(log logx.Logger) Option {
	return func(c *Client) { c.log = log }
}

func withNow(fn func() time.Time) Option {
	return func(c *Client) { c.now = fn }
}

func New(opts ...Option) *Client {
	c := &Client{
		endpoint:  DefaultEndpoint,
		userAgent: DefaultUserAgent,
		http: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		now: time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	if c.log.IsZero() {
		c.log = logx.Nop()
	}
	return c
}

// envelope is the common response shape. Some endpoints use msg, others
// message.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Msg     string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

// Deliver posts text to roomID's chat using the given session cookie and
// CSRF token. A nil error means the server accepted the message.
func (c *Client) Deliver(ctx context.Context, roomID, text, cookie, csrf string) error {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return ErrEmptyRoom
	}
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("livechat: rate limit wait: %w", err)
		}
	}

	form := url.Values{}
	form.Set("roomid", roomID)
	form.Set("msg", text)
	form.Set("bubble", formBubble)
	form.Set("color", formColor)
	form.Set("mode", formMode)
	form.Set("fontsize", formFontSize)
	form.Set("rnd", strconv.FormatInt(c.now().Unix(), 10))
	form.Set("csrf", csrf)
	form.Set("csrf_token", csrf)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+sendPath, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("livechat: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("livechat: send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("livechat: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Body: sanitize(body)}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("livechat: decode response: %w", err)
	}
	if env.Code != 0 && env.Code != http.StatusOK {
		msg := env.Message
		if msg == "" {
			msg = env.Msg
		}
		c.log.Debug("send rejected", logx.String("room", roomID), logx.Int("code", env.Code), logx.String("msg", msg))
		return &APIError{Code: env.Code, Message: msg}
	}
	return nil
}

func sanitize(b []byte) string {
	s := strings.ReplaceAll(strings.TrimSpace(string(b)), "\n", " ")
	if len(s) > maxBodyLog {
		s = s[:maxBodyLog] + "..."
	}
	return s
}
