package livechat

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

type captured struct {
	path   string
	method string
	header http.Header
	form   url.Values
}

func newServer(t *testing.T, status int, body string) (*httptest.Server, chan captured) {
	t.Helper()
	got := make(chan captured, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(raw))
		got <- captured{path: r.URL.Path, method: r.Method, header: r.Header.Clone(), form: form}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestDeliverSendsForm(t *testing.T) {
	t.Parallel()
	srv, got := newServer(t, http.StatusOK, `{"code":0,"message":"","data":{}}`)
	now := time.Unix(1700000000, 0)
	c := New(WithEndpoint(srv.URL+"/"), withNow(func() time.Time { return now }))

	if err := c.Deliver(context.Background(), "21452505", "hello", "SESSDATA=abc", "tok"); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	req := <-got
	if req.method != http.MethodPost || req.path != "/msg/send" {
		t.Fatalf("request = %s %s", req.method, req.path)
	}
	if req.header.Get("Cookie") != "SESSDATA=abc" {
		t.Fatalf("cookie = %q", req.header.Get("Cookie"))
	}
	if req.header.Get("User-Agent") != DefaultUserAgent {
		t.Fatalf("user agent = %q", req.header.Get("User-Agent"))
	}
	want := map[string]string{
		"roomid":     "21452505",
		"msg":        "hello",
		"bubble":     "0",
		"color":      "16777215",
		"mode":       "1",
		"fontsize":   "25",
		"rnd":        "1700000000",
		"csrf":       "tok",
		"csrf_token": "tok",
	}
	for k, v := range want {
		if req.form.Get(k) != v {
			t.Fatalf("form[%s] = %q, want %q", k, req.form.Get(k), v)
		}
	}
}

func TestDeliverResponses(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "code 200 is success", status: http.StatusOK, body: `{"code":200}`},
		{name: "message", status: http.StatusOK, body: `{"code":10030,"message":"rate limited"}`, wantErr: "rate limited"},
		{name: "msg fallback", status: http.StatusOK, body: `{"code":-101,"msg":"not logged in"}`, wantErr: "not logged in"},
		{name: "bare code", status: http.StatusOK, body: `{"code":1003}`, wantErr: "code=1003"},
		{name: "http status", status: http.StatusBadGateway, body: "upstream\ndown", wantErr: "livechat: http status 502: upstream down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv, _ := newServer(t, tt.status, tt.body)
			err := New(WithEndpoint(srv.URL)).Deliver(context.Background(), "1", "hi", "", "")
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Deliver: %v", err)
				}
				return
			}
			if err == nil || err.Error() != tt.wantErr {
				t.Fatalf("err = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestDeliverAPIErrorType(t *testing.T) {
	t.Parallel()
	srv, _ := newServer(t, http.StatusOK, `{"code":10030,"message":"too fast"}`)
	err := New(WithEndpoint(srv.URL)).Deliver(context.Background(), "1", "hi", "", "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != 10030 {
		t.Fatalf("err = %#v, want *APIError code 10030", err)
	}
}

func TestDeliverValidatesInput(t *testing.T) {
	t.Parallel()
	c := New(WithEndpoint("http://127.0.0.1:1"))
	if err := c.Deliver(context.Background(), " ", "hi", "", ""); !errors.Is(err, ErrEmptyRoom) {
		t.Fatalf("err = %v, want ErrEmptyRoom", err)
	}
	if err := c.Deliver(context.Background(), "1", "  ", "", ""); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("err = %v, want ErrEmptyMessage", err)
	}
}

func TestDeliverTimeout(t *testing.T) {
	t.Parallel()
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(block) })

	c := New(WithEndpoint(srv.URL), WithTimeout(50*time.Millisecond))
	if err := c.Deliver(context.Background(), "1", "hi", "", ""); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestDeliverRateLimitHonoursContext(t *testing.T) {
	t.Parallel()
	srv, _ := newServer(t, http.StatusOK, `{"code":0}`)
	c := New(WithEndpoint(srv.URL), WithRateLimit(0.001))
	if err := c.Deliver(context.Background(), "1", "first", "", ""); err != nil {
		t.Fatalf("first Deliver: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.Deliver(ctx, "1", "second", "", ""); err == nil {
		t.Fatal("expected rate limit wait to fail")
	}
}
