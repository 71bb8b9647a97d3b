package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"roomcast/internal/dispatch"
	"roomcast/internal/storage"
	"roomcast/internal/transport"
	logx "roomcast/pkg/logx"
)

type fakeController struct {
	mu       sync.Mutex
	running  bool
	pending  int
	room     dispatch.Room
	notified []string
	history  []storage.OutcomeRecord
	noHist   bool
}

func (f *fakeController) StartDispatch(o transport.RoomOverrides) (dispatch.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room := o.Apply(dispatch.Room{ID: "100", DelaySeconds: 1})
	if room.DelaySeconds < 0 {
		return room, fmt.Errorf("%w: delay must be >= 0", dispatch.ErrInvalidRoom)
	}
	if f.running {
		return room, dispatch.ErrAlreadyRunning
	}
	f.running, f.room = true, room
	return room, nil
}

func (f *fakeController) StopDispatch() {
	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
}

func (f *fakeController) Notify(text string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, text)
	f.pending++
	return 1
}

func (f *fakeController) Status() transport.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return transport.Status{Running: f.running, Pending: f.pending, Room: f.room.ID, DelaySeconds: f.room.DelaySeconds}
}

func (f *fakeController) RecentOutcomes(ctx context.Context, limit int) ([]storage.OutcomeRecord, error) {
	if f.noHist {
		return nil, transport.ErrNoHistory
	}
	if limit > 0 && limit < len(f.history) {
		return f.history[:limit], nil
	}
	return f.history, nil
}

func (f *fakeController) TriggerAnnouncement(name string) bool { return name == "follow" }

func do(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) transport.Status {
	t.Helper()
	var st transport.Status
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	return st
}

func TestStartStopFlow(t *testing.T) {
	t.Parallel()
	ctl := &fakeController{}
	h := New(ctl, logx.Nop()).Handler(Config{})

	rec := do(t, h, http.MethodPost, "/dispatch/start", "", `{"room_id":"21452505","delay":3}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start status = %d: %s", rec.Code, rec.Body)
	}
	if st := decodeStatus(t, rec); !st.Running || st.Room != "21452505" || st.DelaySeconds != 3 {
		t.Fatalf("status = %+v", st)
	}

	rec = do(t, h, http.MethodPost, "/dispatch/start", "", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("second start status = %d, want 409", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/dispatch/stop", "", "")
	if rec.Code != http.StatusAccepted || decodeStatus(t, rec).Running {
		t.Fatalf("stop status = %d", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/dispatch/start", "", `{"delay":-1}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid room status = %d, want 400", rec.Code)
	}
	rec = do(t, h, http.MethodPost, "/dispatch/start", "", `{"roomid":"1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown field status = %d, want 400", rec.Code)
	}
}

func TestNotify(t *testing.T) {
	t.Parallel()
	ctl := &fakeController{}
	h := New(ctl, logx.Nop()).Handler(Config{})

	rec := do(t, h, http.MethodPost, "/messages", "", `{"message":"hello room"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var resp notifyResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Queued != 1 || resp.Pending != 1 || ctl.notified[0] != "hello room" {
		t.Fatalf("resp = %+v, notified = %v", resp, ctl.notified)
	}

	if rec := do(t, h, http.MethodPost, "/messages", "", `{"message":"  "}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("blank message status = %d", rec.Code)
	}
}

func TestBodyRejectsTrailingData(t *testing.T) {
	t.Parallel()
	cases := []struct {
		path, body string
		want       int
	}{
		{"/messages", `{"message":"a"}{"x":1}`, http.StatusBadRequest},
		{"/messages", `{"message":"a"} garbage`, http.StatusBadRequest},
		{"/messages", "{\"message\":\"a\"}\n", http.StatusAccepted},
		{"/dispatch/start", `{"room_id":"7"}{}`, http.StatusBadRequest},
		{"/dispatch/start", "", http.StatusAccepted},
	}
	for _, tc := range cases {
		ctl := &fakeController{}
		h := New(ctl, logx.Nop()).Handler(Config{})
		if rec := do(t, h, http.MethodPost, tc.path, "", tc.body); rec.Code != tc.want {
			t.Fatalf("POST %s %q status = %d, want %d: %s", tc.path, tc.body, rec.Code, tc.want, rec.Body)
		}
		if tc.want == http.StatusBadRequest && (len(ctl.notified) != 0 || ctl.running) {
			t.Fatalf("POST %s %q acted on a rejected body", tc.path, tc.body)
		}
	}
}

func TestOutcomes(t *testing.T) {
	t.Parallel()
	ctl := &fakeController{history: []storage.OutcomeRecord{
		{Message: "b", Success: false, Error: "rate limited"},
		{Message: "a", Success: true},
	}}
	h := New(ctl, logx.Nop()).Handler(Config{})

	rec := do(t, h, http.MethodGet, "/outcomes?limit=1", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var recs []storage.OutcomeRecord
	if err := json.NewDecoder(rec.Body).Decode(&recs); err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Error != "rate limited" {
		t.Fatalf("records = %+v", recs)
	}
	if rec := do(t, h, http.MethodGet, "/outcomes?limit=x", "", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d", rec.Code)
	}

	ctl.noHist = true
	if rec := do(t, h, http.MethodGet, "/outcomes", "", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("disabled history status = %d", rec.Code)
	}
}

func TestTrigger(t *testing.T) {
	t.Parallel()
	h := New(&fakeController{}, logx.Nop()).Handler(Config{})
	if rec := do(t, h, http.MethodPost, "/announcements/follow/trigger", "", ""); rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/announcements/nope/trigger", "", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown status = %d", rec.Code)
	}
}

func TestBearerAuth(t *testing.T) {
	t.Parallel()
	h := New(&fakeController{}, logx.Nop()).Handler(Config{Token: "s3cret"})

	if rec := do(t, h, http.MethodGet, "/status", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/status", "wrong", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/status", "s3cret", ""); rec.Code != http.StatusOK {
		t.Fatalf("good token status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/healthz", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
}

func TestServerApplyEnableDisable(t *testing.T) {
	t.Parallel()
	s := New(&fakeController{}, logx.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.Apply(ctx, Config{Enabled: true, Addr: "127.0.0.1:0"}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	addr := s.Addr()
	if addr == "" {
		t.Fatal("no listen address")
	}
	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("GET healthz: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}

	if err := s.Apply(ctx, Config{Enabled: false}); err != nil {
		t.Fatalf("Apply(disabled): %v", err)
	}
	if s.Addr() != "" {
		t.Fatal("server still running after disable")
	}
}
