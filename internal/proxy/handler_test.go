package proxy

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

// autoPlayer resolves its connect outcome synchronously from Play, so handler
// tests never wait on the play timeout.
type autoPlayer struct {
	fakePlayer
	result error
}

func (a *autoPlayer) Play(url string) error {
	if a.onResult != nil {
		a.onResult(a.result)
	}
	return nil
}

type autoFactory struct {
	result  error
	players []*autoPlayer
}

func (f *autoFactory) new(url string) (Player, error) {
	p := &autoPlayer{result: f.result}
	p.url = url
	f.players = append(f.players, p)
	return p, nil
}

func newTestHandler(f *autoFactory) *Handler {
	log := slog.New(slog.DiscardHandler)
	reg := NewRegistry(Options{RetryCount: -1}, Deps{NewPlayer: f.new}, WithClock(newFakeClock()))
	return NewHandler(reg, log, nil)
}

func newTestRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Post("/proxies", h.CreateProxy)
	r.Get("/proxies", h.ListProxies)
	r.Get("/proxies/{key}", h.GetProxy)
	r.Delete("/proxies/{key}", h.DeleteProxy)
	return r
}

func createProxy(t *testing.T, router http.Handler, body string) createResponse {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/proxies", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var resp createResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestCreateProxy_online(t *testing.T) {
	router := newTestRouter(newTestHandler(&autoFactory{}))

	resp := createProxy(t, router,
		`{"app":"live","stream":"cam1","url":"rtsp://host/live/cam1"}`)
	if resp.Key == "" {
		t.Error("expected a non-empty key")
	}
	if !resp.Online {
		t.Error("expected online=true when the first connect succeeds")
	}
}

func TestCreateProxy_offline_still_registered(t *testing.T) {
	f := &autoFactory{result: errors.New("refused")}
	h := newTestHandler(f)
	router := newTestRouter(h)

	resp := createProxy(t, router,
		`{"app":"live","stream":"cam1","url":"rtsp://host/live/cam1"}`)
	if resp.Online {
		t.Error("expected online=false when the first connect fails")
	}

	// The proxy stays registered and keeps retrying in the background.
	req := httptest.NewRequest(http.MethodGet, "/proxies/"+resp.Key, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("get status = %d, want 200", rec.Code)
	}
}

func TestCreateProxy_bad_requests(t *testing.T) {
	router := newTestRouter(newTestHandler(&autoFactory{}))

	cases := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing app", `{"stream":"cam1","url":"rtsp://host/x"}`},
		{"missing stream", `{"app":"live","url":"rtsp://host/x"}`},
		{"missing url", `{"app":"live","stream":"cam1"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/proxies", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestCreateProxy_duplicate_conflict(t *testing.T) {
	router := newTestRouter(newTestHandler(&autoFactory{}))

	body := `{"app":"live","stream":"cam1","url":"rtsp://host/live/cam1"}`
	createProxy(t, router, body)

	req := httptest.NewRequest(http.MethodPost, "/proxies", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestGetProxy_snapshot(t *testing.T) {
	router := newTestRouter(newTestHandler(&autoFactory{}))

	resp := createProxy(t, router,
		`{"app":"live","stream":"cam1","url":"rtsp://host/live/cam1"}`)

	req := httptest.NewRequest(http.MethodGet, "/proxies/"+resp.Key, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var info proxyInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if info.Vhost != DefaultVhost {
		t.Errorf("vhost = %q, want default vhost", info.Vhost)
	}
	if info.Status != "connected" {
		t.Errorf("status = %q, want connected", info.Status)
	}
	if info.PullURL != "rtsp://host/live/cam1" {
		t.Errorf("pull_url = %q", info.PullURL)
	}
	if info.OriginType != "pulled" {
		t.Errorf("origin_type = %q, want pulled", info.OriginType)
	}
}

func TestGetProxy_not_found(t *testing.T) {
	router := newTestRouter(newTestHandler(&autoFactory{}))

	req := httptest.NewRequest(http.MethodGet, "/proxies/nope", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestListProxies(t *testing.T) {
	router := newTestRouter(newTestHandler(&autoFactory{}))

	createProxy(t, router, `{"app":"live","stream":"cam1","url":"rtsp://host/live/cam1"}`)
	createProxy(t, router, `{"app":"live","stream":"cam2","url":"rtsp://host/live/cam2"}`)

	req := httptest.NewRequest(http.MethodGet, "/proxies", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var out []proxyInfo
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(out) != 2 {
		t.Errorf("got %d proxies, want 2", len(out))
	}
}

func TestDeleteProxy(t *testing.T) {
	f := &autoFactory{}
	router := newTestRouter(newTestHandler(f))

	resp := createProxy(t, router,
		`{"app":"live","stream":"cam1","url":"rtsp://host/live/cam1"}`)

	req := httptest.NewRequest(http.MethodDelete, "/proxies/"+resp.Key, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if !f.players[0].tornDown {
		t.Error("delete should tear the player down")
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/proxies/"+resp.Key, nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}
