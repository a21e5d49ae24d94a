package proxy

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"pull-proxy/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

const defaultPlayTimeout = 10 * time.Second

// Handler exposes the proxy management HTTP endpoints using go-chi.
type Handler struct {
	reg         *Registry
	log         *slog.Logger
	metrics     *metrics.Metrics
	playTimeout time.Duration
}

// NewHandler returns a Handler over the given Registry. Metrics may be nil
// to disable metric recording (e.g. in tests).
func NewHandler(reg *Registry, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{reg: reg, log: log, metrics: m, playTimeout: defaultPlayTimeout}
}

type createRequest struct {
	Vhost      string `json:"vhost"`
	App        string `json:"app"`
	Stream     string `json:"stream"`
	URL        string `json:"url"`
	RetryCount *int   `json:"retry_count"`
}

type createResponse struct {
	Key    string `json:"key"`
	Online bool   `json:"online"`
}

type proxyInfo struct {
	Key         string `json:"key"`
	Vhost       string `json:"vhost"`
	App         string `json:"app"`
	Stream      string `json:"stream"`
	Status      string `json:"status"`
	PullURL     string `json:"pull_url,omitempty"`
	OriginType  string `json:"origin_type"`
	LiveSecs    uint64 `json:"live_secs"`
	RePullCount uint64 `json:"repull_count"`
	ReaderCount int    `json:"reader_count"`
	ByteSpeed   int64  `json:"byte_speed"`
}

// CreateProxy handles POST /proxies.
// Body: { "vhost": "...", "app": "live", "stream": "cam1", "url": "...",
// "retry_count": -1 }. It waits (bounded) for the first connect outcome;
// the proxy stays registered and retrying even when that outcome is a
// failure.
func (h *Handler) CreateProxy(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid create body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if req.App == "" || req.Stream == "" || req.URL == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if req.Vhost == "" {
		req.Vhost = DefaultVhost
	}

	tuple := MediaTuple{Vhost: req.Vhost, App: req.App, Stream: req.Stream}
	key, p, err := h.reg.Create(tuple, req.RetryCount)
	if err != nil {
		if errors.Is(err, ErrDuplicateProxy) {
			w.WriteHeader(http.StatusConflict)
			return
		}
		h.log.Error("create proxy failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if h.metrics != nil {
		h.metrics.IncProxiesCreated()
	}

	result := make(chan error, 1)
	p.SetPlayCallbackOnce(func(err error) {
		select {
		case result <- err:
		default:
		}
	})
	p.Play(req.URL)

	online := false
	select {
	case playErr := <-result:
		online = playErr == nil
	case <-time.After(h.playTimeout):
	}

	h.log.Info("proxy created",
		slog.String("key", key),
		slog.String("stream", tuple.Path()),
		slog.Bool("online", online))
	writeJSON(w, http.StatusCreated, createResponse{Key: key, Online: online})
}

// GetProxy handles GET /proxies/{key}: a telemetry snapshot of one proxy.
func (h *Handler) GetProxy(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	p, ok := h.reg.Get(key)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, h.info(key, p))
}

// ListProxies handles GET /proxies.
func (h *Handler) ListProxies(w http.ResponseWriter, r *http.Request) {
	all := h.reg.List()
	out := make([]proxyInfo, 0, len(all))
	for key, p := range all {
		out = append(out, h.info(key, p))
	}
	writeJSON(w, http.StatusOK, out)
}

// DeleteProxy handles DELETE /proxies/{key}: close and deregister.
func (h *Handler) DeleteProxy(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !h.reg.Remove(key) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	h.log.Info("proxy removed", slog.String("key", key))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) info(key string, p *Proxy) proxyInfo {
	tuple := p.Tuple()
	return proxyInfo{
		Key:         key,
		Vhost:       tuple.Vhost,
		App:         tuple.App,
		Stream:      tuple.Stream,
		Status:      p.Status().String(),
		PullURL:     p.OriginURL(),
		OriginType:  string(p.OriginType()),
		LiveSecs:    p.LiveSecs(),
		RePullCount: p.RePullCount(),
		ReaderCount: p.TotalReaderCount(),
		ByteSpeed:   p.TransferInfo().ByteSpeed,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
