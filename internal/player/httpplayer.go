// Package player contains reference collaborators for the proxy engine: an
// HTTP(S) pull player plus minimal muxer and media-source implementations.
// RTSP and RTMP wire decoding live outside this repository; the factory
// reports those schemes as unsupported.
package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"pull-proxy/internal/proxy"
)

// ErrUnsupportedScheme is returned by NewFactory for pull schemes whose
// decoders are not part of this repository.
var ErrUnsupportedScheme = errors.New("unsupported pull scheme")

// NewFactory returns a PlayerFactory that serves http and https pulls.
func NewFactory(client *http.Client) proxy.PlayerFactory {
	return func(rawURL string) (proxy.Player, error) {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, err
		}
		switch u.Scheme {
		case "http", "https":
			return NewHTTPPlayer(client), nil
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
		}
	}
}

// HTTPPlayer pulls a stream over plain HTTP(S): one GET whose body is
// consumed until the upstream ends it. The connect outcome is the response
// status; stream death is reported through the shutdown callback.
type HTTPPlayer struct {
	client *http.Client

	mu           sync.Mutex
	onResult     func(error)
	onShutdown   func(error)
	cancel       context.CancelFunc
	proto        proxy.Protocol
	playing      bool
	startedAt    time.Time
	lastProgress uint64
}

// NewHTTPPlayer builds a player over the given client; nil uses
// http.DefaultClient.
func NewHTTPPlayer(client *http.Client) *HTTPPlayer {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPPlayer{
		client:     client,
		proto:      proxy.ProtocolUnknown,
		onResult:   func(error) {},
		onShutdown: func(error) {},
	}
}

// SetOnResult implements proxy.Player.
func (p *HTTPPlayer) SetOnResult(fn func(error)) {
	if fn == nil {
		fn = func(error) {}
	}
	p.mu.Lock()
	p.onResult = fn
	p.mu.Unlock()
}

// SetOnShutdown implements proxy.Player.
func (p *HTTPPlayer) SetOnShutdown(fn func(error)) {
	if fn == nil {
		fn = func(error) {}
	}
	p.mu.Lock()
	p.onShutdown = fn
	p.mu.Unlock()
}

// Play implements proxy.Player. Only URL problems fail synchronously; the
// connect outcome arrives on the result callback.
func (p *HTTPPlayer) Play(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.cancel = cancel
	if strings.Contains(u.Path, ".m3u8") || strings.Contains(u.Path, ".ts") {
		p.proto = proxy.ProtocolHLS
	}
	p.mu.Unlock()

	go p.pull(ctx, rawURL)
	return nil
}

func (p *HTTPPlayer) pull(ctx context.Context, rawURL string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		p.fireResult(err)
		return
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.fireResult(err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		p.fireResult(fmt.Errorf("upstream status %s", resp.Status))
		return
	}

	p.mu.Lock()
	p.playing = true
	p.startedAt = time.Now()
	p.mu.Unlock()
	p.fireResult(nil)

	_, err = io.Copy(io.Discard, resp.Body)

	p.mu.Lock()
	p.playing = false
	p.lastProgress = uint64(time.Since(p.startedAt) / time.Second)
	onShutdown := p.onShutdown
	p.mu.Unlock()

	if ctx.Err() != nil {
		// Torn down locally; the proxy already moved on.
		return
	}
	if err == nil {
		err = errors.New("upstream closed stream")
	}
	onShutdown(err)
}

func (p *HTTPPlayer) fireResult(err error) {
	p.mu.Lock()
	fn := p.onResult
	p.mu.Unlock()
	fn(err)
}

// Teardown implements proxy.Player.
func (p *HTTPPlayer) Teardown() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// ProgressPos reports whole seconds of playback: the running session while
// playing, else the length of the last one.
func (p *HTTPPlayer) ProgressPos() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		return uint64(time.Since(p.startedAt) / time.Second)
	}
	return p.lastProgress
}

// Duration implements proxy.Player; HTTP pulls are treated as live.
func (p *HTTPPlayer) Duration() float64 { return 0 }

// Track implements proxy.Player. Demuxing is external, so no tracks are
// exposed here.
func (p *HTTPPlayer) Track(proxy.TrackType) proxy.Track { return nil }

// LossRate implements proxy.Player; unknown for plain HTTP pulls.
func (p *HTTPPlayer) LossRate(proxy.TrackType) float64 { return -1 }

// Protocol implements proxy.Player.
func (p *HTTPPlayer) Protocol() proxy.Protocol {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.proto
}
