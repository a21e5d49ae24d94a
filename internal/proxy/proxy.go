// Package proxy implements the reconnection and playback-resume engine of a
// pull-stream proxy: it keeps a resilient connection to a remote source,
// reconnects on failure with bounded backoff, and rewrites time-range query
// parameters so playback resumes near where it left off.
package proxy

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"pull-proxy/internal/platform/metrics"
)

var (
	// ErrProxyClosed reports a play-result callback consumed by teardown
	// before any connect attempt resolved.
	ErrProxyClosed = errors.New("player proxy close")

	// ErrClosedByUser is the reason passed to the close callback when the
	// proxy is torn down deliberately rather than by retry exhaustion.
	ErrClosedByUser = errors.New("closed by user")
)

// Deps are the collaborators a proxy pulls through. NewPlayer is required;
// a nil factory disables the matching feature (no muxer wiring, no direct
// proxy). Log and Metrics may be nil.
type Deps struct {
	NewPlayer      PlayerFactory
	NewMuxer       MuxerFactory
	NewMediaSource MediaSourceFactory
	Log            *slog.Logger
	Metrics        *metrics.Metrics
}

// Option customizes a Proxy beyond its configuration snapshot.
type Option func(*Proxy)

// WithClock injects the time source, used by tests to drive retries
// deterministically.
func WithClock(c clock) Option {
	return func(p *Proxy) { p.clk = c }
}

// Proxy pulls one upstream stream and republishes it. All state is guarded
// by mu; callbacks registered with collaborators re-enter through dispatch,
// which drops anything stale. Caller-supplied callbacks run with the proxy
// lock held and must not call back into the proxy synchronously.
type Proxy struct {
	mu    sync.Mutex
	tuple MediaTuple
	opt   Options
	deps  Deps
	clk   clock
	log   *slog.Logger
	met   *metrics.Metrics

	// gen invalidates scheduled callbacks from a previous Play or a torn
	// down player; closed stops everything for good.
	gen    int
	closed bool

	player  Player
	muxer   Muxer
	source  MediaSource
	resume  *PlaybackResume
	origin  string
	pullURL string

	failedCount int
	repullCount uint64
	liveSecs    uint64
	liveTicker  ticker
	status      Status
	retryTimer  timer
	info        TransferInfo

	onPlay       func(err error) // one-shot
	onClose      func(err error)
	onDisconnect func()
	onConnect    func(info TransferInfo)
}

// NewProxy builds a proxy for the given stream identity and configuration
// snapshot. It does nothing until Play is called.
func NewProxy(tuple MediaTuple, opt Options, deps Deps, opts ...Option) *Proxy {
	p := &Proxy{
		tuple:        tuple,
		opt:          opt.withDefaults(),
		deps:         deps,
		clk:          realClock{},
		log:          deps.Log,
		met:          deps.Metrics,
		onClose:      func(error) {},
		onDisconnect: func() {},
		onConnect:    func(TransferInfo) {},
	}
	if p.log == nil {
		p.log = slog.New(slog.DiscardHandler)
	}
	for _, o := range opts {
		o(p)
	}
	p.liveTicker = ticker{clk: p.clk, start: p.clk.Now()}
	return p
}

// SetPlayCallbackOnce registers a callback consumed by the first connect
// outcome of the next Play call (or by Close, with ErrProxyClosed, if no
// outcome ever arrives).
func (p *Proxy) SetPlayCallbackOnce(fn func(err error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onPlay = fn
}

// SetOnClose registers the terminal callback: retry budget exhausted or
// deliberate teardown. nil restores a no-op.
func (p *Proxy) SetOnClose(fn func(err error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if fn == nil {
		fn = func(error) {}
	}
	p.onClose = fn
}

// SetOnDisconnect registers the callback fired when an established stream is
// lost. nil restores a no-op.
func (p *Proxy) SetOnDisconnect(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if fn == nil {
		fn = func() {}
	}
	p.onDisconnect = fn
}

// SetOnConnect registers the callback fired on every successful connect with
// a fresh telemetry snapshot. nil restores a no-op.
func (p *Proxy) SetOnConnect(fn func(info TransferInfo)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if fn == nil {
		fn = func(TransferInfo) {}
	}
	p.onConnect = fn
}

// Only segmented containers are given multi-track headroom; other protocols
// carry at most one audio and one video track.
func maxTrackSize(url string) int {
	if strings.Contains(url, ".m3u8") || strings.Contains(url, ".ts") {
		return 16
	}
	return 2
}

// Play starts pulling rawURL. Resume state is rebuilt from scratch; internal
// retries never pass through here. A replay replaces the previous player:
// its callbacks are invalidated by the generation bump and the pull itself
// is torn down.
func (p *Proxy) Play(rawURL string) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.gen++
	p.stopTimerLocked()
	old := p.player
	p.player = nil
	p.origin = rawURL
	p.resume = NewPlaybackResume(rawURL, p.opt.KeepReplayProgress)
	p.opt.MaxTracks = maxTrackSize(rawURL)
	p.failedCount = 0
	first := rawURL
	if u := p.resume.LastURL; u != "" {
		first = u
	}
	p.mu.Unlock()

	if old != nil {
		old.Teardown()
	}
	p.connect(first)
}

// connect performs one attempt: build a player for the URL, register the
// outcome callbacks under the current generation, start the pull and
// re-evaluate direct-proxy wiring. Structural failures surface through the
// same result path as asynchronous ones.
func (p *Proxy) connect(rawURL string) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	gen := p.gen
	prevURL := p.pullURL
	pl, err := p.deps.NewPlayer(rawURL)
	if err == nil {
		pl.SetOnResult(func(e error) {
			p.dispatch(gen, func() { p.handleResultLocked(e) })
		})
		pl.SetOnShutdown(func(e error) {
			p.dispatch(gen, func() { p.handleShutdownLocked(e) })
		})
		p.player = pl
		p.pullURL = rawURL
	}
	p.mu.Unlock()

	if err != nil {
		p.log.Error("player create failed", "url", rawURL, "error", err)
		p.dispatch(gen, func() { p.handleResultLocked(err) })
		return
	}
	if playErr := pl.Play(rawURL); playErr != nil {
		// A structural failure never became the active pull; keep the
		// telemetry URL pointing at the last attempt that did.
		p.dispatch(gen, func() {
			p.pullURL = prevURL
		})
		p.log.Error("play failed", "url", rawURL, "error", playErr)
		p.dispatch(gen, func() { p.handleResultLocked(playErr) })
		return
	}

	p.mu.Lock()
	if !p.closed && gen == p.gen {
		p.setDirectProxyLocked()
	}
	p.mu.Unlock()
}

// dispatch runs fn with the proxy lock held unless the proxy was closed or
// replayed since the callback was registered. Stale timers and callbacks
// from torn-down players are dropped here.
func (p *Proxy) dispatch(gen int, fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || gen != p.gen {
		return
	}
	fn()
}

func (p *Proxy) stopTimerLocked() {
	if p.retryTimer != nil {
		p.retryTimer.Stop()
		p.retryTimer = nil
	}
}

// handleResultLocked processes a connect outcome. The pending play-result
// callback is consumed by the first outcome, success or failure, and can
// never fire twice for one Play call.
func (p *Proxy) handleResultLocked(err error) {
	if cb := p.onPlay; cb != nil {
		p.onPlay = nil
		cb(err)
	}

	if err == nil {
		// Cancel any pending retry so a success arriving out of band (an
		// hls index recovering after a blip) cannot start a retry loop.
		p.stopTimerLocked()
		p.failedCount = 0
		p.liveTicker.Reset()
		p.status = StatusConnected
		p.onPlaySuccessLocked()
		p.setTransferInfoLocked()
		if p.met != nil {
			p.met.IncPlaySuccess()
		}
		p.onConnect(p.info)
		p.log.Info("play success", "url", p.pullURL, "stream", p.tuple.Path())
		return
	}

	if p.met != nil {
		p.met.IncPlayFailed()
	}
	p.handleFailureLocked(err)
}

// handleShutdownLocked processes the death of an established stream:
// unregister the direct-proxy source, detach tracks, settle the liveness
// account and fall into the shared retry policy.
func (p *Proxy) handleShutdownLocked(err error) {
	p.source = nil

	if p.muxer != nil {
		if p.player != nil {
			for _, tt := range []TrackType{TrackVideo, TrackAudio} {
				if tr := p.player.Track(tt); tr != nil {
					tr.DelDelegate(p.muxer)
				}
			}
		}
		if p.opt.ResetWhenReplay {
			p.muxer = nil
		} else {
			p.muxer.ResetTracks()
		}
	}

	if p.failedCount == 0 {
		// First failure after a success: fold the session into the total.
		p.liveSecs += uint64(p.liveTicker.Elapsed() / time.Second)
		p.liveTicker.Reset()
		p.log.Debug("live seconds accumulated", "live_secs", p.liveSecs)
	}

	p.handleFailureLocked(err)
}

// handleFailureLocked funnels connect failures and mid-stream shutdowns into
// the bounded retry policy. The disconnect notification fires only when the
// failure follows a prior success, never along a chain of pre-success
// retries.
func (p *Proxy) handleFailureLocked(err error) {
	wasConnected := p.status == StatusConnected
	p.status = StatusDisconnected

	if p.failedCount < p.opt.RetryCount || p.opt.RetryCount < 0 {
		if wasConnected {
			p.onDisconnect()
		}
		p.scheduleRetryLocked(err)
		return
	}

	p.log.Warn("retry budget exhausted",
		"url", p.pullURL, "failed", p.failedCount, "error", err)
	p.onClose(err)
}

// scheduleRetryLocked arms the single one-shot retry timer, replacing any
// previous one. The delay grows with the consecutive failure count.
func (p *Proxy) scheduleRetryLocked(err error) {
	failed := p.failedCount
	p.failedCount++
	p.repullCount++
	if p.met != nil {
		p.met.IncRepulls()
	}

	delay := backoffDelay(failed, p.opt.DelayMin, p.opt.DelayMax, p.opt.DelayStep)
	p.log.Warn("scheduling retry",
		"attempt", failed, "delay", delay.String(), "url", p.pullURL, "error", err)

	gen := p.gen
	p.stopTimerLocked()
	p.retryTimer = p.clk.AfterFunc(delay, func() { p.retry(gen) })
}

// retry is the one-shot timer body: fold the previous session's progress
// into the resume anchor, rewrite the URL and reconnect.
func (p *Proxy) retry(gen int) {
	p.mu.Lock()
	if p.closed || gen != p.gen {
		p.mu.Unlock()
		return
	}
	var progress uint64
	if p.player != nil {
		progress = p.player.ProgressPos()
	}
	retryURL := p.resume.NextURL(p.origin, progress)
	attempt := p.failedCount
	p.mu.Unlock()

	p.log.Warn("retrying play", "attempt", attempt, "url", retryURL)
	p.connect(retryURL)
}

// setDirectProxyLocked installs a placeholder media source when the active
// player's protocol has both its direct-proxy flag and its track-enable
// option set, so downstream consumers can attach before the muxer exists.
func (p *Proxy) setDirectProxyLocked() {
	if p.deps.NewMediaSource == nil || p.player == nil {
		return
	}
	var src MediaSource
	switch p.player.Protocol() {
	case ProtocolRTSP:
		if p.opt.RTSPDirectProxy && p.opt.EnableRTSP {
			src = p.deps.NewMediaSource(p.tuple, ProtocolRTSP)
		}
	case ProtocolRTMP:
		if p.opt.RTMPDirectProxy && p.opt.EnableRTMP {
			src = p.deps.NewMediaSource(p.tuple, ProtocolRTMP)
		}
	}
	if src != nil {
		p.source = src
	}
}

// onPlaySuccessLocked wires the muxer after a successful connect. Under the
// reset-on-replay policy the muxer is recreated every time, otherwise it is
// created lazily once and its tracks are reset between sessions.
func (p *Proxy) onPlaySuccessLocked() {
	if p.deps.NewMuxer != nil && (p.opt.ResetWhenReplay || p.muxer == nil) {
		opt := p.opt
		if p.source != nil {
			// The direct-proxy source already serves this protocol; keep
			// the muxer from republishing it.
			switch p.source.Protocol() {
			case ProtocolRTSP:
				opt.EnableRTSP = false
			case ProtocolRTMP:
				opt.EnableRTMP = false
			}
		}
		p.muxer = p.deps.NewMuxer(p.tuple, p.player.Duration(), opt)
	}
	if p.muxer == nil {
		return
	}

	p.muxer.SetMediaListener(p)
	if tr := p.player.Track(TrackVideo); tr != nil {
		p.muxer.AddTrack(tr)
		tr.AddDelegate(p.muxer)
	}
	if tr := p.player.Track(TrackAudio); tr != nil {
		p.muxer.AddTrack(tr)
		tr.AddDelegate(p.muxer)
	}
	// Lets downstream bound its wait when only one track exists.
	p.muxer.AddTrackCompleted()

	if p.source != nil {
		p.source.SetListener(p.muxer)
	}
}

func (p *Proxy) setTransferInfoLocked() {
	info := TransferInfo{ByteSpeed: -1}
	if p.source != nil {
		info.ByteSpeed = p.source.BytesSpeed()
		info.StartStamp = p.source.CreateStamp()
	}
	if p.muxer != nil {
		for _, tr := range p.muxer.Tracks() {
			tr.Update()
			info.Tracks = append(info.Tracks, tr.Info())
		}
	}
	p.info = info
}

// Close tears the proxy down. Idempotent. A play-result callback that never
// fired is consumed with ErrProxyClosed so no caller waits forever; panics
// from caller-supplied callbacks are recovered and logged.
func (p *Proxy) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.gen++
	p.stopTimerLocked()
	playCb := p.onPlay
	p.onPlay = nil
	pl := p.player
	p.muxer = nil
	p.source = nil
	p.status = StatusDisconnected
	onClose := p.onClose
	url := p.pullURL
	p.mu.Unlock()

	if playCb != nil {
		p.safeCallback(func() { playCb(ErrProxyClosed) })
	}
	if pl != nil {
		pl.Teardown()
	}
	p.safeCallback(func() { onClose(ErrClosedByUser) })
	if p.met != nil {
		p.met.IncProxiesClosed()
	}
	p.log.Warn("close media", "stream", p.tuple.Path(), "url", url)
}

func (p *Proxy) safeCallback(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Warn("callback panic during close", "panic", r)
		}
	}()
	fn()
}

// Tuple returns the stream identity.
func (p *Proxy) Tuple() MediaTuple {
	return p.tuple
}

// Status reports whether the upstream is currently connected.
func (p *Proxy) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// LiveSecs returns accumulated connected time in seconds, including the
// running session while connected.
func (p *Proxy) LiveSecs() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status == StatusConnected {
		return p.liveSecs + uint64(p.liveTicker.Elapsed()/time.Second)
	}
	return p.liveSecs
}

// RePullCount returns the lifetime number of scheduled reconnects. It is
// never reset.
func (p *Proxy) RePullCount() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.repullCount
}

// TransferInfo returns the telemetry snapshot of the last successful
// connect.
func (p *Proxy) TransferInfo() TransferInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.info
}

// TotalReaderCount aggregates readers across the muxer and the direct-proxy
// source.
func (p *Proxy) TotalReaderCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	if p.muxer != nil {
		n += p.muxer.TotalReaderCount()
	}
	if p.source != nil {
		n += p.source.ReaderCount()
	}
	return n
}

// OriginType implements MediaEvents; a proxy's streams are always pulled.
func (p *Proxy) OriginType() OriginType {
	return OriginTypePull
}

// OriginURL returns the URL of the active pull.
func (p *Proxy) OriginURL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pullURL
}

// LossRate delegates to the underlying connection; -1 when unknown.
func (p *Proxy) LossRate(t TrackType) float64 {
	p.mu.Lock()
	pl := p.player
	p.mu.Unlock()
	if pl == nil {
		return -1
	}
	return pl.LossRate(t)
}
