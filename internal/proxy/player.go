package proxy

// Player is the connection delegate a proxy pulls through. One player serves
// one connect attempt; the factory is invoked again for every reconnect.
// Implementations may invoke the result and shutdown callbacks from any
// goroutine.
type Player interface {
	// Play starts the pull. A non-nil return reports a structural failure
	// (bad URL, unsupported scheme); connection outcomes arrive through the
	// result callback instead.
	Play(url string) error
	Teardown()

	// SetOnResult registers the connect-outcome callback, invoked once per
	// Play with nil on success.
	SetOnResult(fn func(err error))
	// SetOnShutdown registers the callback fired when an established stream
	// dies.
	SetOnShutdown(fn func(err error))

	// ProgressPos reports elapsed playback progress in whole seconds.
	ProgressPos() uint64
	// Duration is the negotiated stream duration in seconds, 0 for live.
	Duration() float64

	Track(t TrackType) Track
	LossRate(t TrackType) float64
	Protocol() Protocol
}

// PlayerFactory builds the connection delegate for a pull URL, typically
// selecting the implementation by scheme.
type PlayerFactory func(url string) (Player, error)

// Track is one media track exposed by a player.
type Track interface {
	Type() TrackType
	// Update refreshes derived track statistics before reading Info.
	Update()
	Info() TrackInfo
	AddDelegate(m Muxer)
	DelDelegate(m Muxer)
}

// Muxer combines tracks into output formats for downstream consumers.
type Muxer interface {
	AddTrack(t Track)
	// AddTrackCompleted signals that no further tracks will be added, so
	// downstream can bound its wait instead of using a fixed worst case.
	AddTrackCompleted()
	ResetTracks()
	SetMediaListener(ev MediaEvents)
	TotalReaderCount() int
	Tracks() []Track
}

// MuxerFactory builds a muxer bound to the stream identity and its
// negotiated duration.
type MuxerFactory func(tuple MediaTuple, duration float64, opt Options) Muxer

// MediaSource is a direct-proxy placeholder source, letting downstream
// consumers attach before the muxer exists.
type MediaSource interface {
	ReaderCount() int
	BytesSpeed() int64
	CreateStamp() int64
	SetListener(m Muxer)
	Protocol() Protocol
}

// MediaSourceFactory builds the placeholder source for a direct-proxied
// protocol.
type MediaSourceFactory func(tuple MediaTuple, proto Protocol) MediaSource

// MediaEvents is the listener surface a proxy exposes to its muxer.
type MediaEvents interface {
	// Close asks the proxy to stop pulling and tear down.
	Close()
	TotalReaderCount() int
	OriginType() OriginType
	OriginURL() string
	LossRate(t TrackType) float64
}
