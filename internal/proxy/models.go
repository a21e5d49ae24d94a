package proxy

import "time"

// DefaultVhost is the virtual host a stream belongs to when none is given.
const DefaultVhost = "__defaultVhost__"

// MediaTuple identifies a stream inside the media server.
type MediaTuple struct {
	Vhost  string `json:"vhost"`
	App    string `json:"app"`
	Stream string `json:"stream"`
}

// Path renders the tuple as "vhost/app/stream".
func (t MediaTuple) Path() string {
	return t.Vhost + "/" + t.App + "/" + t.Stream
}

// Protocol identifies the upstream pull protocol of a player or media source.
type Protocol int

const (
	ProtocolUnknown Protocol = iota
	ProtocolRTSP
	ProtocolRTMP
	ProtocolHLS
)

func (p Protocol) String() string {
	switch p {
	case ProtocolRTSP:
		return "rtsp"
	case ProtocolRTMP:
		return "rtmp"
	case ProtocolHLS:
		return "hls"
	default:
		return "unknown"
	}
}

// TrackType distinguishes the media tracks a player can expose.
type TrackType int

const (
	TrackVideo TrackType = iota
	TrackAudio
)

// Status is the liveness state of a proxy.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnected
)

func (s Status) String() string {
	if s == StatusConnected {
		return "connected"
	}
	return "disconnected"
}

// OriginType describes how a stream entered the server. A proxy always
// reports its streams as pulled.
type OriginType string

const OriginTypePull OriginType = "pulled"

// TrackInfo is the per-track slice of a telemetry snapshot.
type TrackInfo struct {
	Type      TrackType `json:"type"`
	CodecName string    `json:"codec_name"`
	Bitrate   int       `json:"bitrate"`

	// Audio fields, zero for video tracks.
	SampleRate int `json:"sample_rate,omitempty"`
	Channels   int `json:"channels,omitempty"`
	SampleBit  int `json:"sample_bit,omitempty"`

	// Video fields, zero for audio tracks.
	Width  int     `json:"width,omitempty"`
	Height int     `json:"height,omitempty"`
	FPS    float64 `json:"fps,omitempty"`
}

// TransferInfo is the telemetry snapshot passed to the connected callback.
// ByteSpeed is -1 when no direct-proxy media source is installed.
type TransferInfo struct {
	ByteSpeed  int64       `json:"byte_speed"`
	StartStamp int64       `json:"start_stamp"`
	Tracks     []TrackInfo `json:"tracks,omitempty"`
}

// Options is the immutable configuration snapshot a proxy is built with.
// It replaces ambient global configuration: the caller reads its sources
// once and hands the frozen result to NewProxy.
type Options struct {
	EnableRTSP bool
	EnableRTMP bool

	// Direct-proxy flags: republish the upstream protocol's media source
	// locally without going through the muxer.
	RTSPDirectProxy bool
	RTMPDirectProxy bool

	// ResetWhenReplay recreates the muxer on every reconnect instead of
	// resetting its tracks.
	ResetWhenReplay bool

	// KeepReplayProgress enables rewriting the starttime query parameter on
	// reconnect so playback resumes near where it left off.
	KeepReplayProgress bool

	// RetryCount bounds consecutive reconnect attempts; negative means
	// retry forever.
	RetryCount int

	// Reconnect backoff bounds. Values <= 0 fall back to 2s/60s/3s.
	DelayMin  time.Duration
	DelayMax  time.Duration
	DelayStep time.Duration

	// MaxTracks is derived per Play call from the URL suffix heuristic.
	MaxTracks int
}

func (o Options) withDefaults() Options {
	if o.DelayMin <= 0 {
		o.DelayMin = 2 * time.Second
	}
	if o.DelayMax <= 0 {
		o.DelayMax = 60 * time.Second
	}
	if o.DelayStep <= 0 {
		o.DelayStep = 3 * time.Second
	}
	return o
}
