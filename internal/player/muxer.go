package player

import (
	"sync"
	"time"

	"pull-proxy/internal/proxy"
)

// BasicMuxer is a minimal multi-protocol muxer stand-in: it records the
// tracks registered on it and fans byte counters out to whichever listener
// the proxy attaches. Real packetizers (RTMP/RTSP/HLS) would hang off the
// track delegates.
type BasicMuxer struct {
	mu        sync.Mutex
	tuple     proxy.MediaTuple
	opt       proxy.Options
	tracks    []proxy.Track
	listener  proxy.MediaEvents
	completed bool
	readers   int
}

// NewMuxer builds a BasicMuxer; it satisfies proxy.MuxerFactory.
func NewMuxer(tuple proxy.MediaTuple, duration float64, opt proxy.Options) proxy.Muxer {
	return &BasicMuxer{tuple: tuple, opt: opt}
}

// AddTrack implements proxy.Muxer.
func (m *BasicMuxer) AddTrack(t proxy.Track) {
	if t == nil {
		return
	}
	m.mu.Lock()
	m.tracks = append(m.tracks, t)
	m.mu.Unlock()
}

// AddTrackCompleted implements proxy.Muxer.
func (m *BasicMuxer) AddTrackCompleted() {
	m.mu.Lock()
	m.completed = true
	m.mu.Unlock()
}

// ResetTracks implements proxy.Muxer.
func (m *BasicMuxer) ResetTracks() {
	m.mu.Lock()
	m.tracks = nil
	m.completed = false
	m.mu.Unlock()
}

// SetMediaListener implements proxy.Muxer.
func (m *BasicMuxer) SetMediaListener(l proxy.MediaEvents) {
	m.mu.Lock()
	m.listener = l
	m.mu.Unlock()
}

// TotalReaderCount implements proxy.Muxer.
func (m *BasicMuxer) TotalReaderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readers
}

// Tracks implements proxy.Muxer.
func (m *BasicMuxer) Tracks() []proxy.Track {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]proxy.Track, len(m.tracks))
	copy(out, m.tracks)
	return out
}

// BasicSource is a minimal media source for direct-proxy mode: it tracks the
// raw byte rate of the pull and its creation time.
type BasicSource struct {
	mu      sync.Mutex
	proto   proxy.Protocol
	created int64
	muxer   proxy.Muxer
	speed   int64
	readers int
}

// NewMediaSource satisfies proxy.MediaSourceFactory.
func NewMediaSource(tuple proxy.MediaTuple, proto proxy.Protocol) proxy.MediaSource {
	return &BasicSource{proto: proto, created: time.Now().Unix()}
}

// ReaderCount implements proxy.MediaSource.
func (s *BasicSource) ReaderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readers
}

// BytesSpeed implements proxy.MediaSource.
func (s *BasicSource) BytesSpeed() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speed
}

// CreateStamp implements proxy.MediaSource.
func (s *BasicSource) CreateStamp() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created
}

// SetListener implements proxy.MediaSource.
func (s *BasicSource) SetListener(m proxy.Muxer) {
	s.mu.Lock()
	s.muxer = m
	s.mu.Unlock()
}

// Protocol implements proxy.MediaSource.
func (s *BasicSource) Protocol() proxy.Protocol {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proto
}
