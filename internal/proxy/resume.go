package proxy

import "strings"

const (
	startTimeKey = "starttime"
	endTimeKey   = "endtime"
)

// QueryItem is one query-string token. HasValue distinguishes "k" from "k=";
// Value is only meaningful when HasValue is set.
type QueryItem struct {
	Key      string
	Value    string
	HasValue bool
}

// PlaybackResume owns the decomposed pull URL and the resume anchor. A new
// one is built on every external Play call and mutated in place by each
// retry. Item order is never changed: every key the upstream sent passes
// through in its original position.
type PlaybackResume struct {
	Enabled  bool
	Base     string
	Fragment string // includes the leading '#', or empty
	Items    []QueryItem

	// StartIndex/EndIndex locate the starttime/endtime items, -1 when unset.
	StartIndex int
	EndIndex   int

	InitialStart int64 // epoch seconds of the original starttime anchor
	EndStamp     int64 // epoch seconds of endtime, 0 when absent
	Format       TimeFormat
	Offset       int

	// TotalProgress accumulates playback progress across retries within one
	// Play session. It never decreases.
	TotalProgress uint64

	LastURL string
}

// NewPlaybackResume decomposes rawURL. When keepProgress is false, or the URL
// carries no query string, or no starttime parses, resume stays disabled and
// every retry replays LastURL verbatim.
func NewPlaybackResume(rawURL string, keepProgress bool) *PlaybackResume {
	r := &PlaybackResume{StartIndex: -1, EndIndex: -1, LastURL: rawURL}
	if !keepProgress {
		return r
	}

	working := rawURL
	if i := strings.IndexByte(working, '#'); i >= 0 {
		r.Fragment = working[i:]
		working = working[:i]
	}

	q := strings.IndexByte(working, '?')
	if q < 0 {
		r.Base = working
		return r
	}
	r.Base = working[:q]

	parseError := false
	for _, token := range strings.Split(working[q+1:], "&") {
		if token == "" {
			continue
		}
		item := QueryItem{Key: token}
		if eq := strings.IndexByte(token, '='); eq >= 0 {
			item.Key = token[:eq]
			item.Value = token[eq+1:]
			item.HasValue = true
		}

		switch key := strings.ToLower(item.Key); {
		case r.StartIndex < 0 && key == startTimeKey && item.HasValue:
			if ts, err := ParseTimestamp(item.Value); err == nil {
				r.InitialStart = ts.Epoch
				r.Format = ts.Format
				r.Offset = ts.Offset
				r.StartIndex = len(r.Items)
			} else {
				parseError = true
			}
		case r.EndIndex < 0 && key == endTimeKey && item.HasValue:
			if ts, err := ParseTimestamp(item.Value); err == nil {
				r.EndStamp = ts.Epoch
				r.EndIndex = len(r.Items)
			}
		}
		r.Items = append(r.Items, item)
	}

	r.Enabled = r.StartIndex >= 0 && !parseError
	return r
}

// Assemble reconstructs the URL from its parts. When resume is disabled the
// last URL is returned unchanged, never rebuilt.
func (r *PlaybackResume) Assemble() string {
	if !r.Enabled || len(r.Items) == 0 {
		return r.LastURL
	}
	var b strings.Builder
	b.WriteString(r.Base)
	for i, item := range r.Items {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(item.Key)
		if item.HasValue {
			b.WriteByte('=')
			b.WriteString(item.Value)
		}
	}
	b.WriteString(r.Fragment)
	return b.String()
}

// NextURL advances the starttime anchor by the given playback progress and
// returns the URL the next reconnect should pull. With resume disabled the
// most recent URL (or origin as a final fallback) is replayed unchanged.
func (r *PlaybackResume) NextURL(origin string, progress uint64) string {
	if !r.Enabled || r.StartIndex < 0 {
		if r.LastURL != "" {
			return r.LastURL
		}
		return origin
	}

	r.TotalProgress += progress
	newStart := r.InitialStart + int64(r.TotalProgress)
	if r.EndStamp > 0 && newStart >= r.EndStamp {
		if r.EndStamp > r.InitialStart {
			newStart = r.EndStamp - 1
		} else {
			newStart = r.InitialStart
		}
	}
	if newStart < r.InitialStart {
		newStart = r.InitialStart
	}

	r.Items[r.StartIndex].Value = FormatTimestamp(newStart, r.Format, r.Offset)
	r.Items[r.StartIndex].HasValue = true

	if u := r.Assemble(); u != "" {
		r.LastURL = u
	}
	if r.LastURL != "" {
		return r.LastURL
	}
	return origin
}
