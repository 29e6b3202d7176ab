// Package streamfilter strips fenced citation blocks out of a live token
// stream. Agent responses interleave human-readable prose with one or more
// machine-readable fenced blocks carrying the citation payload; the filter
// hides the blocks from the visible stream and surfaces the payload exactly
// once per response lifecycle.
package streamfilter

import (
	"encoding/json"
	"strings"

	"github.com/Ammar793/realestate-backend/internal/citations"
)

const (
	// OpenFence and CloseFence delimit a machine-readable citation block
	// embedded in streamed answer text.
	OpenFence  = "<<<CITATIONS"
	CloseFence = "CITATIONS>>>"
)

// Payload is the structured data carried inside a fence.
type Payload struct {
	Citations []citations.Citation `json:"citations"`
}

// Filter is the per-response fence filter. It is stateful across chunk
// boundaries and must be created fresh for every logical response; sharing
// one Filter across concurrent responses corrupts citation extraction.
type Filter struct {
	inFence bool
	fence   strings.Builder
	tail    string // held-back text that may be a partial open marker
	emitted bool
}

// New returns a filter ready for a new response lifecycle.
func New() *Filter {
	return &Filter{}
}

// Reset clears all state so the filter can serve another response.
func (f *Filter) Reset() {
	f.inFence = false
	f.fence.Reset()
	f.tail = ""
	f.emitted = false
}

// Feed consumes the next raw chunk and returns the visible portion plus a
// citation payload when a complete fence closed in this chunk for the first
// time in the lifecycle. Later fences are stripped but their payloads are
// suppressed. A fence that fails to parse is discarded silently.
func (f *Filter) Feed(chunk string) (visible string, payload *Payload) {
	data := f.tail + chunk
	f.tail = ""

	var out strings.Builder
	for data != "" {
		if f.inFence {
			idx := strings.Index(data, CloseFence)
			if idx < 0 {
				// Close marker may itself be split across chunks; hold back
				// any suffix that could be its beginning.
				keep := partialMarkerLen(data, CloseFence)
				f.fence.WriteString(data[:len(data)-keep])
				f.tail = data[len(data)-keep:]
				data = ""
				continue
			}
			f.fence.WriteString(data[:idx])
			data = data[idx+len(CloseFence):]
			f.inFence = false

			if p := f.parseFence(); p != nil {
				payload = p
			}
			f.fence.Reset()
			continue
		}

		idx := strings.Index(data, OpenFence)
		if idx < 0 {
			keep := partialMarkerLen(data, OpenFence)
			out.WriteString(data[:len(data)-keep])
			f.tail = data[len(data)-keep:]
			data = ""
			continue
		}
		out.WriteString(data[:idx])
		data = data[idx+len(OpenFence):]
		f.inFence = true
	}

	return out.String(), payload
}

// Flush releases any held-back visible text at end of stream. An
// unterminated fence is dropped entirely.
func (f *Filter) Flush() string {
	if f.inFence {
		f.fence.Reset()
		f.tail = ""
		return ""
	}
	t := f.tail
	f.tail = ""
	return t
}

// parseFence decodes the accumulated fence content, honoring the
// at-most-once emission guarantee.
func (f *Filter) parseFence() *Payload {
	if f.emitted {
		return nil
	}
	content := strings.TrimSpace(f.fence.String())
	if content == "" {
		return nil
	}
	var p Payload
	if err := json.Unmarshal([]byte(content), &p); err != nil {
		// Malformed structured data is never surfaced to the caller.
		return nil
	}
	f.emitted = true
	return &p
}

// partialMarkerLen returns the length of the longest proper prefix of marker
// that is a suffix of data. That suffix must be held back: the next chunk
// may complete the marker.
func partialMarkerLen(data, marker string) int {
	max := len(marker) - 1
	if max > len(data) {
		max = len(data)
	}
	for n := max; n > 0; n-- {
		if strings.HasSuffix(data, marker[:n]) {
			return n
		}
	}
	return 0
}
