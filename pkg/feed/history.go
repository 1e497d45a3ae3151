package feed

// DefaultHistorySize bounds the seen-entry history unless overridden.
const DefaultHistorySize = 200

// History is a fixed-capacity, insertion-ordered membership set of entry
// links already shown to the consumer. Once full, recording a new link evicts
// the oldest one. It lives for the process lifetime only and is not persisted.
// Not safe for concurrent use, the owner serializes access.
type History struct {
	capacity int
	order    []string
	seen     map[string]struct{}
}

// NewHistory creates a History with the given capacity, falling back to
// DefaultHistorySize for non-positive values.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &History{
		capacity: capacity,
		order:    make([]string, 0, capacity),
		seen:     make(map[string]struct{}, capacity),
	}
}

// Seen reports whether the link has been recorded.
func (h *History) Seen(link string) bool {
	_, ok := h.seen[link]
	return ok
}

// Record marks a link as seen. Already known links are a no-op, they keep
// their original position in the eviction order.
func (h *History) Record(link string) {
	if h.Seen(link) {
		return
	}
	if len(h.order) >= h.capacity {
		oldest := h.order[0]
		h.order = h.order[1:]
		delete(h.seen, oldest)
	}
	h.order = append(h.order, link)
	h.seen[link] = struct{}{}
}

// Len returns the number of recorded links.
func (h *History) Len() int { return len(h.order) }
