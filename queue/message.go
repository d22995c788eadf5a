// Package queue implements the message-dequeue engine: a fixed arena of
// message nodes fed by spill files under a queue directory's mess/
// subdirectory and a bounded notification channel, handing messages off to
// worker goroutines with exactly-once semantics.
//
// A message is, at any instant, on exactly one of three lists: free, used
// (loaded but not yet picked up) or checked-out (held by a worker via Get,
// not yet released via Put). The arena owns every node; the three lists
// partition it completely, matching the invariant
// |free| + |used| + |checked-out| == arena size.
package queue

// Message is the in-flight view of one queued mail, parsed out of a mess/
// spill file by the loader.
type Message struct {
	// FlushID names the message within the current queue generation.
	FlushID uint32

	BoundType int32
	Spam      bool

	EnvelopeFrom string
	Rcpts        []string

	// Body is the raw RFC 5322 bytes, heap-allocated by the loader when the
	// node was checked out of the free list.
	Body []byte

	// roundedSize is the mess/<id> file size rounded up to a 64 KiB
	// multiple, the unit Engine's memory accounting was charged in.
	roundedSize int64
}

// Len returns the length of Body, which Get's caller can rely on being > 0.
func (m *Message) Len() int { return len(m.Body) }
