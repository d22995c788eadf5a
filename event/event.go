// Package event implements the event fan-out service of spec.md §4.4: a
// small line-oriented TCP protocol that lets store backends publish folder
// change notifications and lets IMAP-side connections subscribe to them.
// Grounded on _examples/original_source/tools/event.cpp: the ENQUEUE_NODE
// (pre-LISTEN connection) / DEQUEUE_NODE (subscriber) / HOST_NODE
// (resource's interest set plus subscriber list) structures, and the
// accept/enqueue/dequeue/scan worker split. The original's pthread pool
// bounded by g_threads_num becomes a semaphore-bounded goroutine-per-
// connection model here — idiomatic Go has no reason to pull connections
// off a shared list when a channel-based semaphore does the same bounding
// with far less code; the bound itself (event_threads_num, checked only
// against not-yet-LISTENing connections, exactly as ev_acceptwork does) is
// kept faithfully.
package event

import (
	"time"
)

// Protocol-level constants, named for the original's #defines.
const (
	// maxCommandLength bounds one protocol line, same as MAX_CMD_LENGTH.
	maxCommandLength = 64 * 1024

	// fifoDepth is a subscriber's bounded outbound queue, FIFO_AVERAGE_LENGTH.
	fifoDepth = 128

	// socketTimeout is the liveness budget per subscriber, SOCKET_TIMEOUT.
	socketTimeout = 60 * time.Second

	// pingIdleAfter is how long a subscriber may go without delivering an
	// event before the dequeue loop forces a liveness PING of its own.
	pingIdleAfter = socketTimeout - 3*time.Second

	// selectInterval is how long an idle (user, folder) interest entry
	// survives before the scanner reclaims it, SELECT_INTERVAL.
	selectInterval = 24 * time.Hour

	// hostInterval is how long a resource with no subscribers and no
	// interest entries survives before the scanner reclaims its host
	// record, HOST_INTERVAL.
	hostInterval = 20 * time.Minute

	// scanInterval is the scanner sweep period, SCAN_INTERVAL.
	scanInterval = 10 * time.Minute
)

const (
	replyTrue       = "TRUE\r\n"
	replyFalse      = "FALSE\r\n"
	replyBye        = "BYE\r\n"
	replyAccessDeny = "Access Deny\r\n"
	replyMaxConn    = "Maximum Connection Reached!\r\n"
)
