package event

import (
	"bufio"
	"context"
	"net"
	"strings"
	"time"

	"github.com/postalcore/postal/framework/limiters"
)

// serveEnqueue runs one connection's pre-LISTEN command loop,
// ev_enqwork translated. It returns once the connection either becomes a
// subscriber (ownership of conn moves to a subscriber goroutine) or the
// connection is closed. rl throttles publish-verb commands; nil disables
// the limit.
func (s *Server) serveEnqueue(ctx context.Context, conn net.Conn, rl *limiters.Rate, connsInFlight func()) {
	defer connsInFlight()
	if rl != nil {
		defer rl.Close()
	}

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	resID := ""

	for {
		conn.SetReadDeadline(time.Now().Add(socketTimeout))
		line, err := readLine(r, maxCommandLength)
		if err != nil {
			conn.Close()
			return
		}
		if line == "" {
			continue
		}

		verb, rest := splitVerb(line)
		switch strings.ToUpper(verb) {
		case "ID":
			resID = strings.TrimSpace(rest)
			writeReply(w, replyTrue)

		case "LISTEN":
			listenRes := strings.TrimSpace(rest)
			if listenRes == "" {
				listenRes = resID
			}
			writeReply(w, replyTrue)
			s.attachSubscriber(ctx, listenRes, conn)
			return

		case "SELECT":
			user, folder, ok := splitUserFolder(rest)
			if !ok {
				writeReply(w, replyFalse)
				continue
			}
			s.registry.getOrCreate(resID).selectFolder(user, folder)
			writeReply(w, replyTrue)

		case "UNSELECT":
			user, folder, ok := splitUserFolder(rest)
			if !ok {
				writeReply(w, replyFalse)
				continue
			}
			if h := s.registry.get(resID); h != nil {
				h.unselectFolder(user, folder)
			}
			writeReply(w, replyTrue)

		case "PING":
			writeReply(w, replyTrue)

		case "QUIT":
			writeReply(w, replyBye)
			conn.Close()
			return

		default:
			if rl != nil {
				if err := rl.TakeContext(ctx); err != nil {
					writeReply(w, replyFalse)
					continue
				}
			}
			s.publish(resID, verb, rest)
			writeReply(w, replyTrue)
		}
	}
}

// attachSubscriber converts conn into a subscriber bound to resID and
// starts its dequeue goroutine — ev_enqwork's "detach the socket, wake a
// dequeue worker" step, done here by simply handing the net.Conn to a new
// goroutine instead of shuffling a socket descriptor between thread pools.
func (s *Server) attachSubscriber(ctx context.Context, resID string, conn net.Conn) {
	h := s.registry.getOrCreate(resID)
	sub := newSubscriber(resID, conn)
	h.addSubscriber(sub)

	s.subsWG.Add(1)
	go func() {
		defer s.subsWG.Done()
		sub.run(ctx, h)
	}()
}

// publish delivers verb/rest as one event line to every other resource's
// subscriber interested in the (user, folder) named in rest, matching
// ev_enqwork's publish-verb branch: self-suppression by resID, then an
// interest-set lookup, then one round-robin subscriber per matching host.
func (s *Server) publish(senderResID, verb, rest string) {
	user, folder, ok := splitUserFolder(rest)
	if !ok {
		return
	}
	line := verb + " " + rest

	s.registry.forEach(func(h *host) {
		if h.resID == senderResID {
			return
		}
		if !h.interested(user, folder) {
			return
		}
		sub := h.nextSubscriber()
		if sub == nil {
			return
		}
		if !sub.deliver(line) {
			s.metrics.fifoDrops.Inc()
		}
	})
}

func writeReply(w *bufio.Writer, reply string) {
	w.WriteString(reply)
	w.Flush()
}

// splitVerb splits "VERB rest..." on the first space; rest keeps any
// interior whitespace untouched for the publish-verb arguments.
func splitVerb(line string) (verb, rest string) {
	i := strings.IndexByte(line, ' ')
	if i < 0 {
		return line, ""
	}
	return line[:i], line[i+1:]
}

// splitUserFolder parses "<user> <folder> [args]", capping each field's
// length the way ev_enqwork's strchr-based split does (128 bytes for
// user, 64 for folder) to keep a malformed line from building an
// unbounded interest key.
func splitUserFolder(rest string) (user, folder string, ok bool) {
	rest = strings.TrimLeft(rest, " ")
	i := strings.IndexByte(rest, ' ')
	if i < 0 {
		return "", "", false
	}
	user = rest[:i]
	remainder := strings.TrimLeft(rest[i+1:], " ")
	j := strings.IndexByte(remainder, ' ')
	if j < 0 {
		folder = remainder
	} else {
		folder = remainder[:j]
	}
	if user == "" || folder == "" || len(user) > 128 || len(folder) > 64 {
		return "", "", false
	}
	return user, folder, true
}
